package cli

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gophchat/internal/api"
	"github.com/dmitrijs2005/gophchat/internal/client/codec"
)

const timeLayout = "2006-01-02 15:04"

func (a *App) displayName(userID string) string {
	if me := a.chat.Me(); me != nil && me.ID == userID {
		return "you"
	}
	if u, err := a.chat.FindUser(userID); err == nil {
		return u.Username
	}
	return userID
}

func (a *App) formatMessage(d codec.Displayed) string {
	var b strings.Builder
	if !d.Message.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "[%s] ", d.Message.CreatedAt.Local().Format(timeLayout))
	}
	b.WriteString(a.displayName(d.Message.SenderID))
	b.WriteString(":")
	if d.Text != "" {
		b.WriteString(" ")
		b.WriteString(d.Text)
	}
	if d.Message.Image != "" {
		fmt.Fprintf(&b, " [image %s]", d.Message.Image)
	}
	return b.String()
}

// lastMessagePreview summarises a sidebar entry without decrypting it.
func lastMessagePreview(m *api.Message) string {
	switch {
	case m == nil:
		return ""
	case m.IsEncrypted && m.Text != "":
		return codec.PlaceholderEncrypted
	case m.Text != "":
		if len(m.Text) > 40 {
			return m.Text[:40] + "..."
		}
		return m.Text
	case m.Image != "":
		return "[image]"
	default:
		return ""
	}
}
