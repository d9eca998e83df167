package cli

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/gophchat/internal/client/services"
)

var getMultiline = GetMultiline

// Users reloads and prints the user list.
func (a *App) Users(ctx context.Context) error {
	users, err := a.chat.LoadUsers(ctx)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		a.println("No other users yet.")
		return nil
	}

	for _, u := range users {
		line := "  " + u.Username
		if a.chat.IsOnline(u.ID) {
			line += " (online)"
		}
		if n := a.chat.Unread(u.ID); n > 0 {
			a.printf("%s [%d unread]\n", line, n)
			continue
		}
		if preview := lastMessagePreview(u.LastMessage); preview != "" {
			line += "  " + preview
		}
		a.println(line)
	}
	return nil
}

// Open selects a conversation by username and prints its history.
func (a *App) Open(ctx context.Context, who string) error {
	if who == "" {
		a.println("Usage: open <username>")
		return nil
	}

	peer, err := a.chat.FindUser(who)
	if errors.Is(err, services.ErrUnknownUser) {
		if _, lerr := a.chat.LoadUsers(ctx); lerr != nil {
			return lerr
		}
		peer, err = a.chat.FindUser(who)
	}
	if err != nil {
		return err
	}

	conv, err := a.chat.SelectPeer(ctx, peer.ID)
	if errors.Is(err, services.ErrStaleSelection) {
		return nil
	}
	if err != nil {
		return err
	}

	state := "offline"
	if a.chat.IsOnline(peer.ID) {
		state = "online"
	}
	a.printf("--- %s (%s) ---\n", peer.Username, state)
	if len(conv) == 0 {
		a.println("No messages yet.")
	}
	for _, d := range conv {
		a.println(a.formatMessage(d))
	}
	return nil
}

// Send sends text to the open conversation. Without text it prompts for a
// multi-line message.
func (a *App) Send(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		var err error
		text, err = getMultiline(a.reader, "Message", a.out)
		if err != nil {
			return err
		}
	}

	d, err := a.chat.Send(ctx, text, "")
	if err != nil {
		return err
	}
	a.println(a.formatMessage(*d))
	return nil
}

// Image uploads the file at path to the open conversation with an optional
// caption, which is encrypted like any text.
func (a *App) Image(ctx context.Context, path, caption string) error {
	if path == "" {
		a.println("Usage: image <path> [caption]")
		return nil
	}

	d, err := a.chat.Send(ctx, caption, path)
	if err != nil {
		return err
	}
	a.println(a.formatMessage(*d))
	return nil
}

// SaveImage downloads an image by storage key into the downloads directory.
func (a *App) SaveImage(ctx context.Context, key string) error {
	if key == "" {
		a.println("Usage: save <image key>")
		return nil
	}

	path, err := a.chat.SaveImage(ctx, key, filepath.Join(a.dataDir, downloadsDir))
	if err != nil {
		return err
	}
	a.printf("Saved to %s\n", path)
	return nil
}

// Online prints who is connected right now.
func (a *App) Online(ctx context.Context) error {
	ids := a.chat.Online()
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		names = append(names, a.displayName(id))
	}
	if len(names) == 0 {
		a.println("Nobody is online.")
		return nil
	}
	a.println("Online:", strings.Join(names, ", "))
	return nil
}

// WhoAmI prints the signed-in profile.
func (a *App) WhoAmI(ctx context.Context) error {
	me := a.chat.Me()
	if me == nil {
		a.println("Not logged in.")
		return nil
	}

	key := "not published"
	if me.EncryptionPublicKey != "" {
		key = "published"
	}
	a.printf("%s <%s>\nid: %s\nencryption key: %s\n", me.Username, me.Email, me.ID, key)
	return nil
}
