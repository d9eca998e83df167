package models

import (
	"time"

	"github.com/dmitrijs2005/gophchat/internal/api"
)

// Message is a stored chat message. Rows are written once and never
// updated.
type Message struct {
	ID              string    `db:"id"`
	SenderID        string    `db:"sender_id"`
	ReceiverID      string    `db:"receiver_id"`
	Text            string    `db:"text"`
	Image           string    `db:"image"`
	IsEncrypted     bool      `db:"is_encrypted"`
	EncryptionIV    string    `db:"encryption_iv"`
	SenderPublicKey string    `db:"sender_public_key"`
	CreatedAt       time.Time `db:"created_at"`
}

func (m *Message) ToAPI() api.Message {
	return api.Message{
		ID:              m.ID,
		SenderID:        m.SenderID,
		ReceiverID:      m.ReceiverID,
		Text:            m.Text,
		Image:           m.Image,
		IsEncrypted:     m.IsEncrypted,
		EncryptionIV:    m.EncryptionIV,
		SenderPublicKey: m.SenderPublicKey,
		CreatedAt:       m.CreatedAt,
	}
}

// SidebarEntry is another user together with the latest message exchanged
// with them, if any.
type SidebarEntry struct {
	User        *User
	LastMessage *Message
}
