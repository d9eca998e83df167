// Package codec turns chat messages into what the user sees and typed text
// into send requests, encrypting and decrypting message text on the way.
//
// Only text is encrypted. Image keys travel in the clear.
package codec

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gophchat/internal/api"
	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/cryptox"
	"github.com/dmitrijs2005/gophchat/internal/logging"
)

const (
	PlaceholderEncrypted     = "[Encrypted message]"
	PlaceholderUndecryptable = "[Unable to decrypt]"
)

// KeySource yields the viewer's own key pair. *keyvault.Vault implements it.
type KeySource interface {
	EnsureKeyPair(ctx context.Context, userID string) (*cryptox.KeyPair, error)
}

// Displayed is a message ready for rendering.
type Displayed struct {
	Message api.Message
	Text    string
}

type Codec struct {
	keys   KeySource
	logger logging.Logger
}

func New(keys KeySource, l logging.Logger) *Codec {
	return &Codec{keys: keys, logger: l.With("module", "codec")}
}

// Decode renders msg for viewerID. peerPublicKey is the other party's
// current public key. It never fails: messages that cannot be read are
// shown as a placeholder.
func (c *Codec) Decode(ctx context.Context, msg api.Message, viewerID, peerPublicKey string) Displayed {
	d := Displayed{Message: msg}

	if !msg.IsEncrypted {
		d.Text = msg.Text
		return d
	}
	if msg.Text == "" {
		return d
	}

	peerKey := peerPublicKey
	if viewerID != msg.SenderID && msg.SenderPublicKey != "" {
		peerKey = msg.SenderPublicKey
	}

	if msg.EncryptionIV == "" || peerKey == "" || viewerID == "" {
		d.Text = PlaceholderEncrypted
		return d
	}

	plain, err := c.decrypt(ctx, viewerID, peerKey, msg.Text, msg.EncryptionIV)
	if err != nil {
		c.logger.Warn(ctx, "message decryption failed", "message_id", msg.ID, "error", err)
		d.Text = PlaceholderUndecryptable
		return d
	}

	d.Text = plain
	return d
}

func (c *Codec) decrypt(ctx context.Context, viewerID, peerKey, cipherText, iv string) (string, error) {
	kp, err := c.keys.EnsureKeyPair(ctx, viewerID)
	if err != nil {
		return "", err
	}
	key, err := cryptox.DeriveSharedKey(kp.PrivateJWK, peerKey)
	if err != nil {
		return "", err
	}
	return cryptox.DecryptText(key, cipherText, iv)
}

// DecodeAll decodes a conversation in order.
func (c *Codec) DecodeAll(ctx context.Context, msgs []api.Message, viewerID, peerPublicKey string) []Displayed {
	out := make([]Displayed, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, c.Decode(ctx, m, viewerID, peerPublicKey))
	}
	return out
}

// Encode builds the request for sending text and/or an image key from
// senderID to receiverID. Text is trimmed and, when non-empty, encrypted
// for recipientPublicKey with the sender's device key pair.
func (c *Codec) Encode(ctx context.Context, senderID, receiverID, recipientPublicKey, text, image string) (*api.SendMessageRequest, error) {
	text = strings.TrimSpace(text)
	image = strings.TrimSpace(image)

	if text == "" && image == "" {
		return nil, common.ErrEmptyMessage
	}

	req := &api.SendMessageRequest{
		ReceiverID: receiverID,
		Image:      image,
	}
	if text == "" {
		return req, nil
	}

	if recipientPublicKey == "" {
		return nil, common.ErrRecipientKeyMissing
	}

	kp, err := c.keys.EnsureKeyPair(ctx, senderID)
	if err != nil {
		return nil, fmt.Errorf("sender key pair: %w", err)
	}
	key, err := cryptox.DeriveSharedKey(kp.PrivateJWK, recipientPublicKey)
	if err != nil {
		return nil, err
	}
	cipherText, iv, err := cryptox.EncryptText(key, text)
	if err != nil {
		return nil, fmt.Errorf("encrypt message: %w", err)
	}

	req.Text = cipherText
	req.IsEncrypted = true
	req.EncryptionIV = iv
	req.SenderPublicKey = kp.PublicKey()
	return req, nil
}
