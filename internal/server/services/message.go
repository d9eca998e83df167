package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gophchat/internal/api"
	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/logging"
	"github.com/dmitrijs2005/gophchat/internal/server/models"
	"github.com/dmitrijs2005/gophchat/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// Deliverer pushes an event to every live session of a user.
type Deliverer interface {
	Deliver(ctx context.Context, recipientID string, ev api.Event)
}

// SendInput is a message as submitted by its sender. Text is ciphertext
// when IsEncrypted is set.
type SendInput struct {
	ReceiverID      string
	Text            string
	Image           string
	IsEncrypted     bool
	EncryptionIV    string
	SenderPublicKey string
}

type MessageService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	delivery    Deliverer
	logger      logging.Logger
}

func NewMessageService(db *sql.DB, m repomanager.RepositoryManager, d Deliverer, l logging.Logger) *MessageService {
	return &MessageService{
		db:          db,
		repomanager: m,
		delivery:    d,
		logger:      l.With("module", "message_service"),
	}
}

func validUserID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// History returns the conversation between userID and peerID in creation
// order.
func (s *MessageService) History(ctx context.Context, userID, peerID string) ([]*models.Message, error) {
	if !validUserID(peerID) {
		return nil, validationError("invalid user id")
	}
	msgs, err := s.repomanager.Messages(s.db).Conversation(ctx, userID, peerID)
	if err != nil {
		return nil, fmt.Errorf("error loading messages: %w", err)
	}
	return msgs, nil
}

// Send validates and stores a message, then pushes it to the receiver's
// live sessions. Delivery is best effort; an offline receiver picks the
// message up from History.
func (s *MessageService) Send(ctx context.Context, senderID string, in SendInput) (*models.Message, error) {
	if !validUserID(in.ReceiverID) {
		return nil, validationError("invalid receiver id")
	}

	text := strings.TrimSpace(in.Text)
	iv := strings.TrimSpace(in.EncryptionIV)
	senderKey := strings.TrimSpace(in.SenderPublicKey)
	image := strings.TrimSpace(in.Image)

	if text == "" && image == "" {
		return nil, fmt.Errorf("%w: %w", common.ErrorValidation, common.ErrEmptyMessage)
	}
	if in.IsEncrypted && text != "" && iv == "" {
		return nil, validationError("encrypted messages require an IV")
	}
	if in.IsEncrypted && text != "" && senderKey == "" {
		return nil, validationError("encrypted messages require sender public key")
	}

	if _, err := s.repomanager.Users(s.db).GetByID(ctx, in.ReceiverID); err != nil {
		return nil, fmt.Errorf("receiver: %w", err)
	}

	m, err := s.repomanager.Messages(s.db).Create(ctx, &models.Message{
		SenderID:        senderID,
		ReceiverID:      in.ReceiverID,
		Text:            text,
		Image:           image,
		IsEncrypted:     in.IsEncrypted,
		EncryptionIV:    iv,
		SenderPublicKey: senderKey,
	})
	if err != nil {
		return nil, fmt.Errorf("error saving message: %w", err)
	}

	wire := m.ToAPI()
	s.delivery.Deliver(ctx, m.ReceiverID, api.NewMessageEvent(&wire))
	s.logger.Debug(ctx, "message sent", "message_id", m.ID, "encrypted", m.IsEncrypted)

	return m, nil
}
