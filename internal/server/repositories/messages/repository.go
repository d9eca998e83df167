// Package messages stores chat messages. Rows are insert-only.
package messages

import (
	"context"

	"github.com/dmitrijs2005/gophchat/internal/server/models"
)

type Repository interface {
	// Create persists m and fills in its ID and CreatedAt.
	Create(ctx context.Context, m *models.Message) (*models.Message, error)
	// Conversation returns every message between the two users, oldest first.
	Conversation(ctx context.Context, userID, peerID string) ([]*models.Message, error)
	// LastMessages returns, for each user userID has talked to, the most
	// recent message between them, keyed by that user's ID.
	LastMessages(ctx context.Context, userID string) (map[string]*models.Message, error)
}
