package messages

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/gophchat/internal/dbx"
	"github.com/dmitrijs2005/gophchat/internal/server/models"
	"github.com/jmoiron/sqlx"
)

const messageColumns = `id, sender_id, receiver_id, text, image, is_encrypted, encryption_iv, sender_public_key, created_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, m *models.Message) (*models.Message, error) {
	query := `
		INSERT INTO messages (sender_id, receiver_id, text, image, is_encrypted, encryption_iv, sender_public_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		m.SenderID, m.ReceiverID, m.Text, m.Image, m.IsEncrypted, m.EncryptionIV, m.SenderPublicKey,
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return m, nil
}

func (r *PostgresRepository) Conversation(ctx context.Context, userID, peerID string) ([]*models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE (sender_id = $1 AND receiver_id = $2)
		   OR (sender_id = $2 AND receiver_id = $1)
		ORDER BY created_at, id
	`
	rows, err := r.db.QueryContext(ctx, query, userID, peerID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	out := []*models.Message{}
	if err := sqlx.StructScan(rows, &out); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

type lastMessageRow struct {
	PeerID string `db:"peer_id"`
	models.Message
}

func (r *PostgresRepository) LastMessages(ctx context.Context, userID string) (map[string]*models.Message, error) {
	query := `
		SELECT DISTINCT ON (peer_id) peer_id, ` + messageColumns + `
		FROM (
			SELECT CASE WHEN sender_id = $1 THEN receiver_id ELSE sender_id END AS peer_id, *
			FROM messages
			WHERE sender_id = $1 OR receiver_id = $1
		) m
		ORDER BY peer_id, created_at DESC, id DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var scanned []lastMessageRow
	if err := sqlx.StructScan(rows, &scanned); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	out := make(map[string]*models.Message, len(scanned))
	for i := range scanned {
		out[scanned[i].PeerID] = &scanned[i].Message
	}
	return out, nil
}
