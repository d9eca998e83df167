package users

import (
	"context"

	"github.com/dmitrijs2005/gophchat/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	// UsernameTaken reports whether another user (not exceptID) already
	// uses username, compared case-insensitively.
	UsernameTaken(ctx context.Context, username, exceptID string) (bool, error)
	UpdateProfile(ctx context.Context, id string, upd models.ProfileUpdate) (*models.User, error)
	// ListExcept returns every user but id, ordered by username.
	ListExcept(ctx context.Context, id string) ([]*models.User, error)
}
