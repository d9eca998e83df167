package auth

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/server/models"
)

// UserLookup finds a user by ID. It returns common.ErrorNotFound for
// unknown users.
type UserLookup interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
}

// SessionAuthenticator authorises realtime sessions. A session is accepted
// only with a valid token for a user that still exists.
type SessionAuthenticator struct {
	secret []byte
	users  UserLookup
}

func NewSessionAuthenticator(secret string, users UserLookup) *SessionAuthenticator {
	return &SessionAuthenticator{secret: []byte(secret), users: users}
}

// Authenticate returns the session's user or an error wrapping
// common.ErrorUnauthorized.
func (a *SessionAuthenticator) Authenticate(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: no token provided", common.ErrorUnauthorized)
	}

	userID, err := GetUserIDFromToken(token, a.secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorUnauthorized, err)
	}

	user, err := a.users.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: user lookup: %v", common.ErrorUnauthorized, err)
	}

	return user, nil
}
