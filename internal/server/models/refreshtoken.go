package models

import "time"

// RefreshToken is a server-stored, single-use refresh token.
type RefreshToken struct {
	ID        int64
	UserID    string
	Token     string
	Expires   time.Time
	CreatedAt time.Time
}
