package models

import (
	"time"

	"github.com/dmitrijs2005/gophchat/internal/api"
)

// User is a registered account. PasswordHash is an encoded argon2id hash
// and never leaves the server.
type User struct {
	ID                  string    `db:"id"`
	Username            string    `db:"username"`
	Email               string    `db:"email"`
	PasswordHash        string    `db:"password_hash"`
	ProfilePic          string    `db:"profile_pic"`
	EncryptionPublicKey string    `db:"encryption_public_key"`
	CreatedAt           time.Time `db:"created_at"`
	UpdatedAt           time.Time `db:"updated_at"`
}

// ProfileUpdate lists the profile fields to change. Nil fields are kept.
type ProfileUpdate struct {
	Username            *string
	ProfilePic          *string
	EncryptionPublicKey *string
}

// Empty reports whether the update changes nothing.
func (p ProfileUpdate) Empty() bool {
	return p.Username == nil && p.ProfilePic == nil && p.EncryptionPublicKey == nil
}

// ToAPI converts u to its public wire form. The email is included only
// when withEmail is set (the caller's own profile).
func (u *User) ToAPI(withEmail bool) api.User {
	out := api.User{
		ID:                  u.ID,
		Username:            u.Username,
		ProfilePic:          u.ProfilePic,
		EncryptionPublicKey: u.EncryptionPublicKey,
		CreatedAt:           u.CreatedAt,
	}
	if withEmail {
		out.Email = u.Email
	}
	return out
}
