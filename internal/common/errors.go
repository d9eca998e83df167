// Package common defines shared constants, sentinel errors and small helpers
// used across the client and server layers of GophChat. Callers should use
// errors.Is to match the sentinel values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors.
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorValidation   = errors.New("validation error")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Token lifecycle errors.
	ErrTokenExpired        = errors.New("token expired")
	ErrRefreshTokenExpired = errors.New("refresh token expired")

	// End-to-end encryption errors.
	ErrCryptoUnavailable   = errors.New("cryptographic provider unavailable")
	ErrInvalidPeerKey      = errors.New("invalid peer public key")
	ErrDecryptionFailed    = errors.New("decryption failed")
	ErrRecipientKeyMissing = errors.New("recipient encryption key unavailable, ask them to sign in again")
	ErrMissingUserID       = errors.New("missing user id")
	ErrEmptyMessage        = errors.New("message text or image is required")
)
