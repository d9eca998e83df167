package client

import "errors"

var (
	ErrUnavailable           = errors.New("server unavailable")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrLocalDataNotAvailable = errors.New("local data unavailable")

	// ErrRejected wraps the server's reason for refusing a request
	// (bad input, duplicate account, unknown peer).
	ErrRejected = errors.New("request rejected")
)
