package server

import "errors"

// Server-specific errors
var (
	ErrServerAlreadyRunning = errors.New("server is already running")
	ErrInvalidConfig        = errors.New("invalid server configuration")
	ErrListenerFailed       = errors.New("failed to create listener")
	ErrInvalidMessage       = errors.New("invalid message")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrFrameTooLarge        = errors.New("frame exceeds size limit")
)
