package scheduler

import "errors"

var (
	ErrAlreadyRunning  = errors.New("scheduler already running")
	ErrInvalidInterval = errors.New("scheduler interval must be positive")
	ErrNilTask         = errors.New("scheduler task is nil")
	ErrTaskPanicked    = errors.New("scheduled task panicked")
)
