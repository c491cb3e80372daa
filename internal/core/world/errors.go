package world

import "errors"

// Environment errors
var (
	ErrPlacementFailed   = errors.New("no free placement found")
	ErrOutOfBounds       = errors.New("coordinates outside terrain")
	ErrNilElement        = errors.New("element is nil")
	ErrDuplicateElement  = errors.New("element already registered")
	ErrDuplicateName     = errors.New("agent name already registered")
	ErrAlreadyAttached   = errors.New("agent belongs to another environment")
	ErrElementNotFound   = errors.New("element not found")
	ErrUnknownAgent      = errors.New("unknown agent")
	ErrTerrainRemoval    = errors.New("terrain cannot be removed")
	ErrEnvironmentClosed = errors.New("environment is shut down")
	ErrInvalidTerrain    = errors.New("invalid terrain")
	ErrInvalidAgent      = errors.New("invalid agent")
	ErrUnknownAction     = errors.New("unknown action")
	ErrUnknownBoundary   = errors.New("unknown boundary policy")
	ErrNilView           = errors.New("view is nil")
	// ErrPublish marks a completed operation whose bus delivery failed.
	ErrPublish = errors.New("event delivery failed")
)

func publishError(errs ...error) error {
	joined := errors.Join(errs...)
	if joined == nil {
		return nil
	}
	return errors.Join(ErrPublish, joined)
}
