package physics

import "errors"

var (
	// ErrInvalidGeometry marks a pair whose impact point cannot be computed
	// because one participant has a zero radius.
	ErrInvalidGeometry = errors.New("invalid collision geometry")
	ErrNegativeRadius  = errors.New("radius must not be negative")
)
