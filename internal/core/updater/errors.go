package updater

import "errors"

var (
	ErrUnknownAction   = errors.New("unknown update action")
	ErrDuplicateAction = errors.New("update action already registered")
	ErrNoAction        = errors.New("no update action configured")
)
