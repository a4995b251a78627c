package errors

import "errors"

var (
	ErrNotFound = errors.New("not found")
	ErrInvalid  = errors.New("invalid")
	ErrConflict = errors.New("conflict")
	ErrInternal = errors.New("internal")
	ErrNotReady = errors.New("collection not ready")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
