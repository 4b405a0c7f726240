package domain

import "errors"

// Domain errors
var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrEventNotFound   = errors.New("event not found")
	ErrNotInGroup      = errors.New("member not in group")
	ErrCorruptRow      = errors.New("stored row is corrupt")
	ErrInvalidRequest  = errors.New("invalid request")
	ErrInternalError   = errors.New("internal server error")
)

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrProfileNotFound) || errors.Is(err, ErrEventNotFound) || errors.Is(err, ErrNotInGroup)
}
