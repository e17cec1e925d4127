package domain

import "errors"

// Error taxonomy shared by every synchronization component. Specific
// errors elsewhere wrap one of these so callers can match on either.
var (
	ErrUnauthenticated        = errors.New("unauthenticated")
	ErrForbidden              = errors.New("forbidden")
	ErrNotFound               = errors.New("not found")
	ErrInvalidParent          = errors.New("invalid parent message")
	ErrAlreadyDeleted         = errors.New("message already deleted")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrValidation             = errors.New("validation failed")
	ErrTransport              = errors.New("transport error")
)
