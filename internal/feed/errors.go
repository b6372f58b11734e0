package feed

import "errors"

var (
	// ErrValidation reports input of the wrong shape or length.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound reports an unknown post or comment.
	ErrNotFound = errors.New("not found")
	// ErrPermission reports an actor acting on a resource they do not own.
	ErrPermission = errors.New("permission denied")
)
