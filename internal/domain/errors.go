package domain

import "errors"

// Lifecycle failures. Callers match them with errors.Is and translate them
// into user-facing responses; none of them is worth retrying.
var (
	ErrNotFound            = errors.New("not found")
	ErrNotAuthorized       = errors.New("not authorized")
	ErrInvalidState        = errors.New("invalid state")
	ErrInvalidParticipants = errors.New("invalid participants")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrAlreadyPending      = errors.New("request already pending")
	ErrAlreadyRated        = errors.New("session already rated")
	ErrInvalidInput        = errors.New("invalid input")
)
