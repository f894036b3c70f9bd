package errors

import "errors"

// Sentinel errors for common error conditions
var (
	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that input validation failed
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidTopic indicates a topic outside the closed set
	ErrInvalidTopic = errors.New("invalid topic")

	// ErrSessionBusy indicates that a turn gave up waiting for the session lock
	ErrSessionBusy = errors.New("session busy")

	// ErrRateLimited indicates that a caller exceeded the turn rate limit
	ErrRateLimited = errors.New("rate limited")

	// ErrInternal indicates an internal server error
	ErrInternal = errors.New("internal error")
)

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
