package errors

import "errors"

// Common application errors
var (
	// ErrNotFound is returned when a record or resource does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrUnauthorized is returned when a ticket or capability is missing or invalid.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when the caller lacks the rights for an action.
	ErrForbidden = errors.New("forbidden")

	// ErrValidation is returned for invalid input.
	ErrValidation = errors.New("validation failed")

	// ErrExpiredToken is returned when a websocket ticket has expired.
	ErrExpiredToken = errors.New("token is expired")

	// ErrConflict is returned when the resource is not in a state that allows the action
	// (e.g. starting a race that is already running).
	ErrConflict = errors.New("resource state conflict")
)
