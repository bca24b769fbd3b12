package domain

import (
	"errors"
	"fmt"
)

// ─── Error Taxonomy ─────────────────────────────────────────────────────────
// Every error returned by the engine wraps exactly one of these kinds.
// AlreadyRewarded is not an error; it is reported through Grant.Granted.

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrNotFound        = errors.New("not found")
	ErrInvalidState    = errors.New("invalid state")
	ErrValidation      = errors.New("validation failed")
	ErrTransient       = errors.New("transient store error")
)

// ─── Specific Errors ────────────────────────────────────────────────────────

var (
	// Lookup errors
	ErrChallengeNotFound     = fmt.Errorf("challenge %w", ErrNotFound)
	ErrChallengeTypeNotFound = fmt.Errorf("challenge type %w", ErrNotFound)

	// State errors
	ErrChallengeTerminal      = fmt.Errorf("%w: challenge is completed or cancelled", ErrInvalidState)
	ErrChallengeNotPaused     = fmt.Errorf("%w: challenge is not paused", ErrInvalidState)
	ErrChallengeNotActive     = fmt.Errorf("%w: challenge is not active", ErrInvalidState)
	ErrChallengeAlreadyJoined = fmt.Errorf("%w: an active or paused challenge of this type already exists", ErrInvalidState)

	// Input errors
	ErrUnknownCategory     = fmt.Errorf("%w: unknown observation category", ErrValidation)
	ErrValueOutOfRange     = fmt.Errorf("%w: value out of range", ErrValidation)
	ErrValueRequired       = fmt.Errorf("%w: value is required", ErrValidation)
	ErrValueMismatch       = fmt.Errorf("%w: value and numeric_value disagree", ErrValidation)
	ErrUnknownMode         = fmt.Errorf("%w: unknown challenge mode", ErrValidation)
	ErrUnknownActivityType = fmt.Errorf("%w: unknown activity type", ErrValidation)
	ErrUnknownUploadType   = fmt.Errorf("%w: unknown upload type", ErrValidation)
	ErrInvalidPoints       = fmt.Errorf("%w: points must be positive", ErrValidation)
	ErrInvalidDate         = fmt.Errorf("%w: invalid date", ErrValidation)
)

// ErrorKind names the taxonomy kind of an error for transport layers.
type ErrorKind string

const (
	KindUnauthenticated ErrorKind = "unauthenticated"
	KindNotFound        ErrorKind = "not_found"
	KindInvalidState    ErrorKind = "invalid_state"
	KindValidation      ErrorKind = "validation_error"
	KindTransient       ErrorKind = "transient_store_error"
	KindInternal        ErrorKind = "internal"
)

// KindOf classifies err. Unclassified errors are KindInternal.
func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return KindUnauthenticated
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidState):
		return KindInvalidState
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrTransient):
		return KindTransient
	default:
		return KindInternal
	}
}

// Retryable reports whether the caller may retry with the same input.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransient)
}
