package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Abuse-control errors
	ErrAccountLocked     = errors.New("account is temporarily locked")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)

// InvalidCredentialsError carries the number of attempts left before the
// account locks. The HTTP surface exposes only the count, never which
// check failed.
type InvalidCredentialsError struct {
	RemainingAttempts int
}

func (e *InvalidCredentialsError) Error() string {
	return fmt.Sprintf("invalid credentials (%d attempts remaining)", e.RemainingAttempts)
}

func (e *InvalidCredentialsError) Unwrap() error { return ErrUnauthorized }

// AccountLockedError carries the seconds left until a throttle lock
// clears. Administrative locks report zero remaining seconds.
type AccountLockedError struct {
	RemainingSeconds int
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account locked (%d seconds remaining)", e.RemainingSeconds)
}

func (e *AccountLockedError) Unwrap() error { return ErrAccountLocked }
