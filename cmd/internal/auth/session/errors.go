package session

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidLogin is returned when Login is called with an empty token or an unknown role.
	ErrInvalidLogin = errors.New("invalid login")

	// ErrNoSession is returned by operations that need an active session.
	ErrNoSession = errors.New("no active session")

	// ErrNoRecord is returned by a RecordStore when nothing is persisted.
	ErrNoRecord = errors.New("no persisted session record")

	// ErrCorruptRecord is returned when a persisted record cannot be trusted
	// (half missing, unparsable profile, unknown role, undecryptable token).
	ErrCorruptRecord = errors.New("corrupt persisted session record")

	// ErrPersistence wraps record store write failures.
	ErrPersistence = errors.New("session persistence failed")

	// ErrEmptyToken is returned when verification is attempted without a token.
	ErrEmptyToken = errors.New("empty token")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)

// StatusError describes a non-2xx identity service response.
type StatusError struct {
	StatusCode int
	Code       string
}

func (e *StatusError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("identity service status %d", e.StatusCode)
	}
	return fmt.Sprintf("identity service status %d: %s", e.StatusCode, e.Code)
}

func persistenceError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}
