package password

import "errors"

var (
	// ErrInvalidHash is returned for malformed or unsupported encoded hashes.
	ErrInvalidHash = errors.New("password: invalid hash")

	// ErrPasswordEmpty is returned when hashing an empty password.
	ErrPasswordEmpty = errors.New("password: empty")

	// ErrPasswordTooLong bounds the work an attacker can force per attempt.
	ErrPasswordTooLong = errors.New("password: too long")
)
