package token

import "errors"

// Public, stable errors for callers.
var (
	ErrSealKeyInvalid = errors.New("token seal key invalid")
	ErrSealedInvalid  = errors.New("sealed token invalid")
)
