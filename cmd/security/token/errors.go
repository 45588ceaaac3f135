package token

import "errors"

// Public, stable errors for callers.
var (
	ErrEmpty     = errors.New("token empty")
	ErrMalformed = errors.New("token malformed")
	ErrNoExpiry  = errors.New("token has no exp claim")
)
