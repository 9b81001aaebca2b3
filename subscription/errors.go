package subscription

import "errors"

// Sentinel errors returned by the ledger operations. Callers translate
// these into user-visible responses; anything else is a storage fault.
var (
	// ErrNotFound means no subscription exists with the given id
	ErrNotFound = errors.New("subscription not found")
	// ErrNoCapacity means the remaining units cannot cover the requested hold
	ErrNoCapacity = errors.New("insufficient remaining units")
	// ErrNotActive means the validity window does not cover today, so new holds are rejected
	ErrNotActive = errors.New("subscription is not active")
	// ErrInvalidCount means the requested unit count is not a positive integer
	ErrInvalidCount = errors.New("unit count must be positive")
)
