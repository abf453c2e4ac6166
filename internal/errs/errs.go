// Package errs contains sentinel errors used across layers for stable
// error mapping.
package errs

import "errors"

var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState indicates the auction is in the wrong phase for the
	// requested operation.
	ErrInvalidState = errors.New("invalid state")

	// ErrInvalidBid indicates a bid below the required minimum.
	ErrInvalidBid = errors.New("invalid bid")

	// ErrValidation indicates malformed or inconsistent input.
	ErrValidation = errors.New("validation")

	// ErrPlanLimit indicates the store's plan does not allow the operation.
	ErrPlanLimit = errors.New("plan limit")

	// ErrUnauthorized indicates an unknown or uninstalled store.
	ErrUnauthorized = errors.New("unauthorized")
)
