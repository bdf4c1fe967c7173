package exchange

import "errors"

// Rejection taxonomy. Every operation either fully succeeds or returns one
// of these (or ledger.ErrInsufficientFunds) with zero side effects.
var (
	// ErrTaskNotFound means the id was never created.
	ErrTaskNotFound = errors.New("exchange task not found")
	// ErrPrecondition covers wrong state, expired window, duplicate
	// attestation and self-dealing attempts.
	ErrPrecondition = errors.New("precondition violation")
	// ErrUnauthorized means the caller is not allowed to perform this
	// operation on this task.
	ErrUnauthorized = errors.New("unauthorized")
)
