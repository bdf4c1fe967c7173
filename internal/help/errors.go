package help

import "errors"

// Rejection taxonomy, mirroring the exchange engine.
var (
	ErrTaskNotFound = errors.New("help task not found")
	ErrPrecondition = errors.New("precondition violation")
	ErrUnauthorized = errors.New("unauthorized")
)
