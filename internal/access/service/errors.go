package service

import "errors"

// Errors returned across the service boundary. The HTTP layer maps each to a
// stable error code; anything else is reported as an internal error.
var (
	// ErrInvalidInput reports a malformed or policy-violating request.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidToken covers unknown, expired, consumed, superseded and
	// wrong-purpose tokens alike so callers cannot tell them apart.
	ErrInvalidToken = errors.New("invalid or expired token")

	// ErrUnauthorized reports a missing or invalid session, or a session
	// lacking the role an operation needs.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrDelivery reports a failed notification. It never invalidates the
	// token that was being delivered.
	ErrDelivery = errors.New("notification delivery failed")

	// ErrDownstreamUpdate reports a side effect that failed after the token
	// was consumed. The token stays spent; recovery is issuing a new one.
	ErrDownstreamUpdate = errors.New("token consumed but account update failed")

	// ErrGeneration reports an entropy failure or repeated digest collisions.
	ErrGeneration = errors.New("token generation failed")

	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")

	ErrBootstrapAlready      = errors.New("system already bootstrapped")
	ErrBootstrapUnauthorized = errors.New("unauthorized bootstrap attempt")
	ErrBootstrapDisabled     = errors.New("bootstrap is disabled")
)
