package domain

import "errors"

// Domain validation errors.
var (
	// ErrInvalidAddress is returned when a token address is not a valid
	// base58-encoded 32-byte mint.
	ErrInvalidAddress = errors.New("invalid token address")

	// ErrInvalidSnapshot is returned when a token snapshot fails validation.
	ErrInvalidSnapshot = errors.New("invalid token snapshot")

	// ErrInvalidRiskLimits is returned when risk limit configuration is
	// out of range. Fatal at startup, never during a running cycle.
	ErrInvalidRiskLimits = errors.New("invalid risk limits")
)
