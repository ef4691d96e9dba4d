package accessory

import "errors"

// Domain-specific errors for accessory operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrUnavailable is returned when a stale property could not be
	// refreshed from the device in time. The hub should show the accessory
	// as not responding rather than a guessed value.
	ErrUnavailable = errors.New("accessory: value temporarily unavailable")

	// ErrUnsupportedKind is returned when an accessory lacks the requested
	// capability.
	ErrUnsupportedKind = errors.New("accessory: unsupported property kind")

	// ErrUnknownKind is returned when parsing a property kind that is not in
	// the closed set.
	ErrUnknownKind = errors.New("accessory: unknown property kind")

	// ErrUnsupportedField is returned when a channel cannot carry a field,
	// for example chromaticity on plain Tasmota.
	ErrUnsupportedField = errors.New("accessory: field not supported by channel")

	// ErrNotFound is returned when an accessory id is not registered.
	ErrNotFound = errors.New("accessory: not found")

	// ErrInvalidDefinition is returned when an accessory definition fails validation.
	ErrInvalidDefinition = errors.New("accessory: invalid definition")
)
