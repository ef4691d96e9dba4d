package router

import "errors"

// Domain-specific errors for routing operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrInvalidPattern is returned for an empty pattern or one with more
	// than one wildcard marker.
	ErrInvalidPattern = errors.New("router: invalid topic pattern")

	// ErrInvalidRoute is returned for a device route without an address.
	ErrInvalidRoute = errors.New("router: invalid device route")

	// ErrNoDevice is returned when a bridge payload carries no device object.
	ErrNoDevice = errors.New("router: no device object in payload")

	// ErrNilHandler is returned when subscribing without a handler.
	ErrNilHandler = errors.New("router: handler cannot be nil")

	// ErrTimeout is returned when no qualifying response arrives in time.
	ErrTimeout = errors.New("router: request timed out")

	// ErrClosed is returned when delivering to a router that has stopped.
	ErrClosed = errors.New("router: closed")

	// ErrQueueFull is returned when the inbound queue cannot take a message.
	ErrQueueFull = errors.New("router: inbound queue full")
)
