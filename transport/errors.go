package transport

import "errors"

// Sentinel errors for common error conditions.
var (
	// ErrSuperseded is the rejection for a queued send replaced by a newer one.
	ErrSuperseded = errors.New("superseded by a newer send")

	// ErrNoUserMessage is returned when a turn carries no outbound user message.
	ErrNoUserMessage = errors.New("no outbound user message in turn")

	// ErrTurnInFlight is returned when a send overlaps an active turn.
	ErrTurnInFlight = errors.New("turn already in flight")

	// ErrTransportClosed is returned for operations on a destroyed transport.
	ErrTransportClosed = errors.New("transport is closed")

	// ErrSessionUnavailable poisons a deferred transport whose session
	// initialization failed.
	ErrSessionUnavailable = errors.New("session unavailable")
)
