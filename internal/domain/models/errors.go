package models

import "errors"

// Sentinel errors for the trading core. Wrap with fmt.Errorf("...: %w", err)
// and compare with errors.Is.
var (
	// ErrConnection marks upstream stream failures that trigger reconnection.
	ErrConnection = errors.New("connection failure")

	// ErrInvalidTransition rejects an illegal order status change. Never
	// retried; no state is mutated.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrValidation rejects malformed input before it enters a queue or buffer.
	ErrValidation = errors.New("validation failed")

	// ErrStorageWrite marks a failed durable write; the affected batch is
	// retried or re-buffered, never silently dropped.
	ErrStorageWrite = errors.New("storage write failed")
)
