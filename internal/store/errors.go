package store

import "errors"

var (
	// ErrConflict means an active appointment already holds the slot.
	ErrConflict            = errors.New("slot already booked")
	ErrNotFound            = errors.New("not found")
	ErrIdempotencyConflict = errors.New("idempotency key reused for a different appointment")
)
