package store

import "errors"

var (
	ErrConflict            = errors.New("conflict")
	ErrNotFound            = errors.New("not found")
	ErrIdempotencyConflict = errors.New("idempotency key conflict")
	// ErrSlotTaken means another non-cancelled appointment holds the same doctor, date and time.
	ErrSlotTaken = errors.New("slot already booked")
)
