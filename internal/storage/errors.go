package storage

import "errors"

// Sentinel errors shared by all store implementations.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when appending a record whose key already
	// exists. Price history is append-only and never updated in place.
	ErrDuplicateKey = errors.New("duplicate key: append-only history does not allow updates")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)
