package database

import "errors"

var (
	// ErrNotFound означает, что заявка не существует.
	ErrNotFound = errors.New("booking not found")

	// ErrConcurrentModification is returned when an optimistic-version check
	// fails: someone else advanced the booking between read and write.
	ErrConcurrentModification = errors.New("booking was modified concurrently")
)
