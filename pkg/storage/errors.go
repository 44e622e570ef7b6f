package storage

import "errors"

// Sentinel errors for storage operations.
var (
	// ErrNotFound is returned when a credential does not exist.
	ErrNotFound = errors.New("credential not found")

	// ErrConflict is returned when a credential with the given ID already exists.
	ErrConflict = errors.New("credential already exists")

	// ErrInvalid is returned when a credential lacks an ID or key.
	ErrInvalid = errors.New("credential requires an id and a key")
)
