package storage

import "errors"

// Sentinel errors shared by store implementations. Domain packages wrap
// these so callers can match either the domain or the generic error.
var (
	// ErrNotFound is returned when a record does not exist or belongs to a
	// different tenant.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a record with the same ID already exists.
	ErrConflict = errors.New("already exists")
)
