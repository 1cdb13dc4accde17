// Package id provides UUID-based identifiers for all entities.
package id

import (
	"github.com/google/uuid"
)

// ID is the universal identifier type for all entities.
type ID = uuid.UUID

// New generates a new UUIDv7 (time-ordered, index-friendly).
func New() ID {
	v7, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails if the random source fails; fall back to v4
		return uuid.New()
	}
	return v7
}

// Parse parses a string into an ID.
func Parse(s string) (ID, error) {
	return uuid.Parse(s)
}

// MustParse parses a string into an ID, panicking on error.
// Use only in tests and static initializers.
func MustParse(s string) ID {
	return uuid.MustParse(s)
}

// Nil is the zero ID.
var Nil = uuid.Nil

// IsNil reports whether the ID is the zero value.
func IsNil(i ID) bool {
	return i == uuid.Nil
}
