package types

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// ID is a custom type that wraps a UUID string.
// It provides type-safe UUID generation, validation, and serialization
// for every entity stored in the coordination knowledge graph.
type ID string

// NewID generates a new UUID v4 and returns it as an ID.
// It will never return an error as uuid.New() uses crypto/rand
// which panics on system-level failures (extremely rare).
func NewID() ID {
	return ID(uuid.New().String())
}

// ParseID parses and validates a string as a UUID, returning an ID.
// It returns an error if the string is not a valid UUID format.
func ParseID(s string) (ID, error) {
	if s == "" {
		return "", fmt.Errorf("ID cannot be empty")
	}

	parsedUUID, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid UUID format: %w", err)
	}

	return ID(parsedUUID.String()), nil
}

// Validate checks if the ID is a valid UUID.
// Returns an error if the ID is invalid or empty.
func (id ID) Validate() error {
	if id == "" {
		return fmt.Errorf("ID cannot be empty")
	}

	if _, err := uuid.Parse(string(id)); err != nil {
		return fmt.Errorf("invalid UUID format: %w", err)
	}

	return nil
}

// String returns the string representation of the ID.
func (id ID) String() string {
	return string(id)
}

// IsZero checks if the ID is empty or zero-valued.
func (id ID) IsZero() bool {
	return id == ""
}

// MarshalJSON implements the json.Marshaler interface.
func (id ID) MarshalJSON() ([]byte, error) {
	if id.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(string(id))
}

// UnmarshalJSON implements the json.Unmarshaler interface.
// It deserializes a JSON string into an ID and validates it.
func (id *ID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("failed to unmarshal ID: %w", err)
	}

	// Allow null/empty to set zero value
	if s == "" {
		*id = ""
		return nil
	}

	parsedID, err := ParseID(s)
	if err != nil {
		return err
	}

	*id = parsedID
	return nil
}

// SortIDs sorts a slice of IDs lexicographically in place.
// Used wherever deterministic output ordering is required, such as
// dependency graph serialization and execution plan batches.
func SortIDs(ids []ID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
