package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID represents a domain identifier
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation
func NewID() ID {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return ID(id.String())
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

// Domain-specific ID types
type (
	SessionID ID
	EventID   ID
)

// String conversions for domain IDs
func (id SessionID) String() string { return ID(id).String() }
func (id EventID) String() string   { return ID(id).String() }

// NewSessionID creates a fresh session identifier
func NewSessionID() SessionID { return SessionID(NewID()) }

// NewEventID creates a fresh prediction event identifier
func NewEventID() EventID { return EventID(NewID()) }

// ParseSessionID parses a string into SessionID. Only well-formed UUIDs are
// accepted so a forged cookie cannot be used to probe arbitrary keys.
func ParseSessionID(s string) (SessionID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("session ID cannot be empty")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid session ID %q: %w", s, err)
	}
	return SessionID(parsed.String()), nil
}

// ParseEventID parses a string into EventID
func ParseEventID(s string) (EventID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("event ID cannot be empty")
	}
	return EventID(s), nil
}
