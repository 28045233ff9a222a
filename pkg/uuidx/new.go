package uuidx

import "github.com/google/uuid"

// New returns a time ordered version 7 UUID. When the clock sequence can't be read it
// falls back to a random version 4 UUID rather than failing.
func New() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}

// NewString returns New as a string.
func NewString() string {
	return New().String()
}
