// Package uuid provides job ID generation.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator creates random (v4) UUID strings for job ids.
type Generator struct{}

// New creates a new Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a UUIDv4 string.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate uuid4: %w", err)
	}
	return id.String(), nil
}

// Bytes converts a job id to its 16-byte form, returning false for ids that
// are not UUIDs.
func Bytes(id string) ([16]byte, bool) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return [16]byte{}, false
	}
	return parsed, true
}
