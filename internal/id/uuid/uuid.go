// Package uuid provides run and event ID generation.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// eventNamespace scopes deterministic event IDs.
var eventNamespace = uuid.MustParse("6f1c3c2e-8d7a-4f0e-9a51-1f3a6a4b2c10")

// Generator creates UUID v7 strings.
type Generator struct{}

// New creates a new Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a time-ordered UUID7 string.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}

// EventID derives a stable ID for a result event so a re-published result within the same
// run carries the same ID and consumers can drop duplicates.
func (Generator) EventID(runID, canonicalURL string) string {
	return uuid.NewSHA1(eventNamespace, []byte(runID+"\n"+canonicalURL)).String()
}
