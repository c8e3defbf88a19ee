// Package uuid includes tests for the UUID generator wrapper.
package uuid

import (
	"testing"

	goUUID "github.com/google/uuid"
)

// TestGeneratorNewID ensures generated IDs are unique v7 UUIDs.
func TestGeneratorNewID(t *testing.T) {
	t.Parallel()

	gen := New()
	id1, err := gen.NewID()
	if err != nil {
		t.Fatalf("NewID() error = %v", err)
	}
	id2, err := gen.NewID()
	if err != nil {
		t.Fatalf("NewID() error = %v", err)
	}
	if id1 == id2 {
		t.Fatalf("expected unique IDs, got %s and %s", id1, id2)
	}
	parsed, err := goUUID.Parse(id1)
	if err != nil {
		t.Fatalf("id1 not valid UUID: %v", err)
	}
	if parsed.Version() != 7 {
		t.Fatalf("expected version 7, got %d", parsed.Version())
	}
}

func TestEventIDIsStable(t *testing.T) {
	t.Parallel()

	gen := New()
	a := gen.EventID("run-1", "https://org.de/jobs/1")
	if a != gen.EventID("run-1", "https://org.de/jobs/1") {
		t.Fatal("expected the same event ID for the same run and URL")
	}
	if a == gen.EventID("run-2", "https://org.de/jobs/1") {
		t.Fatal("expected a different event ID for another run")
	}
	if _, err := goUUID.Parse(a); err != nil {
		t.Fatalf("event id not valid UUID: %v", err)
	}
}
