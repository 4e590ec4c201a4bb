// Package uuid provides unit tests for UUID generation and validation.
package uuid

import (
	"testing"

	"github.com/google/uuid"
)

// TestNew tests that New() generates valid UUID v4 strings.
func TestNew(t *testing.T) {
	id := New()
	parsed, err := uuid.Parse(id)
	if err != nil {
		t.Fatalf("New() = %q, not parseable: %v", id, err)
	}
	if parsed.Version() != 4 {
		t.Errorf("version = %d, want 4", parsed.Version())
	}
}

// TestNewOrdered tests that ordered ids are v7 and unique.
func TestNewOrdered(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewOrdered()
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
		if !IsValid(id) {
			t.Fatalf("NewOrdered() = %q, not valid", id)
		}
	}

	parsed, _ := uuid.Parse(NewOrdered())
	if parsed.Version() != 7 {
		t.Errorf("version = %d, want 7", parsed.Version())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		in    string
		valid bool
	}{
		{"123e4567-e89b-42d3-a456-426614174000", true},
		{"0190d1e2-7b3c-7def-8123-456789abcdef", true},
		{"not-a-uuid", false},
		{"123e4567e89b42d3a456426614174000", false},
		{"", false},
	}

	for _, tt := range tests {
		if err := Validate(tt.in); (err == nil) != tt.valid {
			t.Errorf("Validate(%q) err = %v, want valid=%v", tt.in, err, tt.valid)
		}
	}
}
