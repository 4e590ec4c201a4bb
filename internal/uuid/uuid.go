// Package uuid provides identifier generation for records and queued mutations.
package uuid

import (
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

var uuidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[47][0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}$`)

// New generates a new random UUID v4, used for record ids created offline.
func New() string {
	return uuid.New().String()
}

// NewOrdered generates a UUID v7. Its time prefix sorts in creation order,
// which keeps mutation ids readable next to their submission sequence.
func NewOrdered() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// IsValid checks if a string is a v4 or v7 UUID in canonical form.
func IsValid(s string) bool {
	return uuidRegex.MatchString(s)
}

// Validate returns an error if the string is not a canonical v4 or v7 UUID.
func Validate(s string) error {
	if !IsValid(s) {
		return fmt.Errorf("invalid UUID format: %q", s)
	}
	return nil
}
