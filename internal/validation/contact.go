// Package validation provides input validation for contact payloads.
// Validators run before any data is persisted so bad records are rejected
// with a 400 before a transaction is ever opened — a validation failure must
// never consume a version token or leave an audit entry.
package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/contact-vault/contact-vault/internal/db/models"
)

const (
	// MaxNameLength bounds first and last names
	MaxNameLength = 100
	// MaxFieldLength bounds the remaining free-text fields
	MaxFieldLength = 255
)

// emailPattern is deliberately permissive: one @, something on both sides, a
// dot in the domain. Full RFC 5322 enforcement rejects real addresses.
var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// ValidateContact checks a contact payload and returns the list of problems
// found, empty when the contact is acceptable. All problems are collected in
// one pass so clients can fix an entire form in a single round trip.
func ValidateContact(c *models.Contact) []string {
	var problems []string

	if strings.TrimSpace(c.FirstName) == "" {
		problems = append(problems, "firstName is required")
	} else if len(c.FirstName) > MaxNameLength {
		problems = append(problems, fmt.Sprintf("firstName must be at most %d characters", MaxNameLength))
	}

	if strings.TrimSpace(c.LastName) == "" {
		problems = append(problems, "lastName is required")
	} else if len(c.LastName) > MaxNameLength {
		problems = append(problems, fmt.Sprintf("lastName must be at most %d characters", MaxNameLength))
	}

	if c.Email != "" && !emailPattern.MatchString(c.Email) {
		problems = append(problems, "email is not a valid address")
	}

	// Slice, not map: problem ordering must be stable for clients and tests.
	for _, f := range []struct {
		name  string
		value string
	}{
		{"email", c.Email},
		{"phone", c.Phone},
		{"street", c.Street},
		{"city", c.City},
		{"state", c.State},
		{"zipCode", c.ZipCode},
	} {
		if len(f.value) > MaxFieldLength {
			problems = append(problems, fmt.Sprintf("%s must be at most %d characters", f.name, MaxFieldLength))
		}
	}

	return problems
}
