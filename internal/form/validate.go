// Package form provides field validation and submission normalization for
// inbound form posts.
package form

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// Permissive syntactic check, not full RFC 5322 validation. Good enough
	// to catch obvious typos without rejecting unusual but working addresses.
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

	phonePattern = regexp.MustCompile(`^\+?[0-9 -]{8,15}$`)
)

// MissingFieldError reports required fields that were absent or blank.
type MissingFieldError struct {
	Fields []string
}

// Error implements the error interface
func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required fields: %s", strings.Join(e.Fields, ", "))
}

// RequireNonEmpty checks that every field in required is present in fields and
// non-empty after trimming. It returns a *MissingFieldError naming all missing
// fields, so the caller can report them in one response.
func RequireNonEmpty(fields map[string]string, required []string) error {
	var missing []string
	for _, name := range required {
		if strings.TrimSpace(fields[name]) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return &MissingFieldError{Fields: missing}
	}
	return nil
}

// IsValidEmail reports whether s looks like an email address: a non-whitespace
// local part, '@', and a domain containing at least one dot.
func IsValidEmail(s string) bool {
	return emailPattern.MatchString(strings.TrimSpace(s))
}

// IsValidPhone reports whether s is an acceptable phone number. An empty value
// is valid because phone is an optional field on most forms. Otherwise the
// value must be an optional leading '+' followed by 8-15 characters drawn from
// digits, spaces and hyphens.
func IsValidPhone(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return true
	}
	return phonePattern.MatchString(s)
}
