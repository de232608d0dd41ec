package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for field %q: %s", e.Field, e.Message)
}

// Validator collects validation errors across chained checks.
type Validator struct {
	errors []ValidationError
}

// NewValidator creates a new configuration validator
func NewValidator() *Validator {
	return &Validator{
		errors: []ValidationError{},
	}
}

func (v *Validator) add(field, format string, args ...any) *Validator {
	v.errors = append(v.errors, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	return v
}

// RequireNonEmpty validates that a string field is not empty
func (v *Validator) RequireNonEmpty(field, value string) *Validator {
	if strings.TrimSpace(value) == "" {
		return v.add(field, "value cannot be empty")
	}
	return v
}

// RequirePositive validates that an integer field is greater than 0
func (v *Validator) RequirePositive(field string, value int) *Validator {
	if value <= 0 {
		return v.add(field, "value must be positive, got %d", value)
	}
	return v
}

// ValidateRange validates that an integer field is within a range [min, max]
func (v *Validator) ValidateRange(field string, value, min, max int) *Validator {
	if value < min || value > max {
		return v.add(field, "value must be between %d and %d, got %d", min, max, value)
	}
	return v
}

// ValidateFloatRange validates that a float field is within a range [min, max]
func (v *Validator) ValidateFloatRange(field string, value, min, max float64) *Validator {
	if value < min || value > max {
		return v.add(field, "value must be between %.2f and %.2f, got %.2f", min, max, value)
	}
	return v
}

// ValidateDBNumber validates that a database number is valid (0-15 for Redis)
func (v *Validator) ValidateDBNumber(field string, db int) *Validator {
	return v.ValidateRange(field, db, 0, 15)
}

// ValidateOneOf validates that a string value is one of the allowed options
func (v *Validator) ValidateOneOf(field string, value string, allowed ...string) *Validator {
	for _, a := range allowed {
		if a == value {
			return v
		}
	}
	return v.add(field, "value must be one of %v, got %q", allowed, value)
}

// ValidateURL checks that value is an absolute http(s) URL.
func (v *Validator) ValidateURL(field, value string) *Validator {
	u, err := url.Parse(value)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return v.add(field, "value must be an absolute http(s) URL, got %q", value)
	}
	return v
}

// Check records err, if any, against field.
func (v *Validator) Check(field string, err error) *Validator {
	if err != nil {
		return v.add(field, "%v", err)
	}
	return v
}

// HasErrors returns true if there are any validation errors
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Error returns a combined error message or nil if no errors
func (v *Validator) Error() error {
	if !v.HasErrors() {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, e := range v.errors {
		fmt.Fprintf(&sb, "  - %s: %s\n", e.Field, e.Message)
	}
	return errors.New(sb.String())
}

// Errors returns all validation errors
func (v *Validator) Errors() []ValidationError {
	return v.errors
}
