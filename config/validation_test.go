package config

import (
	"errors"
	"strings"
	"testing"
)

func TestValidatorChecks(t *testing.T) {
	tests := []struct {
		name      string
		check     func(v *Validator)
		wantError bool
	}{
		{"non-empty value", func(v *Validator) { v.RequireNonEmpty("f", "valid") }, false},
		{"empty value", func(v *Validator) { v.RequireNonEmpty("f", "") }, true},
		{"blank value", func(v *Validator) { v.RequireNonEmpty("f", "   ") }, true},
		{"positive value", func(v *Validator) { v.RequirePositive("f", 10) }, false},
		{"zero value", func(v *Validator) { v.RequirePositive("f", 0) }, true},
		{"negative value", func(v *Validator) { v.RequirePositive("f", -3) }, true},
		{"within range", func(v *Validator) { v.ValidateRange("f", 5, 1, 10) }, false},
		{"at range boundary", func(v *Validator) { v.ValidateRange("f", 10, 1, 10) }, false},
		{"above range", func(v *Validator) { v.ValidateRange("f", 11, 1, 10) }, true},
		{"float in range", func(v *Validator) { v.ValidateFloatRange("f", 0.7, 0, 2) }, false},
		{"float above range", func(v *Validator) { v.ValidateFloatRange("f", 2.5, 0, 2) }, true},
		{"valid redis db", func(v *Validator) { v.ValidateDBNumber("f", 15) }, false},
		{"invalid redis db", func(v *Validator) { v.ValidateDBNumber("f", 16) }, true},
		{"allowed option", func(v *Validator) { v.ValidateOneOf("f", "json", "json", "text") }, false},
		{"unknown option", func(v *Validator) { v.ValidateOneOf("f", "xml", "json", "text") }, true},
		{"https url", func(v *Validator) { v.ValidateURL("f", "https://example.org/path") }, false},
		{"relative url", func(v *Validator) { v.ValidateURL("f", "/path") }, true},
		{"other scheme", func(v *Validator) { v.ValidateURL("f", "ftp://example.org") }, true},
		{"nil check", func(v *Validator) { v.Check("f", nil) }, false},
		{"failed check", func(v *Validator) { v.Check("f", errors.New("bad")) }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator()
			tt.check(v)
			if got := v.HasErrors(); got != tt.wantError {
				t.Errorf("HasErrors() = %v, want %v (%v)", got, tt.wantError, v.Errors())
			}
		})
	}
}

func TestValidatorMultipleErrors(t *testing.T) {
	v := NewValidator()
	v.RequireNonEmpty("field1", "")
	v.RequirePositive("field2", 0)
	v.ValidateRange("field3", 99999, 1, 65535)

	errs := v.Errors()
	if len(errs) != 3 {
		t.Errorf("Errors() count = %d, want 3", len(errs))
	}

	err := v.Error()
	if err == nil {
		t.Fatal("Error() = nil, want non-nil error")
	}
	for _, field := range []string{"field1", "field2", "field3"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("combined error lacks %s: %v", field, err)
		}
	}
}

func TestValidatorNoErrors(t *testing.T) {
	if err := NewValidator().RequireNonEmpty("f", "x").Error(); err != nil {
		t.Fatalf("Error() = %v, want nil", err)
	}
}
