package model

import (
	"fmt"
	"net/mail"
	"strings"
)

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string
	Message string
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// ValidateDeal checks a Deal for constraint violations.
// It returns a *ValidationError if any rules fail, or nil if the deal is valid.
func ValidateDeal(d *Deal) error {
	var ve ValidationError

	if d.ID <= 0 {
		ve.Errors = append(ve.Errors, FieldError{Field: "id", Message: fmt.Sprintf("must be positive, got %d", d.ID)})
	}

	name := strings.TrimSpace(d.Name)
	if name == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "name", Message: "is required"})
	} else if len([]rune(name)) > 255 {
		ve.Errors = append(ve.Errors, FieldError{Field: "name", Message: "must be 255 characters or fewer"})
	}

	if strings.TrimSpace(d.Stage) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "stage", Message: "is required"})
	}

	if d.Email != "" {
		if _, err := mail.ParseAddress(d.Email); err != nil {
			ve.Errors = append(ve.Errors, FieldError{Field: "email", Message: fmt.Sprintf("invalid address %q", d.Email)})
		}
	}

	if d.Revenue < 0 {
		ve.Errors = append(ve.Errors, FieldError{Field: "revenue", Message: "must not be negative"})
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}

// ValidateStage checks a Stage for constraint violations.
func ValidateStage(s *Stage) error {
	var ve ValidationError

	if strings.TrimSpace(s.Name) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "name", Message: "is required"})
	}
	if s.Position < 0 {
		ve.Errors = append(ve.Errors, FieldError{Field: "position", Message: fmt.Sprintf("must not be negative, got %d", s.Position)})
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}

// ValidateStageSet checks that active stage names are unique.
func ValidateStageSet(stages []*Stage) error {
	var ve ValidationError
	seen := make(map[string]bool)
	for _, s := range stages {
		if s == nil || !s.Active {
			continue
		}
		if seen[s.Name] {
			ve.Errors = append(ve.Errors, FieldError{Field: "name", Message: fmt.Sprintf("duplicate active stage %q", s.Name)})
		}
		seen[s.Name] = true
	}
	if ve.HasErrors() {
		return &ve
	}
	return nil
}
