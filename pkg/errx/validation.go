package errx

import (
	"net/http"
	"net/mail"
	"strings"
	"unicode/utf8"
)

var validationRegistry = NewRegistry("VALIDATION")

// CodeValidationFailed is returned for any input that fails field validation.
var CodeValidationFailed = validationRegistry.Register("FAILED", TypeValidation, http.StatusBadRequest, "Validation failed")

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Validator accumulates field errors. Every check runs; nothing short-circuits.
type Validator struct {
	errors []FieldError
}

// NewValidator creates an empty Validator
func NewValidator() *Validator {
	return &Validator{}
}

// Add records a failure for field
func (v *Validator) Add(field, message string) *Validator {
	v.errors = append(v.errors, FieldError{Field: field, Message: message})
	return v
}

// Check records message for field when ok is false
func (v *Validator) Check(ok bool, field, message string) *Validator {
	if !ok {
		v.Add(field, message)
	}
	return v
}

// Required fails when value is blank
func (v *Validator) Required(field, value string) *Validator {
	return v.Check(strings.TrimSpace(value) != "", field, "is required")
}

// MinLength fails when value has fewer than n characters
func (v *Validator) MinLength(field, value string, n int) *Validator {
	return v.Check(utf8.RuneCountInString(value) >= n, field, "is too short")
}

// MaxLength fails when value has more than n characters
func (v *Validator) MaxLength(field, value string, n int) *Validator {
	return v.Check(utf8.RuneCountInString(value) <= n, field, "is too long")
}

// Email fails when value is not a bare email address
func (v *Validator) Email(field, value string) *Validator {
	addr, err := mail.ParseAddress(value)
	return v.Check(err == nil && addr.Address == value, field, "must be a valid email address")
}

// OneOf fails when value is not among allowed
func (v *Validator) OneOf(field, value string, allowed ...string) *Validator {
	for _, a := range allowed {
		if value == a {
			return v
		}
	}
	return v.Add(field, "must be one of: "+strings.Join(allowed, ", "))
}

// Valid reports whether no field errors were recorded
func (v *Validator) Valid() bool {
	return len(v.errors) == 0
}

// Errors returns the recorded field errors
func (v *Validator) Errors() []FieldError {
	out := make([]FieldError, len(v.errors))
	copy(out, v.errors)
	return out
}

// Err returns nil when valid, otherwise a VALIDATION_FAILED error carrying the field list
func (v *Validator) Err() error {
	if v.Valid() {
		return nil
	}
	return validationRegistry.New(CodeValidationFailed).WithDetail("fields", v.Errors())
}
