package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Rule names reported in FieldError
const (
	RuleRequired = "required"
	RuleLength   = "length"
	RuleOneOf    = "one_of"
)

// FieldError describes one invalid field
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// Error is returned when at least one field is invalid
type Error struct {
	Fields []*FieldError
}

func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	return e.Fields[0].Message
}

// Validator accumulates field errors
type Validator struct {
	errors []*FieldError
}

// NewValidator creates an empty validator
func NewValidator() *Validator {
	return &Validator{}
}

func (v *Validator) add(field, rule, message string) {
	v.errors = append(v.errors, &FieldError{Field: field, Rule: rule, Message: message})
}

// Required fails when value is blank
func (v *Validator) Required(field, value string) *Validator {
	if strings.TrimSpace(value) == "" {
		v.add(field, RuleRequired, fmt.Sprintf("%s is required", field))
	}
	return v
}

// Length fails when the trimmed value has fewer than min or more than max
// characters
func (v *Validator) Length(field, value string, min, max int) *Validator {
	n := utf8.RuneCountInString(strings.TrimSpace(value))
	switch {
	case n == 0 && min > 0:
		v.add(field, RuleRequired, fmt.Sprintf("%s is required", field))
	case n < min:
		v.add(field, RuleLength, fmt.Sprintf("%s must be at least %d characters", field, min))
	case max > 0 && n > max:
		v.add(field, RuleLength, fmt.Sprintf("%s must be at most %d characters", field, max))
	}
	return v
}

// OneOf fails when value is not in allowed
func (v *Validator) OneOf(field, value string, allowed ...string) *Validator {
	for _, a := range allowed {
		if value == a {
			return v
		}
	}
	v.add(field, RuleOneOf, fmt.Sprintf("%s must be one of %s", field, strings.Join(allowed, ", ")))
	return v
}

// Valid reports whether no rule failed
func (v *Validator) Valid() bool {
	return len(v.errors) == 0
}

// Err returns an *Error when any rule failed, nil otherwise
func (v *Validator) Err() error {
	if v.Valid() {
		return nil
	}
	return &Error{Fields: v.errors}
}
