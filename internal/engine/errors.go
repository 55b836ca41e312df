package engine

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidConstraint = errors.New("invalid constraint")
	ErrInvalidOption     = errors.New("invalid option")
	ErrNoViableOption    = errors.New("no option satisfies all hard constraints; relax a deal-breaker or add options")
	ErrInsufficientData  = errors.New("insufficient data")
)

// FieldError describes one offending field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every field that failed validation
type ValidationError struct {
	Kind   error        `json:"-"`
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return fmt.Sprintf("%v: %s", e.Kind, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return e.Kind
}

func (e *ValidationError) add(field, format string, args ...any) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// NoViableOptionError carries the veto diagnostics of a run where every option was excluded
type NoViableOptionError struct {
	DecisionID    string
	VetoedOptions []VetoedOption
	UserScores    []UserScore
}

func (e *NoViableOptionError) Error() string {
	return fmt.Sprintf("decision %s: %v (%d options vetoed)", e.DecisionID, ErrNoViableOption, len(e.VetoedOptions))
}

func (e *NoViableOptionError) Unwrap() error {
	return ErrNoViableOption
}
