package api

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a ProcessingError.
type ErrorKind int

const (
	KindGeneral ErrorKind = iota
	KindParsing
	KindPathResolution
	KindTypeConversion
	KindArrayProcessing
	KindConfigValidation
)

func (k ErrorKind) String() string {
	switch k {
	case KindParsing:
		return "parsing"
	case KindPathResolution:
		return "path_resolution"
	case KindTypeConversion:
		return "type_conversion"
	case KindArrayProcessing:
		return "array_processing"
	case KindConfigValidation:
		return "config_validation"
	default:
		return "general"
	}
}

// MarshalText lets kinds appear by name in JSON error reports.
func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ProcessingError is one problem found while transforming a document.
type ProcessingError struct {
	Kind       ErrorKind  `json:"kind"`
	Message    string     `json:"message"`
	Field      string     `json:"field,omitempty"`
	Path       string     `json:"path,omitempty"`
	Value      any        `json:"value,omitempty"`
	TargetType TargetType `json:"target_type,omitempty"`
	Cause      error      `json:"-"`
}

func (e *ProcessingError) Error() string {
	b := &strings.Builder{}
	b.WriteString(e.Kind.String())
	if e.Field != "" {
		fmt.Fprintf(b, " field %q", e.Field)
	}
	if e.Path != "" {
		fmt.Fprintf(b, " at %s", e.Path)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Cause != nil {
		fmt.Fprintf(b, ": %v", e.Cause)
	}
	return b.String()
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

// NewParsingError reports malformed input.
func NewParsingError(message string, cause error) *ProcessingError {
	return &ProcessingError{Kind: KindParsing, Message: message, Cause: cause}
}

// NewPathError reports a path that pointed at an incompatible structure.
func NewPathError(field, path string, cause error) *ProcessingError {
	return &ProcessingError{
		Kind:    KindPathResolution,
		Message: "path could not be resolved",
		Field:   field,
		Path:    path,
		Cause:   cause,
	}
}

// NewConversionError reports a value that could not be coerced to target.
func NewConversionError(field string, value any, target TargetType, cause error) *ProcessingError {
	return &ProcessingError{
		Kind:       KindTypeConversion,
		Message:    fmt.Sprintf("cannot convert %T to %s", value, target),
		Field:      field,
		Value:      value,
		TargetType: target,
		Cause:      cause,
	}
}

// NewArrayError reports a structural problem during explosion or preservation.
func NewArrayError(field, message string) *ProcessingError {
	return &ProcessingError{Kind: KindArrayProcessing, Message: message, Field: field}
}

// NewConfigError reports a violated configuration invariant.
func NewConfigError(field, message string) *ProcessingError {
	return &ProcessingError{Kind: KindConfigValidation, Message: message, Field: field}
}

// NewGeneralError wraps anything that fits no other kind.
func NewGeneralError(message string, cause error) *ProcessingError {
	return &ProcessingError{Kind: KindGeneral, Message: message, Cause: cause}
}

// AggregateError carries every error recorded up to the point a pass was
// aborted, in recording order.
type AggregateError struct {
	Errors []*ProcessingError
}

// Error summarizes the first few errors.
func (a *AggregateError) Error() string {
	if len(a.Errors) == 0 {
		return "no errors"
	}
	const maxShown = 3
	b := &strings.Builder{}
	lim := min(len(a.Errors), maxShown)
	for i := 0; i < lim; i++ {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(a.Errors[i].Error())
	}
	if n := len(a.Errors); n > lim {
		fmt.Fprintf(b, "; ... (total %d)", n)
	}
	return b.String()
}

// Unwrap exposes the individual errors to errors.Is and errors.As.
func (a *AggregateError) Unwrap() []error {
	out := make([]error, len(a.Errors))
	for i, e := range a.Errors {
		out[i] = e
	}
	return out
}

// Kinds returns the distinct kinds present, in first-seen order.
func (a *AggregateError) Kinds() []ErrorKind {
	var out []ErrorKind
	seen := map[ErrorKind]bool{}
	for _, e := range a.Errors {
		if !seen[e.Kind] {
			seen[e.Kind] = true
			out = append(out, e.Kind)
		}
	}
	return out
}

// AsAggregate extracts an *AggregateError from err.
func AsAggregate(err error) (*AggregateError, bool) {
	var agg *AggregateError
	if errors.As(err, &agg) {
		return agg, true
	}
	return nil, false
}
