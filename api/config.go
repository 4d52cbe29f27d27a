package api

import (
	"fmt"
	"strings"

	"github.com/agentic-research/jflat/internal/pathexpr"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Document is a simplified output record. Keys keep the order in which the
// owning configuration declares its field mappings.
type Document = orderedmap.OrderedMap[string, any]

// NewDocument returns an empty output document.
func NewDocument() *Document {
	return orderedmap.New[string, any]()
}

// TargetType names the semantic type a field value is coerced to.
// The empty TargetType means the value is passed through untouched.
type TargetType string

const (
	TypeNone     TargetType = ""
	TypeString   TargetType = "string"
	TypeBool     TargetType = "bool"
	TypeInteger  TargetType = "integer"
	TypeLong     TargetType = "long"
	TypeFloat    TargetType = "float"
	TypeDouble   TargetType = "double"
	TypeDateTime TargetType = "datetime"
	TypeUUID     TargetType = "uuid"
	TypeObject   TargetType = "object"
	TypeArray    TargetType = "array"
)

// BuiltinTypes lists the target types served without registration.
var BuiltinTypes = []TargetType{
	TypeString, TypeBool, TypeInteger, TypeLong, TypeFloat,
	TypeDouble, TypeDateTime, TypeUUID, TypeObject, TypeArray,
}

// IsBuiltin reports whether t is one of BuiltinTypes.
func (t TargetType) IsBuiltin() bool {
	for _, b := range BuiltinTypes {
		if b == t {
			return true
		}
	}
	return false
}

// Normalize lower-cases the type name so "Integer" and "integer" match.
func (t TargetType) Normalize() TargetType {
	return TargetType(strings.ToLower(strings.TrimSpace(string(t))))
}

// FieldMapping describes how one output field is derived from the input.
type FieldMapping struct {
	// OutputName is the key written to the output document.
	OutputName string `json:"output_name" yaml:"output_name"`
	// SourcePaths are tried in order; the first present, non-null value wins.
	// Dot-separated names may contain characters such as "-" or "@"
	// ("order-id", "meta.@timestamp"); names with spaces, dots or brackets
	// need the bracket form, e.g. "meta['created at']".
	SourcePaths []string `json:"source_paths" yaml:"source_paths"`
	// TargetType is optional; empty means pass-through.
	TargetType TargetType `json:"target_type,omitempty" yaml:"target_type,omitempty"`
	// Default is used when no source path resolves or conversion fails on a
	// tolerated field.
	Default any `json:"default,omitempty" yaml:"default,omitempty"`
	// OmitIfNotFound drops the key instead of writing null.
	OmitIfNotFound bool `json:"omit_if_not_found,omitempty" yaml:"omit_if_not_found,omitempty"`
	// ArrayExplosionTrigger marks the array this configuration fans out on
	// (or preserves, when the configuration preserves arrays).
	ArrayExplosionTrigger bool `json:"array_explosion_trigger,omitempty" yaml:"array_explosion_trigger,omitempty"`
	// ParentContextFields are copied from the outer document into every
	// exploded item.
	ParentContextFields []string `json:"parent_context_fields,omitempty" yaml:"parent_context_fields,omitempty"`
	// ArrayItemFilter is "path=value" or "path!=value", evaluated per item.
	ArrayItemFilter string `json:"array_item_filter,omitempty" yaml:"array_item_filter,omitempty"`
	// ItemFields simplify each element of a preserved array.
	ItemFields []FieldMapping `json:"item_fields,omitempty" yaml:"item_fields,omitempty"`
}

// ArrayMode is how a configuration treats its array field.
type ArrayMode int

const (
	ArrayModeNone ArrayMode = iota
	ArrayModeExplode
	ArrayModePreserve
)

func (m ArrayMode) String() string {
	switch m {
	case ArrayModeExplode:
		return "explode"
	case ArrayModePreserve:
		return "preserve"
	default:
		return "none"
	}
}

// ActionConfig is the mapping applied to documents of one action type.
// It must not be modified once registered.
type ActionConfig struct {
	ActionType            string         `json:"action_type" yaml:"action_type"`
	Fields                []FieldMapping `json:"fields" yaml:"fields"`
	FailFast              bool           `json:"fail_fast,omitempty" yaml:"fail_fast,omitempty"`
	IgnoreErrorsForFields []string       `json:"ignore_errors_for_fields,omitempty" yaml:"ignore_errors_for_fields,omitempty"`
	PreserveArrays        bool           `json:"preserve_arrays,omitempty" yaml:"preserve_arrays,omitempty"`
	ArrayExplosionField   string         `json:"array_explosion_field,omitempty" yaml:"array_explosion_field,omitempty"`
}

// Field returns the mapping with the given output name.
func (c *ActionConfig) Field(name string) (*FieldMapping, bool) {
	for i := range c.Fields {
		if c.Fields[i].OutputName == name {
			return &c.Fields[i], true
		}
	}
	return nil, false
}

// Tolerates reports whether errors for the named field are suppressed.
func (c *ActionConfig) Tolerates(name string) bool {
	for _, f := range c.IgnoreErrorsForFields {
		if f == name {
			return true
		}
	}
	return false
}

// ArrayMode resolves the explosion/preservation precedence.
// An explosion field selects the array; PreserveArrays decides what happens
// to it.
func (c *ActionConfig) ArrayMode() ArrayMode {
	if c.ArrayExplosionField == "" {
		return ArrayModeNone
	}
	if c.PreserveArrays {
		return ArrayModePreserve
	}
	return ArrayModeExplode
}

// ArrayField returns the mapping named by ArrayExplosionField.
func (c *ActionConfig) ArrayField() (*FieldMapping, bool) {
	if c.ArrayExplosionField == "" {
		return nil, false
	}
	return c.Field(c.ArrayExplosionField)
}

// Validate checks the configuration invariants. Violations are returned
// together as an *AggregateError of KindConfigValidation entries.
func (c *ActionConfig) Validate() error {
	var errs []*ProcessingError
	add := func(field, format string, args ...any) {
		errs = append(errs, NewConfigError(field, fmt.Sprintf(format, args...)))
	}

	if strings.TrimSpace(c.ActionType) == "" {
		add("", "action type is empty")
	}

	triggers := validateFields(c.Fields, "", add)
	if len(triggers) > 1 {
		add(triggers[1], "multiple array explosion triggers: %s", strings.Join(triggers, ", "))
	}

	if c.ArrayExplosionField != "" {
		if _, ok := c.Field(c.ArrayExplosionField); !ok {
			add(c.ArrayExplosionField, "array explosion field %q has no field mapping", c.ArrayExplosionField)
		}
		if len(triggers) == 1 && triggers[0] != c.ArrayExplosionField {
			add(triggers[0], "array explosion trigger %q does not match array explosion field %q",
				triggers[0], c.ArrayExplosionField)
		}
	} else {
		if len(triggers) > 0 {
			add(triggers[0], "field is marked as array explosion trigger but array explosion field is not set")
		}
		if c.PreserveArrays {
			add("", "preserve arrays requires an array explosion field")
		}
	}

	for i := range c.Fields {
		f := &c.Fields[i]
		if f.OutputName == c.ArrayExplosionField {
			continue
		}
		if len(f.ParentContextFields) > 0 || f.ArrayItemFilter != "" || len(f.ItemFields) > 0 {
			add(f.OutputName, "parent context fields, item filters and item fields are only allowed on the array field")
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return &AggregateError{Errors: errs}
}

// validateFields checks one level of mappings and returns the output names
// flagged as explosion triggers.
func validateFields(fields []FieldMapping, prefix string, add func(field, format string, args ...any)) []string {
	var triggers []string
	seen := make(map[string]bool, len(fields))
	for i := range fields {
		f := &fields[i]
		name := prefix + f.OutputName
		if strings.TrimSpace(f.OutputName) == "" {
			add(name, "field mapping %d has an empty output name", i)
		} else if seen[f.OutputName] {
			add(name, "duplicate output name %q", f.OutputName)
		}
		seen[f.OutputName] = true

		if len(f.SourcePaths) == 0 {
			add(name, "no source paths")
		}
		for _, p := range f.SourcePaths {
			if !pathexpr.IsValid(p) {
				add(name, "invalid source path %q", p)
			}
		}
		if f.ArrayExplosionTrigger {
			triggers = append(triggers, f.OutputName)
		}
		if len(f.ItemFields) > 0 {
			if prefix != "" {
				add(name, "item fields cannot be nested")
			}
			inner := validateFields(f.ItemFields, name+".", add)
			if len(inner) > 0 {
				add(name, "item fields cannot declare array explosion triggers")
			}
		}
	}
	return triggers
}

// FilterSyntaxValid reports whether expr uses the "path=value" or
// "path!=value" form. Unrecognized filters still pass every item at runtime.
func FilterSyntaxValid(expr string) bool {
	if expr == "" {
		return true
	}
	if i := strings.Index(expr, "!="); i > 0 {
		return pathexpr.IsValid(strings.TrimSpace(expr[:i]))
	}
	if i := strings.Index(expr, "="); i > 0 {
		return pathexpr.IsValid(strings.TrimSpace(expr[:i]))
	}
	return false
}

// Warnings lists non-fatal configuration problems.
func (c *ActionConfig) Warnings() []string {
	var out []string
	for _, f := range c.Fields {
		if f.ArrayItemFilter != "" && !FilterSyntaxValid(f.ArrayItemFilter) {
			out = append(out, fmt.Sprintf("%s: field %q: unrecognized item filter %q passes every item",
				c.ActionType, f.OutputName, f.ArrayItemFilter))
		}
	}
	return out
}
