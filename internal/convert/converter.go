package convert

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/agentic-research/jflat/api"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/spf13/cast"
)

// Func coerces one decoded JSON value. It is never called with nil.
type Func func(value any) (any, error)

// ConversionError reports a value that could not be coerced.
type ConversionError struct {
	Value  any
	Target api.TargetType
	Cause  error
}

func (e *ConversionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("cannot convert %T %v to %s: %v", e.Value, e.Value, e.Target, e.Cause)
	}
	return fmt.Sprintf("cannot convert %T %v to %s", e.Value, e.Value, e.Target)
}

func (e *ConversionError) Unwrap() error {
	return e.Cause
}

// Converter coerces decoded JSON values to target types. Registration and
// lookup may happen concurrently.
type Converter struct {
	mu       sync.RWMutex
	funcs    map[api.TargetType]Func
	fallback func(value any, target api.TargetType) (any, error)
}

// New returns a converter with the built-in types registered.
func New() *Converter {
	c := &Converter{
		funcs:    make(map[api.TargetType]Func, len(api.BuiltinTypes)),
		fallback: structural,
	}
	c.funcs[api.TypeString] = toString
	c.funcs[api.TypeBool] = toBool
	c.funcs[api.TypeInteger] = toInt
	c.funcs[api.TypeLong] = toInt
	c.funcs[api.TypeFloat] = toFloat
	c.funcs[api.TypeDouble] = toFloat
	c.funcs[api.TypeDateTime] = toTime
	c.funcs[api.TypeUUID] = toUUID
	c.funcs[api.TypeObject] = toObject
	c.funcs[api.TypeArray] = toArray
	return c
}

// Register installs fn for target, replacing any previous converter.
func (c *Converter) Register(target api.TargetType, fn Func) {
	c.mu.Lock()
	c.funcs[target.Normalize()] = fn
	c.mu.Unlock()
}

// SetFallback replaces the conversion used for unregistered types.
func (c *Converter) SetFallback(fn func(value any, target api.TargetType) (any, error)) {
	c.mu.Lock()
	c.fallback = fn
	c.mu.Unlock()
}

// CanConvert reports whether a converter is registered for target.
func (c *Converter) CanConvert(target api.TargetType) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.funcs[target.Normalize()]
	return ok
}

// Convert coerces value to target. A nil value yields the zero value of
// types that have one (bool, numbers, datetime, uuid) and nil otherwise.
// Failures are *ConversionError.
func (c *Converter) Convert(value any, target api.TargetType) (any, error) {
	target = target.Normalize()
	if target == api.TypeNone {
		return value, nil
	}
	if value == nil {
		return zero(target), nil
	}

	c.mu.RLock()
	fn, ok := c.funcs[target]
	fallback := c.fallback
	c.mu.RUnlock()

	var (
		out any
		err error
	)
	if ok {
		out, err = fn(value)
	} else {
		out, err = fallback(value, target)
	}
	if err != nil {
		if ce, isCE := err.(*ConversionError); isCE {
			return nil, ce
		}
		return nil, &ConversionError{Value: value, Target: target, Cause: err}
	}
	return out, nil
}

func zero(target api.TargetType) any {
	switch target {
	case api.TypeBool:
		return false
	case api.TypeInteger, api.TypeLong:
		return int64(0)
	case api.TypeFloat, api.TypeDouble:
		return float64(0)
	case api.TypeDateTime:
		return time.Time{}
	case api.TypeUUID:
		return uuid.Nil
	default:
		return nil
	}
}

var (
	trueWords  = map[string]bool{"1": true, "yes": true, "y": true, "true": true, "t": true}
	falseWords = map[string]bool{"0": true, "no": true, "n": true, "false": true, "f": true}
)

func toBool(v any) (any, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		s := strings.ToLower(strings.TrimSpace(b))
		if trueWords[s] {
			return true, nil
		}
		if falseWords[s] {
			return false, nil
		}
		return nil, fmt.Errorf("unrecognized boolean %q", b)
	case json.Number:
		n, err := b.Int64()
		if err != nil {
			return nil, fmt.Errorf("boolean from non-integer %s", b)
		}
		return n != 0, nil
	}
	if isNumber(v) {
		n, err := cast.ToInt64E(v)
		if err != nil {
			return nil, err
		}
		return n != 0, nil
	}
	return nil, fmt.Errorf("unsupported kind %T", v)
}

func toInt(v any) (any, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case string:
		return parseInt(strings.TrimSpace(n))
	case json.Number:
		return parseInt(n.String())
	case bool:
		if n {
			return int64(1), nil
		}
		return int64(0), nil
	case float64:
		return truncate(n, v)
	case float32:
		return truncate(float64(n), v)
	}
	if isNumber(v) {
		return cast.ToInt64E(v)
	}
	return nil, fmt.Errorf("unsupported kind %T", v)
}

// parseInt reads a base-10 integer, truncating a fractional part.
func parseInt(s string) (any, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return truncate(f, s)
}

// truncate drops the fractional part of f. float64(math.MaxInt64) rounds up
// to 2^63, which int64 cannot hold, so the upper bound is exclusive.
func truncate(f float64, orig any) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f >= 1<<63 || f < -(1<<63) {
		return nil, fmt.Errorf("%v is out of integer range", orig)
	}
	return int64(f), nil
}

func toFloat(v any) (any, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	case json.Number:
		return n.Float64()
	case bool:
		if n {
			return float64(1), nil
		}
		return float64(0), nil
	}
	if isNumber(v) {
		return cast.ToFloat64E(v)
	}
	return nil, fmt.Errorf("unsupported kind %T", v)
}

func toTime(v any) (any, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		return cast.StringToDate(strings.TrimSpace(t))
	}
	return nil, fmt.Errorf("unsupported kind %T", v)
}

func toUUID(v any) (any, error) {
	switch u := v.(type) {
	case uuid.UUID:
		return u, nil
	case string:
		return uuid.Parse(strings.TrimSpace(u))
	}
	return nil, fmt.Errorf("unsupported kind %T", v)
}

func toString(v any) (any, error) {
	switch v.(type) {
	case string:
		return v, nil
	case map[string]any, []any, *api.Document:
		return nil, fmt.Errorf("cannot stringify %T", v)
	}
	return Stringify(v), nil
}

func toObject(v any) (any, error) {
	switch v.(type) {
	case map[string]any, *api.Document:
		return v, nil
	}
	return nil, fmt.Errorf("value is %T, not an object", v)
}

func toArray(v any) (any, error) {
	if _, ok := v.([]any); ok {
		return v, nil
	}
	return nil, fmt.Errorf("value is %T, not an array", v)
}

// structural round-trips the value through JSON, normalizing any Go
// representation into the decoded JSON model.
func structural(v any, target api.TargetType) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode for %s: %w", target, err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode for %s: %w", target, err)
	}
	return out, nil
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	}
	return false
}
