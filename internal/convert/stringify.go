package convert

import (
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cast"
)

// Stringify renders a decoded JSON value as text. nil is the empty string,
// numbers keep their source text, containers are compact JSON.
func Stringify(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case json.Number:
		return s.String()
	case bool:
		return strconv.FormatBool(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case time.Time:
		return s.Format(time.RFC3339Nano)
	case map[string]any, []any:
		b, err := json.Marshal(s)
		if err != nil {
			return ""
		}
		return string(b)
	}
	if str, err := cast.ToStringE(v); err == nil {
		return str
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
