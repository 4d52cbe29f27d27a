package ingest

import (
	"strings"

	"github.com/agentic-research/jflat/internal/convert"
)

// EvaluateFilter applies an item filter of the form "path=value" or
// "path!=value". The path is resolved against item and its string form is
// compared verbatim with value; absent and null resolve to "". An empty or
// unrecognized filter passes every item.
func (e *Engine) EvaluateFilter(item any, expr string) bool {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return true
	}
	if i := strings.Index(expr, "!="); i > 0 {
		return !e.filterMatches(item, expr[:i], expr[i+2:])
	}
	if i := strings.Index(expr, "="); i > 0 {
		return e.filterMatches(item, expr[:i], expr[i+1:])
	}
	e.log.Debug("unrecognized item filter passes", "filter", expr)
	return true
}

func (e *Engine) filterMatches(item any, path, want string) bool {
	v, _ := e.paths.Resolve(item, strings.TrimSpace(path))
	return convert.Stringify(v) == strings.TrimSpace(want)
}
