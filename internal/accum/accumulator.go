// Package accum collects the errors of one transformation pass and applies
// the fail-fast and tolerate-set policy of an action configuration.
package accum

import (
	"github.com/agentic-research/jflat/api"
)

// Accumulator is per-pass state and is not safe for concurrent use.
type Accumulator struct {
	cfg      *api.ActionConfig
	failFast bool
	errs     []*api.ProcessingError
}

// New returns an accumulator applying cfg's policy. A nil cfg collects
// everything and never fails fast.
func New(cfg *api.ActionConfig) *Accumulator {
	a := &Accumulator{cfg: cfg}
	if cfg != nil {
		a.failFast = cfg.FailFast
	}
	return a
}

// FailFast reports whether the first recorded error aborts the pass.
func (a *Accumulator) FailFast() bool {
	return a.failFast
}

// Tolerates reports whether field is in the tolerate-set.
func (a *Accumulator) Tolerates(field string) bool {
	if field == "" || a.cfg == nil {
		return false
	}
	return a.cfg.Tolerates(field)
}

// Suppressed reports whether err would be dropped instead of recorded.
// Only path and conversion problems of tolerated fields are suppressed.
func (a *Accumulator) Suppressed(err *api.ProcessingError) bool {
	switch err.Kind {
	case api.KindPathResolution, api.KindTypeConversion:
		return a.Tolerates(err.Field)
	}
	return false
}

// Record stores err. In fail-fast mode it returns an *api.AggregateError
// holding every error recorded so far; the caller must stop the pass.
func (a *Accumulator) Record(err *api.ProcessingError) error {
	if err == nil || a.Suppressed(err) {
		return nil
	}
	a.errs = append(a.errs, err)
	if a.failFast {
		return a.Err()
	}
	return nil
}

// RecordPath records a path resolution problem for field.
func (a *Accumulator) RecordPath(field, path string, cause error) error {
	return a.Record(api.NewPathError(field, path, cause))
}

// Errors returns a copy of the recorded errors in recording order.
func (a *Accumulator) Errors() []*api.ProcessingError {
	out := make([]*api.ProcessingError, len(a.errs))
	copy(out, a.errs)
	return out
}

// Len is the number of recorded errors.
func (a *Accumulator) Len() int {
	return len(a.errs)
}

// HasErrors reports whether anything was recorded.
func (a *Accumulator) HasErrors() bool {
	return len(a.errs) > 0
}

// ForField returns the recorded errors attributed to field.
func (a *Accumulator) ForField(field string) []*api.ProcessingError {
	var out []*api.ProcessingError
	for _, e := range a.errs {
		if e.Field == field {
			out = append(out, e)
		}
	}
	return out
}

// Err returns the recorded errors as an *api.AggregateError, or nil.
func (a *Accumulator) Err() error {
	if len(a.errs) == 0 {
		return nil
	}
	return &api.AggregateError{Errors: a.Errors()}
}

// Reset discards recorded errors, keeping the policy.
func (a *Accumulator) Reset() {
	a.errs = nil
}
