package ingest

import (
	"fmt"

	"github.com/agentic-research/jflat/api"
	"github.com/agentic-research/jflat/internal/accum"
)

// ShouldProcessArray reports whether cfg selects an array field and that
// field resolves to a JSON array in doc.
func (e *Engine) ShouldProcessArray(doc any, cfg *api.ActionConfig) bool {
	_, _, _, ok := e.arrayValue(doc, cfg)
	return ok
}

func (e *Engine) arrayValue(doc any, cfg *api.ActionConfig) (*api.FieldMapping, []any, string, bool) {
	if cfg.ArrayMode() == api.ArrayModeNone {
		return nil, nil, "", false
	}
	m, ok := cfg.ArrayField()
	if !ok {
		return nil, nil, "", false
	}
	v, path, found := e.paths.ResolveFirstNonNull(doc, m.SourcePaths)
	if !found {
		return m, nil, "", false
	}
	arr, ok := v.([]any)
	return m, arr, path, ok
}

// ProcessArray turns doc into the units BuildOutput runs on. Without an
// applicable array the document itself is the only unit.
func (e *Engine) ProcessArray(doc any, cfg *api.ActionConfig, acc *accum.Accumulator) ([]Unit, error) {
	m, arr, path, ok := e.arrayValue(doc, cfg)
	if !ok {
		return []Unit{{Doc: doc}}, nil
	}
	if cfg.ArrayMode() == api.ArrayModePreserve {
		u, err := e.preserve(doc, m, arr, path, cfg, acc)
		if err != nil {
			return nil, err
		}
		return []Unit{u}, nil
	}
	return e.explode(doc, m, arr, path, cfg), nil
}

// ExplodeArray fans doc out into one unit per object element of cfg's array
// field, in array order.
func (e *Engine) ExplodeArray(doc any, cfg *api.ActionConfig) []Unit {
	m, arr, path, ok := e.arrayValue(doc, cfg)
	if !ok {
		return []Unit{{Doc: doc}}
	}
	return e.explode(doc, m, arr, path, cfg)
}

func (e *Engine) explode(doc any, m *api.FieldMapping, arr []any, path string, cfg *api.ActionConfig) []Unit {
	if len(arr) == 0 {
		cp := deepCopy(doc)
		if err := e.paths.Delete(cp, path); err != nil {
			e.log.Debug("empty array left in place", "field", m.OutputName, "path", path, "error", err)
		}
		return []Unit{{Doc: cp, Exploded: true}}
	}

	parent := e.parentContext(doc, m, cfg)
	carried := make(map[string]any, len(parent))
	for _, kv := range parent {
		carried[kv.key] = kv.value
	}
	units := make([]Unit, 0, len(arr))
	for _, item := range arr {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if !e.EvaluateFilter(obj, m.ArrayItemFilter) {
			continue
		}
		unit := make(map[string]any, len(parent)+len(obj))
		for _, kv := range parent {
			unit[kv.key] = kv.value
		}
		for k, v := range obj {
			unit[k] = v
		}
		units = append(units, Unit{Doc: unit, Exploded: true, Context: carried})
	}
	return units
}

type contextValue struct {
	key   string
	value any
}

// parentContext resolves m.ParentContextFields against the outer document.
// A name that matches another mapping uses that mapping's source paths;
// anything else is treated as a path keyed by its last property name.
func (e *Engine) parentContext(doc any, m *api.FieldMapping, cfg *api.ActionConfig) []contextValue {
	out := make([]contextValue, 0, len(m.ParentContextFields))
	for _, name := range m.ParentContextFields {
		if fm, ok := cfg.Field(name); ok && fm.OutputName != m.OutputName {
			if v, _, found := e.paths.ResolveFirstNonNull(doc, fm.SourcePaths); found {
				out = append(out, contextValue{key: name, value: v})
			}
			continue
		}
		if v, found := e.paths.Resolve(doc, name); found {
			out = append(out, contextValue{key: e.paths.LastName(name), value: v})
		}
	}
	return out
}

func (e *Engine) preserve(doc any, m *api.FieldMapping, arr []any, path string, cfg *api.ActionConfig, acc *accum.Accumulator) (Unit, error) {
	items, err := e.PreserveArray(arr, m, cfg, acc)
	if err != nil {
		return Unit{}, err
	}
	cp := deepCopy(doc)
	if err := e.paths.Set(cp, path, items); err != nil {
		perr := api.NewArrayError(m.OutputName, fmt.Sprintf("cannot replace preserved array: %v", err))
		perr.Path = path
		if rerr := acc.Record(perr); rerr != nil {
			return Unit{}, rerr
		}
		return Unit{Doc: doc}, nil
	}
	return Unit{Doc: cp}, nil
}

// PreserveArray simplifies each object element with m.ItemFields; other
// elements, and all elements when no item fields are configured, are copied
// unchanged. The result has the same length and order as arr.
func (e *Engine) PreserveArray(arr []any, m *api.FieldMapping, cfg *api.ActionConfig, acc *accum.Accumulator) ([]any, error) {
	out := make([]any, len(arr))
	if len(m.ItemFields) == 0 {
		for i, item := range arr {
			out[i] = deepCopy(item)
		}
		return out, nil
	}
	itemCfg := &api.ActionConfig{
		ActionType:            cfg.ActionType,
		Fields:                m.ItemFields,
		FailFast:              cfg.FailFast,
		IgnoreErrorsForFields: cfg.IgnoreErrorsForFields,
	}
	for i, item := range arr {
		obj, ok := item.(map[string]any)
		if !ok {
			out[i] = deepCopy(item)
			continue
		}
		d, err := e.buildOutput(Unit{Doc: obj}, itemCfg, acc)
		if err != nil {
			return nil, err
		}
		out[i] = d
	}
	return out, nil
}

// deepCopy duplicates the decoded JSON containers; leaves are immutable and
// shared.
func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, child := range t {
			m[k] = deepCopy(child)
		}
		return m
	case []any:
		a := make([]any, len(t))
		for i, child := range t {
			a[i] = deepCopy(child)
		}
		return a
	default:
		return v
	}
}
