package ingest

import (
	"log/slog"
	"sync"

	"github.com/agentic-research/jflat/api"
	"github.com/agentic-research/jflat/internal/accum"
	"github.com/agentic-research/jflat/internal/convert"
	"github.com/agentic-research/jflat/internal/pathexpr"
)

// Unit is one candidate input document handed to BuildOutput. Exploded
// units are array items merged with their parent context.
type Unit struct {
	Doc      any
	Exploded bool
	// Context holds the parent context values copied into an exploded unit,
	// keyed as they appear in Doc.
	Context map[string]any
}

// Result is the outcome of one transformation pass.
type Result struct {
	ActionType string                 `json:"action_type,omitempty"`
	Documents  []*api.Document        `json:"documents"`
	Errors     []*api.ProcessingError `json:"errors,omitempty"`
}

// Engine drives the transformation of input documents into simplified
// output documents. One engine may serve many goroutines; each pass keeps
// its errors in its own accumulator.
type Engine struct {
	Registry *api.Registry

	paths       *pathexpr.Resolver
	conv        *convert.Converter
	log         *slog.Logger
	actionField string

	warned sync.Map // *api.ActionConfig -> struct{}
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

func WithResolver(r *pathexpr.Resolver) Option {
	return func(e *Engine) { e.paths = r }
}

func WithConverter(c *convert.Converter) Option {
	return func(e *Engine) { e.conv = c }
}

// WithActionTypeField overrides the registry's discriminator path.
func WithActionTypeField(path string) Option {
	return func(e *Engine) { e.actionField = path }
}

func NewEngine(registry *api.Registry, opts ...Option) *Engine {
	if registry == nil {
		registry = api.NewRegistry()
	}
	e := &Engine{
		Registry:    registry,
		actionField: registry.ActionTypeField,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.paths == nil {
		e.paths = pathexpr.NewResolver(pathexpr.DefaultCacheSize)
	}
	if e.conv == nil {
		e.conv = convert.New()
	}
	if e.log == nil {
		e.log = slog.Default().With("component", "engine")
	}
	if e.actionField == "" {
		e.actionField = api.DefaultActionTypeField
	}
	return e
}

// Converter exposes the engine's converter for custom registrations.
func (e *Engine) Converter() *convert.Converter {
	return e.conv
}

// Process selects a configuration from the registry by the document's
// action type and transforms the document with it.
func (e *Engine) Process(doc any) (*Result, error) {
	action, _ := e.DetermineActionType(doc, e.actionField)
	cfg, ok := e.Registry.Resolve(action)
	if !ok {
		e.log.Debug("no configuration", "action_type", action)
		perr := api.NewGeneralError("no configuration registered for action type", nil)
		perr.Value = action
		perr.Path = e.actionField
		return &Result{ActionType: action, Errors: []*api.ProcessingError{perr}}, nil
	}
	res, err := e.Transform(doc, cfg)
	if res != nil {
		res.ActionType = action
	}
	return res, err
}

// ProcessString decodes s and calls Process.
func (e *Engine) ProcessString(s string) (*Result, error) {
	doc, err := DecodeJSON([]byte(s))
	if err != nil {
		return &Result{Errors: []*api.ProcessingError{
			api.NewParsingError("malformed input document", err),
		}}, nil
	}
	return e.Process(doc)
}

// Transform runs one pass of cfg over doc with a fresh accumulator. On a
// fail-fast abort the returned error is an *api.AggregateError and the
// result holds no documents.
func (e *Engine) Transform(doc any, cfg *api.ActionConfig) (*Result, error) {
	acc := accum.New(cfg)
	docs, err := e.ParseDocument(doc, cfg, acc)
	res := &Result{ActionType: cfg.ActionType, Documents: docs, Errors: acc.Errors()}
	if err != nil {
		res.Documents = nil
		return res, err
	}
	if acc.HasErrors() {
		e.log.Debug("transform finished with errors", "action_type", cfg.ActionType, "errors", acc.Len())
	}
	return res, nil
}

// ParseString decodes s and calls ParseDocument. Malformed input is recorded
// as a parsing error and yields no documents.
func (e *Engine) ParseString(s string, cfg *api.ActionConfig, acc *accum.Accumulator) ([]*api.Document, error) {
	if acc == nil {
		acc = accum.New(cfg)
	}
	doc, err := DecodeJSON([]byte(s))
	if err != nil {
		if rerr := acc.Record(api.NewParsingError("malformed input document", err)); rerr != nil {
			return nil, rerr
		}
		return nil, nil
	}
	return e.ParseDocument(doc, cfg, acc)
}

// ParseDocument expands doc through the array processor and builds one
// output document per resulting unit, in order.
func (e *Engine) ParseDocument(doc any, cfg *api.ActionConfig, acc *accum.Accumulator) ([]*api.Document, error) {
	if acc == nil {
		acc = accum.New(cfg)
	}
	if _, ok := doc.(map[string]any); !ok {
		perr := api.NewParsingError("document root is not an object", nil)
		perr.Value = doc
		if rerr := acc.Record(perr); rerr != nil {
			return nil, rerr
		}
		return nil, nil
	}
	e.warnOnce(cfg)

	units, err := e.ProcessArray(doc, cfg, acc)
	if err != nil {
		return nil, err
	}
	out := make([]*api.Document, 0, len(units))
	for _, u := range units {
		d, err := e.buildOutput(u, cfg, acc)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// BuildOutput extracts every mapping of cfg from doc, in declaration order.
func (e *Engine) BuildOutput(doc any, cfg *api.ActionConfig, acc *accum.Accumulator) (*api.Document, error) {
	if acc == nil {
		acc = accum.New(cfg)
	}
	return e.buildOutput(Unit{Doc: doc}, cfg, acc)
}

func (e *Engine) buildOutput(u Unit, cfg *api.ActionConfig, acc *accum.Accumulator) (*api.Document, error) {
	out := api.NewDocument()
	for i := range cfg.Fields {
		m := &cfg.Fields[i]
		if u.Exploded && m.OutputName == cfg.ArrayExplosionField {
			continue
		}
		v, found, err := e.extract(u, m, acc)
		if err != nil {
			return nil, err
		}
		if !found && m.OmitIfNotFound {
			continue
		}
		out.Set(m.OutputName, v)
	}
	return out, nil
}

// ExtractField resolves and coerces a single mapping. The boolean is false
// when the field is absent (or null) after defaults are applied. A non-nil
// error means the accumulator aborted the pass.
func (e *Engine) ExtractField(doc any, m *api.FieldMapping, acc *accum.Accumulator) (any, bool, error) {
	if acc == nil {
		acc = accum.New(nil)
	}
	return e.extract(Unit{Doc: doc}, m, acc)
}

func (e *Engine) extract(u Unit, m *api.FieldMapping, acc *accum.Accumulator) (any, bool, error) {
	v, path, found := e.paths.ResolveFirstNonNull(u.Doc, m.SourcePaths)
	if !found && u.Exploded {
		// Parent context is carried under the output name. Element keys
		// only take part when they shadow a carried key.
		if _, carried := u.Context[m.OutputName]; carried {
			if obj, ok := u.Doc.(map[string]any); ok {
				if cv, ok := obj[m.OutputName]; ok && cv != nil {
					v, path, found = cv, m.OutputName, true
				}
			}
		}
	}
	if !found {
		v, path = m.Default, ""
	}
	if v == nil {
		return nil, false, nil
	}
	if m.TargetType == api.TypeNone {
		return v, true, nil
	}

	out, err := e.conv.Convert(v, m.TargetType)
	if err == nil {
		return out, out != nil, nil
	}

	perr := api.NewConversionError(m.OutputName, v, m.TargetType, err)
	perr.Path = path
	if rerr := acc.Record(perr); rerr != nil {
		return nil, false, rerr
	}
	return e.fallback(m), m.Default != nil, nil
}

// fallback returns the mapping's default, coerced to the target type when
// possible.
func (e *Engine) fallback(m *api.FieldMapping) any {
	if m.Default == nil {
		return nil
	}
	if v, err := e.conv.Convert(m.Default, m.TargetType); err == nil {
		return v
	}
	return m.Default
}

// DetermineActionType reads the discriminator at field and renders it as a
// string.
func (e *Engine) DetermineActionType(doc any, field string) (string, bool) {
	v, ok := e.paths.Resolve(doc, field)
	if !ok || v == nil {
		return "", false
	}
	s := convert.Stringify(v)
	return s, s != ""
}

func (e *Engine) warnOnce(cfg *api.ActionConfig) {
	if _, seen := e.warned.LoadOrStore(cfg, struct{}{}); seen {
		return
	}
	for _, w := range cfg.Warnings() {
		e.log.Warn("configuration warning", "action_type", cfg.ActionType, "warning", w)
	}
}
