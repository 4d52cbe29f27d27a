package api

import "slices"

// ActionBuilder assembles an ActionConfig fluently.
//
//	cfg, err := api.NewActionBuilder("CreateOrder").
//		Map("OrderId", "OrderId", "OrderDetails.OrderId").
//		Explode("Items", []string{"OrderDetails.Items"}, "OrderId").
//		Map("Sku", "Sku").
//		Typed("Qty", TypeInteger, "Qty").
//		Build()
type ActionBuilder struct {
	cfg ActionConfig
}

func NewActionBuilder(actionType string) *ActionBuilder {
	return &ActionBuilder{cfg: ActionConfig{ActionType: actionType}}
}

// Add appends a fully specified mapping.
func (b *ActionBuilder) Add(m FieldMapping) *ActionBuilder {
	b.cfg.Fields = append(b.cfg.Fields, m)
	return b
}

// Map appends a pass-through mapping.
func (b *ActionBuilder) Map(output string, paths ...string) *ActionBuilder {
	return b.Add(FieldMapping{OutputName: output, SourcePaths: paths})
}

// Typed appends a mapping coerced to t.
func (b *ActionBuilder) Typed(output string, t TargetType, paths ...string) *ActionBuilder {
	return b.Add(FieldMapping{OutputName: output, SourcePaths: paths, TargetType: t})
}

// Default sets the default value of the most recently added mapping.
func (b *ActionBuilder) Default(v any) *ActionBuilder {
	if f := b.last(); f != nil {
		f.Default = v
	}
	return b
}

// Optional marks the most recently added mapping as omit-if-not-found.
func (b *ActionBuilder) Optional() *ActionBuilder {
	if f := b.last(); f != nil {
		f.OmitIfNotFound = true
	}
	return b
}

// Filter sets the item filter of the most recently added mapping.
func (b *ActionBuilder) Filter(expr string) *ActionBuilder {
	if f := b.last(); f != nil {
		f.ArrayItemFilter = expr
	}
	return b
}

// Explode appends the array field and selects explosion mode.
func (b *ActionBuilder) Explode(output string, paths []string, parentContext ...string) *ActionBuilder {
	b.cfg.ArrayExplosionField = output
	b.cfg.PreserveArrays = false
	return b.Add(FieldMapping{
		OutputName:            output,
		SourcePaths:           paths,
		ArrayExplosionTrigger: true,
		ParentContextFields:   parentContext,
	})
}

// Preserve appends the array field and selects preservation mode; items are
// simplified with itemFields.
func (b *ActionBuilder) Preserve(output string, paths []string, itemFields ...FieldMapping) *ActionBuilder {
	b.cfg.ArrayExplosionField = output
	b.cfg.PreserveArrays = true
	return b.Add(FieldMapping{
		OutputName:            output,
		SourcePaths:           paths,
		ArrayExplosionTrigger: true,
		ItemFields:            itemFields,
	})
}

func (b *ActionBuilder) FailFast(on bool) *ActionBuilder {
	b.cfg.FailFast = on
	return b
}

// Tolerate adds fields to the tolerate-set.
func (b *ActionBuilder) Tolerate(fields ...string) *ActionBuilder {
	b.cfg.IgnoreErrorsForFields = append(b.cfg.IgnoreErrorsForFields, fields...)
	return b
}

// Build validates and returns the configuration.
func (b *ActionBuilder) Build() (*ActionConfig, error) {
	cfg := b.cfg
	cfg.Fields = slices.Clone(b.cfg.Fields)
	cfg.IgnoreErrorsForFields = slices.Clone(b.cfg.IgnoreErrorsForFields)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MustBuild is Build for static configurations; it panics on error.
func (b *ActionBuilder) MustBuild() *ActionConfig {
	cfg, err := b.Build()
	if err != nil {
		panic(err)
	}
	return cfg
}

func (b *ActionBuilder) last() *FieldMapping {
	if len(b.cfg.Fields) == 0 {
		return nil
	}
	return &b.cfg.Fields[len(b.cfg.Fields)-1]
}
