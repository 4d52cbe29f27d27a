package configfile

import (
	"fmt"

	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"

	"github.com/agentic-research/jflat/api"
	"github.com/agentic-research/jflat/internal/ingest"
)

type hclFile struct {
	ActionTypeField string      `hcl:"action_type_field,optional"`
	Default         []hclAction `hcl:"default_action,block"`
	Actions         []hclAction `hcl:"action,block"`
}

type hclAction struct {
	ActionType          string     `hcl:"type,label"`
	FailFast            bool       `hcl:"fail_fast,optional"`
	IgnoreErrors        []string   `hcl:"ignore_errors_for_fields,optional"`
	PreserveArrays      bool       `hcl:"preserve_arrays,optional"`
	ArrayExplosionField string     `hcl:"array_explosion_field,optional"`
	Fields              []hclField `hcl:"field,block"`
}

type hclField struct {
	OutputName     string     `hcl:"name,label"`
	Paths          []string   `hcl:"paths"`
	Type           string     `hcl:"type,optional"`
	Default        cty.Value  `hcl:"default,optional"`
	OmitIfNotFound bool       `hcl:"omit_if_not_found,optional"`
	Explode        bool       `hcl:"explode,optional"`
	ParentContext  []string   `hcl:"parent_context,optional"`
	Filter         string     `hcl:"filter,optional"`
	Items          []hclField `hcl:"item,block"`
}

func readHCL(path string) (*File, error) {
	var raw hclFile
	if err := hclsimple.DecodeFile(path, nil, &raw); err != nil {
		return nil, err
	}
	if len(raw.Default) > 1 {
		return nil, fmt.Errorf("at most one default_action block is allowed, found %d", len(raw.Default))
	}

	f := &File{ActionTypeField: raw.ActionTypeField}
	for i := range raw.Actions {
		cfg, err := raw.Actions[i].config()
		if err != nil {
			return nil, err
		}
		f.Actions = append(f.Actions, cfg)
	}
	if len(raw.Default) == 1 {
		cfg, err := raw.Default[0].config()
		if err != nil {
			return nil, err
		}
		f.Default = cfg
	}
	return f, nil
}

func (a *hclAction) config() (*api.ActionConfig, error) {
	fields, err := convertFields(a.ActionType, a.Fields)
	if err != nil {
		return nil, err
	}
	return &api.ActionConfig{
		ActionType:            a.ActionType,
		Fields:                fields,
		FailFast:              a.FailFast,
		IgnoreErrorsForFields: a.IgnoreErrors,
		PreserveArrays:        a.PreserveArrays,
		ArrayExplosionField:   a.ArrayExplosionField,
	}, nil
}

func convertFields(action string, in []hclField) ([]api.FieldMapping, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make([]api.FieldMapping, 0, len(in))
	for _, f := range in {
		def, err := ctyToJSON(f.Default)
		if err != nil {
			return nil, fmt.Errorf("action %q field %q: default: %w", action, f.OutputName, err)
		}
		items, err := convertFields(action, f.Items)
		if err != nil {
			return nil, err
		}
		out = append(out, api.FieldMapping{
			OutputName:            f.OutputName,
			SourcePaths:           f.Paths,
			TargetType:            api.TargetType(f.Type),
			Default:               def,
			OmitIfNotFound:        f.OmitIfNotFound,
			ArrayExplosionTrigger: f.Explode,
			ParentContextFields:   f.ParentContext,
			ArrayItemFilter:       f.Filter,
			ItemFields:            items,
		})
	}
	return out, nil
}

// ctyToJSON turns an HCL value into the decoded JSON model used for input
// documents.
func ctyToJSON(v cty.Value) (any, error) {
	if v == cty.NilVal || v.IsNull() {
		return nil, nil
	}
	if !v.IsWhollyKnown() {
		return nil, fmt.Errorf("value is not known")
	}
	raw, err := ctyjson.Marshal(v, v.Type())
	if err != nil {
		return nil, err
	}
	return ingest.DecodeJSON(raw)
}
