// Package configfile loads action configurations from JSON, YAML or HCL
// files into a registry.
//
// JSON and YAML files share one layout:
//
//	action_type_field: Action
//	default: { action_type: fallback, fields: [...] }
//	actions:
//	  - action_type: CreateOrder
//	    fields:
//	      - output_name: OrderId
//	        source_paths: [OrderDetails.OrderId]
//
// HCL files use blocks:
//
//	action_type_field = "Action"
//
//	action "CreateOrder" {
//	  array_explosion_field = "Items"
//	  field "OrderId" { paths = ["OrderDetails.OrderId"] }
//	  field "Items" {
//	    paths          = ["OrderDetails.Items"]
//	    explode        = true
//	    parent_context = ["OrderId"]
//	  }
//	}
package configfile

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/agentic-research/jflat/api"
)

// File is the decoded form of a configuration file.
type File struct {
	ActionTypeField string              `json:"action_type_field,omitempty" yaml:"action_type_field,omitempty"`
	Default         *api.ActionConfig   `json:"default,omitempty" yaml:"default,omitempty"`
	Actions         []*api.ActionConfig `json:"actions" yaml:"actions"`
}

// Load reads path and returns a registry holding its configurations.
// Every configuration is validated; the first invalid one fails the load.
func Load(path string) (*api.Registry, error) {
	f, err := Read(path)
	if err != nil {
		return nil, err
	}
	return f.Registry()
}

// Read decodes path according to its extension.
func Read(path string) (*File, error) {
	var (
		f   *File
		err error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		if strings.HasSuffix(strings.ToLower(path), ".hcl.json") {
			f, err = readHCL(path)
			break
		}
		f, err = readJSON(path)
	case ".yaml", ".yml":
		f, err = readYAML(path)
	case ".hcl":
		f, err = readHCL(path)
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return f, nil
}

func readJSON(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodeJSON(data)
}

// DecodeJSON parses a JSON configuration document. Default values keep
// their number text.
func DecodeJSON(data []byte) (*File, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	dec.DisallowUnknownFields()
	var f File
	if err := dec.Decode(&f); err != nil {
		return nil, err
	}
	return &f, nil
}

func readYAML(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodeYAML(data)
}

// DecodeYAML parses a YAML configuration document.
func DecodeYAML(data []byte) (*File, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var f File
	if err := dec.Decode(&f); err != nil {
		return nil, err
	}
	return &f, nil
}

// Registry validates and registers the configurations of f.
func (f *File) Registry() (*api.Registry, error) {
	reg := api.NewRegistry()
	if f.ActionTypeField != "" {
		reg.ActionTypeField = f.ActionTypeField
	}
	log := slog.Default().With("component", "configfile")
	for _, cfg := range f.Actions {
		if cfg == nil {
			continue
		}
		warnUnknownTypes(log, cfg.ActionType, cfg.Fields)
		if err := reg.Register(cfg); err != nil {
			return nil, err
		}
	}
	if f.Default != nil {
		warnUnknownTypes(log, f.Default.ActionType, f.Default.Fields)
		if err := reg.SetDefault(f.Default); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// Encode writes f as YAML or JSON depending on the extension of path.
func Encode(path string, f *File) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return json.MarshalIndent(f, "", "  ")
	case ".yaml", ".yml", "":
		return yaml.Marshal(f)
	default:
		return nil, fmt.Errorf("cannot encode config as %s", filepath.Ext(path))
	}
}

func warnUnknownTypes(log *slog.Logger, action string, fields []api.FieldMapping) {
	for _, m := range fields {
		if t := m.TargetType.Normalize(); t != api.TypeNone && !t.IsBuiltin() {
			log.Warn("target type is not built in; a registered converter is required",
				"action_type", action, "field", m.OutputName, "target_type", m.TargetType)
		}
		warnUnknownTypes(log, action, m.ItemFields)
	}
}
