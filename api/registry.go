package api

import (
	"fmt"
	"sort"
	"sync"
)

// DefaultActionTypeField is the conventional discriminator field.
const DefaultActionTypeField = "Action"

// Registry maps action types to configurations. It is populated at startup
// and read concurrently while documents are processed.
type Registry struct {
	mu       sync.RWMutex
	configs  map[string]*ActionConfig
	fallback *ActionConfig

	// ActionTypeField is the path holding the discriminator in input documents.
	ActionTypeField string
}

func NewRegistry() *Registry {
	return &Registry{
		configs:         make(map[string]*ActionConfig),
		ActionTypeField: DefaultActionTypeField,
	}
}

// Register validates cfg and adds it under cfg.ActionType.
func (r *Registry) Register(cfg *ActionConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("register %q: %w", cfg.ActionType, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.configs[cfg.ActionType]; exists {
		return NewConfigError("", fmt.Sprintf("action type %q is already registered", cfg.ActionType))
	}
	r.configs[cfg.ActionType] = cfg
	return nil
}

// SetDefault installs the configuration used for missing or unknown action
// types.
func (r *Registry) SetDefault(cfg *ActionConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("default configuration: %w", err)
	}
	r.mu.Lock()
	r.fallback = cfg
	r.mu.Unlock()
	return nil
}

// Lookup returns the configuration registered for key.
func (r *Registry) Lookup(key string) (*ActionConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.configs[key]
	return cfg, ok
}

// Default returns the fallback configuration, if any.
func (r *Registry) Default() (*ActionConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fallback, r.fallback != nil
}

// Resolve picks the configuration for key, falling back to the default.
func (r *Registry) Resolve(key string) (*ActionConfig, bool) {
	if key != "" {
		if cfg, ok := r.Lookup(key); ok {
			return cfg, true
		}
	}
	return r.Default()
}

// ActionTypes returns the registered keys, sorted.
func (r *Registry) ActionTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.configs))
	for k := range r.configs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
