package provider

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrUnknownProvider is returned when a requested provider name is not registered.
var ErrUnknownProvider = errors.New("provider: unknown provider")

// Config carries the common construction parameters for a backend.
type Config struct {
	Model   string
	APIKey  string
	BaseURL string
}

// Factory builds a Provider from a Config.
type Factory func(cfg Config) (Provider, error)

// Registry maps provider names to factories. It is an explicit value
// constructed at startup and passed to whoever selects providers; there is
// no process-wide registry.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory under a provider name. Later registrations
// replace earlier ones.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[strings.ToLower(name)] = factory
}

// Create instantiates the named provider.
func (r *Registry) Create(name string, cfg Config) (Provider, error) {
	r.mu.RLock()
	factory, ok := r.factories[strings.ToLower(name)]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("provider.Registry.Create(%q): %w", name, ErrUnknownProvider)
	}

	p, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("provider.Registry.Create(%q): %w", name, err)
	}
	return p, nil
}

// Available returns registered provider names in sorted order.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseModel splits a "provider/model" string on the first slash. A bare
// model name defaults to the anthropic provider.
func ParseModel(model string) (providerName, modelName string) {
	if before, after, found := strings.Cut(model, "/"); found {
		return before, after
	}
	return "anthropic", model
}
