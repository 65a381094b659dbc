package providers

import (
	"fmt"
	"sort"
	"sync"
)

// Provider names understood by the default registry.
const (
	NameAnthropic = "anthropic"
	NameOpenAI    = "openai"
	NameBedrock   = "bedrock"
)

// Factory builds a provider from options.
type Factory func(opts Options) (Provider, error)

// Registry maps provider names to their constructors.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates a new empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// DefaultRegistry returns a registry with every built-in provider.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NameAnthropic, func(o Options) (Provider, error) { return NewAnthropic(o) })
	r.Register(NameOpenAI, func(o Options) (Provider, error) { return NewOpenAI(o) })
	r.Register(NameBedrock, func(o Options) (Provider, error) { return NewBedrock(o) })
	return r
}

// Register adds a factory under name, replacing any previous one.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Has reports whether a factory is registered under name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// Build constructs the provider registered under name.
func (r *Registry) Build(name string, opts Options) (Provider, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("provider not found: %s", name)
	}
	return f(opts)
}

// List returns the names of all registered providers, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
