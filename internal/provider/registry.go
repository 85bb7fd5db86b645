package provider

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// ErrUnknownProvider is returned when resolving a runtime type that was
// never registered. Callers must treat it as fatal for the current chat
// turn, not for the process.
var ErrUnknownProvider = errors.New("unknown provider type")

// Registry maps runtime type tags to registered providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider under its type tag. Re-registering a tag
// replaces the previous provider.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[p.Type()]; exists {
		slog.Warn("Provider type re-registered", "type", p.Type())
	}
	r.providers[p.Type()] = p
	slog.Info("Provider registered", "type", p.Type(), "display_name", p.DisplayName(), "image", p.Image())
}

// Resolve returns the provider for a runtime type tag.
func (r *Registry) Resolve(typeTag string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[typeTag]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, typeTag)
	}
	return p, nil
}

// Types returns the registered runtime type tags in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.providers))
	for t := range r.providers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
