// Package provider defines the people-directory adapters the resolver
// cascades through, and the registry that orders them.
package provider

import (
	"context"
	"sort"
	"sync"

	"github.com/sells-group/lead-resolver/internal/model"
)

// Provider looks up contact facts for an identity. Lookup never returns an
// error: failures are reported as a ProviderResult with Success false and
// a Reason.
type Provider interface {
	// Name returns the provider identifier used in results and notes.
	Name() string
	// Tier is the cascade position; lower tiers run first.
	Tier() int
	// Lookup queries the provider for id.
	Lookup(ctx context.Context, id model.Identity) model.ProviderResult
}

// Registry holds the configured providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates a registry with the given providers.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider)}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register adds a provider, replacing any with the same name.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get returns a provider by name, or nil if not found.
func (r *Registry) Get(name string) Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.providers[name]
}

// Ordered returns the providers by ascending tier, then name.
func (r *Registry) Ordered() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Tier() != out[j].Tier() {
			return out[i].Tier() < out[j].Tier()
		}
		return out[i].Name() < out[j].Name()
	})
	return out
}

// List returns the provider names in cascade order.
func (r *Registry) List() []string {
	ordered := r.Ordered()
	names := make([]string, len(ordered))
	for i, p := range ordered {
		names[i] = p.Name()
	}
	return names
}
