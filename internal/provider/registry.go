package provider

import (
	"fmt"
	"sort"
	"sync"

	"github.com/clawgate/clawgate/internal/routing"
)

// Registry is a thread-safe map of configured provider name to Provider
// Backend, constructed once at startup (one Backend per configured
// provider whose API key resolves to non-empty) and never mutated after
// wiring completes, except that entries are closed (never removed) on
// shutdown.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

func (r *Registry) Register(name string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// Has reports whether name is a configured provider, used by the HTTP
// surface to decide the direct-routing bypass (model_requested exactly
// matching a configured provider name).
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}

// HealthSnapshot builds the routing.HealthSnapshot the engine needs from
// the registry's current provider set, satisfying the concurrency
// model's "readers see a snapshot" requirement.
func (r *Registry) HealthSnapshot() routing.HealthSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap := make(routing.HealthSnapshot, len(r.providers))
	for name, p := range r.providers {
		snap[name] = routing.HealthView{Healthy: p.Health().Healthy}
	}
	return snap
}

// CloseAll releases every registered provider's underlying HTTP client,
// used during gateway shutdown. Errors are collected, not short-circuited,
// so one provider failing to close does not leave the rest open.
func (r *Registry) CloseAll() error {
	r.mu.RLock()
	providers := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		providers = append(providers, p)
	}
	r.mu.RUnlock()

	var firstErr error
	for _, p := range providers {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing provider %q: %w", p.Name(), err)
		}
	}
	return firstErr
}
