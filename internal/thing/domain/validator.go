package domain

import "sync"

// ValidateFunc inspects a properties map before a create or patch commits.
// Returning an error rejects the mutation with a validation failure.
type ValidateFunc func(properties map[string]any) error

// TypeSpec declares per-type behavior. Types without a registered spec are
// accepted as-is; the namespace is open by design.
type TypeSpec struct {
	Validate ValidateFunc
	// UniqueName enforces one name per (group, type).
	UniqueName bool
}

// Registry maps thing types to their specs. Feature packages register their
// types at startup; the store consults the registry on every create/patch.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]TypeSpec
}

func NewRegistry() *Registry {
	return &Registry{specs: make(map[string]TypeSpec)}
}

func (r *Registry) Register(thingType string, spec TypeSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.specs[thingType] = spec
}

func (r *Registry) Spec(thingType string) (TypeSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.specs[thingType]
	return spec, ok
}
