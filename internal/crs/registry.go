package crs

import (
	"fmt"
	"log/slog"
	"sync"
)

// Describer resolves a normalized identifier to CRS metadata.
type Describer interface {
	Describe(id string) (Reference, error)
}

// Registry caches resolved references for the lifetime of the process.
//
// Thread-safety: Registry is safe for concurrent use. Lookups take a read
// lock; a miss resolves through the describer and stores under the write
// lock.
type Registry struct {
	mu        sync.RWMutex
	describer Describer
	cache     map[string]Reference
}

// NewRegistry creates a registry resolving through d. A nil describer
// falls back to the built-in Catalog.
func NewRegistry(d Describer) *Registry {
	if d == nil {
		d = Catalog{}
	}
	return &Registry{describer: d, cache: make(map[string]Reference)}
}

// Resolve returns the metadata for id, consulting the cache first.
func (r *Registry) Resolve(id string) (Reference, error) {
	norm, err := Normalize(id)
	if err != nil {
		return Reference{}, err
	}

	r.mu.RLock()
	ref, ok := r.cache[norm]
	d := r.describer
	r.mu.RUnlock()
	if ok {
		return ref, nil
	}

	ref, err = d.Describe(norm)
	if err != nil {
		return Reference{}, fmt.Errorf("resolve %s: %w", norm, err)
	}
	if ref.ID == "" {
		ref.ID = norm
	}
	if ref.Unit == "" {
		ref.Unit = UnitUnknown
	}
	if ref.AxisOrder == "" {
		ref.AxisOrder = AxisEastNorth
	}

	r.mu.Lock()
	if cached, ok := r.cache[norm]; ok {
		ref = cached
	} else {
		r.cache[norm] = ref
		slog.Debug("crs resolved", "id", norm, "name", ref.Name, "unit", ref.Unit, "geographic", ref.Geographic)
	}
	r.mu.Unlock()
	return ref, nil
}

// Len returns the number of cached references.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}

// Reset clears the cache. The describer is kept.
func (r *Registry) Reset() {
	r.mu.Lock()
	r.cache = make(map[string]Reference)
	r.mu.Unlock()
}

var (
	defaultMu       sync.RWMutex
	defaultRegistry = NewRegistry(nil)
)

// Init replaces the package-level registry with one resolving through d.
func Init(d Describer) {
	defaultMu.Lock()
	defaultRegistry = NewRegistry(d)
	defaultMu.Unlock()
}

// Reset clears the package-level registry cache.
func Reset() {
	Default().Reset()
}

// Default returns the package-level registry.
func Default() *Registry {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultRegistry
}

// Resolve resolves id through the package-level registry.
func Resolve(id string) (Reference, error) {
	return Default().Resolve(id)
}
