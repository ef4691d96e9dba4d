package accessory

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the configured accessories by id.
type Registry struct {
	mu    sync.RWMutex
	items map[string]*Accessory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{items: make(map[string]*Accessory)}
}

// Add registers a. Ids must be unique.
func (r *Registry) Add(a *Accessory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[a.ID()]; exists {
		return fmt.Errorf("%w %s: id already registered", ErrInvalidDefinition, a.ID())
	}
	r.items[a.ID()] = a
	return nil
}

// Get returns the accessory with id.
func (r *Registry) Get(id string) (*Accessory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return a, nil
}

// List returns every accessory sorted by id.
func (r *Registry) List() []*Accessory {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Accessory, 0, len(r.items))
	for _, a := range r.items {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Len returns the number of registered accessories.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}
