package adapters

import (
	"sort"
	"sync"

	"github.com/aristath/givevault/internal/domain"
)

// Registry indexes the adapters deployed for a vault by address. Deployment
// is not approval; the allocator decides which of them may be used.
type Registry struct {
	mu       sync.RWMutex
	adapters map[domain.Address]YieldAdapter
}

// NewRegistry creates a registry holding list
func NewRegistry(list ...YieldAdapter) *Registry {
	r := &Registry{adapters: make(map[domain.Address]YieldAdapter, len(list))}
	for _, a := range list {
		r.Add(a)
	}
	return r
}

// Add registers a, replacing any adapter at the same address
func (r *Registry) Add(a YieldAdapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Address()] = a
}

// Get returns the adapter at addr
func (r *Registry) Get(addr domain.Address) (YieldAdapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[addr]
	return a, ok
}

// All returns every registered adapter ordered by address
func (r *Registry) All() []YieldAdapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]YieldAdapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address() < out[j].Address() })
	return out
}
