package job

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps job type names to factories. Thread-safe for concurrent
// registration and lookup. The set of job types is closed at process start by
// explicit registration; there is no reflective discovery.
type Registry struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory under a job type name.
// Panics if the name is already taken; duplicate registration is a
// programming error, caught at startup.
func (r *Registry) Register(jobType string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[jobType]; exists {
		panic(fmt.Sprintf("factory already registered for job type: %s", jobType))
	}
	r.factories[jobType] = factory
}

// Get retrieves the factory for a job type.
// Returns nil if no factory is registered.
func (r *Registry) Get(jobType string) Factory {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.factories[jobType]
}

// Has checks if a factory is registered for a job type
func (r *Registry) Has(jobType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.factories[jobType]
	return exists
}

// Names returns all registered job type names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
