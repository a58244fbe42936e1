package circuitbreaker

import (
	"sync"
	"time"
)

// Factory builds a Breaker for a backend name. It lets the wiring layer
// choose between in-memory breakers and an external shared store without
// the registry caring which.
type Factory func(name string) Breaker

// NewMemoryFactory returns a Factory producing in-process breakers that all
// share the same threshold and recovery timeout.
func NewMemoryFactory(threshold int, timeout time.Duration) Factory {
	return func(string) Breaker {
		return NewMemoryBreaker(threshold, timeout)
	}
}

// Registry holds one Breaker per backend name.
type Registry struct {
	mutex    sync.RWMutex
	breakers map[string]Breaker
	factory  Factory
}

func NewRegistry(factory Factory) *Registry {
	return &Registry{
		breakers: make(map[string]Breaker),
		factory:  factory,
	}
}

func (r *Registry) GetBreaker(name string) Breaker {
	r.mutex.RLock()
	cb, exists := r.breakers[name]
	r.mutex.RUnlock()

	if exists {
		return cb
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	// Double-check: another goroutine may have created it
	if cb, exists = r.breakers[name]; exists {
		return cb
	}

	cb = r.factory(name)
	r.breakers[name] = cb
	return cb
}

// Prune drops breakers for backends no longer present in the active
// configuration generation. Called on config reload.
func (r *Registry) Prune(active map[string]bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for name := range r.breakers {
		if !active[name] {
			delete(r.breakers, name)
		}
	}
}

func (r *Registry) Reset() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.breakers = make(map[string]Breaker)
}

func (r *Registry) Stats() map[string]State {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	stats := make(map[string]State, len(r.breakers))
	for name, cb := range r.breakers {
		stats[name] = cb.State()
	}
	return stats
}
