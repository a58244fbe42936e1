package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/angeloszaimis/ai-router/internal/backend"
	"github.com/angeloszaimis/ai-router/internal/circuitbreaker"
)

// Registry holds the active backend generation and answers candidate
// queries. A generation is an immutable, priority-ordered slice built once
// per config load; Reload swaps the whole generation atomically so in-flight
// requests never observe a half-updated list.
type Registry struct {
	mutex    sync.RWMutex
	backends []*backend.Backend
	breakers *circuitbreaker.Registry
}

// BackendStatus is a point-in-time view of one backend, for the metrics and
// status endpoints.
type BackendStatus struct {
	Name         string    `json:"name"`
	URL          string    `json:"url"`
	Priority     int       `json:"priority"`
	Enabled      bool      `json:"enabled"`
	Healthy      bool      `json:"healthy"`
	CircuitState string    `json:"circuit_state"`
	LastProbe    time.Time `json:"last_probe"`
}

// New builds a registry from an ordered descriptor list. Backends are
// sorted ascending by priority; the stable sort keeps configuration order
// as the tie breaker.
func New(descriptors []backend.Descriptor, breakers *circuitbreaker.Registry) *Registry {
	r := &Registry{
		breakers: breakers,
	}
	r.backends = buildGeneration(descriptors, nil)
	return r
}

func buildGeneration(descriptors []backend.Descriptor, previous []*backend.Backend) []*backend.Backend {
	surviving := make(map[string]*backend.Backend, len(previous))
	for _, b := range previous {
		surviving[b.Name()] = b
	}

	backends := make([]*backend.Backend, 0, len(descriptors))
	for _, d := range descriptors {
		// Carry over the live backend for surviving names so probe
		// history is not lost across reloads.
		if prev, ok := surviving[d.Name]; ok && sameDescriptor(prev.Descriptor(), d) {
			backends = append(backends, prev)
			continue
		}
		backends = append(backends, backend.New(d))
	}

	sort.SliceStable(backends, func(i, j int) bool {
		return backends[i].Descriptor().Priority < backends[j].Descriptor().Priority
	})

	return backends
}

func sameDescriptor(a, b backend.Descriptor) bool {
	return a.Name == b.Name &&
		a.URL.String() == b.URL.String() &&
		a.Priority == b.Priority &&
		a.Timeout == b.Timeout &&
		a.Enabled == b.Enabled
}

// Candidates returns the ordered list of backends eligible for a request:
// enabled, healthy, and not blocked by their circuit breaker. The returned
// slice is a per-request snapshot; an empty list is a normal outcome, not
// an error.
func (r *Registry) Candidates() []*backend.Backend {
	r.mutex.RLock()
	active := r.backends
	r.mutex.RUnlock()

	candidates := make([]*backend.Backend, 0, len(active))
	for _, b := range active {
		if !b.Descriptor().Enabled {
			continue
		}
		if !b.IsHealthy() {
			continue
		}
		if !r.breakers.GetBreaker(b.Name()).Eligible() {
			continue
		}
		candidates = append(candidates, b)
	}

	return candidates
}

// Backends returns the active generation in priority order.
func (r *Registry) Backends() []*backend.Backend {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.backends
}

// Breaker returns the circuit breaker for a backend name.
func (r *Registry) Breaker(name string) circuitbreaker.Breaker {
	return r.breakers.GetBreaker(name)
}

// Reload replaces the active generation with one built from the given
// descriptors. Backends that survive the reload keep their health state;
// breaker state for removed backends is dropped.
func (r *Registry) Reload(descriptors []backend.Descriptor) {
	active := make(map[string]bool, len(descriptors))
	for _, d := range descriptors {
		active[d.Name] = true
	}

	r.mutex.Lock()
	r.backends = buildGeneration(descriptors, r.backends)
	r.mutex.Unlock()

	r.breakers.Prune(active)
}

// Snapshot reports the current status of every backend in the active
// generation.
func (r *Registry) Snapshot() []BackendStatus {
	r.mutex.RLock()
	active := r.backends
	r.mutex.RUnlock()

	statuses := make([]BackendStatus, 0, len(active))
	for _, b := range active {
		d := b.Descriptor()
		health := b.HealthStatus()
		statuses = append(statuses, BackendStatus{
			Name:         d.Name,
			URL:          d.URL.String(),
			Priority:     d.Priority,
			Enabled:      d.Enabled,
			Healthy:      health.Healthy,
			CircuitState: r.breakers.GetBreaker(d.Name).State().String(),
			LastProbe:    health.LastProbe,
		})
	}

	return statuses
}
