package backend

import (
	"sync"
	"time"
)

// Backend pairs an immutable Descriptor with the mutable health status fed
// by the health monitor. Health state is guarded by a per-backend mutex so
// probes for one backend never contend with another.
type Backend struct {
	descriptor Descriptor

	mutex            sync.Mutex
	healthy          bool
	consecutiveFails int
	lastProbe        time.Time
}

// HealthStatus is a point-in-time snapshot of a backend's probe state.
type HealthStatus struct {
	Healthy          bool
	ConsecutiveFails int
	LastProbe        time.Time
}

// New creates a Backend for the given descriptor.
// Backends start healthy; the first failed probes demote them.
func New(descriptor Descriptor) *Backend {
	return &Backend{
		descriptor: descriptor,
		healthy:    true,
	}
}

// Descriptor returns the backend's immutable configuration.
func (b *Backend) Descriptor() Descriptor {
	return b.descriptor
}

// Name returns the backend's unique configured name.
func (b *Backend) Name() string {
	return b.descriptor.Name
}

// IsHealthy returns true if the backend is currently considered healthy.
func (b *Backend) IsHealthy() bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.healthy
}

// SetHealthy overrides the backend's health status.
// Returns true if the status changed, false if it was already in that state.
func (b *Backend) SetHealthy(healthy bool) (changed bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.healthy == healthy {
		return false
	}

	b.healthy = healthy
	return true
}

// ProbeSucceeded records a successful health probe. A single success
// restores the backend to healthy immediately.
// Returns true if the health status changed.
func (b *Backend) ProbeSucceeded() (changed bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.consecutiveFails = 0
	b.lastProbe = time.Now()

	if b.healthy {
		return false
	}

	b.healthy = true
	return true
}

// ProbeFailed records a failed health probe. The backend flips to unhealthy
// once threshold consecutive probes have failed.
// Returns true if the health status changed.
func (b *Backend) ProbeFailed(threshold int) (changed bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.consecutiveFails++
	b.lastProbe = time.Now()

	if b.healthy && b.consecutiveFails >= threshold {
		b.healthy = false
		return true
	}

	return false
}

// HealthStatus returns a snapshot of the backend's probe state.
func (b *Backend) HealthStatus() HealthStatus {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	return HealthStatus{
		Healthy:          b.healthy,
		ConsecutiveFails: b.consecutiveFails,
		LastProbe:        b.lastProbe,
	}
}
