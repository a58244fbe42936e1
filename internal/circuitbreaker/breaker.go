package circuitbreaker

import (
	"sync"
	"time"
)

type State int

const (
	StateClosed   State = iota // Normal operation
	StateOpen                  // Blocking requests
	StateHalfOpen              // Testing with one trial request
)

// Breaker is the per-backend failure state machine. Every method must be an
// atomic transition: concurrent reports for the same backend may not lose a
// failure increment or double-clear the half-open trial slot.
type Breaker interface {
	// Eligible reports whether the backend may receive traffic. An Open
	// breaker whose recovery timeout has elapsed is promoted to HalfOpen
	// here; this is the only way out of Open. Eligible never claims the
	// half-open trial slot.
	Eligible() bool

	// Acquire claims the right to send one request. Closed always admits.
	// HalfOpen admits exactly one trial at a time; the slot is released by
	// the following RecordSuccess or RecordFailure.
	Acquire() bool

	// RecordSuccess reports a successful forward. HalfOpen closes the
	// circuit; Closed resets the failure count.
	RecordSuccess()

	// RecordFailure reports a failed forward. Closed opens the circuit at
	// the failure threshold; a failed HalfOpen trial re-opens it and
	// restarts the recovery timer.
	RecordFailure()

	// Release hands back an acquired trial slot without a verdict, for
	// attempts aborted before the backend could answer (the client went
	// away). Without it an aborted half-open trial would leave the slot
	// claimed forever.
	Release()

	State() State
}

// MemoryBreaker is the in-process Breaker used when all router state lives
// in one process. State is guarded by a per-breaker mutex.
type MemoryBreaker struct {
	mutex            sync.Mutex
	state            State
	failures         int
	openedAt         time.Time
	halfOpenInFlight bool
	failureThreshold int
	recoveryTimeout  time.Duration
}

func NewMemoryBreaker(threshold int, timeout time.Duration) *MemoryBreaker {
	return &MemoryBreaker{
		state:            StateClosed,
		failureThreshold: threshold,
		recoveryTimeout:  timeout,
	}
}

func (cb *MemoryBreaker) Eligible() bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(cb.openedAt) >= cb.recoveryTimeout {
			cb.state = StateHalfOpen
			cb.halfOpenInFlight = false
			return true
		}
		return false
	case StateHalfOpen:
		return !cb.halfOpenInFlight
	default:
		return true
	}
}

func (cb *MemoryBreaker) Acquire() bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateHalfOpen:
		if cb.halfOpenInFlight {
			return false
		}
		cb.halfOpenInFlight = true
		return true
	default:
		return false
	}
}

func (cb *MemoryBreaker) RecordSuccess() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.state {
	case StateHalfOpen:
		cb.state = StateClosed
		cb.failures = 0
		cb.halfOpenInFlight = false
	case StateClosed:
		cb.failures = 0
	}
}

func (cb *MemoryBreaker) RecordFailure() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.failures++

	switch cb.state {
	case StateClosed:
		if cb.failures >= cb.failureThreshold {
			cb.state = StateOpen
			cb.openedAt = time.Now()
		}
	case StateHalfOpen:
		// The failed trial consumed its slot.
		cb.state = StateOpen
		cb.openedAt = time.Now()
		cb.halfOpenInFlight = false
	}
}

func (cb *MemoryBreaker) Release() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if cb.state == StateHalfOpen {
		cb.halfOpenInFlight = false
	}
}

func (cb *MemoryBreaker) State() State {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.state
}

// Failures returns the consecutive failure count since the last reset.
func (cb *MemoryBreaker) Failures() int {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.failures
}

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF-OPEN"
	default:
		return "UNKNOWN"
	}
}
