// Package circuitbreaker implements the circuit breaker pattern for backend failover.
//
// A circuit breaker prevents cascading failures by temporarily blocking requests
// to failing backends. It has three states:
//
//   - CLOSED: Normal operation, requests pass through
//   - OPEN: Backend failing, requests blocked
//   - HALF-OPEN: Testing if backend recovered with a single trial request
//
// Eligibility checks and trial admission are split: Eligible answers whether
// the backend may appear in a candidate list (promoting Open breakers whose
// recovery timeout elapsed), while Acquire claims the single HalfOpen trial
// slot right before a request is actually sent.
//
// Usage:
//
//	registry := circuitbreaker.NewRegistry(circuitbreaker.NewMemoryFactory(5, 30*time.Second))
//	cb := registry.GetBreaker("primary")
//	if cb.Eligible() && cb.Acquire() {
//	    // Make request...
//	    if err != nil {
//	        cb.RecordFailure()
//	    } else {
//	        cb.RecordSuccess()
//	    }
//	}
package circuitbreaker
