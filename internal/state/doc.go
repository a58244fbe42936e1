// Package state backs the circuit breaker with a shared Redis store for
// deployments where router instances do not share memory. The state machine
// is identical to the in-memory breaker; only its backing differs. Every
// transition runs as one Lua script, giving compare-and-set semantics
// across instances.
package state
