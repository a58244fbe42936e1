// Package forwarder relays inbound requests to the highest-priority
// eligible backend, failing over down the candidate list on timeouts,
// connection errors and 5xx responses. Outcomes feed each backend's
// circuit breaker.
package forwarder
