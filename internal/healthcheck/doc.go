// Package healthcheck probes backend liveness on a fixed schedule,
// independent of request traffic. It is the proactive health signal; the
// circuit breaker provides the reactive one from real forwarding outcomes.
package healthcheck
