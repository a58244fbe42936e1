// Package metrics collects per-backend routing metrics through a buffered
// event channel, so the request path never blocks on bookkeeping. It tracks
// requests, attempt failures, failover serves, response latencies and
// health flips, and exposes a JSON snapshot endpoint.
package metrics
