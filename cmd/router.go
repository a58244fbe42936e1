package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/angeloszaimis/ai-router/internal/handler"
	"github.com/angeloszaimis/ai-router/internal/metrics"
	"github.com/angeloszaimis/ai-router/internal/registry"
)

var startTime = time.Now()

// setupRouter mounts the router's own endpoints next to the catch-all
// forwarding handler. The specific paths shadow "/" in the mux, so /healthz
// and /metrics are answered locally and never forwarded.
func setupRouter(routerHandler *handler.RouterHandler, metricsCollector *metrics.Collector, reg *registry.Registry) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/", routerHandler.ServeHTTP)
	mux.HandleFunc("/healthz", healthzHandler(reg))
	mux.HandleFunc("/metrics", metricsCollector.Handler())

	return mux
}

// healthzHandler reports router-level liveness. It answers 200 regardless
// of backend health; backend state is informational.
func healthzHandler(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := struct {
			Status   string                   `json:"status"`
			Uptime   string                   `json:"uptime"`
			Backends []registry.BackendStatus `json:"backends"`
		}{
			Status:   "ok",
			Uptime:   time.Since(startTime).String(),
			Backends: reg.Snapshot(),
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(body)
	}
}
