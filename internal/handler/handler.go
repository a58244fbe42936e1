package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/angeloszaimis/ai-router/internal/forwarder"
	"github.com/angeloszaimis/ai-router/internal/metrics"
)

type RouterHandler struct {
	logger           *slog.Logger
	forwarder        *forwarder.Forwarder
	metricsCollector *metrics.Collector
}

type unavailableResponse struct {
	Error     string   `json:"error"`
	Message   string   `json:"message"`
	Tried     []string `json:"tried,omitempty"`
	Timestamp int64    `json:"timestamp"`
}

func NewRouterHandler(logger *slog.Logger, fwd *forwarder.Forwarder, collector *metrics.Collector) *RouterHandler {
	return &RouterHandler{
		logger:           logger,
		forwarder:        fwd,
		metricsCollector: collector,
	}
}

func (h *RouterHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientIP := extractClientIP(r)

	h.logger.Info("Received request",
		slog.String("from", clientIP),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("proto", r.Proto),
		slog.String("host", r.Host),
		slog.String("user_agent", r.UserAgent()))

	start := time.Now()

	result, err := h.forwarder.Forward(r.Context(), r)
	if err != nil {
		h.handleError(w, r, clientIP, err)
		return
	}
	defer result.Response.Body.Close()

	for _, failed := range result.Failed {
		h.emitEvent(metrics.MetricEvent{
			Type:      metrics.EventAttemptFailed,
			Timestamp: time.Now(),
			Backend:   failed.Backend,
		})
	}

	h.emitEvent(metrics.MetricEvent{
		Type:      metrics.EventRequestReceived,
		Timestamp: time.Now(),
		Backend:   result.Backend,
	})

	if result.Attempts > 1 {
		h.emitEvent(metrics.MetricEvent{
			Type:      metrics.EventFailoverServed,
			Timestamp: time.Now(),
			Backend:   result.Backend,
		})
	}

	h.logger.Info("Forwarded to backend",
		slog.String("client", clientIP),
		slog.String("backend", result.Backend),
		slog.Int("attempts", result.Attempts))

	copyResponseHeaders(w.Header(), result.Response.Header)
	w.Header().Set("X-Backend-Server", result.Backend)
	w.WriteHeader(result.Response.StatusCode)
	io.Copy(w, result.Response.Body)

	h.emitEvent(metrics.MetricEvent{
		Type:       metrics.EventResponseCompleted,
		Timestamp:  time.Now(),
		Backend:    result.Backend,
		Duration:   time.Since(start),
		StatusCode: result.Response.StatusCode,
	})
}

func (h *RouterHandler) handleError(w http.ResponseWriter, r *http.Request, clientIP string, err error) {
	var aggregate *forwarder.AggregateError

	switch {
	case errors.Is(err, forwarder.ErrNoAvailableBackend):
		h.logger.Warn("No available backend", slog.String("client", clientIP))
		h.emitEvent(metrics.MetricEvent{
			Type:      metrics.EventNoBackend,
			Timestamp: time.Now(),
		})
		writeUnavailable(w, unavailableResponse{
			Error:     "Service not reachable at this moment",
			Message:   "All backends are currently unavailable. Please try again later.",
			Timestamp: time.Now().Unix(),
		})

	case errors.As(err, &aggregate):
		for _, failed := range aggregate.Attempts {
			h.emitEvent(metrics.MetricEvent{
				Type:      metrics.EventAttemptFailed,
				Timestamp: time.Now(),
				Backend:   failed.Backend,
			})
		}
		h.logger.Warn("All forward attempts failed",
			slog.String("client", clientIP),
			slog.String("error", aggregate.Error()))
		writeUnavailable(w, unavailableResponse{
			Error:     "Service not reachable at this moment",
			Message:   "All backends failed to process the request. Please try again later.",
			Tried:     aggregate.TriedBackends(),
			Timestamp: time.Now().Unix(),
		})

	default:
		h.logger.Error("Forwarding error",
			slog.String("client", clientIP),
			slog.String("error", err.Error()))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func writeUnavailable(w http.ResponseWriter, body unavailableResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusServiceUnavailable)
	json.NewEncoder(w).Encode(body)
}

func copyResponseHeaders(dst, src http.Header) {
	for key, values := range src {
		for _, v := range values {
			dst.Add(key, v)
		}
	}
}

func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}

	host, _, _ := net.SplitHostPort(r.RemoteAddr)
	return host
}

func (h *RouterHandler) emitEvent(event metrics.MetricEvent) {
	if h.metricsCollector == nil {
		return
	}

	select {
	case h.metricsCollector.EventChannel() <- event:
	default:
	}
}
