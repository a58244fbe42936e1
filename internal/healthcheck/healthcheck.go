package healthcheck

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/angeloszaimis/ai-router/internal/backend"
	"github.com/angeloszaimis/ai-router/internal/metrics"
)

// Options controls probe scheduling and the demotion threshold. Events, when
// set, receives a health-changed event on every flip.
type Options struct {
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold int
	Events           chan<- metrics.MetricEvent
}

// Probe periodically checks if a backend is alive by sending HTTP GET
// requests to its /health endpoint. FailureThreshold consecutive failed
// probes mark the backend unhealthy; a single successful probe restores it
// immediately. Probes never carry user traffic.
func Probe(
	ctx context.Context,
	b *backend.Backend,
	opts Options,
	logger *slog.Logger,
) {
	client := &http.Client{
		Timeout: opts.Timeout,
	}

	// The probe path sits under the backend's base path, so a backend
	// mounted at /api is probed at /api/health.
	target := *b.Descriptor().URL
	target.Path = strings.TrimSuffix(target.Path, "/") + "/health"
	target.RawQuery = ""
	healthURL := target.String()

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Health probe stopped",
				slog.String("backend", b.Name()))
			return

		case <-ticker.C:
			req, err := http.NewRequestWithContext(
				ctx, http.MethodGet, healthURL, nil)
			if err != nil {
				continue
			}

			res, err := client.Do(req)
			if err != nil {
				if b.ProbeFailed(opts.FailureThreshold) {
					logger.Warn("Backend is down",
						slog.String("backend", b.Name()),
						slog.String("error", err.Error()))
					notifyHealthChanged(opts.Events, b.Name(), false)
				}
				continue
			}
			res.Body.Close()

			if res.StatusCode == http.StatusOK {
				if b.ProbeSucceeded() {
					logger.Info("Backend is back up",
						slog.String("backend", b.Name()))
					notifyHealthChanged(opts.Events, b.Name(), true)
				}
			} else {
				if b.ProbeFailed(opts.FailureThreshold) {
					logger.Warn("Backend is down",
						slog.String("backend", b.Name()),
						slog.Int("status", res.StatusCode))
					notifyHealthChanged(opts.Events, b.Name(), false)
				}
			}
		}
	}
}

func notifyHealthChanged(events chan<- metrics.MetricEvent, name string, healthy bool) {
	if events == nil {
		return
	}

	select {
	case events <- metrics.MetricEvent{
		Type:      metrics.EventHealthChanged,
		Timestamp: time.Now(),
		Backend:   name,
		Healthy:   healthy,
	}:
	default:
	}
}
