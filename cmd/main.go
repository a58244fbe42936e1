package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angeloszaimis/ai-router/config"
	"github.com/angeloszaimis/ai-router/internal/backend"
	"github.com/angeloszaimis/ai-router/internal/circuitbreaker"
	"github.com/angeloszaimis/ai-router/internal/forwarder"
	"github.com/angeloszaimis/ai-router/internal/handler"
	"github.com/angeloszaimis/ai-router/internal/healthcheck"
	"github.com/angeloszaimis/ai-router/internal/httpserver"
	"github.com/angeloszaimis/ai-router/internal/metrics"
	"github.com/angeloszaimis/ai-router/internal/registry"
	"github.com/angeloszaimis/ai-router/internal/state"
	"github.com/angeloszaimis/ai-router/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, true, cfg.Server.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	descriptors, err := backend.DescriptorsFromConfig(cfg.Backends)
	if err != nil {
		log.Error("Failed to build backend descriptors", slog.Any("err", err))
		os.Exit(1)
	}

	factory, err := breakerFactory(cfg, log)
	if err != nil {
		log.Error("Failed to create breaker factory", slog.Any("err", err))
		os.Exit(1)
	}

	reg := registry.New(descriptors, circuitbreaker.NewRegistry(factory))

	collector := metrics.NewCollector(1024, log)
	collector.Start(ctx)

	probeOpts, err := probeOptions(cfg)
	if err != nil {
		log.Error("Failed to parse health check settings", slog.Any("err", err))
		os.Exit(1)
	}
	probeOpts.Events = collector.EventChannel()

	stopProbes := startProbes(ctx, reg.Backends(), probeOpts, log)

	fwd := forwarder.New(reg, cfg.Router.MaxForwardAttempts, log)
	routerHandler := handler.NewRouterHandler(log, fwd, collector)

	mux := setupRouter(routerHandler, collector, reg)

	srv, err := httpserver.New(cfg.Server.Address, mux)
	if err != nil {
		log.Error("Failed to create server", slog.Any("err", err))
		os.Exit(1)
	}

	go watchReload(ctx, reg, &stopProbes, probeOpts, log)

	srvErrCh := make(chan error, 1)

	go func() {
		srvErrCh <- srv.Start()
	}()

	log.Info("Router started", slog.String("address", cfg.Server.Address))

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Error("Error during shutdown", slog.Any("err", err))
		}
	case err := <-srvErrCh:
		if err != nil {
			log.Error("Error starting router", slog.Any("err", err))
			os.Exit(1)
		}
	}
}

func breakerFactory(cfg *config.Config, log *slog.Logger) (circuitbreaker.Factory, error) {
	recovery, err := time.ParseDuration(cfg.CircuitBreaker.RecoveryTimeout)
	if err != nil {
		return nil, err
	}

	if cfg.State.Store == config.StoreRedis {
		log.Info("Using Redis-backed circuit breaker state",
			slog.String("address", cfg.State.Redis.Address))
		client := redis.NewClient(&redis.Options{
			Addr: cfg.State.Redis.Address,
			DB:   cfg.State.Redis.DB,
		})
		return state.NewFactory(client, cfg.CircuitBreaker.FailureThreshold, recovery), nil
	}

	return circuitbreaker.NewMemoryFactory(cfg.CircuitBreaker.FailureThreshold, recovery), nil
}

func probeOptions(cfg *config.Config) (healthcheck.Options, error) {
	interval, err := time.ParseDuration(cfg.HealthCheck.Interval)
	if err != nil {
		return healthcheck.Options{}, err
	}

	timeout, err := time.ParseDuration(cfg.HealthCheck.Timeout)
	if err != nil {
		return healthcheck.Options{}, err
	}

	return healthcheck.Options{
		Interval:         interval,
		Timeout:          timeout,
		FailureThreshold: cfg.HealthCheck.FailureThreshold,
	}, nil
}

func startProbes(
	parent context.Context,
	backends []*backend.Backend,
	opts healthcheck.Options,
	log *slog.Logger,
) context.CancelFunc {
	ctx, cancel := context.WithCancel(parent)

	for _, b := range backends {
		go healthcheck.Probe(ctx, b, opts, log)
	}

	return cancel
}

// watchReload rebuilds the backend generation on SIGHUP. An invalid config
// file is logged and ignored; the active generation stays in place.
// Breaker thresholds are fixed for the process lifetime; changing them
// requires a restart.
func watchReload(
	ctx context.Context,
	reg *registry.Registry,
	stopProbes *context.CancelFunc,
	probeOpts healthcheck.Options,
	log *slog.Logger,
) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			newCfg, err := config.Reload()
			if err != nil {
				log.Error("Config reload failed, keeping active configuration",
					slog.Any("err", err))
				continue
			}

			descriptors, err := backend.DescriptorsFromConfig(newCfg.Backends)
			if err != nil {
				log.Error("Config reload failed, keeping active configuration",
					slog.Any("err", err))
				continue
			}

			reg.Reload(descriptors)

			(*stopProbes)()
			*stopProbes = startProbes(ctx, reg.Backends(), probeOpts, log)

			log.Info("Configuration reloaded",
				slog.Int("backends", len(descriptors)))
		}
	}
}
