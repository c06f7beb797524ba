package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"slipcheck/internal/platform/config"
	"slipcheck/internal/platform/health"
	"slipcheck/internal/platform/logger"
	"slipcheck/internal/platform/redis"
	"slipcheck/internal/receipt/cache"
	"slipcheck/internal/receipt/handler"
	"slipcheck/internal/receipt/metrics"
	"slipcheck/internal/receipt/pool"
	"slipcheck/internal/receipt/providers"
	"slipcheck/internal/receipt/providers/abyssinia"
	"slipcheck/internal/receipt/providers/awash"
	"slipcheck/internal/receipt/providers/cbe"
	"slipcheck/internal/receipt/render"
	"slipcheck/internal/receipt/service"
	"slipcheck/internal/receipt/tracer"
	"slipcheck/internal/receipt/workers/cleanup"
	"slipcheck/pkg/platform/circuit"
	request "slipcheck/pkg/platform/middleware/request"
)

// main wires dependencies, serves HTTP and shuts everything down in reverse order.
// Business logic lives in internal/receipt.
func main() {
	if err := run(); err != nil {
		slog.Error("slipcheck exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	log.Info("initializing slipcheck",
		"addr", cfg.Server.Addr,
		"environment", cfg.Server.Environment,
		"render_pool_size", cfg.Render.PoolSize,
		"redis", cfg.Redis.URL != "",
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	healthHandler := health.New(cfg.Server.Environment)

	var t tracer.Tracer = tracer.NewNoop()
	if cfg.OTelEnabled {
		t = tracer.NewOTel()
	}

	// Result cache: Redis when configured so replicas share results, in process otherwise.
	var store cache.Store
	redisClient, err := redis.New(ctx, cfg.Redis, prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck // process is exiting
		store = cache.NewRedisStore(redisClient.Client, cfg.CacheTTL)
		healthHandler.RegisterCheck("redis", redisClient.Health)
		go redisClient.RecordPoolStatsEvery(ctx, 15*time.Second)
	} else {
		store = cache.NewInMemoryStore(cfg.CacheTTL)
	}

	// Browser pool. Browsers are launched lazily on first use.
	var renderers render.Pool
	var browserPool *pool.Pool[render.Renderer]
	if cfg.Render.PoolSize > 0 {
		browserPool = pool.New[render.Renderer](
			render.NewFactory(render.Config{
				ExecPath:  cfg.Render.ExecPath,
				Timeout:   cfg.Render.Timeout,
				UserAgent: cfg.Render.UserAgent,
			}),
			pool.WithMaxSize(cfg.Render.PoolSize),
			pool.WithProbeTimeout(cfg.Render.ProbeTimeout),
			pool.WithLogger(log),
			pool.WithMetrics(m),
		)
		renderers = browserPool
		healthHandler.RegisterCheck("render_pool", func(context.Context) error {
			stats := browserPool.Stats()
			if stats.Waiting > 4*browserPool.MaxSize() {
				return fmt.Errorf("render pool saturated: %d waiting", stats.Waiting)
			}
			return nil
		})
	}

	registry, err := newRegistry(cfg, log, m, renderers,
		providers.WithCache(store, cfg.CacheTTL),
		providers.WithTracer(t),
	)
	if err != nil {
		return err
	}

	svc := service.New(registry,
		service.WithCache(store),
		service.WithLogger(log),
		service.WithMetrics(m),
	)

	cleanupOpts := []cleanup.Option{
		cleanup.WithCache(store),
		cleanup.WithInterval(cfg.CleanupInterval),
		cleanup.WithLogger(log),
		cleanup.WithMetrics(m),
	}
	if browserPool != nil {
		cleanupOpts = append(cleanupOpts, cleanup.WithPool(browserPool))
	}
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		_ = cleanup.New(cleanupOpts...).Start(workerCtx)
	}()

	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recovery(log))
	r.Use(request.Logger(log))
	r.Use(request.Latency(request.NewMetrics(prometheus.DefaultRegisterer)))
	r.Use(request.BodyLimit(cfg.Server.MaxBodyBytes))
	healthHandler.Register(r)
	handler.New(svc, log).Register(r)
	r.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting http server", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		stopWorkers()
		<-workerDone
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down server gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}

	stopWorkers()
	<-workerDone

	if browserPool != nil {
		if err := browserPool.CloseAll(); err != nil {
			log.Error("closing browsers failed", "error", err)
		}
	}

	log.Info("server stopped")
	return nil
}

// newRegistry builds one provider per supported bank. Each bank gets its own breaker so a
// failing endpoint only diverts that bank's traffic to the browser tier.
func newRegistry(cfg config.Config, log *slog.Logger, m *metrics.Metrics, renderers render.Pool, opts ...providers.PipelineOption) (*providers.ProviderRegistry, error) {
	breaker := func(code string) *circuit.Breaker {
		return circuit.New(code+"-direct",
			circuit.WithFailureThreshold(cfg.Breaker.FailureThreshold),
			circuit.WithCooldown(cfg.Breaker.Cooldown),
		)
	}

	registry := providers.NewProviderRegistry()
	all := []providers.Provider{
		cbe.New(cbe.Config{
			BaseURL:      cfg.Banks.CBEBaseURL,
			FetchTimeout: cfg.FetchTimeout,
			Renderers:    renderers,
			Breaker:      breaker(cbe.Code),
			Logger:       log,
			Metrics:      m,
		}, opts...),
		awash.New(awash.Config{
			BaseURL:      cfg.Banks.AwashBaseURL,
			FetchTimeout: cfg.FetchTimeout,
			Logger:       log,
			Metrics:      m,
		}, opts...),
		abyssinia.New(abyssinia.Config{
			BaseURL:      cfg.Banks.AbyssiniaBaseURL,
			FetchTimeout: cfg.FetchTimeout,
			Renderers:    renderers,
			Breaker:      breaker(abyssinia.Code),
			Logger:       log,
			Metrics:      m,
		}, opts...),
	}
	for _, p := range all {
		if err := registry.Register(p); err != nil {
			return nil, fmt.Errorf("register provider: %w", err)
		}
	}
	return registry, nil
}
