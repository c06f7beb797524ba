// Package cleanup runs the periodic maintenance the engine needs between requests:
// expired cache entries are swept and idle renderers that stopped answering are evicted.
package cleanup

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"slipcheck/internal/receipt/metrics"
)

const (
	DefaultInterval = 60 * time.Second

	workerName = "receipt_cleanup"
)

// Result contains the results of a cleanup run.
type Result struct {
	CacheEntriesSwept int           // Expired cache entries removed
	RenderersEvicted  int           // Idle renderers that failed their liveness probe
	Duration          time.Duration // Time taken for the run
}

// CacheSweeper removes expired cache entries.
type CacheSweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// PoolCleaner evicts dead idle resources.
type PoolCleaner interface {
	Cleanup(ctx context.Context) int
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithInterval(interval time.Duration) Option {
	return func(s *Service) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithCache adds a cache sweep to every run.
func WithCache(c CacheSweeper) Option {
	return func(s *Service) {
		s.cache = c
	}
}

// WithPool adds a renderer liveness sweep to every run.
func WithPool(p PoolCleaner) Option {
	return func(s *Service) {
		s.pool = p
	}
}

// Service runs cleanup on a ticker.
type Service struct {
	cache    CacheSweeper
	pool     PoolCleaner
	logger   *slog.Logger
	interval time.Duration
	metrics  *metrics.Metrics
}

func New(opts ...Option) *Service {
	s := &Service{
		logger:   slog.Default(),
		interval: DefaultInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs until ctx is done and returns ctx.Err().
func (s *Service) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			res, err := s.RunOnce(ctx)
			s.metrics.RecordCleanupRun(workerName, err)
			if err != nil {
				s.logger.Error("receipt_cleanup_failed",
					"error", err,
					"cache_entries_swept", res.CacheEntriesSwept,
					"renderers_evicted", res.RenderersEvicted,
					"duration_ms", res.Duration.Milliseconds(),
				)
				continue
			}
			if res.CacheEntriesSwept > 0 || res.RenderersEvicted > 0 {
				s.logger.Info("receipt_cleanup_completed",
					"cache_entries_swept", res.CacheEntriesSwept,
					"renderers_evicted", res.RenderersEvicted,
					"duration_ms", res.Duration.Milliseconds(),
				)
			}

		case <-ctx.Done():
			s.logger.Info("receipt cleanup worker stopping", "reason", ctx.Err())
			return ctx.Err()
		}
	}
}

// RunOnce executes a single cleanup run. A failed cache sweep does not skip the pool
// sweep. Logging is handled by the caller (Start).
func (s *Service) RunOnce(ctx context.Context) (Result, error) {
	start := time.Now()
	var res Result
	var errs []error

	if s.cache != nil {
		swept, err := s.cache.Sweep(ctx)
		if err != nil {
			errs = append(errs, err)
		}
		res.CacheEntriesSwept = swept
		s.metrics.AddCacheEvictions(swept)
	}
	if s.pool != nil {
		res.RenderersEvicted = s.pool.Cleanup(ctx)
	}

	res.Duration = time.Since(start)
	return res, errors.Join(errs...)
}
