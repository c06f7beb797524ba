// Package service is the entry point callers use to verify receipts. It routes a request
// to the provider registered for the bank, and owns the operations that span providers:
// cache invalidation, health checks and the provider catalogue.
package service

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"slipcheck/internal/receipt/cache"
	"slipcheck/internal/receipt/metrics"
	"slipcheck/internal/receipt/models"
	"slipcheck/internal/receipt/providers"
	dErrors "slipcheck/pkg/domain-errors"
)

// DefaultHealthTimeout bounds each provider health probe.
const DefaultHealthTimeout = 5 * time.Second

// Registry looks up providers by code.
type Registry interface {
	Get(code string) (providers.Provider, bool)
	All() []providers.Provider
}

// CacheInvalidator removes cached results.
type CacheInvalidator interface {
	DeletePattern(ctx context.Context, pattern string) (int, error)
}

// ProviderInfo describes one registered provider.
type ProviderInfo struct {
	Code         string                 `json:"code"`
	Capabilities providers.Capabilities `json:"capabilities"`
}

type Service struct {
	registry      Registry
	cache         CacheInvalidator
	logger        *slog.Logger
	metrics       *metrics.Metrics
	healthTimeout time.Duration
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithCache enables Invalidate. Without it Invalidate removes nothing.
func WithCache(c CacheInvalidator) Option {
	return func(s *Service) {
		s.cache = c
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithHealthTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.healthTimeout = d
		}
	}
}

func New(registry Registry, opts ...Option) *Service {
	s := &Service{
		registry:      registry,
		logger:        slog.Default(),
		healthTimeout: DefaultHealthTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Verify checks one receipt with the named provider. It never returns an error: unknown
// providers and every verification failure come back as an unsuccessful result.
func (s *Service) Verify(ctx context.Context, provider, reference string, args map[string]string) models.VerifyResult {
	code := strings.ToLower(strings.TrimSpace(provider))
	p, ok := s.registry.Get(code)
	if !ok {
		s.logger.WarnContext(ctx, "unsupported receipt provider", "provider", code)
		return models.Failure(code, providers.ErrProviderNotFound.Error())
	}

	start := time.Now()
	result := p.Verify(ctx, providers.Request{Reference: reference, Args: args})
	duration := time.Since(start)

	if result.Success {
		s.logger.InfoContext(ctx, "receipt verified",
			"provider", code,
			"reference", result.Reference,
			"duration_ms", duration.Milliseconds(),
		)
	} else {
		s.logger.InfoContext(ctx, "receipt not verified",
			"provider", code,
			"reference", strings.TrimSpace(reference),
			"reason", result.Error,
			"duration_ms", duration.Milliseconds(),
		)
	}
	return result
}

// Invalidate drops every cached result for a provider/reference pair, whatever account
// suffix it was verified with, and returns how many entries were removed.
func (s *Service) Invalidate(ctx context.Context, provider, reference string) (int, error) {
	code := strings.ToLower(strings.TrimSpace(provider))
	if _, ok := s.registry.Get(code); !ok {
		return 0, dErrors.New(dErrors.CodeNotFound, providers.ErrProviderNotFound.Error())
	}
	if strings.TrimSpace(reference) == "" {
		return 0, dErrors.New(dErrors.CodeBadRequest, providers.ErrReferenceRequired.Error())
	}
	if s.cache == nil {
		return 0, nil
	}

	removed := 0
	for _, pattern := range cache.ReferencePattern(code, reference) {
		n, err := s.cache.DeletePattern(ctx, pattern)
		removed += n
		if err != nil {
			s.metrics.AddCacheEvictions(removed)
			return removed, dErrors.Wrap(err, dErrors.CodeInternal, "failed to invalidate cached receipt")
		}
	}
	s.metrics.AddCacheEvictions(removed)

	s.logger.InfoContext(ctx, "receipt cache invalidated",
		"provider", code,
		"reference", strings.TrimSpace(reference),
		"removed", removed,
	)
	return removed, nil
}

// Health probes every provider concurrently. A nil value means the bank is reachable.
func (s *Service) Health(ctx context.Context) map[string]error {
	all := s.registry.All()
	results := make(map[string]error, len(all))
	var mu sync.Mutex

	var g errgroup.Group
	for _, p := range all {
		g.Go(func() error {
			probeCtx, cancel := context.WithTimeout(ctx, s.healthTimeout)
			defer cancel()
			err := p.Health(probeCtx)

			mu.Lock()
			results[p.Code()] = err
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Providers lists registered providers sorted by code.
func (s *Service) Providers() []ProviderInfo {
	all := s.registry.All()
	infos := make([]ProviderInfo, 0, len(all))
	for _, p := range all {
		infos = append(infos, ProviderInfo{Code: p.Code(), Capabilities: p.Capabilities()})
	}
	return infos
}
