package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"slipcheck/internal/receipt/cache"
	"slipcheck/internal/receipt/metrics"
	"slipcheck/internal/receipt/models"
	"slipcheck/internal/receipt/retry"
	"slipcheck/internal/receipt/tracer"
)

// DefaultRetry is the per-verification retry policy: two retries, one second apart
// at first, on network, timeout and render failures.
var DefaultRetry = retry.Config{
	MaxRetries:   2,
	InitialDelay: time.Second,
	MaxDelay:     10 * time.Second,
	Multiplier:   2,
}

// Operation fetches and extracts one receipt. It may return any error; the pipeline
// classifies it for retry and converts it into a failed result.
type Operation func(ctx context.Context, req Request) (*models.VerifyResult, error)

// Pipeline is the shape every provider shares: validate, consult the cache, coalesce
// identical in-flight requests, run the operation under retry, cache successes.
type Pipeline struct {
	code     string
	keyArgs  []string
	required []string
	store    cache.Store
	cacheTTL time.Duration
	retry    retry.Config
	group    singleflight.Group
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   tracer.Tracer
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithCache enables result caching. ttl <= 0 uses the store's default.
func WithCache(store cache.Store, ttl time.Duration) PipelineOption {
	return func(p *Pipeline) {
		p.store = store
		p.cacheTTL = ttl
	}
}

// WithRetry overrides DefaultRetry.
func WithRetry(cfg retry.Config) PipelineOption {
	return func(p *Pipeline) {
		p.retry = cfg
	}
}

// WithKeyArgs names request arguments that distinguish otherwise identical references
// in the cache key (e.g. the account suffix).
func WithKeyArgs(names ...string) PipelineOption {
	return func(p *Pipeline) {
		p.keyArgs = names
	}
}

// WithRequiredArgs names request arguments that must be present. A missing one fails
// the verification before the cache or the bank is consulted.
func WithRequiredArgs(names ...string) PipelineOption {
	return func(p *Pipeline) {
		p.required = names
	}
}

func WithLogger(logger *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) PipelineOption {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

func WithTracer(t tracer.Tracer) PipelineOption {
	return func(p *Pipeline) {
		if t != nil {
			p.tracer = t
		}
	}
}

// NewPipeline creates the shared verification pipeline for provider code.
func NewPipeline(code string, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		code:   code,
		retry:  DefaultRetry,
		logger: slog.Default(),
		tracer: tracer.NewNoop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CacheKey returns the key a request is cached under.
func (p *Pipeline) CacheKey(req Request) string {
	discriminators := make([]string, 0, len(p.keyArgs))
	for _, name := range p.keyArgs {
		discriminators = append(discriminators, req.Arg(name))
	}
	return cache.Key(p.code, req.Reference, discriminators...)
}

// Run verifies req with op. It always returns a result and never panics.
func (p *Pipeline) Run(ctx context.Context, req Request, op Operation) models.VerifyResult {
	start := time.Now()
	req.Reference = strings.TrimSpace(req.Reference)

	ctx, span := p.tracer.Start(ctx, tracer.SpanVerify,
		tracer.String(tracer.AttrProvider, p.code),
		tracer.String(tracer.AttrReference, req.Reference),
		tracer.String(tracer.AttrAccount, tracer.HashAccount(req.Arg(ArgAccountSuffix))),
	)

	result := p.run(ctx, span, req, op)

	span.SetAttributes(tracer.Bool(tracer.AttrSuccess, result.Success))
	if result.Success {
		span.End(nil)
	} else {
		span.End(errors.New(result.Error))
	}
	p.metrics.ObserveVerification(p.code, result.Success, time.Since(start).Seconds())
	return result
}

func (p *Pipeline) run(ctx context.Context, span tracer.Span, req Request, op Operation) models.VerifyResult {
	if req.Reference == "" {
		return models.Failure(p.code, ErrReferenceRequired.Error())
	}
	for _, name := range p.required {
		if req.Arg(name) == "" {
			return models.Failure(p.code, strings.ReplaceAll(name, "_", " ")+" required")
		}
	}

	key := p.CacheKey(req)
	if cached, ok := p.lookup(ctx, key); ok {
		span.SetAttributes(tracer.Bool(tracer.AttrCacheHit, true))
		return cached
	}
	span.SetAttributes(tracer.Bool(tracer.AttrCacheHit, false))

	// The shared execution must outlive any single caller; each caller still stops
	// waiting when its own context ends.
	ch := p.group.DoChan(key, func() (any, error) {
		return p.execute(context.WithoutCancel(ctx), key, req, op), nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			span.SetAttributes(tracer.Bool(tracer.AttrCoalesced, true))
			p.metrics.IncrementCoalesced(p.code)
		}
		result, _ := res.Val.(models.VerifyResult)
		return result.Clone()
	case <-ctx.Done():
		return models.Failure(p.code, fmt.Sprintf("verification cancelled: %v", ctx.Err()))
	}
}

func (p *Pipeline) lookup(ctx context.Context, key string) (models.VerifyResult, bool) {
	if p.store == nil {
		return models.VerifyResult{}, false
	}
	start := time.Now()
	cached, err := p.store.Get(ctx, key)
	elapsed := time.Since(start).Seconds()

	switch {
	case err == nil:
		p.metrics.RecordCacheHit(p.code, elapsed)
		return *cached, true
	case errors.Is(err, cache.ErrNotFound):
		p.metrics.RecordCacheMiss(p.code, elapsed)
	default:
		p.metrics.RecordCacheMiss(p.code, elapsed)
		p.logger.WarnContext(ctx, "receipt cache lookup failed",
			"provider", p.code,
			"key", key,
			"error", err,
		)
	}
	return models.VerifyResult{}, false
}

func (p *Pipeline) execute(ctx context.Context, key string, req Request, op Operation) models.VerifyResult {
	ctx, span := p.tracer.Start(ctx, tracer.SpanFetch, tracer.String(tracer.AttrProvider, p.code))

	cfg := p.retry
	cfg.OnRetry = func(a retry.Attempt) {
		p.metrics.IncrementRetries(p.code)
		span.AddEvent(tracer.EventRetry, tracer.Int(tracer.AttrAttempt, a.Number))
		p.logger.InfoContext(ctx, "retrying receipt verification",
			"provider", p.code,
			"reference", req.Reference,
			"attempt", a.Number,
			"delay", a.Delay,
			"error", a.Err,
		)
	}

	result, err := retry.DoValue(ctx, cfg, func(ctx context.Context) (*models.VerifyResult, error) {
		return p.attempt(ctx, req, op)
	})
	span.End(err)

	if err != nil {
		p.logger.WarnContext(ctx, "receipt verification failed",
			"provider", p.code,
			"reference", req.Reference,
			"category", GetCategory(err),
			"error", err,
		)
		return models.Failure(p.code, UserMessage(err))
	}

	if p.store != nil {
		if err := p.store.Set(ctx, key, *result, p.cacheTTL); err != nil {
			p.logger.WarnContext(ctx, "receipt cache write failed",
				"provider", p.code,
				"key", key,
				"error", err,
			)
		}
	}
	return *result
}

// attempt runs op once and turns panics and incomplete results into provider errors.
func (p *Pipeline) attempt(ctx context.Context, req Request, op Operation) (result *models.VerifyResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.ErrorContext(ctx, "receipt provider panicked",
				"provider", p.code,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			result = nil
			err = NewProviderError(ErrorInternal, p.code, "internal error", fmt.Errorf("panic: %v", r))
		}
	}()

	result, err = op(ctx, req)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, NewProviderError(ErrorInternal, p.code, "provider returned no result", nil)
	}

	result.Success = true
	result.Provider = p.code
	result.Error = ""
	if result.Reference == "" {
		result.Reference = req.Reference
	}
	if err := result.Validate(); err != nil {
		return nil, NewProviderError(ErrorParse, p.code, "receipt is missing required fields", err)
	}
	return result, nil
}
