// Package metrics provides Prometheus metrics for the receipt verification engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the engine's cache, pool, retry and verification metrics.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Cache operation metrics
	CacheHitsTotal             *prometheus.CounterVec   // Cache hits by provider
	CacheMissesTotal           *prometheus.CounterVec   // Cache misses by provider
	CacheLookupDurationSeconds *prometheus.HistogramVec // Cache lookup latency by provider
	CacheEvictionsTotal        prometheus.Counter       // Entries removed by sweeps and invalidation

	// Render pool metrics
	PoolSize               prometheus.Gauge
	PoolInUse              prometheus.Gauge
	PoolWaiting            prometheus.Gauge
	PoolCreatedTotal       prometheus.Counter
	PoolEvictedTotal       prometheus.Counter
	PoolAcquireWaitSeconds prometheus.Histogram

	// Verification metrics
	RetriesTotal                *prometheus.CounterVec   // Retries by provider
	FetchTierTotal              *prometheus.CounterVec   // Documents obtained by provider and tier
	VerificationsTotal          *prometheus.CounterVec   // Outcomes by provider and result
	VerificationDurationSeconds *prometheus.HistogramVec // End-to-end latency by provider
	CoalescedTotal              *prometheus.CounterVec   // Calls that joined an in-flight verification

	// Worker metrics
	CleanupRunsTotal *prometheus.CounterVec // Background cleanup runs by worker and status
}

// New creates a Metrics instance registered with the default registerer.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates a Metrics instance registered with reg.
// Tests pass prometheus.NewRegistry() to avoid duplicate registration panics.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CacheHitsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "slipcheck_cache_hits_total",
			Help: "Total number of receipt cache hits by provider",
		}, []string{"provider"}),

		CacheMissesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "slipcheck_cache_misses_total",
			Help: "Total number of receipt cache misses by provider",
		}, []string{"provider"}),

		CacheLookupDurationSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "slipcheck_cache_lookup_duration_seconds",
			Help:    "Duration of cache lookup operations by provider",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05},
		}, []string{"provider"}),

		CacheEvictionsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "slipcheck_cache_evictions_total",
			Help: "Total number of cache entries removed by sweeps or invalidation",
		}),

		PoolSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "slipcheck_render_pool_size",
			Help: "Current number of renderer instances in the pool",
		}),

		PoolInUse: f.NewGauge(prometheus.GaugeOpts{
			Name: "slipcheck_render_pool_in_use",
			Help: "Current number of renderer instances borrowed from the pool",
		}),

		PoolWaiting: f.NewGauge(prometheus.GaugeOpts{
			Name: "slipcheck_render_pool_waiting",
			Help: "Current number of callers waiting for a renderer",
		}),

		PoolCreatedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "slipcheck_render_pool_created_total",
			Help: "Total number of renderer instances created",
		}),

		PoolEvictedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "slipcheck_render_pool_evicted_total",
			Help: "Total number of renderer instances evicted after a failed liveness probe",
		}),

		PoolAcquireWaitSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "slipcheck_render_pool_acquire_wait_seconds",
			Help:    "Time spent waiting to acquire a renderer",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15, 30},
		}),

		RetriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "slipcheck_retries_total",
			Help: "Total number of verification retries by provider",
		}, []string{"provider"}),

		FetchTierTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "slipcheck_fetch_tier_total",
			Help: "Documents obtained by provider and fetch tier",
		}, []string{"provider", "tier"}),

		VerificationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "slipcheck_verifications_total",
			Help: "Verification outcomes by provider and result",
		}, []string{"provider", "result"}),

		VerificationDurationSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "slipcheck_verification_duration_seconds",
			Help:    "End-to-end verification latency by provider",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"provider"}),

		CoalescedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "slipcheck_verifications_coalesced_total",
			Help: "Calls that joined an identical in-flight verification",
		}, []string{"provider"}),

		CleanupRunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "slipcheck_cleanup_runs_total",
			Help: "Background cleanup runs by worker and status",
		}, []string{"worker", "status"}),
	}
}

// RecordCacheHit records a cache hit and its lookup latency.
func (m *Metrics) RecordCacheHit(provider string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.CacheHitsTotal.WithLabelValues(provider).Inc()
	m.CacheLookupDurationSeconds.WithLabelValues(provider).Observe(durationSeconds)
}

// RecordCacheMiss records a cache miss and its lookup latency.
func (m *Metrics) RecordCacheMiss(provider string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.CacheMissesTotal.WithLabelValues(provider).Inc()
	m.CacheLookupDurationSeconds.WithLabelValues(provider).Observe(durationSeconds)
}

// AddCacheEvictions records entries removed outside of normal expiry-on-read.
func (m *Metrics) AddCacheEvictions(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.CacheEvictionsTotal.Add(float64(n))
}

// SetPoolState updates the pool gauges.
func (m *Metrics) SetPoolState(size, inUse, waiting int) {
	if m == nil {
		return
	}
	m.PoolSize.Set(float64(size))
	m.PoolInUse.Set(float64(inUse))
	m.PoolWaiting.Set(float64(waiting))
}

// IncrementPoolCreated records a renderer creation.
func (m *Metrics) IncrementPoolCreated() {
	if m == nil {
		return
	}
	m.PoolCreatedTotal.Inc()
}

// AddPoolEvicted records renderers evicted after failed probes.
func (m *Metrics) AddPoolEvicted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.PoolEvictedTotal.Add(float64(n))
}

// ObservePoolWait records how long Acquire blocked.
func (m *Metrics) ObservePoolWait(durationSeconds float64) {
	if m == nil {
		return
	}
	m.PoolAcquireWaitSeconds.Observe(durationSeconds)
}

// IncrementRetries records a retry for provider.
func (m *Metrics) IncrementRetries(provider string) {
	if m == nil {
		return
	}
	m.RetriesTotal.WithLabelValues(provider).Inc()
}

// IncrementFetchTier records which tier produced a document.
func (m *Metrics) IncrementFetchTier(provider, tier string) {
	if m == nil {
		return
	}
	m.FetchTierTotal.WithLabelValues(provider, tier).Inc()
}

// ObserveVerification records a verification outcome and latency.
func (m *Metrics) ObserveVerification(provider string, success bool, durationSeconds float64) {
	if m == nil {
		return
	}
	result := "failure"
	if success {
		result = "success"
	}
	m.VerificationsTotal.WithLabelValues(provider, result).Inc()
	m.VerificationDurationSeconds.WithLabelValues(provider).Observe(durationSeconds)
}

// IncrementCoalesced records a call that shared another call's in-flight result.
func (m *Metrics) IncrementCoalesced(provider string) {
	if m == nil {
		return
	}
	m.CoalescedTotal.WithLabelValues(provider).Inc()
}

// RecordCleanupRun records a background cleanup run.
func (m *Metrics) RecordCleanupRun(worker string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.CleanupRunsTotal.WithLabelValues(worker, status).Inc()
}
