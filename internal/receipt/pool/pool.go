// Package pool bounds concurrent use of expensive rendering resources.
//
// Resources are created lazily up to a maximum size and lent out through Acquire/Release.
// When the pool is exhausted, callers queue in FIFO order and are handed a resource
// directly by Release, so no waiter polls. Cleanup probes idle resources and evicts the
// dead ones; replacements are created lazily on the next Acquire.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"slipcheck/internal/receipt/metrics"
)

// DefaultMaxSize is the pool bound used when none is configured.
const DefaultMaxSize = 3

// ErrPoolClosed is returned by Acquire once CloseAll has run.
var ErrPoolClosed = errors.New("resource pool closed")

// Resource is anything the pool can probe and shut down.
// Implementations are typically pointers so the pool can track them by identity.
type Resource interface {
	comparable
	// Alive returns nil when the resource can still serve requests.
	Alive(ctx context.Context) error
	// Close releases the underlying process or connection.
	Close() error
}

// Factory creates a new resource. It is the only expensive pool operation.
type Factory[R Resource] func(ctx context.Context) (R, error)

// Stats is a point-in-time view of pool occupancy.
type Stats struct {
	Size    int
	InUse   int
	Waiting int
}

type entry[R Resource] struct {
	res   R
	inUse bool
}

// grant is what a waiter receives: a resource, a reserved creation slot, or an error.
type grant[R Resource] struct {
	res    R
	create bool
	err    error
}

// Pool lends out at most maxSize resources at a time.
type Pool[R Resource] struct {
	mu       sync.Mutex
	factory  Factory[R]
	entries  []*entry[R]
	creating int
	waiters  []chan grant[R]
	closed   bool

	maxSize      int
	probeTimeout time.Duration
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

// Option configures a Pool.
type Option func(*options)

type options struct {
	maxSize      int
	probeTimeout time.Duration
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

// WithMaxSize sets the maximum number of live resources. Values below 1 are ignored.
func WithMaxSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxSize = n
		}
	}
}

// WithProbeTimeout bounds each liveness probe run by Cleanup.
func WithProbeTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.probeTimeout = d
		}
	}
}

// WithLogger sets the logger for pool lifecycle events.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics enables pool gauges and counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// New creates an empty pool. No resource is created until the first Acquire.
func New[R Resource](factory Factory[R], opts ...Option) *Pool[R] {
	o := options{
		maxSize:      DefaultMaxSize,
		probeTimeout: 5 * time.Second,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Pool[R]{
		factory:      factory,
		maxSize:      o.maxSize,
		probeTimeout: o.probeTimeout,
		logger:       o.logger,
		metrics:      o.metrics,
	}
}

// Acquire returns an idle resource, creates one if the pool has room, or waits for a
// Release. Waiters are served in arrival order. Returns ctx.Err() if ctx ends first.
func (p *Pool[R]) Acquire(ctx context.Context) (R, error) {
	var zero R

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return zero, ErrPoolClosed
	}
	for _, e := range p.entries {
		if !e.inUse {
			e.inUse = true
			p.publishLocked()
			p.mu.Unlock()
			return e.res, nil
		}
	}
	if p.sizeLocked() < p.maxSize {
		p.creating++
		p.mu.Unlock()
		return p.create(ctx)
	}

	ch := make(chan grant[R], 1)
	p.waiters = append(p.waiters, ch)
	p.publishLocked()
	p.mu.Unlock()

	start := time.Now()
	select {
	case g := <-ch:
		p.metrics.ObservePoolWait(time.Since(start).Seconds())
		return p.redeem(ctx, g)
	case <-ctx.Done():
		p.mu.Lock()
		removed := p.removeWaiterLocked(ch)
		p.publishLocked()
		p.mu.Unlock()
		if !removed {
			// A grant raced with cancellation; hand it on instead of leaking it.
			p.abandon(<-ch)
		}
		return zero, ctx.Err()
	}
}

// Release returns a borrowed resource. It is a no-op for resources the pool does not
// track as in use, including anything released twice or after CloseAll.
func (p *Pool[R]) Release(res R) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e := p.findLocked(res)
	if e == nil || !e.inUse {
		return
	}
	p.handOffLocked(e)
	p.publishLocked()
}

// Cleanup probes every idle resource and evicts those that fail. Borrowed resources are
// left alone. Returns the number evicted; freed capacity is offered to waiters.
func (p *Pool[R]) Cleanup(ctx context.Context) int {
	p.mu.Lock()
	var probing []*entry[R]
	for _, e := range p.entries {
		if !e.inUse {
			e.inUse = true
			probing = append(probing, e)
		}
	}
	p.mu.Unlock()

	var dead []*entry[R]
	for _, e := range probing {
		probeCtx, cancel := context.WithTimeout(ctx, p.probeTimeout)
		err := e.res.Alive(probeCtx)
		cancel()
		if err != nil {
			p.logger.WarnContext(ctx, "render pool evicting unresponsive resource", "error", err)
			dead = append(dead, e)
		}
	}

	p.mu.Lock()
	for _, e := range dead {
		p.removeEntryLocked(e)
	}
	for _, e := range probing {
		if p.findLocked(e.res) == e {
			p.handOffLocked(e)
		}
	}
	for range dead {
		p.grantCapacityLocked()
	}
	p.publishLocked()
	p.mu.Unlock()

	for _, e := range dead {
		if err := e.res.Close(); err != nil {
			p.logger.DebugContext(ctx, "closing evicted resource failed", "error", err)
		}
	}
	p.metrics.AddPoolEvicted(len(dead))
	return len(dead)
}

// CloseAll shuts down every resource, fails pending waiters and rejects future Acquires.
func (p *Pool[R]) CloseAll() error {
	p.mu.Lock()
	entries := p.entries
	waiters := p.waiters
	p.entries = nil
	p.waiters = nil
	p.closed = true
	p.publishLocked()
	p.mu.Unlock()

	for _, ch := range waiters {
		ch <- grant[R]{err: ErrPoolClosed}
	}

	var errs []error
	for _, e := range entries {
		if err := e.res.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close resource pool: %w", errors.Join(errs...))
	}
	return nil
}

// Stats reports current occupancy.
func (p *Pool[R]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statsLocked()
}

// MaxSize returns the configured bound.
func (p *Pool[R]) MaxSize() int {
	return p.maxSize
}

func (p *Pool[R]) create(ctx context.Context) (R, error) {
	var zero R

	res, err := p.factory(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.creating--

	if err != nil {
		p.grantCapacityLocked()
		p.publishLocked()
		return zero, fmt.Errorf("create pooled resource: %w", err)
	}
	if p.closed {
		_ = res.Close() //nolint:errcheck // pool already shut down
		return zero, ErrPoolClosed
	}

	p.entries = append(p.entries, &entry[R]{res: res, inUse: true})
	p.metrics.IncrementPoolCreated()
	p.publishLocked()
	return res, nil
}

func (p *Pool[R]) redeem(ctx context.Context, g grant[R]) (R, error) {
	var zero R
	switch {
	case g.err != nil:
		return zero, g.err
	case g.create:
		return p.create(ctx)
	default:
		return g.res, nil
	}
}

// abandon returns a grant that arrived after its waiter gave up.
func (p *Pool[R]) abandon(g grant[R]) {
	switch {
	case g.err != nil:
	case g.create:
		p.mu.Lock()
		p.creating--
		p.grantCapacityLocked()
		p.publishLocked()
		p.mu.Unlock()
	default:
		p.Release(g.res)
	}
}

// handOffLocked gives e to the oldest waiter, or marks it idle.
func (p *Pool[R]) handOffLocked(e *entry[R]) {
	if len(p.waiters) > 0 {
		ch := p.waiters[0]
		p.waiters = p.waiters[1:]
		ch <- grant[R]{res: e.res}
		return
	}
	e.inUse = false
}

// grantCapacityLocked lets the oldest waiter create a resource if a slot is free.
func (p *Pool[R]) grantCapacityLocked() {
	if p.closed || len(p.waiters) == 0 || p.sizeLocked() >= p.maxSize {
		return
	}
	ch := p.waiters[0]
	p.waiters = p.waiters[1:]
	p.creating++
	ch <- grant[R]{create: true}
}

func (p *Pool[R]) findLocked(res R) *entry[R] {
	for _, e := range p.entries {
		if e.res == res {
			return e
		}
	}
	return nil
}

func (p *Pool[R]) removeEntryLocked(target *entry[R]) {
	for i, e := range p.entries {
		if e == target {
			p.entries = append(p.entries[:i], p.entries[i+1:]...)
			return
		}
	}
}

func (p *Pool[R]) removeWaiterLocked(ch chan grant[R]) bool {
	for i, w := range p.waiters {
		if w == ch {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			return true
		}
	}
	return false
}

func (p *Pool[R]) sizeLocked() int {
	return len(p.entries) + p.creating
}

func (p *Pool[R]) statsLocked() Stats {
	inUse := 0
	for _, e := range p.entries {
		if e.inUse {
			inUse++
		}
	}
	return Stats{Size: len(p.entries), InUse: inUse, Waiting: len(p.waiters)}
}

func (p *Pool[R]) publishLocked() {
	if p.metrics == nil {
		return
	}
	s := p.statsLocked()
	p.metrics.SetPoolState(s.Size, s.InUse, s.Waiting)
}
