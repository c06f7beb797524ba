package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"slipcheck/internal/receipt/models"
)

type cachedResult struct {
	value     models.VerifyResult
	storedAt  time.Time
	expiresAt time.Time
}

// InMemoryStore keeps results in a process-local map with per-entry TTL.
// Expired entries are dropped on read and by Sweep.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[string]cachedResult
	ttl     time.Duration
	now     func() time.Time
}

// Compile-time check that InMemoryStore satisfies Store.
var _ Store = (*InMemoryStore)(nil)

// MemoryOption configures an InMemoryStore.
type MemoryOption func(*InMemoryStore)

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) MemoryOption {
	return func(s *InMemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewInMemoryStore creates a store whose entries live for ttl unless Set overrides it.
func NewInMemoryStore(ttl time.Duration, opts ...MemoryOption) *InMemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &InMemoryStore{
		entries: make(map[string]cachedResult),
		ttl:     ttl,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns a copy of the cached result for key.
func (s *InMemoryStore) Get(_ context.Context, key string) (*models.VerifyResult, error) {
	now := s.now()

	s.mu.RLock()
	cached, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	if !now.Before(cached.expiresAt) {
		s.mu.Lock()
		if current, still := s.entries[key]; still && !now.Before(current.expiresAt) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return nil, ErrNotFound
	}

	out := cached.value.Clone()
	return &out, nil
}

// Set stores a successful result, starting or refreshing its expiry.
func (s *InMemoryStore) Set(_ context.Context, key string, value models.VerifyResult, ttl time.Duration) error {
	if !value.Success {
		return ErrNotCacheable
	}
	if err := value.Validate(); err != nil {
		return fmt.Errorf("cache result: %w", err)
	}
	if ttl <= 0 {
		ttl = s.ttl
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = cachedResult{
		value:     value.Clone(),
		storedAt:  now,
		expiresAt: now.Add(ttl),
	}
	return nil
}

// Has reports whether a live entry exists.
func (s *InMemoryStore) Has(ctx context.Context, key string) (bool, error) {
	_, err := s.Get(ctx, key)
	if err != nil {
		return false, nil
	}
	return true, nil
}

// Delete removes key.
func (s *InMemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// DeletePattern removes every key matching the glob pattern, using the same rules as
// Redis MATCH.
func (s *InMemoryStore) DeletePattern(_ context.Context, pattern string) (int, error) {
	if err := validatePattern(pattern); err != nil {
		return 0, fmt.Errorf("invalid cache pattern %q: %w", pattern, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key := range s.entries {
		if matchGlob(pattern, key) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed, nil
}

// Sweep removes every expired entry.
func (s *InMemoryStore) Sweep(_ context.Context) (int, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, cached := range s.entries {
		if !now.Before(cached.expiresAt) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored entries, including expired ones not yet swept.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
