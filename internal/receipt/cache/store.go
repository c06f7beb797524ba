// Package cache stores successful verification results for a short TTL.
//
// Only successful results are cacheable: failures are often transient and must be
// retried on the next call. Two implementations share the Store contract: an in-process
// map for single-instance deployments and Redis for deployments with several replicas.
package cache

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"slipcheck/internal/receipt/models"
)

// DefaultTTL is how long a verified receipt is served from cache.
const DefaultTTL = 300 * time.Second

// KeyPrefix namespaces every receipt cache key.
const KeyPrefix = "receipt"

var (
	// ErrNotFound is returned on a miss or an expired entry.
	ErrNotFound = errors.New("not found")

	// ErrNotCacheable is returned when Set is given a failed result.
	ErrNotCacheable = errors.New("only successful results are cacheable")
)

// Store is the result cache contract.
type Store interface {
	// Get returns a copy of the cached result, or ErrNotFound.
	Get(ctx context.Context, key string) (*models.VerifyResult, error)
	// Set stores value under key. A zero ttl applies the store default.
	Set(ctx context.Context, key string, value models.VerifyResult, ttl time.Duration) error
	// Has reports whether a live entry exists for key.
	Has(ctx context.Context, key string) (bool, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// DeletePattern removes every key matching a glob pattern (*, ?, [..], \ escapes)
	// and returns how many were removed.
	DeletePattern(ctx context.Context, pattern string) (int, error)
	// Sweep removes expired entries and returns how many were removed.
	Sweep(ctx context.Context) (int, error)
}

// Key builds the deterministic, case-insensitive composite key for a verification.
// Empty discriminators are skipped so optional arguments do not change the key.
// Each part is query-escaped, so a part can never contain the ':' separator and
// distinct tuples never join to the same key.
func Key(provider, reference string, discriminators ...string) string {
	parts := make([]string, 0, 3+len(discriminators))
	parts = append(parts, KeyPrefix, normalizePart(provider), normalizePart(reference))
	for _, d := range discriminators {
		if d = normalizePart(d); d != "" {
			parts = append(parts, d)
		}
	}
	return strings.Join(parts, ":")
}

// ReferencePattern matches every key for a provider/reference pair, whatever its
// discriminators, without matching longer references that share the prefix.
func ReferencePattern(provider, reference string) []string {
	base := EscapePattern(Key(provider, reference))
	return []string{base, base + ":*"}
}

// EscapePattern escapes glob metacharacters so s matches literally.
func EscapePattern(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func normalizePart(s string) string {
	return url.QueryEscape(strings.ToLower(strings.TrimSpace(s)))
}
