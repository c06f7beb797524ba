// Package tracer is the tracing seam for receipt verification.
//
// Pipelines depend on the small Tracer interface; production wires the OpenTelemetry
// adapter and tests use the no-op tracer.
package tracer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Span represents an active trace span.
type Span interface {
	// End completes the span; a non-nil err marks it failed. Call exactly once.
	End(err error)
	SetAttributes(attrs ...Attribute)
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	// Start opens a span; the caller must End it.
	//
	//   ctx, span := t.Start(ctx, tracer.SpanVerify,
	//       tracer.String(tracer.AttrProvider, "cbe"),
	//   )
	//   defer span.End(err)
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute is a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

// String creates a string attribute.
func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

// Bool creates a boolean attribute.
func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

// Int creates an integer attribute.
func Int(key string, value int) Attribute {
	return Attribute{Key: key, Value: int64(value)}
}

// Duration creates a duration attribute in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// HashAccount shortens an account suffix to a stable, non-reversible token for spans.
func HashAccount(suffix string) string {
	if suffix == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(suffix))
	return hex.EncodeToString(sum[:6])
}

// Span names.
const (
	SpanVerify = "receipt.verify"
	SpanFetch  = "receipt.fetch"
)

// Attribute keys.
const (
	AttrProvider    = "receipt.provider"
	AttrReference   = "receipt.reference"
	AttrAccount     = "receipt.account_hash"
	AttrCacheHit    = "cache.hit"
	AttrCoalesced   = "singleflight.shared"
	AttrAttempt     = "retry.attempt"
	AttrTier        = "fetch.tier"
	AttrSuccess     = "receipt.success"
	AttrFailureKind = "receipt.failure_category"
)

// Event names.
const (
	EventRetry = "retry.scheduled"
)
