package fetch

import (
	"context"
	"fmt"
	"log/slog"

	"slipcheck/internal/receipt/metrics"
	"slipcheck/internal/receipt/providers"
	"slipcheck/internal/receipt/retry"
	"slipcheck/pkg/platform/circuit"
)

// Tiered tries a preferred tier and falls back to a slower one when the preferred
// tier fails or returns a document Accept rejects.
//
// Explicit client rejections (4xx, not found) from the primary fail fast: a renderer
// would hit the same endpoint and get the same answer.
type Tiered struct {
	ProviderID string
	Primary    Tier
	Fallback   Tier                  // optional
	Accept     func(*Document) error // optional; nil accepts everything
	Breaker    *circuit.Breaker      // optional; guards Primary
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
}

// Ensure Tiered implements Tier
var _ Tier = (*Tiered)(nil)

// Name returns the composite tier name.
func (t *Tiered) Name() string {
	if t.Fallback == nil {
		return t.Primary.Name()
	}
	return t.Primary.Name() + "+" + t.Fallback.Name()
}

// Fetch returns the first acceptable document.
func (t *Tiered) Fetch(ctx context.Context, url string) (*Document, error) {
	var primaryErr error

	if t.Fallback == nil || t.Breaker == nil || t.Breaker.Allow() {
		doc, err := t.attempt(ctx, t.Primary, url)
		if err == nil {
			t.recordPrimarySuccess()
			return doc, nil
		}
		if t.Fallback == nil || retry.IsClientError(err) || ctx.Err() != nil {
			return nil, err
		}
		t.recordPrimaryFailure()
		primaryErr = err
		t.logger().InfoContext(ctx, "primary tier failed, falling back",
			"provider", t.ProviderID,
			"primary", t.Primary.Name(),
			"fallback", t.Fallback.Name(),
			"error", err,
		)
	} else {
		t.logger().DebugContext(ctx, "primary tier skipped, circuit open",
			"provider", t.ProviderID,
			"breaker", t.Breaker.Name(),
		)
	}

	doc, err := t.attempt(ctx, t.Fallback, url)
	if err != nil {
		if primaryErr != nil {
			return nil, fmt.Errorf("%w (after %s: %v)", err, t.Primary.Name(), primaryErr)
		}
		return nil, err
	}
	return doc, nil
}

func (t *Tiered) attempt(ctx context.Context, tier Tier, url string) (*Document, error) {
	doc, err := tier.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	if t.Accept != nil {
		if err := t.Accept(doc); err != nil {
			return nil, providers.NewProviderError(
				providers.ErrorParse,
				t.ProviderID,
				fmt.Sprintf("%s tier returned an unusable document", tier.Name()),
				err,
			)
		}
	}
	if doc.Tier == "" {
		doc.Tier = tier.Name()
	}
	t.Metrics.IncrementFetchTier(t.ProviderID, doc.Tier)
	return doc, nil
}

func (t *Tiered) recordPrimarySuccess() {
	if t.Breaker == nil {
		return
	}
	if _, change := t.Breaker.RecordSuccess(); change.Closed {
		t.logger().Info("circuit closed, primary tier restored",
			"provider", t.ProviderID,
			"breaker", t.Breaker.Name(),
		)
	}
}

func (t *Tiered) recordPrimaryFailure() {
	if t.Breaker == nil {
		return
	}
	if _, change := t.Breaker.RecordFailure(); change.Opened {
		t.logger().Warn("circuit opened, skipping primary tier",
			"provider", t.ProviderID,
			"breaker", t.Breaker.Name(),
		)
	}
}

func (t *Tiered) logger() *slog.Logger {
	if t.Logger == nil {
		return slog.Default()
	}
	return t.Logger
}
