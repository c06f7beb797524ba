package render

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"slipcheck/internal/receipt/fetch"
	"slipcheck/internal/receipt/providers"
)

// TierBrowser names the pooled render tier in logs and metrics.
const TierBrowser = "browser"

// Pool is the slice of pool.Pool the render tiers need.
type Pool interface {
	Acquire(ctx context.Context) (Renderer, error)
	Release(r Renderer)
}

// IsPDFMime matches PDF responses observed during navigation.
func IsPDFMime(mimeType string) bool {
	return strings.Contains(strings.ToLower(mimeType), "pdf")
}

// DocumentTier borrows a browser to discover the real document URL, then downloads it
// with a direct fetcher.
type DocumentTier struct {
	ProviderID string
	Pool       Pool
	Downloader fetch.Tier
	Match      func(mimeType string) bool // defaults to IsPDFMime
}

// Ensure DocumentTier implements fetch.Tier
var _ fetch.Tier = (*DocumentTier)(nil)

// Name returns the tier name.
func (t *DocumentTier) Name() string {
	return TierBrowser
}

// Fetch captures and downloads the document behind url.
func (t *DocumentTier) Fetch(ctx context.Context, url string) (*fetch.Document, error) {
	match := t.Match
	if match == nil {
		match = IsPDFMime
	}

	docURL, err := withRenderer(ctx, t.ProviderID, t.Pool, func(r Renderer) (string, error) {
		return r.CaptureDocument(ctx, url, match)
	})
	if err != nil {
		return nil, err
	}

	doc, err := t.Downloader.Fetch(ctx, docURL)
	if err != nil {
		return nil, err
	}
	doc.Tier = TierBrowser
	return doc, nil
}

// HTMLTier borrows a browser to render a page and returns its HTML once WaitSelector shows up.
type HTMLTier struct {
	ProviderID   string
	Pool         Pool
	WaitSelector string
}

// Ensure HTMLTier implements fetch.Tier
var _ fetch.Tier = (*HTMLTier)(nil)

// Name returns the tier name.
func (t *HTMLTier) Name() string {
	return TierBrowser
}

// Fetch renders url.
func (t *HTMLTier) Fetch(ctx context.Context, url string) (*fetch.Document, error) {
	html, err := withRenderer(ctx, t.ProviderID, t.Pool, func(r Renderer) (string, error) {
		return r.RenderHTML(ctx, url, t.WaitSelector)
	})
	if err != nil {
		return nil, err
	}
	return &fetch.Document{
		URL:         url,
		ContentType: "text/html; charset=utf-8",
		Body:        []byte(html),
		Tier:        TierBrowser,
	}, nil
}

// withRenderer runs fn on a borrowed renderer and always gives it back.
func withRenderer(ctx context.Context, providerID string, p Pool, fn func(Renderer) (string, error)) (string, error) {
	r, err := p.Acquire(ctx)
	if err != nil {
		return "", classify(ctx, providerID, "no renderer available", err)
	}
	defer p.Release(r)

	out, err := fn(r)
	if err != nil {
		return "", classify(ctx, providerID, "render failed", err)
	}
	return out, nil
}

func classify(ctx context.Context, providerID, message string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		if ctx.Err() != nil {
			return providers.NewProviderError(providers.ErrorTimeout, providerID, message, err)
		}
		return providers.NewProviderError(providers.ErrorRender, providerID, fmt.Sprintf("%s: timed out", message), err)
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return providers.NewProviderError(providers.ErrorInternal, providerID, "request cancelled", err)
	}
	return providers.NewProviderError(providers.ErrorRender, providerID, message, err)
}
