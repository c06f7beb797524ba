// Package cbe verifies Commercial Bank of Ethiopia transfer receipts.
//
// Receipts are PDFs addressed by reference plus the payer's account suffix. The endpoint
// serves an incomplete certificate chain, so the direct fetch skips TLS verification.
// When the direct response is not a PDF, a pooled browser loads the same URL and the
// PDF it triggers is downloaded instead.
package cbe

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"slipcheck/internal/receipt/extract"
	"slipcheck/internal/receipt/fetch"
	"slipcheck/internal/receipt/metrics"
	"slipcheck/internal/receipt/models"
	"slipcheck/internal/receipt/providers"
	"slipcheck/internal/receipt/render"
	"slipcheck/pkg/platform/circuit"
)

// Code identifies the provider in requests and cache keys.
const Code = "cbe"

// DefaultBaseURL is the public receipt endpoint.
const DefaultBaseURL = "https://apps.cbe.com.et:100"

// Config wires the provider's collaborators.
type Config struct {
	BaseURL      string
	FetchTimeout time.Duration
	HTTPClient   fetch.HTTPDoer // tests; nil builds an insecure-TLS client
	Renderers    render.Pool    // nil disables the browser fallback
	Breaker      *circuit.Breaker
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
}

// Provider verifies CBE receipts.
type Provider struct {
	baseURL   string
	direct    fetch.Tier
	fetcher   fetch.Tier
	extractor extract.Extractor
	renders   bool
	pipeline  *providers.Pipeline
}

// Ensure Provider implements providers.Provider
var _ providers.Provider = (*Provider)(nil)

// New builds the provider. Pipeline options carry the cache, retry policy and tracing.
func New(cfg Config, opts ...providers.PipelineOption) *Provider {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	direct := fetch.NewHTTPFetcher(fetch.HTTPFetcherConfig{
		ProviderID:         Code,
		Timeout:            cfg.FetchTimeout,
		InsecureSkipVerify: true,
		HTTPClient:         cfg.HTTPClient,
	})

	tiered := &fetch.Tiered{
		ProviderID: Code,
		Primary:    direct,
		Accept:     fetch.RequirePDF,
		Breaker:    cfg.Breaker,
		Logger:     cfg.Logger,
		Metrics:    cfg.Metrics,
	}
	if cfg.Renderers != nil {
		tiered.Fallback = &render.DocumentTier{
			ProviderID: Code,
			Pool:       cfg.Renderers,
			Downloader: direct,
			Match:      render.IsPDFMime,
		}
	}

	opts = append([]providers.PipelineOption{
		providers.WithKeyArgs(providers.ArgAccountSuffix),
		providers.WithRequiredArgs(providers.ArgAccountSuffix),
		providers.WithLogger(cfg.Logger),
		providers.WithMetrics(cfg.Metrics),
	}, opts...)

	return &Provider{
		baseURL:   baseURL,
		direct:    direct,
		fetcher:   tiered,
		extractor: extract.NewPDFExtractor(),
		renders:   cfg.Renderers != nil,
		pipeline:  providers.NewPipeline(Code, opts...),
	}
}

func (p *Provider) Code() string {
	return Code
}

func (p *Provider) Capabilities() providers.Capabilities {
	return providers.Capabilities{
		Format:       providers.FormatPDF,
		RequiredArgs: []string{providers.ArgAccountSuffix},
		Renders:      p.renders,
	}
}

// Verify fetches and reads the receipt for req.Reference and the account suffix.
// The suffix is trusted as given apart from trimming.
func (p *Provider) Verify(ctx context.Context, req providers.Request) models.VerifyResult {
	return p.pipeline.Run(ctx, req, p.verify)
}

func (p *Provider) verify(ctx context.Context, req providers.Request) (*models.VerifyResult, error) {
	doc, err := p.fetcher.Fetch(ctx, p.ReceiptURL(req.Reference, req.Arg(providers.ArgAccountSuffix)))
	if err != nil {
		return nil, err
	}
	result, err := p.extractor.Extract(doc.Body)
	if err != nil {
		return nil, providers.NewProviderError(providers.ErrorParse, Code, "receipt could not be read", err)
	}
	return result, nil
}

// ReceiptURL is the document address for a reference and account suffix.
func (p *Provider) ReceiptURL(reference, suffix string) string {
	return fmt.Sprintf("%s/?id=%s", p.baseURL, url.QueryEscape(reference+suffix))
}

// Health checks that the receipt host answers.
func (p *Provider) Health(ctx context.Context) error {
	return fetch.Reachable(ctx, p.direct, p.baseURL+"/")
}
