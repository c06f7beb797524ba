// Package abyssinia verifies Bank of Abyssinia receipts.
//
// The slip page is HTML, but the receipt table is often filled in by script. A direct
// GET is tried first; when the response has no table, a pooled browser renders the page
// and waits for the table to appear.
package abyssinia

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

const Code = "abyssinia"

const DefaultBaseURL = "https://cs.bankofabyssinia.com"

// TableSelector is what the renderer waits for before capturing the page.
const TableSelector = "table"

// Rules are the slip labels Abyssinia uses.
var Rules = extract.HTMLRules{Synonyms: map[extract.Field][]string{
	extract.FieldPayer:           {"Source Account Name", "Payer Name", "Sender Name", "Customer Name"},
	extract.FieldPayerAccount:    {"Source Account", "Payer Account", "Sender Account"},
	extract.FieldReceiver:        {"Receiver's Name", "Receiver Name", "Beneficiary Name", "Recipient"},
	extract.FieldReceiverAccount: {"Receiver Account", "Beneficiary Account", "Credited Account"},
	extract.FieldAmount:          {"Transferred Amount", "Amount", "Transaction Amount"},
	extract.FieldReference:       {"Transaction Reference", "Reference", "Reference No", "FT Reference"},
	extract.FieldDate:            {"Transaction Date", "Date", "Payment Date"},
	extract.FieldReason:          {"Narrative", "Reason", "Remark"},
}}

type Config struct {
	BaseURL      string
	FetchTimeout time.Duration
	HTTPClient   fetch.HTTPDoer
	Renderers    render.Pool // nil disables the browser fallback
	Breaker      *circuit.Breaker
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
}

// Provider verifies Abyssinia receipts.
type Provider struct {
	baseURL   string
	direct    fetch.Tier
	fetcher   fetch.Tier
	extractor extract.Extractor
	renders   bool
	pipeline  *providers.Pipeline
}

var _ providers.Provider = (*Provider)(nil)

func New(cfg Config, opts ...providers.PipelineOption) *Provider {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	direct := fetch.NewHTTPFetcher(fetch.HTTPFetcherConfig{
		ProviderID: Code,
		Timeout:    cfg.FetchTimeout,
		HTTPClient: cfg.HTTPClient,
	})

	tiered := &fetch.Tiered{
		ProviderID: Code,
		Primary:    direct,
		Accept:     fetch.RequireMarker("<" + TableSelector),
		Breaker:    cfg.Breaker,
		Logger:     cfg.Logger,
		Metrics:    cfg.Metrics,
	}
	if cfg.Renderers != nil {
		tiered.Fallback = &render.HTMLTier{
			ProviderID:   Code,
			Pool:         cfg.Renderers,
			WaitSelector: TableSelector,
		}
	}

	opts = append([]providers.PipelineOption{
		providers.WithKeyArgs(providers.ArgAccountSuffix),
		providers.WithLogger(cfg.Logger),
		providers.WithMetrics(cfg.Metrics),
	}, opts...)

	return &Provider{
		baseURL:   baseURL,
		direct:    direct,
		fetcher:   tiered,
		extractor: extract.NewHTMLExtractor(Rules),
		renders:   cfg.Renderers != nil,
		pipeline:  providers.NewPipeline(Code, opts...),
	}
}

func (p *Provider) Code() string {
	return Code
}

func (p *Provider) Capabilities() providers.Capabilities {
	return providers.Capabilities{
		Format:       providers.FormatHTML,
		OptionalArgs: []string{providers.ArgAccountSuffix},
		Renders:      p.renders,
	}
}

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

// ReceiptURL is the slip address; the suffix is optional.
func (p *Provider) ReceiptURL(reference, suffix string) string {
	return fmt.Sprintf("%s/slip/?trx=%s", p.baseURL, url.QueryEscape(reference+suffix))
}

func (p *Provider) Health(ctx context.Context) error {
	return fetch.Reachable(ctx, p.direct, p.baseURL+"/")
}
