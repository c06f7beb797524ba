// Package awash verifies Awash Bank receipts, published as plain HTML pages addressed by
// reference in the URL path.
package awash

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"slipcheck/internal/receipt/extract"
	"slipcheck/internal/receipt/fetch"
	"slipcheck/internal/receipt/metrics"
	"slipcheck/internal/receipt/models"
	"slipcheck/internal/receipt/providers"
)

const Code = "awash"

const DefaultBaseURL = "https://awashpay.awashbank.com:8225"

// Rules are the receipt table labels Awash uses.
var Rules = extract.HTMLRules{Synonyms: map[extract.Field][]string{
	extract.FieldPayer:           {"Sender Name", "Payer Name", "Debited Party Name", "From Account Name"},
	extract.FieldPayerAccount:    {"Sender Account", "Debited Account", "From Account"},
	extract.FieldReceiver:        {"Receiver Name", "Beneficiary Name", "Recipient", "Credited Party Name", "To Account Name"},
	extract.FieldReceiverAccount: {"Receiver Account", "Beneficiary Account", "Credited Account", "To Account"},
	extract.FieldAmount:          {"Amount", "Transaction Amount", "Transferred Amount", "Debited Amount"},
	extract.FieldReference:       {"Transaction ID", "Transaction Reference", "Reference", "Reference No"},
	extract.FieldDate:            {"Transaction Date", "Transaction Time", "Date", "Value Date"},
	extract.FieldReason:          {"Narrative", "Reason", "Remark", "Purpose"},
}}

type Config struct {
	BaseURL      string
	FetchTimeout time.Duration
	HTTPClient   fetch.HTTPDoer
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
}

// Provider verifies Awash receipts with a direct GET only.
type Provider struct {
	baseURL   string
	fetcher   fetch.Tier
	extractor extract.Extractor
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

	opts = append([]providers.PipelineOption{
		providers.WithLogger(cfg.Logger),
		providers.WithMetrics(cfg.Metrics),
	}, opts...)

	return &Provider{
		baseURL: baseURL,
		fetcher: &fetch.Tiered{
			ProviderID: Code,
			Primary:    direct,
			Logger:     cfg.Logger,
			Metrics:    cfg.Metrics,
		},
		extractor: extract.NewHTMLExtractor(Rules),
		pipeline:  providers.NewPipeline(Code, opts...),
	}
}

func (p *Provider) Code() string {
	return Code
}

func (p *Provider) Capabilities() providers.Capabilities {
	return providers.Capabilities{Format: providers.FormatHTML}
}

func (p *Provider) Verify(ctx context.Context, req providers.Request) models.VerifyResult {
	return p.pipeline.Run(ctx, req, p.verify)
}

func (p *Provider) verify(ctx context.Context, req providers.Request) (*models.VerifyResult, error) {
	doc, err := p.fetcher.Fetch(ctx, p.ReceiptURL(req.Reference))
	if err != nil {
		return nil, err
	}
	result, err := p.extractor.Extract(doc.Body)
	if err != nil {
		return nil, providers.NewProviderError(providers.ErrorParse, Code, "receipt could not be read", err)
	}
	return result, nil
}

// ReceiptURL is the receipt page address for a reference.
func (p *Provider) ReceiptURL(reference string) string {
	return p.baseURL + "/-" + url.PathEscape(reference)
}

func (p *Provider) Health(ctx context.Context) error {
	return fetch.Reachable(ctx, p.fetcher, p.baseURL+"/")
}
