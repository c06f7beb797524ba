// Package fetch retrieves receipt documents from bank endpoints.
//
// A Tier is one way of obtaining a document (direct HTTP, pooled browser render). Tiered
// chains a preferred tier with a fallback and decides, per document, whether the
// preferred tier's answer is good enough.
package fetch

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"slipcheck/internal/receipt/providers"
)

const (
	// DefaultTimeout bounds a single direct fetch.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxBodyBytes caps how much of a response is read into memory.
	DefaultMaxBodyBytes = 10 << 20

	defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

// TierDirect names the plain HTTP tier in logs and metrics.
const TierDirect = "direct"

// Document is raw receipt content and where it came from.
type Document struct {
	URL         string
	ContentType string
	Body        []byte
	Tier        string
}

// Tier obtains a document for a URL.
type Tier interface {
	Name() string
	Fetch(ctx context.Context, url string) (*Document, error)
}

// HTTPDoer is the minimal interface needed from an HTTP client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPFetcherConfig configures an HTTPFetcher.
type HTTPFetcherConfig struct {
	ProviderID         string
	Timeout            time.Duration
	InsecureSkipVerify bool // legacy bank endpoints with broken certificate chains
	HTTPClient         HTTPDoer
	UserAgent          string
	MaxBodyBytes       int64
}

// HTTPFetcher is the direct tier: a GET with a timeout and normalized error classification.
type HTTPFetcher struct {
	providerID string
	client     HTTPDoer
	timeout    time.Duration
	userAgent  string
	maxBody    int64
}

// Ensure HTTPFetcher implements Tier
var _ Tier = (*HTTPFetcher)(nil)

// NewHTTPFetcher creates a direct fetcher.
func NewHTTPFetcher(cfg HTTPFetcherConfig) *HTTPFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return &HTTPFetcher{
		providerID: cfg.ProviderID,
		client:     selectHTTPClient(cfg),
		timeout:    cfg.Timeout,
		userAgent:  cfg.UserAgent,
		maxBody:    cfg.MaxBodyBytes,
	}
}

func selectHTTPClient(cfg HTTPFetcherConfig) HTTPDoer {
	if cfg.HTTPClient != nil {
		return cfg.HTTPClient
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // bank endpoint serves an incomplete chain
	}
	return &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
	}
}

// Name returns the tier name.
func (f *HTTPFetcher) Name() string {
	return TierDirect
}

// Fetch performs a GET and returns the body of a 2xx response.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*Document, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, providers.NewProviderError(
			providers.ErrorInternal,
			f.providerID,
			"failed to create request",
			err,
		)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/pdf,text/html;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, f.classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody+1))
	if err != nil {
		return nil, f.classifyTransportError(ctx, err)
	}
	if int64(len(body)) > f.maxBody {
		return nil, providers.NewProviderError(
			providers.ErrorInternal,
			f.providerID,
			fmt.Sprintf("response exceeds %d bytes", f.maxBody),
			nil,
		)
	}

	if err := f.classifyStatus(resp.StatusCode); err != nil {
		return nil, err
	}

	return &Document{
		URL:         url,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
		Tier:        TierDirect,
	}, nil
}

func (f *HTTPFetcher) classifyTransportError(ctx context.Context, err error) error {
	var netErr net.Error
	if errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return providers.NewProviderError(
			providers.ErrorTimeout,
			f.providerID,
			"request timeout",
			err,
		)
	}
	return providers.NewProviderError(
		providers.ErrorNetwork,
		f.providerID,
		"failed to execute request",
		err,
	)
}

func (f *HTTPFetcher) classifyStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return providers.NewProviderError(
			providers.ErrorAuthentication,
			f.providerID,
			fmt.Sprintf("receipt endpoint refused access: %d", status),
			nil,
		)
	case status == http.StatusNotFound:
		return providers.NewProviderError(
			providers.ErrorNotFound,
			f.providerID,
			"receipt not found",
			nil,
		)
	case status == http.StatusTooManyRequests:
		return providers.NewProviderError(
			providers.ErrorRateLimited,
			f.providerID,
			"rate limit exceeded",
			nil,
		)
	case status >= 400 && status < 500:
		return providers.NewProviderError(
			providers.ErrorClient,
			f.providerID,
			fmt.Sprintf("receipt endpoint rejected request: %d", status),
			nil,
		)
	default:
		return providers.NewProviderError(
			providers.ErrorProviderOutage,
			f.providerID,
			fmt.Sprintf("receipt endpoint unavailable: %d", status),
			nil,
		)
	}
}
