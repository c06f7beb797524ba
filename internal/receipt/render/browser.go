// Package render drives pooled headless Chrome instances for receipts that cannot be
// fetched directly.
package render

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"slipcheck/internal/receipt/pool"
)

// DefaultTimeout bounds a single navigation, including waiting for the document or selector.
const DefaultTimeout = 30 * time.Second

const probeScript = `1 + 1`

// ErrNoDocument is returned when navigation finishes without a matching response.
var ErrNoDocument = errors.New("no matching document response")

// Renderer is one browser instance as the pool and the render tiers see it.
type Renderer interface {
	Alive(ctx context.Context) error
	Close() error
	// CaptureDocument navigates to url and returns the URL of the first network response
	// whose MIME type satisfies match.
	CaptureDocument(ctx context.Context, url string, match func(mimeType string) bool) (string, error)
	// RenderHTML navigates to url, waits for waitSelector to become visible and returns
	// the page's outer HTML.
	RenderHTML(ctx context.Context, url, waitSelector string) (string, error)
}

// Config controls how browsers are launched.
type Config struct {
	ExecPath  string // empty uses chromedp's lookup
	Timeout   time.Duration
	UserAgent string
}

func (c Config) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("ignore-certificate-errors", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if c.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(c.ExecPath))
	}
	if c.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(c.UserAgent))
	}
	return opts
}

// Browser is a running headless Chrome process. Every operation opens its own tab.
type Browser struct {
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	timeout       time.Duration
	closeOnce     sync.Once
}

// Ensure Browser implements Renderer
var _ Renderer = (*Browser)(nil)

// Launch starts a browser process. ctx bounds startup only; the process lives until Close.
func Launch(ctx context.Context, cfg Config) (*Browser, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), cfg.allocatorOptions()...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	started := make(chan error, 1)
	go func() { started <- chromedp.Run(browserCtx) }()

	select {
	case err := <-started:
		if err != nil {
			browserCancel()
			allocCancel()
			return nil, fmt.Errorf("launch browser: %w", err)
		}
	case <-ctx.Done():
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("launch browser: %w", ctx.Err())
	}

	return &Browser{
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
		timeout:       cfg.Timeout,
	}, nil
}

// NewFactory returns a pool factory that launches browsers with cfg.
func NewFactory(cfg Config) pool.Factory[Renderer] {
	return func(ctx context.Context) (Renderer, error) {
		return Launch(ctx, cfg)
	}
}

// Alive evaluates a trivial script in a fresh tab.
func (b *Browser) Alive(ctx context.Context) error {
	if err := b.browserCtx.Err(); err != nil {
		return fmt.Errorf("browser gone: %w", err)
	}
	tabCtx, cancel := b.newTab(ctx)
	defer cancel()

	var n int
	if err := chromedp.Run(tabCtx, chromedp.Evaluate(probeScript, &n)); err != nil {
		return fmt.Errorf("probe browser: %w", err)
	}
	if n != 2 {
		return fmt.Errorf("probe browser: unexpected result %d", n)
	}
	return nil
}

// Close shuts the browser down. Safe to call more than once.
func (b *Browser) Close() error {
	var err error
	b.closeOnce.Do(func() {
		err = chromedp.Cancel(b.browserCtx)
		b.browserCancel()
		b.allocCancel()
		if errors.Is(err, context.Canceled) {
			err = nil
		}
	})
	return err
}

// CaptureDocument watches network responses during navigation.
// Navigations that end in a download abort the page load; that is expected and the
// listener keeps waiting until the timeout.
func (b *Browser) CaptureDocument(ctx context.Context, url string, match func(mimeType string) bool) (string, error) {
	tabCtx, cancel := b.newTab(ctx)
	defer cancel()

	found := make(chan string, 1)
	chromedp.ListenTarget(tabCtx, func(ev any) {
		resp, ok := ev.(*network.EventResponseReceived)
		if !ok || resp.Response == nil {
			return
		}
		if match(resp.Response.MimeType) {
			select {
			case found <- resp.Response.URL:
			default:
			}
		}
	})

	navDone := make(chan error, 1)
	go func() {
		navDone <- chromedp.Run(tabCtx, network.Enable(), chromedp.Navigate(url))
	}()

	var pending <-chan error = navDone
	for {
		select {
		case docURL := <-found:
			return docURL, nil
		case err := <-pending:
			pending = nil
			if err != nil && tabCtx.Err() != nil {
				return "", fmt.Errorf("navigate %s: %w", url, err)
			}
		case <-tabCtx.Done():
			return "", fmt.Errorf("%w from %s: %w", ErrNoDocument, url, tabCtx.Err())
		}
	}
}

// RenderHTML returns the rendered page once waitSelector is visible.
func (b *Browser) RenderHTML(ctx context.Context, url, waitSelector string) (string, error) {
	tabCtx, cancel := b.newTab(ctx)
	defer cancel()

	var html string
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(url),
		chromedp.WaitVisible(waitSelector, chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("render %s waiting for %q: %w", url, waitSelector, err)
	}
	return html, nil
}

// newTab opens a tab bounded by the navigation timeout and by ctx.
func (b *Browser) newTab(ctx context.Context) (context.Context, context.CancelFunc) {
	tabCtx, cancelTab := chromedp.NewContext(b.browserCtx)
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, b.timeout)
	stop := context.AfterFunc(ctx, cancelTimeout)
	return tabCtx, func() {
		stop()
		cancelTimeout()
		cancelTab()
	}
}
