package providers

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"slipcheck/internal/receipt/models"
)

// DocumentFormat is the kind of receipt document a bank publishes.
type DocumentFormat string

const (
	FormatPDF  DocumentFormat = "pdf"
	FormatHTML DocumentFormat = "html"
)

// ArgAccountSuffix is the request argument carrying the account digits some banks
// append to the reference.
const ArgAccountSuffix = "account_suffix"

// Capabilities describes what a provider needs and how it fetches.
type Capabilities struct {
	Format       DocumentFormat `json:"format"`
	RequiredArgs []string       `json:"required_args,omitempty"`
	OptionalArgs []string       `json:"optional_args,omitempty"`
	Renders      bool           `json:"renders"` // may borrow a pooled browser
}

// Request identifies one receipt.
type Request struct {
	Reference string
	Args      map[string]string
}

// Arg returns a trimmed argument value.
func (r Request) Arg(name string) string {
	return strings.TrimSpace(r.Args[name])
}

// Provider verifies receipts for one bank.
//
// Verify never returns an error and never panics: every failure comes back as an
// unsuccessful result carrying a human-readable reason.
type Provider interface {
	// Code is the stable provider identifier used in requests and cache keys (e.g. "cbe").
	Code() string

	Capabilities() Capabilities

	Verify(ctx context.Context, req Request) models.VerifyResult

	// Health returns nil if the bank endpoint is reachable.
	Health(ctx context.Context) error
}

// ProviderRegistry indexes providers by code.
// Not safe for concurrent registration; register everything during startup.
type ProviderRegistry struct {
	providers map[string]Provider
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider. Codes are case-insensitive and must be unique.
func (r *ProviderRegistry) Register(p Provider) error {
	code := strings.ToLower(p.Code())
	if _, exists := r.providers[code]; exists {
		return fmt.Errorf("provider %s already registered", code)
	}
	r.providers[code] = p
	return nil
}

func (r *ProviderRegistry) Get(code string) (Provider, bool) {
	p, ok := r.providers[strings.ToLower(strings.TrimSpace(code))]
	return p, ok
}

// All returns providers sorted by code.
func (r *ProviderRegistry) All() []Provider {
	result := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Code() < result[j].Code()
	})
	return result
}
