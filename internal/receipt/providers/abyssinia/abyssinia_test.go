package abyssinia

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"slipcheck/internal/receipt/pool"
	"slipcheck/internal/receipt/providers"
	"slipcheck/internal/receipt/render"
	"slipcheck/internal/receipt/render/mocks"
	"slipcheck/internal/receipt/retry"
	"slipcheck/pkg/platform/circuit"
)

const renderedSlip = `<html><body><div id="slip"><table>
	<tr><td>Receiver's Name</td><td>Jane Roe</td></tr>
	<tr><td>Transferred Amount</td><td>500.00 ETB</td></tr>
	<tr><td>Transaction Reference</td><td>FT24123ABC123</td></tr>
</table></div></body></html>`

type AbyssiniaSuite struct {
	suite.Suite
	server    *httptest.Server
	hits      atomic.Int32
	ctrl      *gomock.Controller
	renderer  *mocks.MockRenderer
	renderers *pool.Pool[render.Renderer]
}

func TestAbyssiniaSuite(t *testing.T) {
	suite.Run(t, new(AbyssiniaSuite))
}

func (s *AbyssiniaSuite) SetupTest() {
	s.hits.Store(0)
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		if r.URL.Query().Get("trx") == "FT2412312345" {
			_, _ = w.Write([]byte(renderedSlip))
			return
		}
		// script-filled shell page
		_, _ = w.Write([]byte(`<html><body><div id="slip"></div><script src="/slip.js"></script></body></html>`))
	}))
	s.ctrl = gomock.NewController(s.T())
	s.renderer = mocks.NewMockRenderer(s.ctrl)
	s.renderers = pool.New[render.Renderer](func(context.Context) (render.Renderer, error) {
		return s.renderer, nil
	})
}

func (s *AbyssiniaSuite) TearDownTest() {
	s.server.Close()
}

func (s *AbyssiniaSuite) provider(cfg Config) *Provider {
	cfg.BaseURL = s.server.URL
	return New(cfg, providers.WithRetry(retry.Config{MaxRetries: 2, InitialDelay: time.Millisecond}))
}

func (s *AbyssiniaSuite) TestDirectTableSkipsRenderer() {
	p := s.provider(Config{Renderers: s.renderers})

	result := p.Verify(context.Background(), providers.Request{
		Reference: "FT24123",
		Args:      map[string]string{providers.ArgAccountSuffix: "12345"},
	})
	s.Require().True(result.Success, result.Error)
	s.Equal("Jane Roe", result.Receiver)
	s.Equal("FT24123ABC123", result.Reference)
	s.True(result.Amount.Equal(decimal.RequireFromString("500")))
	s.Equal(0, s.renderers.Stats().Size, "no browser launched")
}

func (s *AbyssiniaSuite) TestShellPageFallsBackToRenderedTable() {
	p := s.provider(Config{Renderers: s.renderers})
	s.renderer.EXPECT().
		RenderHTML(gomock.Any(), p.ReceiptURL("FT999", ""), TableSelector).
		Return(renderedSlip, nil)

	result := p.Verify(context.Background(), providers.Request{Reference: "FT999"})
	s.Require().True(result.Success, result.Error)
	s.Equal("Jane Roe", result.Receiver)
	s.Equal(0, s.renderers.Stats().InUse)
}

func (s *AbyssiniaSuite) TestRenderTimeoutIsRetriedThenFails() {
	p := s.provider(Config{Renderers: s.renderers})
	s.renderer.EXPECT().
		RenderHTML(gomock.Any(), gomock.Any(), TableSelector).
		Return("", render.ErrNoDocument).
		Times(3)

	result := p.Verify(context.Background(), providers.Request{Reference: "FT999"})
	s.False(result.Success)
	s.Equal("render failed", result.Error)
	s.EqualValues(3, s.hits.Load())
}

func (s *AbyssiniaSuite) TestOpenCircuitGoesStraightToRenderer() {
	breaker := circuit.New("abyssinia-direct", circuit.WithFailureThreshold(1), circuit.WithCooldown(time.Hour))
	p := s.provider(Config{Renderers: s.renderers, Breaker: breaker})
	s.renderer.EXPECT().
		RenderHTML(gomock.Any(), gomock.Any(), TableSelector).
		Return(renderedSlip, nil).
		Times(2)

	s.True(p.Verify(context.Background(), providers.Request{Reference: "FT1"}).Success)
	s.True(breaker.IsOpen())
	s.True(p.Verify(context.Background(), providers.Request{Reference: "FT2"}).Success)
	s.EqualValues(1, s.hits.Load(), "second request never touched the direct tier")
}

func (s *AbyssiniaSuite) TestWithoutRenderer() {
	p := s.provider(Config{})
	result := p.Verify(context.Background(), providers.Request{Reference: "FT999"})
	s.False(result.Success)
	s.False(p.Capabilities().Renders)
	s.NoError(p.Health(context.Background()))
}
