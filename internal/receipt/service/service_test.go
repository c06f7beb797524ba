package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks CacheInvalidator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"slipcheck/internal/receipt/cache"
	"slipcheck/internal/receipt/metrics"
	"slipcheck/internal/receipt/models"
	"slipcheck/internal/receipt/providers"
	providermocks "slipcheck/internal/receipt/providers/mocks"
	"slipcheck/internal/receipt/service/mocks"
	dErrors "slipcheck/pkg/domain-errors"
)

type ServiceSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	cbe      *providermocks.MockProvider
	awash    *providermocks.MockProvider
	registry *providers.ProviderRegistry
	metrics  *metrics.Metrics
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.cbe = providermocks.NewMockProvider(s.ctrl)
	s.cbe.EXPECT().Code().Return("cbe").AnyTimes()
	s.awash = providermocks.NewMockProvider(s.ctrl)
	s.awash.EXPECT().Code().Return("awash").AnyTimes()

	s.registry = providers.NewProviderRegistry()
	s.Require().NoError(s.registry.Register(s.cbe))
	s.Require().NoError(s.registry.Register(s.awash))
	s.metrics = metrics.NewWithRegisterer(prometheus.NewRegistry())
}

func (s *ServiceSuite) TestVerifyRoutesToProvider() {
	amount := decimal.RequireFromString("10")
	want := models.VerifyResult{Success: true, Provider: "cbe", Receiver: "Jane Roe", Amount: &amount}
	s.cbe.EXPECT().
		Verify(gomock.Any(), providers.Request{
			Reference: "FT1",
			Args:      map[string]string{providers.ArgAccountSuffix: "1234"},
		}).
		Return(want)

	svc := New(s.registry)
	got := svc.Verify(context.Background(), " CBE ", "FT1", map[string]string{providers.ArgAccountSuffix: "1234"})
	s.Equal(want, got)
}

func (s *ServiceSuite) TestVerifyUnknownProvider() {
	svc := New(s.registry)
	got := svc.Verify(context.Background(), "dashen", "FT1", nil)
	s.False(got.Success)
	s.Equal("unsupported provider", got.Error)
	s.Equal("dashen", got.Provider)
}

func (s *ServiceSuite) TestInvalidateRemovesEverySuffix() {
	store := cache.NewInMemoryStore(time.Minute)
	amount := decimal.RequireFromString("10")
	ok := models.VerifyResult{Success: true, Receiver: "Jane Roe", Amount: &amount}
	ctx := context.Background()
	s.Require().NoError(store.Set(ctx, cache.Key("cbe", "FT1", "1111"), ok, 0))
	s.Require().NoError(store.Set(ctx, cache.Key("cbe", "FT1", "2222"), ok, 0))
	s.Require().NoError(store.Set(ctx, cache.Key("cbe", "FT1"), ok, 0))
	s.Require().NoError(store.Set(ctx, cache.Key("cbe", "FT12", "1111"), ok, 0))

	svc := New(s.registry, WithCache(store), WithMetrics(s.metrics))
	removed, err := svc.Invalidate(ctx, "cbe", "ft1")
	s.Require().NoError(err)
	s.Equal(3, removed)
	s.Equal(1, store.Len(), "longer reference sharing the prefix survives")
	s.Equal(3.0, testutil.ToFloat64(s.metrics.CacheEvictionsTotal))
}

func (s *ServiceSuite) TestInvalidateErrors() {
	invalidator := mocks.NewMockCacheInvalidator(s.ctrl)
	svc := New(s.registry, WithCache(invalidator))
	ctx := context.Background()

	_, err := svc.Invalidate(ctx, "dashen", "FT1")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = svc.Invalidate(ctx, "cbe", "  ")
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))

	invalidator.EXPECT().DeletePattern(gomock.Any(), gomock.Any()).Return(0, errors.New("connection refused"))
	_, err = svc.Invalidate(ctx, "cbe", "FT1")
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *ServiceSuite) TestInvalidateWithoutCache() {
	removed, err := New(s.registry).Invalidate(context.Background(), "cbe", "FT1")
	s.NoError(err)
	s.Zero(removed)
}

func (s *ServiceSuite) TestHealthProbesEveryProvider() {
	down := errors.New("dial tcp: connection refused")
	s.cbe.EXPECT().Health(gomock.Any()).Return(nil)
	s.awash.EXPECT().Health(gomock.Any()).DoAndReturn(func(ctx context.Context) error {
		_, hasDeadline := ctx.Deadline()
		s.True(hasDeadline)
		return down
	})

	got := New(s.registry, WithHealthTimeout(time.Second)).Health(context.Background())
	s.Len(got, 2)
	s.NoError(got["cbe"])
	s.ErrorIs(got["awash"], down)
}

func (s *ServiceSuite) TestProvidersSortedWithCapabilities() {
	s.cbe.EXPECT().Capabilities().Return(providers.Capabilities{
		Format:       providers.FormatPDF,
		RequiredArgs: []string{providers.ArgAccountSuffix},
	})
	s.awash.EXPECT().Capabilities().Return(providers.Capabilities{Format: providers.FormatHTML})

	infos := New(s.registry).Providers()
	s.Require().Len(infos, 2)
	s.Equal("awash", infos[0].Code)
	s.Equal(providers.FormatPDF, infos[1].Capabilities.Format)
}
