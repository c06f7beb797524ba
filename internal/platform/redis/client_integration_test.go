//go:build integration

package redis

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slipcheck/internal/platform/config"
	"slipcheck/pkg/testutil/containers"
)

func TestClient(t *testing.T) {
	rc := containers.GetManager().GetRedis(t)
	ctx := context.Background()

	client, err := New(ctx, config.RedisConfig{
		URL:          rc.URL,
		PoolSize:     4,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	}, prometheus.NewRegistry())
	require.NoError(t, err)
	require.NotNil(t, client)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Health(ctx))
	require.NoError(t, client.Set(ctx, "receipt:probe", "1", time.Minute).Err())

	client.RecordPoolStats()
	assert.GreaterOrEqual(t, testutil.ToFloat64(client.metrics.totalConns), 1.0)
}

func TestNewWithoutURL(t *testing.T) {
	client, err := New(context.Background(), config.RedisConfig{}, prometheus.NewRegistry())
	assert.NoError(t, err)
	assert.Nil(t, client)
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := New(context.Background(), config.RedisConfig{URL: "http://nope"}, prometheus.NewRegistry())
	assert.ErrorContains(t, err, "parse redis URL")
}
