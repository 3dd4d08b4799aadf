package data

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardedProvider_PassesThrough(t *testing.T) {
	inner := &countingProvider{prices: samplePrices()}
	g := NewGuardedProvider(inner, GuardConfig{Name: "test", RPS: 1000, Burst: 10})

	got, err := g.PriceSeries(context.Background(), "BTCUSDT", rangeStart, rangeEnd)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	ratings, err := g.RatingSeries(context.Background(), "BTCUSDT", rangeStart, rangeEnd)
	require.NoError(t, err)
	assert.Empty(t, ratings)
	assert.Equal(t, 2, inner.calls)
}

func TestGuardedProvider_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	boom := errors.New("upstream down")
	inner := &countingProvider{err: boom}
	cfg := DefaultGuardConfig("flaky")
	cfg.RPS = 1000
	cfg.Burst = 10
	g := NewGuardedProvider(inner, cfg)

	for i := 0; i < 3; i++ {
		_, err := g.PriceSeries(context.Background(), "BTCUSDT", rangeStart, rangeEnd)
		assert.ErrorIs(t, err, boom)
	}
	assert.Equal(t, gobreaker.StateOpen, g.State())

	_, err := g.PriceSeries(context.Background(), "BTCUSDT", rangeStart, rangeEnd)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 3, inner.calls)
}

func TestGuardedProvider_RateLimitHonoursDeadline(t *testing.T) {
	inner := &countingProvider{prices: samplePrices()}
	g := NewGuardedProvider(inner, GuardConfig{Name: "slow", RPS: 0.001, Burst: 1})

	_, err := g.PriceSeries(context.Background(), "BTCUSDT", rangeStart, rangeEnd)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = g.PriceSeries(ctx, "BTCUSDT", rangeStart, rangeEnd)
	assert.Error(t, err)
	assert.Equal(t, 1, inner.calls)

	// Limiters are per asset
	_, err = g.PriceSeries(context.Background(), "ETHUSDT", rangeStart, rangeEnd)
	assert.NoError(t, err)
}
