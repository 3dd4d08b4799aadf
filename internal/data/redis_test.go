package data

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/glickorun/internal/market"
	"github.com/sawpanic/glickorun/internal/rating"
)

var (
	rangeStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rangeEnd   = time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
)

// countingProvider serves fixed series and counts calls
type countingProvider struct {
	prices  []market.PricePoint
	ratings []rating.Point
	err     error
	calls   int
}

func (p *countingProvider) PriceSeries(context.Context, string, time.Time, time.Time) ([]market.PricePoint, error) {
	p.calls++
	return p.prices, p.err
}

func (p *countingProvider) RatingSeries(context.Context, string, time.Time, time.Time) ([]rating.Point, error) {
	p.calls++
	return p.ratings, p.err
}

func samplePrices() []market.PricePoint {
	return []market.PricePoint{
		{Asset: "BTCUSDT", Timestamp: rangeStart, Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 10},
		{Asset: "BTCUSDT", Timestamp: rangeEnd, Open: 100.5, High: 103, Low: 100, Close: 102, Volume: 12},
	}
}

func TestRedisTier_MissLoadsAndStores(t *testing.T) {
	db, mock := redismock.NewClientMock()
	inner := &countingProvider{prices: samplePrices()}
	tier := NewRedisTier(db, inner, time.Hour)

	key := seriesKey("prices", "BTCUSDT", rangeStart, rangeEnd)
	raw, err := json.Marshal(inner.prices)
	require.NoError(t, err)

	mock.ExpectGet(key).RedisNil()
	mock.ExpectSet(key, raw, time.Hour).SetVal("OK")

	got, err := tier.PriceSeries(context.Background(), "BTCUSDT", rangeStart, rangeEnd)
	require.NoError(t, err)
	assert.Equal(t, inner.prices, got)
	assert.Equal(t, 1, inner.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisTier_HitSkipsInner(t *testing.T) {
	db, mock := redismock.NewClientMock()
	inner := &countingProvider{}
	tier := NewRedisTier(db, inner, time.Hour)

	want := []rating.Point{{Asset: "BTCUSDT", Timestamp: rangeStart, Rating: 1512.5, Deviation: 290, Volatility: 0.06, PerformanceScore: 1}}
	raw, err := json.Marshal(want)
	require.NoError(t, err)

	mock.ExpectGet(seriesKey("ratings", "BTCUSDT", rangeStart, rangeEnd)).SetVal(string(raw))

	got, err := tier.RatingSeries(context.Background(), "BTCUSDT", rangeStart, rangeEnd)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, want[0].Timestamp.Equal(got[0].Timestamp))
	assert.Equal(t, want[0].Rating, got[0].Rating)
	assert.Zero(t, inner.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisTier_RedisErrorFallsThrough(t *testing.T) {
	db, mock := redismock.NewClientMock()
	inner := &countingProvider{prices: samplePrices()}
	tier := NewRedisTier(db, inner, time.Hour)

	key := seriesKey("prices", "BTCUSDT", rangeStart, rangeEnd)
	raw, err := json.Marshal(inner.prices)
	require.NoError(t, err)

	mock.ExpectGet(key).SetErr(redis.TxFailedErr)
	mock.ExpectSet(key, raw, time.Hour).SetErr(redis.TxFailedErr)

	got, err := tier.PriceSeries(context.Background(), "BTCUSDT", rangeStart, rangeEnd)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisTier_Invalidate(t *testing.T) {
	db, mock := redismock.NewClientMock()
	tier := NewRedisTier(db, &countingProvider{}, 0)

	keys := []string{"glickorun:v1:prices:BTCUSDT:1:2", "glickorun:v1:ratings:BTCUSDT:1:2"}
	mock.ExpectKeys("glickorun:v1:*:BTCUSDT:*").SetVal(keys)
	mock.ExpectDel(keys...).SetVal(2)

	require.NoError(t, tier.Invalidate(context.Background(), "BTCUSDT"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

type lookupRecorder struct {
	hits, misses int
}

func (l *lookupRecorder) RecordCacheLookup(tier string, hit bool) {
	if hit {
		l.hits++
		return
	}
	l.misses++
}

func TestRedisTier_ReportsLookups(t *testing.T) {
	db, mock := redismock.NewClientMock()
	inner := &countingProvider{prices: samplePrices()}
	rec := &lookupRecorder{}
	tier := NewRedisTier(db, inner, time.Hour).Observe(rec)

	key := seriesKey("prices", "BTCUSDT", rangeStart, rangeEnd)
	raw, err := json.Marshal(inner.prices)
	require.NoError(t, err)

	mock.ExpectGet(key).RedisNil()
	mock.ExpectSet(key, raw, time.Hour).SetVal("OK")
	mock.ExpectGet(key).SetVal(string(raw))

	for i := 0; i < 2; i++ {
		_, err := tier.PriceSeries(context.Background(), "BTCUSDT", rangeStart, rangeEnd)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, rec.hits)
	assert.Equal(t, 1, rec.misses)
	assert.Equal(t, 1, inner.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}
