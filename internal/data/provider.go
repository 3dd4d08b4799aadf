// Package data supplies time-ordered price and rating series to backtests.
package data

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sawpanic/glickorun/internal/market"
	"github.com/sawpanic/glickorun/internal/rating"
)

// Provider returns series for one asset in ascending timestamp order, both
// ends inclusive. Gaps are allowed and handled by the simulator.
type Provider interface {
	PriceSeries(ctx context.Context, asset string, start, end time.Time) ([]market.PricePoint, error)
	RatingSeries(ctx context.Context, asset string, start, end time.Time) ([]rating.Point, error)
}

// KlineSource loads raw candles for an asset, in any order.
type KlineSource interface {
	Klines(ctx context.Context, asset string) ([]market.PricePoint, error)
}

// Series is the preloaded input of every run on one asset
type Series struct {
	Asset   string
	Prices  []market.PricePoint
	Ratings []rating.Point
}

// SeriesCache holds preloaded series shared by all runs of a sweep. It is
// filled once by BuildSeriesCache or NewSeriesCache and only read afterwards,
// so it needs no locking. Callers must not modify returned slices.
type SeriesCache struct {
	series map[string]Series
}

// NewSeriesCache wraps already loaded series
func NewSeriesCache(series ...Series) *SeriesCache {
	c := &SeriesCache{series: make(map[string]Series, len(series))}
	for _, s := range series {
		c.series[s.Asset] = s
	}
	return c
}

// CacheRequest describes what to preload
type CacheRequest struct {
	Assets []string
	Start  time.Time
	End    time.Time
	// RatingLookback extends the rating range before Start so the first
	// z-score window is already filled at Start.
	RatingLookback time.Duration
}

// BuildSeriesCache loads every requested asset from p
func BuildSeriesCache(ctx context.Context, p Provider, req CacheRequest) (*SeriesCache, error) {
	c := &SeriesCache{series: make(map[string]Series, len(req.Assets))}
	for _, asset := range req.Assets {
		prices, err := p.PriceSeries(ctx, asset, req.Start, req.End)
		if err != nil {
			return nil, fmt.Errorf("failed to load prices for %s: %w", asset, err)
		}
		ratings, err := p.RatingSeries(ctx, asset, req.Start.Add(-req.RatingLookback), req.End)
		if err != nil {
			return nil, fmt.Errorf("failed to load ratings for %s: %w", asset, err)
		}
		c.series[asset] = Series{Asset: asset, Prices: prices, Ratings: ratings}
	}
	return c, nil
}

// Get returns the series for asset
func (c *SeriesCache) Get(asset string) (Series, bool) {
	s, ok := c.series[asset]
	return s, ok
}

// Assets lists cached assets in sorted order
func (c *SeriesCache) Assets() []string {
	out := make([]string, 0, len(c.series))
	for a := range c.series {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}
