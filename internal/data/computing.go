package data

import (
	"context"
	"fmt"
	"time"

	"github.com/sawpanic/glickorun/internal/market"
	"github.com/sawpanic/glickorun/internal/rating"
)

// ComputingProvider derives rating series from raw candles. Ratings are
// path dependent, so they are always computed from the first candle and
// trimmed to the requested range afterwards.
type ComputingProvider struct {
	source KlineSource
	engine *rating.Engine
	period time.Duration
}

// NewComputingProvider rates candles from source after resampling them to
// period. A zero period rates every candle.
func NewComputingProvider(source KlineSource, engine *rating.Engine, period time.Duration) *ComputingProvider {
	return &ComputingProvider{source: source, engine: engine, period: period}
}

// PriceSeries returns the asset's candles in [start, end]
func (p *ComputingProvider) PriceSeries(ctx context.Context, asset string, start, end time.Time) ([]market.PricePoint, error) {
	klines, err := p.load(ctx, asset)
	if err != nil {
		return nil, err
	}
	return clonePrices(market.Between(klines, start, end)), nil
}

// RatingSeries returns ratings stamped in [start, end]
func (p *ComputingProvider) RatingSeries(ctx context.Context, asset string, start, end time.Time) ([]rating.Point, error) {
	klines, err := p.load(ctx, asset)
	if err != nil {
		return nil, err
	}
	all := p.engine.CalculateAsset(asset, rating.Resample(klines, p.period))

	out := make([]rating.Point, 0, len(all))
	for _, r := range all {
		if r.Timestamp.Before(start) || r.Timestamp.After(end) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (p *ComputingProvider) load(ctx context.Context, asset string) ([]market.PricePoint, error) {
	klines, err := p.source.Klines(ctx, asset)
	if err != nil {
		return nil, fmt.Errorf("failed to load klines for %s: %w", asset, err)
	}
	sorted := clonePrices(klines)
	market.SortByTime(sorted)
	return sorted, nil
}

func clonePrices(in []market.PricePoint) []market.PricePoint {
	return append([]market.PricePoint(nil), in...)
}
