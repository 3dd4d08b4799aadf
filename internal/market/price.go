// Package market holds the candle type shared by the rating, simulation and
// data layers.
package market

import (
	"sort"
	"time"
)

// PricePoint is one OHLCV candle for an asset. Prices and volumes are never negative.
type PricePoint struct {
	Asset          string    `json:"asset"`
	Timestamp      time.Time `json:"timestamp"`
	Open           float64   `json:"open"`
	High           float64   `json:"high"`
	Low            float64   `json:"low"`
	Close          float64   `json:"close"`
	Volume         float64   `json:"volume"`
	TakerBuyVolume float64   `json:"taker_buy_volume,omitempty"`
}

// Valid reports whether the candle carries usable, non-negative prices.
func (p PricePoint) Valid() bool {
	return p.Open >= 0 && p.High >= 0 && p.Low >= 0 && p.Close > 0 && p.Volume >= 0 && !p.Timestamp.IsZero()
}

// SortByTime orders candles ascending by timestamp in place.
func SortByTime(points []PricePoint) {
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Timestamp.Before(points[j].Timestamp)
	})
}

// Between returns the candles with start <= ts <= end. Input must be time ordered.
func Between(points []PricePoint, start, end time.Time) []PricePoint {
	lo := sort.Search(len(points), func(i int) bool { return !points[i].Timestamp.Before(start) })
	hi := sort.Search(len(points), func(i int) bool { return points[i].Timestamp.After(end) })
	if lo >= hi {
		return nil
	}
	return points[lo:hi]
}

// Index maps exact timestamps to candles for O(1) alignment lookups.
type Index map[int64]PricePoint

// NewIndex builds an Index keyed by Unix milliseconds.
func NewIndex(points []PricePoint) Index {
	idx := make(Index, len(points))
	for _, p := range points {
		idx[p.Timestamp.UnixMilli()] = p
	}
	return idx
}

// At returns the candle stamped exactly at ts.
func (i Index) At(ts time.Time) (PricePoint, bool) {
	p, ok := i[ts.UnixMilli()]
	return p, ok
}
