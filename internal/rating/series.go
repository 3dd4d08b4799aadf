package rating

import (
	"sort"
	"time"

	"github.com/sawpanic/glickorun/internal/market"
)

// Point is one period's rating snapshot for an asset. Points are append-only
// and ordered by Timestamp within an asset.
type Point struct {
	Asset            string    `json:"asset" db:"asset"`
	Timestamp        time.Time `json:"timestamp" db:"ts"`
	Rating           float64   `json:"rating" db:"rating"`
	Deviation        float64   `json:"deviation" db:"deviation"`
	Volatility       float64   `json:"volatility" db:"volatility"`
	PerformanceScore float64   `json:"performance_score" db:"performance_score"`
}

// Values extracts the rating values of points.
func Values(points []Point) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Rating
	}
	return out
}

// Until returns the prefix of time-ordered points stamped at or before end.
func Until(points []Point, end time.Time) []Point {
	n := sort.Search(len(points), func(i int) bool { return points[i].Timestamp.After(end) })
	return points[:n]
}

// Resample folds candles into fixed periods aligned to the Unix epoch. Each
// folded candle carries the timestamp of the last candle in its period, the
// first moment its close is known. The input must belong to one asset. A non-positive period returns the input
// sorted and otherwise unchanged.
func Resample(points []market.PricePoint, period time.Duration) []market.PricePoint {
	sorted := append([]market.PricePoint(nil), points...)
	market.SortByTime(sorted)
	if period <= 0 || len(sorted) == 0 {
		return sorted
	}

	out := make([]market.PricePoint, 0, len(sorted))
	var cur market.PricePoint
	var bucket time.Time
	for i, p := range sorted {
		b := epochBucket(p.Timestamp, period)
		if i == 0 || !b.Equal(bucket) {
			if i > 0 {
				out = append(out, cur)
			}
			bucket = b
			cur = p
			continue
		}
		if p.High > cur.High {
			cur.High = p.High
		}
		if p.Low < cur.Low {
			cur.Low = p.Low
		}
		cur.Timestamp = p.Timestamp
		cur.Close = p.Close
		cur.Volume += p.Volume
		cur.TakerBuyVolume += p.TakerBuyVolume
	}
	return append(out, cur)
}

// Calculate replays candles through the engine and returns one Point per
// asset per candle, grouped by asset (sorted by name) and ordered by time.
func (e *Engine) Calculate(points []market.PricePoint) []Point {
	byAsset := make(map[string][]market.PricePoint)
	for _, p := range points {
		byAsset[p.Asset] = append(byAsset[p.Asset], p)
	}
	assets := make([]string, 0, len(byAsset))
	for a := range byAsset {
		assets = append(assets, a)
	}
	sort.Strings(assets)

	out := make([]Point, 0, len(points))
	for _, asset := range assets {
		out = append(out, e.CalculateAsset(asset, byAsset[asset])...)
	}
	return out
}

// CalculateAsset rates a single asset's candles in time order.
func (e *Engine) CalculateAsset(asset string, points []market.PricePoint) []Point {
	sorted := append([]market.PricePoint(nil), points...)
	market.SortByTime(sorted)

	state := e.Initial()
	out := make([]Point, 0, len(sorted))
	for _, p := range sorted {
		score := PerformanceScore(p.Open, p.Close, p.Volume, p.TakerBuyVolume)
		state = e.Update(state, score.Value)
		out = append(out, Point{
			Asset:            asset,
			Timestamp:        p.Timestamp,
			Rating:           state.Rating,
			Deviation:        state.Deviation,
			Volatility:       state.Volatility,
			PerformanceScore: score.Value,
		})
	}
	return out
}

func epochBucket(ts time.Time, period time.Duration) time.Time {
	ns := ts.UnixNano()
	return time.Unix(0, ns-ns%int64(period)).UTC()
}
