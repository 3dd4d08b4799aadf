package cold

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/sawpanic/glickorun/internal/data"
	"github.com/sawpanic/glickorun/internal/market"
)

var _ data.KlineSource = (*ParquetStore)(nil)

// ParquetStore keeps one Parquet file of klines per asset at <Dir>/<ASSET>.parquet
type ParquetStore struct {
	Dir string
}

// NewParquetStore creates a ParquetStore rooted at dir
func NewParquetStore(dir string) *ParquetStore {
	return &ParquetStore{Dir: dir}
}

// KlineRecord is the Parquet schema for one candle
type KlineRecord struct {
	Asset          string  `parquet:"asset"`
	Timestamp      int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open           float64 `parquet:"open"`
	High           float64 `parquet:"high"`
	Low            float64 `parquet:"low"`
	Close          float64 `parquet:"close"`
	Volume         float64 `parquet:"volume"`
	TakerBuyVolume float64 `parquet:"taker_buy_volume"`
}

// Path returns the file backing asset
func (s *ParquetStore) Path(asset string) string {
	return filepath.Join(s.Dir, strings.ToUpper(asset)+".parquet")
}

// Klines implements data.KlineSource
func (s *ParquetStore) Klines(ctx context.Context, asset string) ([]market.PricePoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.ReadFile(s.Path(asset))
}

// ReadFile reads every candle in a Parquet file, time ordered
func (s *ParquetStore) ReadFile(path string) ([]market.PricePoint, error) {
	records, err := parquet.ReadFile[KlineRecord](path)
	if err != nil {
		return nil, fmt.Errorf("reading klines %s: %w", path, err)
	}
	points := make([]market.PricePoint, 0, len(records))
	for _, r := range records {
		points = append(points, market.PricePoint{
			Asset:          r.Asset,
			Timestamp:      time.UnixMilli(r.Timestamp).UTC(),
			Open:           r.Open,
			High:           r.High,
			Low:            r.Low,
			Close:          r.Close,
			Volume:         r.Volume,
			TakerBuyVolume: r.TakerBuyVolume,
		})
	}
	market.SortByTime(points)
	return points, nil
}

// WriteKlines merges points into the asset's file. Incoming candles replace
// stored ones with the same timestamp.
func (s *ParquetStore) WriteKlines(_ context.Context, asset string, points []market.PricePoint) error {
	if len(points) == 0 {
		return nil
	}
	path := s.Path(asset)

	var existing []KlineRecord
	if _, err := os.Stat(path); err == nil {
		existing, err = parquet.ReadFile[KlineRecord](path)
		if err != nil {
			return fmt.Errorf("reading existing klines %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checking klines file %s: %w", path, err)
	}

	incoming := make([]KlineRecord, 0, len(points))
	for _, p := range points {
		incoming = append(incoming, KlineRecord{
			Asset:          asset,
			Timestamp:      p.Timestamp.UnixMilli(),
			Open:           p.Open,
			High:           p.High,
			Low:            p.Low,
			Close:          p.Close,
			Volume:         p.Volume,
			TakerBuyVolume: p.TakerBuyVolume,
		})
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := parquet.WriteFile(path, mergeKlineRecords(existing, incoming)); err != nil {
		return fmt.Errorf("writing klines for %s: %w", asset, err)
	}
	return nil
}

// mergeKlineRecords deduplicates by timestamp, preferring incoming records
func mergeKlineRecords(existing, incoming []KlineRecord) []KlineRecord {
	seen := make(map[int64]KlineRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.Timestamp] = r
	}
	for _, r := range incoming {
		seen[r.Timestamp] = r
	}

	merged := make([]KlineRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Timestamp < merged[j].Timestamp })
	return merged
}
