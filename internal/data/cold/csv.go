// Package cold reads historical klines from flat files on disk.
package cold

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/glickorun/internal/data"
	"github.com/sawpanic/glickorun/internal/market"
)

var _ data.KlineSource = (*CSVSource)(nil)

// CSVSource reads klines from <Dir>/<ASSET>.csv files with a header row
type CSVSource struct {
	Dir         string
	dateFormats []string // Support multiple date formats
}

// NewCSVSource creates a CSV source rooted at dir
func NewCSVSource(dir string) *CSVSource {
	return &CSVSource{
		Dir: dir,
		dateFormats: []string{
			time.RFC3339,
			"2006-01-02 15:04:05",
			"2006-01-02T15:04:05Z",
			"2006-01-02 15:04:05.000",
			"2006-01-02",
		},
	}
}

// Path returns the file backing asset
func (s *CSVSource) Path(asset string) string {
	return filepath.Join(s.Dir, strings.ToUpper(asset)+".csv")
}

// Klines implements data.KlineSource
func (s *CSVSource) Klines(ctx context.Context, asset string) ([]market.PricePoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.LoadFile(s.Path(asset), asset)
}

// LoadFile reads one CSV file as candles for asset. Rows that fail to parse
// are skipped and counted.
func (s *CSVSource) LoadFile(path, asset string) ([]market.PricePoint, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	columns := s.mapColumns(header)
	for _, required := range []string{"timestamp", "open", "high", "low", "close"} {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("CSV %s missing required %q column", path, required)
		}
	}

	var points []market.PricePoint
	skipped := 0
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row: %w", err)
		}

		p, err := s.parseRecord(record, columns, asset)
		if err != nil {
			skipped++
			continue
		}
		points = append(points, p)
	}

	if skipped > 0 {
		log.Debug().Str("file", path).Int("skipped", skipped).Msg("Skipped unparseable CSV rows")
	}
	market.SortByTime(points)
	return points, nil
}

// mapColumns creates a mapping from column names to indices
func (s *CSVSource) mapColumns(header []string) map[string]int {
	columnMap := make(map[string]int)
	for i, column := range header {
		columnMap[normalizeColumnName(column)] = i
	}
	return columnMap
}

// normalizeColumnName converts various column name formats to standard
func normalizeColumnName(column string) string {
	column = strings.ToLower(strings.TrimSpace(column))
	switch column {
	case "ts", "time", "datetime", "date", "open_time", "timestamp_utc":
		return "timestamp"
	case "o":
		return "open"
	case "h":
		return "high"
	case "l":
		return "low"
	case "c":
		return "close"
	case "v", "vol", "base_volume":
		return "volume"
	case "taker_buy_base_asset_volume", "taker_buy_base_volume", "taker_buy":
		return "taker_buy_volume"
	default:
		return column
	}
}

func (s *CSVSource) parseRecord(record []string, columns map[string]int, asset string) (market.PricePoint, error) {
	field := func(name string) (string, bool) {
		idx, ok := columns[name]
		if !ok || idx >= len(record) {
			return "", false
		}
		return strings.TrimSpace(record[idx]), true
	}
	number := func(name string, required bool) (float64, error) {
		raw, ok := field(name)
		if !ok || raw == "" {
			if required {
				return 0, fmt.Errorf("missing %s", name)
			}
			return 0, nil
		}
		return strconv.ParseFloat(raw, 64)
	}

	raw, _ := field("timestamp")
	ts, err := s.parseTimestamp(raw)
	if err != nil {
		return market.PricePoint{}, err
	}

	p := market.PricePoint{Asset: asset, Timestamp: ts}
	if p.Open, err = number("open", true); err != nil {
		return p, err
	}
	if p.High, err = number("high", true); err != nil {
		return p, err
	}
	if p.Low, err = number("low", true); err != nil {
		return p, err
	}
	if p.Close, err = number("close", true); err != nil {
		return p, err
	}
	if p.Volume, err = number("volume", false); err != nil {
		return p, err
	}
	if p.TakerBuyVolume, err = number("taker_buy_volume", false); err != nil {
		return p, err
	}
	if !p.Valid() {
		return p, fmt.Errorf("invalid candle at %s", ts)
	}
	return p, nil
}

// parseTimestamp handles multiple timestamp formats
func (s *CSVSource) parseTimestamp(timestampStr string) (time.Time, error) {
	for _, format := range s.dateFormats {
		if t, err := time.Parse(format, timestampStr); err == nil {
			return t.UTC(), nil
		}
	}

	// Try parsing as Unix timestamp
	if unixTime, err := strconv.ParseInt(timestampStr, 10, 64); err == nil {
		if unixTime > 1e12 { // Milliseconds
			return time.UnixMilli(unixTime).UTC(), nil
		}
		return time.Unix(unixTime, 0).UTC(), nil
	}

	return time.Time{}, fmt.Errorf("failed to parse timestamp: %s", timestampStr)
}
