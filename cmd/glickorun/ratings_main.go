package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/glickorun/internal/data/cold"
	"github.com/sawpanic/glickorun/internal/market"
	"github.com/sawpanic/glickorun/internal/rating"
)

func newRatingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ratings",
		Short: "Compute a Glicko-2 rating series from a kline file",
		Long:  "Reads a CSV or parquet kline file, resamples it to the rating period and writes one rating point per period as JSONL",
		RunE:  runRatings,
	}
	cmd.Flags().String("klines", "", "Kline file (.csv or .parquet), required")
	cmd.Flags().String("asset", "", "Asset symbol (defaults to the file name)")
	cmd.Flags().Duration("period", 7*24*time.Hour, "Rating period, 0 rates every candle")
	cmd.Flags().String("out", "", "Output JSONL file (defaults to stdout)")
	_ = cmd.MarkFlagRequired("klines")
	return cmd
}

func runRatings(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("klines")
	asset, _ := cmd.Flags().GetString("asset")
	period, _ := cmd.Flags().GetDuration("period")
	out, _ := cmd.Flags().GetString("out")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if asset == "" {
		asset = strings.ToUpper(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	}

	points, err := readKlineFile(path, asset)
	if err != nil {
		return err
	}

	engine, err := rating.NewEngine(cfg.Rating)
	if err != nil {
		return fmt.Errorf("failed to create rating engine: %w", err)
	}
	ratings := engine.CalculateAsset(asset, rating.Resample(points, period))

	w := os.Stdout
	if out != "" {
		if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", out, err)
		}
		defer f.Close()
		w = f
	}

	buf := bufio.NewWriter(w)
	enc := json.NewEncoder(buf)
	for _, p := range ratings {
		if err := enc.Encode(p); err != nil {
			return fmt.Errorf("failed to encode rating: %w", err)
		}
	}
	if err := buf.Flush(); err != nil {
		return fmt.Errorf("failed to write ratings: %w", err)
	}

	ev := log.Info().Str("asset", asset).Int("candles", len(points)).Int("ratings", len(ratings))
	if n := len(ratings); n > 0 {
		ev = ev.Float64("final_rating", ratings[n-1].Rating).Float64("final_deviation", ratings[n-1].Deviation)
	}
	ev.Msg("Ratings computed")
	return nil
}

// readKlineFile loads a single kline file by extension
func readKlineFile(path, asset string) ([]market.PricePoint, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return cold.NewCSVSource(filepath.Dir(path)).LoadFile(path, asset)
	case ".parquet":
		points, err := cold.NewParquetStore(filepath.Dir(path)).ReadFile(path)
		if err != nil {
			return nil, err
		}
		for i := range points {
			points[i].Asset = asset
		}
		return points, nil
	}
	return nil, fmt.Errorf("unsupported kline file %s: want .csv or .parquet", path)
}
