package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/glickorun/internal/data/cold"
)

func newConvertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert ASSET...",
		Short: "Convert CSV klines to parquet",
		Long:  "Reads <dir>/<ASSET>.csv for each asset and merges the candles into <out>/<ASSET>.parquet",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runConvert,
	}
	cmd.Flags().String("dir", "", "CSV directory (defaults to data.dir)")
	cmd.Flags().String("out", "", "Parquet directory, required")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func runConvert(cmd *cobra.Command, args []string) error {
	dir, _ := cmd.Flags().GetString("dir")
	out, _ := cmd.Flags().GetString("out")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if dir == "" {
		dir = cfg.Data.Dir
	}

	ctx, cancel := signalContext()
	defer cancel()

	src := cold.NewCSVSource(dir)
	dst := cold.NewParquetStore(out)
	for _, asset := range args {
		points, err := src.Klines(ctx, asset)
		if err != nil {
			return err
		}
		if err := dst.WriteKlines(ctx, asset, points); err != nil {
			return fmt.Errorf("failed to convert %s: %w", asset, err)
		}
		log.Info().
			Str("asset", asset).
			Int("candles", len(points)).
			Str("path", dst.Path(asset)).
			Msg("Klines converted")
	}
	return nil
}
