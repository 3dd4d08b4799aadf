package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/glickorun/internal/backtest/meanrev"
	"github.com/sawpanic/glickorun/internal/tune/sweep"
)

func newWindowedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "windowed",
		Short: "Run overlapping walk-forward windows",
		Long:  "Splits the backtest window into overlapping windows stepping by half a window and runs each one on the worker pool",
		RunE:  runWindowed,
	}
	addBacktestFlags(cmd.Flags())
	addBatchFlags(cmd)
	cmd.Flags().Int("window-months", 0, "Window length in 30-day months (defaults to sweep.window_months)")
	return cmd
}

func runWindowed(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("window-months") {
		cfg.Sweep.WindowMonths, _ = cmd.Flags().GetInt("window-months")
	}
	if err := applyBatchFlags(cmd, cfg); err != nil {
		return err
	}
	base, err := backtestFromFlags(cmd.Flags(), cfg.Backtest)
	if err != nil {
		return err
	}
	if err := base.Validate(); err != nil {
		return err
	}

	months := cfg.Sweep.WindowMonths
	if months <= 0 {
		months = meanrev.DefaultWindowMonths
	}
	windows := meanrev.Windows(base.StartTime, base.EndTime, months)
	if len(windows) == 0 {
		return fmt.Errorf("no %d-month window fits between %s and %s",
			months, base.StartTime.Format("2006-01-02"), base.EndTime.Format("2006-01-02"))
	}

	// Preload over the whole span so every window shares one cache.
	log.Info().
		Str("config", base.Label()).
		Int("window_months", months).
		Int("windows", len(windows)).
		Msg("Starting walk-forward backtest")

	return runBatch(cmd, cfg, "windowed", []meanrev.Config{base}, func(ctx context.Context, c *sweep.Coordinator) ([]sweep.Outcome, sweep.Summary, error) {
		return sweep.RunWindowed(ctx, c, base, months)
	})
}
