package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/glickorun/internal/backtest/meanrev"
	httpapi "github.com/sawpanic/glickorun/internal/interfaces/http"
	runlog "github.com/sawpanic/glickorun/internal/log"
	"github.com/sawpanic/glickorun/internal/persistence"
	"github.com/sawpanic/glickorun/internal/report/perf"
)

func newBacktestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Run one mean-reversion backtest",
		Long:  "Loads prices and ratings for one asset, replays the z-score strategy and writes results.jsonl and report.md",
		RunE:  runBacktest,
	}
	addBacktestFlags(cmd.Flags())
	cmd.Flags().String("output", "", "Artifact directory (defaults to output.dir)")
	return cmd
}

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	bt, err := backtestFromFlags(cmd.Flags(), cfg.Backtest)
	if err != nil {
		return err
	}
	if err := bt.Validate(); err != nil {
		return err
	}
	outputDir, _ := cmd.Flags().GetString("output")
	if outputDir == "" {
		outputDir = cfg.Output.Dir
	}
	absOutputDir, err := filepath.Abs(outputDir)
	if err != nil {
		return fmt.Errorf("failed to resolve output directory: %w", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	metrics := httpapi.NewMetricsRegistry()
	steps := runlog.NewStepLogger("backtest", []string{"load", "simulate", "persist"})

	steps.StartStep("load")
	timer := metrics.StartStepTimer("load")
	provider, closeProvider, err := openProvider(ctx, cfg, metrics)
	if err != nil {
		timer.Stop("error")
		steps.Fail(err.Error())
		return err
	}
	defer closeProvider()

	cache, err := loadSeries(ctx, provider, cfg, []meanrev.Config{bt})
	if err != nil {
		timer.Stop("error")
		steps.Fail(err.Error())
		return err
	}
	timer.Stop("ok")
	series, _ := cache.Get(bt.Asset)

	steps.StartStep("simulate")
	log.Info().Str("config", bt.Label()).
		Time("start", bt.StartTime).
		Time("end", bt.EndTime).
		Msg("Starting backtest")

	result, err := meanrev.Run(ctx, bt, series.Ratings, series.Prices)
	if err != nil {
		steps.Fail(err.Error())
		return fmt.Errorf("backtest failed: %w", err)
	}
	runID := uuid.NewString()
	result.Alerts = perf.CheckAlerts(result.Metrics, cfg.Thresholds)
	perf.LogAlerts(runID, result.Alerts)

	steps.StartStep("persist")
	writer := meanrev.NewWriter(absOutputDir, nil)
	if err := writer.WriteResults(result); err != nil {
		steps.Fail(err.Error())
		return err
	}
	if err := writer.WriteReport(result); err != nil {
		steps.Fail(err.Error())
		return err
	}

	sink, _, closeSink, err := openSink(ctx, cfg)
	if err != nil {
		steps.Fail(err.Error())
		return err
	}
	defer closeSink()
	if sink != nil {
		rec := persistence.NewRecord(runID, bt, result, persistence.StatusSuccess, nil, time.Now().UTC())
		if err := sink.Save(ctx, rec); err != nil {
			log.Error().Err(err).Str("run_id", runID).Msg("Failed to save run")
		}
	}
	steps.Finish()

	printResult(runID, result, writer.GetArtifactPaths())
	return nil
}

func printResult(runID string, r *meanrev.Result, paths meanrev.ArtifactPaths) {
	m := r.Metrics
	fmt.Printf("Backtest %s (%s)\n", r.Config.Label(), runID)
	fmt.Printf("  Total return:      %8.2f%%   benchmark %8.2f%%   alpha %6.2f\n", m.TotalReturn, m.BenchmarkReturn, m.Alpha)
	fmt.Printf("  Annualized return: %8.2f%%   volatility %7.2f%%\n", m.AnnualizedReturn, m.AnnualizedVolatility)
	fmt.Printf("  Sharpe %.2f  Sortino %.2f  Calmar %.2f  MaxDD %.2f%%\n", m.SharpeRatio, m.SortinoRatio, m.CalmarRatio, m.MaxDrawdown*100)
	fmt.Printf("  Trades %d  win ratio %.1f%%  profit factor %.2f  data gaps %d\n", m.TotalTrades, m.WinRatio*100, m.ProfitFactor, r.DataGaps)
	if len(r.Alerts) > 0 {
		fmt.Printf("  Alerts: %d\n", len(r.Alerts))
	}
	fmt.Printf("  Artifacts: %s\n", paths.OutputDir)
}
