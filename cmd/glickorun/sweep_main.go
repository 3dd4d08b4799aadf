package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/glickorun/internal/backtest/meanrev"
	"github.com/sawpanic/glickorun/internal/config"
	httpapi "github.com/sawpanic/glickorun/internal/interfaces/http"
	"github.com/sawpanic/glickorun/internal/persistence"
	"github.com/sawpanic/glickorun/internal/report/perf"
	"github.com/sawpanic/glickorun/internal/tune/sweep"
)

func newSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run a parameter grid on a bounded worker pool",
		Long:  "Expands sweep.grid over the backtest section, runs every config concurrently and writes a ranked markdown report",
		RunE:  runSweep,
	}
	addBacktestFlags(cmd.Flags())
	addBatchFlags(cmd)
	return cmd
}

// addBatchFlags registers flags shared by sweep and windowed
func addBatchFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Int("workers", 0, "Concurrent runs (defaults to sweep.workers)")
	f.Duration("run-timeout", 0, "Per-run timeout (defaults to sweep.run_timeout)")
	f.String("rank-by", "", "Ranking metric (sharpe_ratio|sortino_ratio|calmar_ratio|total_return|alpha|profit_factor)")
	f.Int("top", 0, "Rows in the report table")
	f.String("sink", "", "JSONL result sink (defaults to output.sink_jsonl)")
	f.String("output", "", "Report directory (defaults to output.dir)")
	f.String("metrics-addr", "", "Serve /metrics on this address while running")
}

// applyBatchFlags overrides the sweep and output sections
func applyBatchFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	if f.Changed("workers") {
		cfg.Sweep.Workers, _ = f.GetInt("workers")
	}
	if f.Changed("run-timeout") {
		cfg.Sweep.RunTimeout, _ = f.GetDuration("run-timeout")
	}
	if f.Changed("rank-by") {
		cfg.Sweep.RankBy, _ = f.GetString("rank-by")
	}
	if f.Changed("top") {
		cfg.Sweep.Top, _ = f.GetInt("top")
	}
	if f.Changed("sink") {
		cfg.Output.SinkJSONL, _ = f.GetString("sink")
	}
	if f.Changed("output") {
		cfg.Output.Dir, _ = f.GetString("output")
	}
	return cfg.Validate()
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyBatchFlags(cmd, cfg); err != nil {
		return err
	}
	base, err := backtestFromFlags(cmd.Flags(), cfg.Backtest)
	if err != nil {
		return err
	}
	if base.Asset == "" && len(cfg.Sweep.Grid.Assets) > 0 {
		base.Asset = cfg.Sweep.Grid.Assets[0]
	}
	if err := base.Validate(); err != nil {
		return err
	}

	configs := cfg.Sweep.Grid.Expand(base)
	log.Info().
		Int("runs", len(configs)).
		Int("workers", cfg.Sweep.Workers).
		Dur("run_timeout", cfg.Sweep.RunTimeout).
		Msg("Starting parameter sweep")

	return runBatch(cmd, cfg, "sweep", configs, func(ctx context.Context, c *sweep.Coordinator) ([]sweep.Outcome, sweep.Summary, error) {
		outcomes, summary := c.Run(ctx, configs)
		return outcomes, summary, nil
	})
}

// batchFunc drives a coordinator over one batch
type batchFunc func(ctx context.Context, c *sweep.Coordinator) ([]sweep.Outcome, sweep.Summary, error)

// runBatch loads the series for configs, wires the coordinator with the
// configured sinks and metrics, runs fn and writes the ranked report.
func runBatch(cmd *cobra.Command, cfg *config.Config, name string, configs []meanrev.Config, fn batchFunc) error {
	ctx, cancel := signalContext()
	defer cancel()

	metrics := httpapi.NewMetricsRegistry()

	provider, closeProvider, err := openProvider(ctx, cfg, metrics)
	if err != nil {
		return err
	}
	defer closeProvider()

	timer := metrics.StartStepTimer("load")
	cache, err := loadSeries(ctx, provider, cfg, configs)
	if err != nil {
		timer.Stop("error")
		return err
	}
	timer.Stop("ok")

	sink, manager, closeSink, err := openSink(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSink()

	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	stopServer := startMetricsServer(metricsAddr, cfg, metrics, manager)
	defer stopServer()

	opts := []sweep.Option{sweep.WithMetrics(metrics)}
	if sink != nil {
		opts = append(opts, sweep.WithSink(sink))
	}
	if stderrIsTerminal() {
		opts = append(opts, sweep.WithProgressBar(os.Stderr))
	}
	coordinator := sweep.NewCoordinator(cfg.Sweep.Config, cache, opts...)

	timer = metrics.StartStepTimer(name)
	outcomes, summary, err := fn(ctx, coordinator)
	if err != nil {
		timer.Stop("error")
		return err
	}
	timer.Stop("ok")

	reportPath := filepath.Join(cfg.Output.Dir, fmt.Sprintf("%s_report_%s.md", name, time.Now().UTC().Format("20060102T150405Z")))
	report := sweep.NewReportGenerator(cfg.Sweep.RankBy, cfg.Sweep.Top)
	if err := report.GenerateReport(reportPath, outcomes, summary); err != nil {
		return err
	}

	log.Info().
		Int("total", summary.Total).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Int("timed_out", summary.TimedOut).
		Dur("duration", summary.Duration).
		Str("report", reportPath).
		Msgf("%s completed", name)

	logAlertSummary(outcomes, cfg.Thresholds)
	printTop(outcomes, cfg.Sweep.RankBy, 5)
	if summary.Succeeded == 0 && summary.Total > 0 {
		return fmt.Errorf("all %d runs failed", summary.Total)
	}
	return ctx.Err()
}

// logAlertSummary checks every successful run against the review thresholds
func logAlertSummary(outcomes []sweep.Outcome, th perf.Thresholds) {
	var alerts []perf.Alert
	for _, o := range outcomes {
		if o.Status == persistence.StatusSuccess && o.Result != nil {
			alerts = append(alerts, perf.CheckAlerts(o.Result.Metrics, th)...)
		}
	}
	if len(alerts) == 0 {
		return
	}
	summary := perf.SummarizeAlerts(alerts)
	log.Warn().
		Int("alerts", summary.TotalAlerts).
		Interface("by_severity", summary.BySeverity).
		Interface("by_metric", summary.ByMetric).
		Msg("Runs breached review thresholds")
}

func printTop(outcomes []sweep.Outcome, metric string, n int) {
	ranked, err := sweep.Rank(outcomes, metric)
	if err != nil || len(ranked) == 0 {
		return
	}
	if len(ranked) < n {
		n = len(ranked)
	}
	fmt.Printf("Top %d by %s:\n", n, metric)
	for i, o := range ranked[:n] {
		m := o.Result.Metrics
		fmt.Printf("  %d. %-48s return %8.2f%%  sharpe %6.2f  maxDD %6.2f%%  trades %d\n",
			i+1, o.Config.Label(), m.TotalReturn, m.SharpeRatio, m.MaxDrawdown*100, m.TotalTrades)
	}
}
