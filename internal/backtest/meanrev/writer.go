package meanrev

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sawpanic/glickorun/internal/report/perf"
)

// Clock interface for time operations (injectable for testing)
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using real time
type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now()
}

// Writer handles writing backtest artifacts to disk
type Writer struct {
	outputDir string
	clock     Clock
}

// NewWriter creates a new artifact writer under a dated subdirectory
func NewWriter(outputDir string, clock Clock) *Writer {
	if clock == nil {
		clock = RealClock{}
	}
	dateDir := clock.Now().UTC().Format("2006-01-02")
	return &Writer{
		outputDir: filepath.Join(outputDir, dateDir),
		clock:     clock,
	}
}

// GetOutputDir returns the full output directory path
func (w *Writer) GetOutputDir() string {
	return w.outputDir
}

// GetArtifactPaths returns the artifact locations for this writer
func (w *Writer) GetArtifactPaths() ArtifactPaths {
	return ArtifactPaths{
		ResultsJSONL: filepath.Join(w.outputDir, "results.jsonl"),
		ReportMD:     filepath.Join(w.outputDir, "report.md"),
		OutputDir:    w.outputDir,
	}
}

// summaryLine is the final record of results.jsonl
type summaryLine struct {
	Type     string      `json:"type"`
	Config   Config      `json:"config"`
	Metrics  perf.Record `json:"metrics"`
	Summary  ExitSummary `json:"summary"`
	DataGaps int         `json:"data_gaps"`
}

// WriteResults writes one JSON line per trade followed by a summary line
func (w *Writer) WriteResults(result *Result) error {
	if err := os.MkdirAll(w.outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	file, err := os.Create(w.GetArtifactPaths().ResultsJSONL)
	if err != nil {
		return fmt.Errorf("failed to create results file: %w", err)
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	for _, trade := range result.Trades {
		if err := enc.Encode(trade); err != nil {
			return fmt.Errorf("failed to write trade: %w", err)
		}
	}

	if err := enc.Encode(summaryLine{
		Type:     "summary",
		Config:   result.Config,
		Metrics:  result.Metrics,
		Summary:  result.Summary,
		DataGaps: result.DataGaps,
	}); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}

	return nil
}

// WriteReport writes a markdown report
func (w *Writer) WriteReport(result *Result) error {
	if err := os.MkdirAll(w.outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(w.GetArtifactPaths().ReportMD, []byte(w.generateMarkdownReport(result)), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// generateMarkdownReport generates the complete markdown report
func (w *Writer) generateMarkdownReport(result *Result) string {
	var report strings.Builder
	cfg := result.Config
	m := result.Metrics

	report.WriteString("# Mean-Reversion Backtest Report\n\n")
	report.WriteString(fmt.Sprintf("**Generated**: %s\n", w.clock.Now().UTC().Format("2006-01-02 15:04:05 UTC")))
	report.WriteString(fmt.Sprintf("**Asset**: %s\n", cfg.Asset))
	report.WriteString(fmt.Sprintf("**Period**: %s to %s\n",
		cfg.StartTime.Format("2006-01-02"), cfg.EndTime.Format("2006-01-02")))
	report.WriteString(fmt.Sprintf("**Configuration**: Z=%.2f, MA=%d, TP=%.2f%%, SL=%.2f%%, Fee=%.4f, Capital=%.2f\n\n",
		cfg.ZScoreThreshold, cfg.MovingAveragePeriod, cfg.ProfitPercent, cfg.StopLossPercent, cfg.FeeRate, cfg.InitialCapital))

	report.WriteString("## Executive Summary\n\n")
	if m.NoTrades {
		report.WriteString("- **No trades**: the signal never crossed the entry threshold\n")
	}
	report.WriteString(fmt.Sprintf("- **Total Return**: %.2f%% (annualized %.2f%%)\n", m.TotalReturn, m.AnnualizedReturn))
	report.WriteString(fmt.Sprintf("- **Buy & Hold**: %.2f%% (annualized %.2f%%)\n", m.BenchmarkReturn, m.BenchmarkAnnualizedReturn))
	report.WriteString(fmt.Sprintf("- **Alpha**: %.2f%%\n", m.Alpha))
	report.WriteString(fmt.Sprintf("- **Final Equity**: %.2f\n", m.FinalEquity))
	report.WriteString(fmt.Sprintf("- **Data Gaps**: %d\n\n", result.DataGaps))

	report.WriteString("## Risk\n\n")
	report.WriteString("| Metric | Value |\n")
	report.WriteString("|--------|------:|\n")
	report.WriteString(fmt.Sprintf("| Sharpe | %.3f |\n", m.SharpeRatio))
	report.WriteString(fmt.Sprintf("| Sortino | %.3f |\n", m.SortinoRatio))
	report.WriteString(fmt.Sprintf("| Calmar | %.3f |\n", m.CalmarRatio))
	report.WriteString(fmt.Sprintf("| Max Drawdown | %.2f%% |\n", m.MaxDrawdown*100))
	report.WriteString(fmt.Sprintf("| Volatility | %.2f%% |\n\n", m.AnnualizedVolatility))

	report.WriteString("## Trades\n\n")
	report.WriteString(fmt.Sprintf("- **Total**: %d, win ratio %.1f%%, profit factor %.2f\n",
		m.TotalTrades, m.WinRatio*100, m.ProfitFactor))
	report.WriteString(fmt.Sprintf("- **Avg Duration**: %.1fh\n", m.AvgTradeDurationHours))
	report.WriteString(fmt.Sprintf("- **Exits**: reversion %d, profit target %d, stop loss %d, forced %d\n\n",
		result.Summary.ZScoreReversion, result.Summary.ProfitTarget, result.Summary.StopLoss, result.Summary.ForcedClose))

	if len(result.Trades) > 0 {
		report.WriteString("| Entry | Exit | Entry Px | Exit Px | P&L | P&L % | Reason |\n")
		report.WriteString("|-------|------|---------:|--------:|----:|------:|--------|\n")
		for _, t := range result.Trades {
			report.WriteString(fmt.Sprintf("| %s | %s | %.4f | %.4f | %.2f | %.2f%% | %s |\n",
				t.EntryTime.Format("2006-01-02 15:04"), t.ExitTime.Format("2006-01-02 15:04"),
				t.EntryPrice, t.ExitPrice, t.ProfitLoss, t.ProfitLossPercent, t.ExitReason))
		}
		report.WriteString("\n")
	}

	if len(result.Alerts) > 0 {
		report.WriteString("## Alerts\n\n")
		for _, a := range result.Alerts {
			report.WriteString(fmt.Sprintf("- **%s** %s\n", a.Severity, a.Message))
		}
		report.WriteString("\n")
	}

	return report.String()
}
