package sweep

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sawpanic/glickorun/internal/persistence"
	"github.com/sawpanic/glickorun/internal/report/perf"
)

// Ranking metrics
const (
	BySharpe       = "sharpe_ratio"
	BySortino      = "sortino_ratio"
	ByCalmar       = "calmar_ratio"
	ByTotalReturn  = "total_return"
	ByAlpha        = "alpha"
	ByProfitFactor = "profit_factor"
)

func metricValue(rec perf.Record, metric string) (float64, error) {
	switch metric {
	case BySharpe, "":
		return rec.SharpeRatio, nil
	case BySortino:
		return rec.SortinoRatio, nil
	case ByCalmar:
		return rec.CalmarRatio, nil
	case ByTotalReturn:
		return rec.TotalReturn, nil
	case ByAlpha:
		return rec.Alpha, nil
	case ByProfitFactor:
		return rec.ProfitFactor, nil
	}
	return 0, fmt.Errorf("unknown ranking metric %q", metric)
}

// Rank returns the successful outcomes ordered best first by metric. Ties
// keep submission order.
func Rank(outcomes []Outcome, metric string) ([]Outcome, error) {
	if _, err := metricValue(perf.Record{}, metric); err != nil {
		return nil, err
	}
	ranked := make([]Outcome, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Status == persistence.StatusSuccess && o.Result != nil {
			ranked = append(ranked, o)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		a, _ := metricValue(ranked[i].Result.Metrics, metric)
		b, _ := metricValue(ranked[j].Result.Metrics, metric)
		return a > b
	})
	return ranked, nil
}

// ReportGenerator writes markdown sweep reports
type ReportGenerator struct {
	Metric string
	Top    int
	Now    func() time.Time
}

// NewReportGenerator creates a report generator ranking by metric
func NewReportGenerator(metric string, top int) *ReportGenerator {
	if top <= 0 {
		top = 20
	}
	return &ReportGenerator{Metric: metric, Top: top, Now: time.Now}
}

// GenerateReport writes the report for outcomes to filePath
func (rg *ReportGenerator) GenerateReport(filePath string, outcomes []Outcome, summary Summary) error {
	report, err := rg.BuildReport(outcomes, summary)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	return os.WriteFile(filePath, []byte(report), 0o644)
}

// BuildReport renders the markdown report
func (rg *ReportGenerator) BuildReport(outcomes []Outcome, summary Summary) (string, error) {
	ranked, err := Rank(outcomes, rg.Metric)
	if err != nil {
		return "", err
	}
	metric := rg.Metric
	if metric == "" {
		metric = BySharpe
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Parameter Sweep Report\n\n")
	fmt.Fprintf(&b, "**Generated:** %s\n\n", rg.Now().UTC().Format("2006-01-02 15:04:05 MST"))

	b.WriteString("## Summary\n\n")
	fmt.Fprintf(&b, "- **Runs**: %d\n", summary.Total)
	fmt.Fprintf(&b, "- **Succeeded**: %d\n", summary.Succeeded)
	fmt.Fprintf(&b, "- **Failed**: %d\n", summary.Failed)
	fmt.Fprintf(&b, "- **Timed out**: %d\n", summary.TimedOut)
	fmt.Fprintf(&b, "- **Duration**: %s\n\n", summary.Duration.Round(time.Millisecond))

	fmt.Fprintf(&b, "## Top Runs by %s\n\n", metric)
	if len(ranked) == 0 {
		b.WriteString("No successful runs.\n")
	} else {
		b.WriteString("| Rank | Asset | Window | Z | MA | TP % | SL % | Trades | Return % | Sharpe | Max DD % | Win % |\n")
		b.WriteString("|------|-------|--------|---|----|------|------|--------|----------|--------|----------|-------|\n")
		for i, o := range ranked {
			if i >= rg.Top {
				break
			}
			m := o.Result.Metrics
			fmt.Fprintf(&b, "| %d | %s | %s → %s | %.2f | %d | %.1f | %.1f | %d | %.2f | %.2f | %.2f | %.1f |\n",
				i+1, o.Config.Asset,
				o.Config.StartTime.Format("2006-01-02"), o.Config.EndTime.Format("2006-01-02"),
				o.Config.ZScoreThreshold, o.Config.MovingAveragePeriod,
				o.Config.ProfitPercent, o.Config.StopLossPercent,
				m.TotalTrades, m.TotalReturn, m.SharpeRatio, m.MaxDrawdown*100, m.WinRatio*100)
		}
	}

	var failures []Outcome
	for _, o := range outcomes {
		if o.Status != persistence.StatusSuccess {
			failures = append(failures, o)
		}
	}
	if len(failures) > 0 {
		b.WriteString("\n## Failed Runs\n\n")
		for _, o := range failures {
			fmt.Fprintf(&b, "- `%s` %s [%s]: %v\n", o.RunID, o.Config.Label(), o.Status, o.Err)
		}
	}
	return b.String(), nil
}
