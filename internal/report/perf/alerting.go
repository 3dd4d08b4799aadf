package perf

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

// Alert flags a metric that breached a review threshold
type Alert struct {
	Severity  string  `json:"severity"`  // CRITICAL, WARNING
	Metric    string  `json:"metric"`    // Metric that triggered alert
	Message   string  `json:"message"`   // Human-readable alert message
	Value     float64 `json:"value"`     // Actual metric value
	Threshold float64 `json:"threshold"` // Threshold that was breached
}

// Thresholds configures which records get flagged for review
type Thresholds struct {
	MinSharpeRatio   float64 `yaml:"min_sharpe_ratio"`   // default: 1.0
	MaxDrawdown      float64 `yaml:"max_drawdown"`       // fraction (default: 0.20)
	MinWinRatio      float64 `yaml:"min_win_ratio"`      // default: 0.40
	MinProfitFactor  float64 `yaml:"min_profit_factor"`  // default: 1.0
	MaxAnnualizedVol float64 `yaml:"max_annualized_vol"` // percent (default: 80)
}

// DefaultThresholds returns sensible defaults
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinSharpeRatio:   1.0,
		MaxDrawdown:      0.20,
		MinWinRatio:      0.40,
		MinProfitFactor:  1.0,
		MaxAnnualizedVol: 80,
	}
}

// CheckAlerts checks a metrics record against thresholds. Trade-based checks
// are skipped for no-trade records.
func CheckAlerts(rec Record, th Thresholds) []Alert {
	alerts := make([]Alert, 0)

	if rec.MaxDrawdown > th.MaxDrawdown {
		severity := "WARNING"
		if rec.MaxDrawdown > th.MaxDrawdown*1.5 { // 1.5x threshold = critical
			severity = "CRITICAL"
		}
		alerts = append(alerts, Alert{
			Severity:  severity,
			Metric:    "max_drawdown",
			Message:   fmt.Sprintf("Maximum drawdown %.2f%% exceeds threshold of %.2f%%", rec.MaxDrawdown*100, th.MaxDrawdown*100),
			Value:     rec.MaxDrawdown,
			Threshold: th.MaxDrawdown,
		})
	}

	if rec.AnnualizedVolatility > th.MaxAnnualizedVol {
		alerts = append(alerts, Alert{
			Severity:  "WARNING",
			Metric:    "annualized_volatility",
			Message:   fmt.Sprintf("Annualized volatility %.2f%% is excessive", rec.AnnualizedVolatility),
			Value:     rec.AnnualizedVolatility,
			Threshold: th.MaxAnnualizedVol,
		})
	}

	if rec.NoTrades {
		return alerts
	}

	if rec.SharpeRatio < th.MinSharpeRatio {
		alerts = append(alerts, Alert{
			Severity:  "WARNING",
			Metric:    "sharpe_ratio",
			Message:   fmt.Sprintf("Sharpe ratio %.2f is below minimum threshold of %.2f", rec.SharpeRatio, th.MinSharpeRatio),
			Value:     rec.SharpeRatio,
			Threshold: th.MinSharpeRatio,
		})
	}

	if rec.WinRatio < th.MinWinRatio {
		alerts = append(alerts, Alert{
			Severity:  "WARNING",
			Metric:    "win_ratio",
			Message:   fmt.Sprintf("Win ratio %.2f%% is critically low", rec.WinRatio*100),
			Value:     rec.WinRatio,
			Threshold: th.MinWinRatio,
		})
	}

	if rec.ProfitFactor < th.MinProfitFactor {
		alerts = append(alerts, Alert{
			Severity:  "CRITICAL",
			Metric:    "profit_factor",
			Message:   fmt.Sprintf("Profit factor %.2f indicates net losses", rec.ProfitFactor),
			Value:     rec.ProfitFactor,
			Threshold: th.MinProfitFactor,
		})
	}

	return alerts
}

// LogAlerts writes alerts through the global logger
func LogAlerts(runID string, alerts []Alert) {
	for _, a := range alerts {
		ev := log.Warn()
		if a.Severity == "CRITICAL" {
			ev = log.Error()
		}
		ev.Str("run_id", runID).
			Str("metric", a.Metric).
			Float64("value", a.Value).
			Float64("threshold", a.Threshold).
			Msg(a.Message)
	}
}

// AlertSummary counts alerts by severity
type AlertSummary struct {
	TotalAlerts int            `json:"total_alerts"`
	BySeverity  map[string]int `json:"by_severity"`
	ByMetric    map[string]int `json:"by_metric"`
}

// SummarizeAlerts creates an alert summary
func SummarizeAlerts(alerts []Alert) AlertSummary {
	summary := AlertSummary{
		TotalAlerts: len(alerts),
		BySeverity:  make(map[string]int),
		ByMetric:    make(map[string]int),
	}
	for _, a := range alerts {
		summary.BySeverity[a.Severity]++
		summary.ByMetric[a.Metric]++
	}
	return summary
}
