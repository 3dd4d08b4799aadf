package meanrev

import (
	"github.com/sawpanic/glickorun/internal/ledger"
	"github.com/sawpanic/glickorun/internal/report/perf"
	"github.com/sawpanic/glickorun/internal/signal"
)

// Result represents the complete outcome of one backtest run
type Result struct {
	Config   Config               `json:"config"`
	Trades   []ledger.Trade       `json:"trades"`
	Equity   []ledger.EquityPoint `json:"equity"`
	Signals  []signal.Point       `json:"-"`
	Metrics  perf.Record          `json:"metrics"`
	Alerts   []perf.Alert         `json:"alerts,omitempty"`
	DataGaps int                  `json:"data_gaps"`
	Summary  ExitSummary          `json:"summary"`
}

// ExitSummary counts trades per exit reason
type ExitSummary struct {
	ZScoreReversion int `json:"z_score_reversion"`
	ProfitTarget    int `json:"profit_target"`
	StopLoss        int `json:"stop_loss"`
	ForcedClose     int `json:"forced_close"`
}

// Summarize counts exit reasons over a ledger
func Summarize(trades []ledger.Trade) ExitSummary {
	var s ExitSummary
	for _, t := range trades {
		switch t.ExitReason {
		case ledger.ExitZScoreReversion:
			s.ZScoreReversion++
		case ledger.ExitProfitTarget:
			s.ProfitTarget++
		case ledger.ExitStopLoss:
			s.StopLoss++
		case ledger.ExitForcedClose:
			s.ForcedClose++
		}
	}
	return s
}

// ArtifactPaths represents file paths for generated artifacts
type ArtifactPaths struct {
	ResultsJSONL string `json:"results_jsonl"`
	ReportMD     string `json:"report_md"`
	OutputDir    string `json:"output_dir"`
}
