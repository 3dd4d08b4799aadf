package perf

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/glickorun/internal/ledger"
	"github.com/sawpanic/glickorun/internal/market"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func daily(values ...float64) []ledger.EquityPoint {
	out := make([]ledger.EquityPoint, len(values))
	for i, v := range values {
		out[i] = ledger.EquityPoint{Timestamp: t0.Add(time.Duration(i) * 24 * time.Hour), Value: v}
	}
	return out
}

func closes(values ...float64) []market.PricePoint {
	out := make([]market.PricePoint, len(values))
	for i, v := range values {
		out[i] = market.PricePoint{Asset: "BTCUSDT", Timestamp: t0.Add(time.Duration(i) * 24 * time.Hour), Open: v, High: v, Low: v, Close: v}
	}
	return out
}

func allFinite(t *testing.T, r Record) {
	t.Helper()
	for name, v := range map[string]float64{
		"total_return":      r.TotalReturn,
		"annualized_return": r.AnnualizedReturn,
		"benchmark_return":  r.BenchmarkReturn,
		"benchmark_ann":     r.BenchmarkAnnualizedReturn,
		"alpha":             r.Alpha,
		"sharpe":            r.SharpeRatio,
		"sortino":           r.SortinoRatio,
		"calmar":            r.CalmarRatio,
		"max_drawdown":      r.MaxDrawdown,
		"volatility":        r.AnnualizedVolatility,
		"win_ratio":         r.WinRatio,
		"profit_factor":     r.ProfitFactor,
		"avg_duration":      r.AvgTradeDurationHours,
	} {
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "%s is not finite: %v", name, v)
	}
}

func TestAnalyze_NoTrades(t *testing.T) {
	rec := Analyze(Input{
		Equity:         daily(10000, 10000, 10000),
		Benchmark:      closes(100, 105, 110),
		InitialCapital: 10000,
	})

	assert.True(t, rec.NoTrades)
	assert.Zero(t, rec.TotalTrades)
	assert.Zero(t, rec.TotalReturn)
	assert.Zero(t, rec.WinRatio)
	assert.Zero(t, rec.ProfitFactor)
	assert.Zero(t, rec.CalmarRatio)
	assert.Zero(t, rec.SharpeRatio)
	assert.InDelta(t, 10.0, rec.BenchmarkReturn, 1e-9)
	assert.Less(t, rec.Alpha, 0.0)
	assert.Equal(t, 10000.0, rec.FinalEquity)
	allFinite(t, rec)
}

func TestAnalyze_MixedTrades(t *testing.T) {
	trades := []ledger.Trade{
		{Asset: "BTCUSDT", ProfitLoss: 200, DurationHours: 24, ExitReason: ledger.ExitProfitTarget},
		{Asset: "BTCUSDT", ProfitLoss: -100, DurationHours: 48, ExitReason: ledger.ExitStopLoss},
	}
	rec := Analyze(Input{
		Trades:         trades,
		Equity:         daily(10000, 10200, 10100),
		Benchmark:      closes(100, 101, 102),
		InitialCapital: 10000,
		PeriodYears:    1,
	})

	assert.False(t, rec.NoTrades)
	assert.Equal(t, 2, rec.TotalTrades)
	assert.InDelta(t, 0.5, rec.WinRatio, 1e-12)
	assert.InDelta(t, 2.0, rec.ProfitFactor, 1e-12)
	assert.InDelta(t, 200.0, rec.GrossProfit, 1e-12)
	assert.InDelta(t, 100.0, rec.GrossLoss, 1e-12)
	assert.InDelta(t, 36.0, rec.AvgTradeDurationHours, 1e-12)
	assert.InDelta(t, 1.0, rec.TotalReturn, 1e-9)
	assert.InDelta(t, 1.0, rec.AnnualizedReturn, 1e-9)
	assert.InDelta(t, 2.0, rec.BenchmarkAnnualizedReturn, 1e-9)
	assert.InDelta(t, -1.0, rec.Alpha, 1e-9)
	assert.InDelta(t, 100.0/10200.0, rec.MaxDrawdown, 1e-12)
	assert.InDelta(t, 0.01/(100.0/10200.0), rec.CalmarRatio, 1e-9)
	assert.Greater(t, rec.AnnualizedVolatility, 0.0)
	assert.NotZero(t, rec.SortinoRatio)
	allFinite(t, rec)
}

func TestAnalyze_CapsUnboundedRatios(t *testing.T) {
	trades := []ledger.Trade{
		{ProfitLoss: 50, DurationHours: 12},
		{ProfitLoss: 75, DurationHours: 12},
	}
	rec := Analyze(Input{
		Trades:         trades,
		Equity:         daily(1000, 1050, 1125),
		InitialCapital: 1000,
	})

	assert.Zero(t, rec.MaxDrawdown)
	assert.Equal(t, RatioCap, rec.CalmarRatio)
	assert.Equal(t, RatioCap, rec.ProfitFactor)
	assert.Zero(t, rec.SortinoRatio, "no downside periods")
	assert.Equal(t, 1.0, rec.WinRatio)
	allFinite(t, rec)
}

func TestAnalyze_LosingRunHasNegativeCalmar(t *testing.T) {
	rec := Analyze(Input{
		Trades:         []ledger.Trade{{ProfitLoss: -300}},
		Equity:         daily(1000, 900, 700),
		InitialCapital: 1000,
		PeriodYears:    1,
	})
	assert.InDelta(t, 0.3, rec.MaxDrawdown, 1e-12)
	assert.InDelta(t, -1.0, rec.CalmarRatio, 1e-9)
	assert.Zero(t, rec.ProfitFactor)
	assert.Zero(t, rec.WinRatio)
}

func TestAnalyze_DegenerateInputsStayFinite(t *testing.T) {
	tests := []struct {
		name string
		in   Input
	}{
		{name: "empty", in: Input{}},
		{name: "zero capital", in: Input{Trades: []ledger.Trade{{ProfitLoss: 1}}, Equity: daily(0, 0, 1)}},
		{name: "wiped out", in: Input{Trades: []ledger.Trade{{ProfitLoss: -10}}, Equity: daily(10, 0), InitialCapital: 10}},
		{name: "single instant", in: Input{Trades: []ledger.Trade{{ProfitLoss: 5}}, Equity: daily(10), InitialCapital: 5}},
		{name: "nan pnl", in: Input{Trades: []ledger.Trade{{ProfitLoss: math.NaN()}}, Equity: daily(10, 11), InitialCapital: 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := Analyze(tt.in)
			allFinite(t, rec)
			assert.GreaterOrEqual(t, rec.ProfitFactor, 0.0)
			assert.GreaterOrEqual(t, rec.WinRatio, 0.0)
			assert.LessOrEqual(t, rec.WinRatio, 1.0)
		})
	}
}

func TestAnalyze_IsPure(t *testing.T) {
	in := Input{
		Trades:         []ledger.Trade{{ProfitLoss: 10, DurationHours: 5}, {ProfitLoss: -4, DurationHours: 7}},
		Equity:         daily(100, 110, 104, 108),
		Benchmark:      closes(20, 21, 19, 22),
		InitialCapital: 100,
	}
	first := Analyze(in)
	second := Analyze(in)
	assert.Equal(t, first, second)
	assert.Equal(t, 104.0, in.Equity[2].Value)
}

func TestPeriodsPerYear(t *testing.T) {
	assert.Zero(t, PeriodsPerYear(nil))
	assert.InDelta(t, 365.25, PeriodsPerYear(daily(1, 2, 3, 4)), 1e-9)

	hourly := []ledger.EquityPoint{
		{Timestamp: t0, Value: 1},
		{Timestamp: t0.Add(time.Hour), Value: 1},
		{Timestamp: t0.Add(2 * time.Hour), Value: 1},
		{Timestamp: t0.Add(50 * time.Hour), Value: 1},
	}
	assert.InDelta(t, 8766.0, PeriodsPerYear(hourly), 1e-9)
}

func TestCheckAlerts(t *testing.T) {
	rec := Record{
		MaxDrawdown:  0.5,
		SharpeRatio:  0.2,
		WinRatio:     0.3,
		ProfitFactor: 0.8,
		TotalTrades:  4,
	}
	alerts := CheckAlerts(rec, DefaultThresholds())
	require.Len(t, alerts, 4)
	assert.Equal(t, "max_drawdown", alerts[0].Metric)
	assert.Equal(t, "CRITICAL", alerts[0].Severity)

	summary := SummarizeAlerts(alerts)
	assert.Equal(t, 4, summary.TotalAlerts)
	assert.Equal(t, 2, summary.BySeverity["CRITICAL"])

	rec.NoTrades = true
	assert.Len(t, CheckAlerts(rec, DefaultThresholds()), 1)
}
