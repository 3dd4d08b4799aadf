// Package perf reduces a trade ledger and equity curve into a metrics record
package perf

import (
	"math"
	"sort"
	"time"

	"github.com/sawpanic/glickorun/internal/ledger"
	"github.com/sawpanic/glickorun/internal/market"
)

const (
	// RatioCap replaces unbounded ratios (zero drawdown, zero gross loss)
	RatioCap = 1000.0

	daysPerYear = 365.25
)

// Record contains the performance analysis of one run. Every float is finite.
type Record struct {
	// Return Metrics
	TotalReturn               float64 `json:"total_return" db:"total_return"`                               // percent
	AnnualizedReturn          float64 `json:"annualized_return" db:"annualized_return"`                     // percent
	BenchmarkReturn           float64 `json:"benchmark_return" db:"benchmark_return"`                       // buy-and-hold, percent
	BenchmarkAnnualizedReturn float64 `json:"benchmark_annualized_return" db:"benchmark_annualized_return"` // percent
	Alpha                     float64 `json:"alpha" db:"alpha"`                                             // annualized minus benchmark annualized
	FinalEquity               float64 `json:"final_equity" db:"final_equity"`

	// Risk-Adjusted Metrics
	SharpeRatio          float64 `json:"sharpe_ratio" db:"sharpe_ratio"`
	SortinoRatio         float64 `json:"sortino_ratio" db:"sortino_ratio"`                 // 0 without downside periods
	CalmarRatio          float64 `json:"calmar_ratio" db:"calmar_ratio"`                   // capped at RatioCap
	MaxDrawdown          float64 `json:"max_drawdown" db:"max_drawdown"`                   // fraction of peak
	AnnualizedVolatility float64 `json:"annualized_volatility" db:"annualized_volatility"` // percent

	// Trade Analysis
	WinRatio              float64 `json:"win_ratio" db:"win_ratio"`
	ProfitFactor          float64 `json:"profit_factor" db:"profit_factor"` // capped at RatioCap
	GrossProfit           float64 `json:"gross_profit" db:"gross_profit"`
	GrossLoss             float64 `json:"gross_loss" db:"gross_loss"`
	TotalTrades           int     `json:"total_trades" db:"total_trades"`
	AvgTradeDurationHours float64 `json:"avg_trade_duration_hours" db:"avg_trade_duration_hours"`
	NoTrades              bool    `json:"no_trades" db:"no_trades"`
}

// Input is everything one analysis needs. Benchmark is the price series of
// the traded asset over the run window.
type Input struct {
	Trades         []ledger.Trade
	Equity         []ledger.EquityPoint
	Benchmark      []market.PricePoint
	InitialCapital float64
	PeriodYears    float64 // derived from the equity span when <= 0
	PeriodsPerYear float64 // derived from equity spacing when <= 0
}

// CalculatorConfig holds configuration for performance calculations
type CalculatorConfig struct {
	RiskFreeRate float64 `yaml:"risk_free_rate"` // annual, as a fraction (default: 0.02)
	RatioCap     float64 `yaml:"ratio_cap"`      // default: RatioCap
}

// DefaultCalculatorConfig returns sensible defaults
func DefaultCalculatorConfig() CalculatorConfig {
	return CalculatorConfig{
		RiskFreeRate: 0.02,
		RatioCap:     RatioCap,
	}
}

// Calculator computes metrics records. It holds no state beyond its config.
type Calculator struct {
	config CalculatorConfig
}

// NewCalculator creates a new performance calculator
func NewCalculator(config CalculatorConfig) *Calculator {
	if config.RatioCap <= 0 {
		config.RatioCap = RatioCap
	}
	return &Calculator{config: config}
}

// Analyze runs the default calculator over in.
func Analyze(in Input) Record {
	return NewCalculator(DefaultCalculatorConfig()).Analyze(in)
}

// Analyze computes the metrics record for in. Inputs are not modified.
func (c *Calculator) Analyze(in Input) Record {
	rec := Record{
		TotalTrades: len(in.Trades),
		NoTrades:    len(in.Trades) == 0,
		FinalEquity: in.InitialCapital,
	}
	if n := len(in.Equity); n > 0 {
		rec.FinalEquity = in.Equity[n-1].Value
	}

	years := in.PeriodYears
	if years <= 0 {
		years = spanYears(in.Equity)
	}
	ppy := in.PeriodsPerYear
	if ppy <= 0 {
		ppy = PeriodsPerYear(in.Equity)
	}

	c.calculateReturnMetrics(in, years, &rec)
	c.calculateBenchmark(in.Benchmark, years, &rec)
	rec.MaxDrawdown = maxDrawdown(in.Equity)

	if !rec.NoTrades {
		c.calculateRiskMetrics(in.Equity, ppy, &rec)
		c.calculateTradeMetrics(in.Trades, &rec)
	} else {
		rec.AnnualizedVolatility = annualizedVolatility(periodReturns(in.Equity), ppy)
	}

	return c.sanitize(rec)
}

// calculateReturnMetrics computes total and annualized return in percent
func (c *Calculator) calculateReturnMetrics(in Input, years float64, rec *Record) {
	if in.InitialCapital <= 0 {
		return
	}
	growth := rec.FinalEquity / in.InitialCapital
	rec.TotalReturn = (growth - 1) * 100
	rec.AnnualizedReturn = annualize(growth, years)
}

// calculateBenchmark evaluates buy-and-hold over the same window
func (c *Calculator) calculateBenchmark(prices []market.PricePoint, years float64, rec *Record) {
	if len(prices) < 2 {
		rec.Alpha = rec.AnnualizedReturn
		return
	}
	first, last := prices[0].Close, prices[len(prices)-1].Close
	if first > 0 {
		growth := last / first
		rec.BenchmarkReturn = (growth - 1) * 100
		rec.BenchmarkAnnualizedReturn = annualize(growth, years)
	}
	rec.Alpha = rec.AnnualizedReturn - rec.BenchmarkAnnualizedReturn
}

// calculateRiskMetrics computes volatility and the risk-adjusted ratios
func (c *Calculator) calculateRiskMetrics(equity []ledger.EquityPoint, ppy float64, rec *Record) {
	returns := periodReturns(equity)
	rec.AnnualizedVolatility = annualizedVolatility(returns, ppy)

	excess := rec.AnnualizedReturn - c.config.RiskFreeRate*100
	if rec.AnnualizedVolatility > 0 {
		rec.SharpeRatio = excess / rec.AnnualizedVolatility
	}

	// Downside deviation against a zero target
	downVariance := 0.0
	downCount := 0
	for _, r := range returns {
		if r < 0 {
			downVariance += r * r
			downCount++
		}
	}
	if downCount > 0 {
		downsideVol := math.Sqrt(downVariance/float64(downCount)) * math.Sqrt(ppy) * 100
		if downsideVol > 0 {
			rec.SortinoRatio = excess / downsideVol
		}
	}

	switch {
	case rec.MaxDrawdown > 0:
		rec.CalmarRatio = (rec.AnnualizedReturn / 100) / rec.MaxDrawdown
	case rec.AnnualizedReturn > 0:
		rec.CalmarRatio = c.config.RatioCap
	}
}

// calculateTradeMetrics computes win ratio, profit factor and durations
func (c *Calculator) calculateTradeMetrics(trades []ledger.Trade, rec *Record) {
	wins := 0
	duration := 0.0
	for _, t := range trades {
		if t.Won() {
			wins++
			rec.GrossProfit += t.ProfitLoss
		} else if t.ProfitLoss < 0 {
			rec.GrossLoss += -t.ProfitLoss
		}
		duration += t.DurationHours
	}

	rec.WinRatio = float64(wins) / float64(len(trades))
	rec.AvgTradeDurationHours = duration / float64(len(trades))

	switch {
	case rec.GrossLoss > 0:
		rec.ProfitFactor = rec.GrossProfit / rec.GrossLoss
	case rec.GrossProfit > 0:
		rec.ProfitFactor = c.config.RatioCap
	}
}

// sanitize maps NaN to zero and clamps every ratio into [-cap, cap]
func (c *Calculator) sanitize(rec Record) Record {
	limit := c.config.RatioCap
	fields := []*float64{
		&rec.TotalReturn, &rec.AnnualizedReturn, &rec.BenchmarkReturn,
		&rec.BenchmarkAnnualizedReturn, &rec.Alpha, &rec.FinalEquity,
		&rec.AnnualizedVolatility, &rec.MaxDrawdown, &rec.GrossProfit,
		&rec.GrossLoss, &rec.AvgTradeDurationHours, &rec.WinRatio,
	}
	for _, f := range fields {
		*f = finite(*f, math.MaxFloat64)
	}
	for _, f := range []*float64{&rec.SharpeRatio, &rec.SortinoRatio, &rec.CalmarRatio, &rec.ProfitFactor} {
		*f = finite(*f, limit)
	}
	return rec
}

func finite(v, limit float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v > limit:
		return limit
	case v < -limit:
		return -limit
	}
	return v
}

// annualize converts a growth multiple over years into an annual percent
func annualize(growth, years float64) float64 {
	if growth <= 0 {
		return -100
	}
	if years <= 0 {
		return (growth - 1) * 100
	}
	return (math.Pow(growth, 1/years) - 1) * 100
}

func periodReturns(equity []ledger.EquityPoint) []float64 {
	if len(equity) < 2 {
		return nil
	}
	out := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Value
		if prev <= 0 {
			continue
		}
		out = append(out, equity[i].Value/prev-1)
	}
	return out
}

// annualizedVolatility is the sample stdev of returns scaled to a year, in percent
func annualizedVolatility(returns []float64, ppy float64) float64 {
	if len(returns) < 2 || ppy <= 0 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns) - 1)
	return math.Sqrt(variance) * math.Sqrt(ppy) * 100
}

// maxDrawdown is the largest peak-to-date decline as a fraction of the peak
func maxDrawdown(equity []ledger.EquityPoint) float64 {
	peak := 0.0
	maxDD := 0.0
	for _, p := range equity {
		if p.Value > peak {
			peak = p.Value
			continue
		}
		if peak <= 0 {
			continue
		}
		if dd := (peak - p.Value) / peak; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

func spanYears(equity []ledger.EquityPoint) float64 {
	if len(equity) < 2 {
		return 0
	}
	span := equity[len(equity)-1].Timestamp.Sub(equity[0].Timestamp)
	return span.Hours() / 24 / daysPerYear
}

// PeriodsPerYear infers the sampling frequency of an equity curve from the
// median spacing of its timestamps. It returns 0 for fewer than two points.
func PeriodsPerYear(equity []ledger.EquityPoint) float64 {
	if len(equity) < 2 {
		return 0
	}
	gaps := make([]time.Duration, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		if d := equity[i].Timestamp.Sub(equity[i-1].Timestamp); d > 0 {
			gaps = append(gaps, d)
		}
	}
	if len(gaps) == 0 {
		return 0
	}
	sort.Slice(gaps, func(i, j int) bool { return gaps[i] < gaps[j] })
	median := gaps[len(gaps)/2]
	return float64(daysPerYear*24*time.Hour) / float64(median)
}
