package meanrev

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/glickorun/internal/market"
	"github.com/sawpanic/glickorun/internal/rating"
	"github.com/sawpanic/glickorun/internal/report/perf"
	"github.com/sawpanic/glickorun/internal/signal"
)

// ctxCheckEvery bounds how many steps run between cancellation checks
const ctxCheckEvery = 256

// Run executes one backtest. ratings and prices must be time ordered and
// belong to cfg.Asset; they are only read. Configuration problems, including
// insufficient history, are reported before any step is simulated.
func Run(ctx context.Context, cfg Config, ratings []rating.Point, prices []market.PricePoint) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	history := rating.Until(ratings, cfg.EndTime)
	if len(history) <= cfg.MovingAveragePeriod {
		return nil, fmt.Errorf("%w: %s has %d ratings up to %s, moving average needs more than %d",
			ErrInsufficientHistory, cfg.Asset, len(history), cfg.EndTime.Format("2006-01-02"), cfg.MovingAveragePeriod)
	}

	signals, err := signal.Generate(history, cfg.MovingAveragePeriod)
	if err != nil {
		return nil, fmt.Errorf("failed to generate signals: %w", err)
	}
	signals = between(signals, cfg)

	window := market.Between(prices, cfg.StartTime, cfg.EndTime)
	index := market.NewIndex(window)
	sim := NewSimulator(cfg)

	for i, z := range signals {
		if i%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("backtest %s abandoned: %w", cfg.Label(), err)
			}
		}
		price, ok := index.At(z.Timestamp)
		if !ok || !price.Valid() {
			sim.Gap(z.Timestamp)
			continue
		}
		sim.Step(z, price)
	}

	finalPrice := 0.0
	if n := len(window); n > 0 {
		finalPrice = window[n-1].Close
	}
	sim.Finish(cfg.EndTime, finalPrice)

	if sim.DataGaps() > 0 {
		log.Debug().
			Str("asset", cfg.Asset).
			Int("gaps", sim.DataGaps()).
			Int("signals", len(signals)).
			Msg("Signals without matching price skipped")
	}

	calc := perf.NewCalculator(perf.CalculatorConfig{RiskFreeRate: cfg.RiskFreeRate})
	metrics := calc.Analyze(perf.Input{
		Trades:         sim.Trades(),
		Equity:         sim.Equity(),
		Benchmark:      window,
		InitialCapital: cfg.InitialCapital,
		PeriodYears:    cfg.PeriodYears(),
	})

	return &Result{
		Config:   cfg,
		Trades:   sim.Trades(),
		Equity:   sim.Equity(),
		Signals:  signals,
		Metrics:  metrics,
		Alerts:   perf.CheckAlerts(metrics, perf.DefaultThresholds()),
		DataGaps: sim.DataGaps(),
		Summary:  Summarize(sim.Trades()),
	}, nil
}

// between keeps the signals stamped inside the run window
func between(points []signal.Point, cfg Config) []signal.Point {
	out := points[:0:0]
	for _, p := range points {
		if p.Timestamp.Before(cfg.StartTime) || p.Timestamp.After(cfg.EndTime) {
			continue
		}
		out = append(out, p)
	}
	return out
}
