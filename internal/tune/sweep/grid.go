// Package sweep runs many independent backtests over a parameter grid on a
// bounded worker pool.
package sweep

import (
	"fmt"

	"github.com/sawpanic/glickorun/internal/backtest/meanrev"
)

// Grid lists the values to try per parameter. An empty dimension keeps the
// base config's value.
type Grid struct {
	Assets               []string  `yaml:"assets" json:"assets"`
	ZScoreThresholds     []float64 `yaml:"z_score_thresholds" json:"z_score_thresholds"`
	MovingAveragePeriods []int     `yaml:"moving_average_periods" json:"moving_average_periods"`
	ProfitPercents       []float64 `yaml:"profit_percents" json:"profit_percents"`
	StopLossPercents     []float64 `yaml:"stop_loss_percents" json:"stop_loss_percents"`
}

// DefaultGrid returns a small grid around the default strategy
func DefaultGrid() Grid {
	return Grid{
		ZScoreThresholds:     []float64{1.5, 2.0, 2.5},
		MovingAveragePeriods: []int{10, 20, 30},
		ProfitPercents:       []float64{5, 10, 15},
		StopLossPercents:     []float64{3, 5, 8},
	}
}

// Size returns the number of configs Expand produces
func (g Grid) Size() int {
	n := 1
	for _, l := range []int{len(g.Assets), len(g.ZScoreThresholds), len(g.MovingAveragePeriods), len(g.ProfitPercents), len(g.StopLossPercents)} {
		if l > 0 {
			n *= l
		}
	}
	return n
}

// Validate rejects values no config could accept
func (g Grid) Validate() error {
	for _, v := range g.ZScoreThresholds {
		if v <= 0 {
			return fmt.Errorf("z_score_thresholds: %v must be positive", v)
		}
	}
	for _, v := range g.MovingAveragePeriods {
		if v < 2 {
			return fmt.Errorf("moving_average_periods: %d must be at least 2", v)
		}
	}
	for _, v := range g.ProfitPercents {
		if v <= 0 {
			return fmt.Errorf("profit_percents: %v must be positive", v)
		}
	}
	for _, v := range g.StopLossPercents {
		if v <= 0 || v >= 100 {
			return fmt.Errorf("stop_loss_percents: %v must be in (0, 100)", v)
		}
	}
	return nil
}

// Expand returns the Cartesian product of the grid applied to base, ordered
// by asset, threshold, period, profit and stop with the last varying fastest.
func (g Grid) Expand(base meanrev.Config) []meanrev.Config {
	assets := g.Assets
	if len(assets) == 0 {
		assets = []string{base.Asset}
	}
	thresholds := orDefault(g.ZScoreThresholds, base.ZScoreThreshold)
	periods := orDefault(g.MovingAveragePeriods, base.MovingAveragePeriod)
	profits := orDefault(g.ProfitPercents, base.ProfitPercent)
	stops := orDefault(g.StopLossPercents, base.StopLossPercent)

	out := make([]meanrev.Config, 0, g.Size())
	for _, asset := range assets {
		for _, th := range thresholds {
			for _, ma := range periods {
				for _, tp := range profits {
					for _, sl := range stops {
						cfg := base
						cfg.Asset = asset
						cfg.ZScoreThreshold = th
						cfg.MovingAveragePeriod = ma
						cfg.ProfitPercent = tp
						cfg.StopLossPercent = sl
						out = append(out, cfg)
					}
				}
			}
		}
	}
	return out
}

func orDefault[T any](values []T, fallback T) []T {
	if len(values) == 0 {
		return []T{fallback}
	}
	return values
}
