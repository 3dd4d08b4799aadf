// Package meanrev replays a rating z-score signal against historical prices
// with a long-only mean-reversion strategy.
package meanrev

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidConfig is matched by every configuration failure, including
// insufficient rating history.
var ErrInvalidConfig = errors.New("invalid backtest config")

// ErrInsufficientHistory means the ratings up to the end of the run do not
// fill one moving-average window plus the rating it scores.
var ErrInsufficientHistory = fmt.Errorf("%w: insufficient rating history", ErrInvalidConfig)

// ConfigError names the offending field
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%v: %s %s", ErrInvalidConfig, e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}

// Config represents one backtest run. It is passed by value and never
// mutated by the simulator.
type Config struct {
	Asset               string    `json:"asset" yaml:"asset"`
	StartTime           time.Time `json:"start_time" yaml:"start_time"`
	EndTime             time.Time `json:"end_time" yaml:"end_time"`
	ZScoreThreshold     float64   `json:"z_score_threshold" yaml:"z_score_threshold"`         // entry at +threshold, reversion at -threshold
	MovingAveragePeriod int       `json:"moving_average_period" yaml:"moving_average_period"` // rating periods in the trailing window
	ProfitPercent       float64   `json:"profit_percent" yaml:"profit_percent"`
	StopLossPercent     float64   `json:"stop_loss_percent" yaml:"stop_loss_percent"`
	InitialCapital      float64   `json:"initial_capital" yaml:"initial_capital"`
	FeeRate             float64   `json:"fee_rate" yaml:"fee_rate"`                       // proportional, per side
	AllocationFraction  float64   `json:"allocation_fraction" yaml:"allocation_fraction"` // share of cash committed on entry (default 0.95)
	RiskFreeRate        float64   `json:"risk_free_rate" yaml:"risk_free_rate"`           // annual fraction (default 0.02)
	IntrabarExits       bool      `json:"intrabar_exits" yaml:"intrabar_exits"`           // evaluate low/high instead of close
}

// DefaultConfig returns default strategy parameters. Asset and the time
// window are left for the caller.
func DefaultConfig() Config {
	return Config{
		ZScoreThreshold:     2.0,
		MovingAveragePeriod: 20,
		ProfitPercent:       10,
		StopLossPercent:     5,
		InitialCapital:      10000,
		FeeRate:             0.001,
		AllocationFraction:  0.95,
		RiskFreeRate:        0.02,
	}
}

// Validate fails fast on the first out-of-range field.
func (c Config) Validate() error {
	positive := func(field string, v float64) error {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return &ConfigError{Field: field, Reason: fmt.Sprintf("must be > 0, got %v", v)}
		}
		return nil
	}

	switch {
	case c.Asset == "":
		return &ConfigError{Field: "asset", Reason: "is required"}
	case c.StartTime.IsZero() || c.EndTime.IsZero():
		return &ConfigError{Field: "start_time/end_time", Reason: "are required"}
	case !c.StartTime.Before(c.EndTime):
		return &ConfigError{Field: "end_time", Reason: fmt.Sprintf("must be after start_time %s", c.StartTime.Format(time.RFC3339))}
	case c.MovingAveragePeriod <= 1:
		return &ConfigError{Field: "moving_average_period", Reason: fmt.Sprintf("must be > 1, got %d", c.MovingAveragePeriod)}
	}

	for _, f := range []struct {
		name string
		v    float64
	}{
		{"z_score_threshold", c.ZScoreThreshold},
		{"profit_percent", c.ProfitPercent},
		{"stop_loss_percent", c.StopLossPercent},
		{"initial_capital", c.InitialCapital},
		{"allocation_fraction", c.AllocationFraction},
	} {
		if err := positive(f.name, f.v); err != nil {
			return err
		}
	}

	switch {
	case c.StopLossPercent >= 100:
		return &ConfigError{Field: "stop_loss_percent", Reason: fmt.Sprintf("must be < 100, got %v", c.StopLossPercent)}
	case c.AllocationFraction > 1:
		return &ConfigError{Field: "allocation_fraction", Reason: fmt.Sprintf("must be <= 1, got %v", c.AllocationFraction)}
	case math.IsNaN(c.FeeRate) || c.FeeRate < 0 || c.FeeRate >= 1:
		return &ConfigError{Field: "fee_rate", Reason: fmt.Sprintf("must be in [0, 1), got %v", c.FeeRate)}
	case math.IsNaN(c.RiskFreeRate) || math.IsInf(c.RiskFreeRate, 0):
		return &ConfigError{Field: "risk_free_rate", Reason: "must be finite"}
	}
	return nil
}

// PeriodYears is the run window length in years.
func (c Config) PeriodYears() float64 {
	return c.EndTime.Sub(c.StartTime).Hours() / 24 / 365.25
}

// Label is a compact parameter tag used in logs and reports
func (c Config) Label() string {
	return fmt.Sprintf("%s z=%.2f ma=%d tp=%.1f%% sl=%.1f%%",
		c.Asset, c.ZScoreThreshold, c.MovingAveragePeriod, c.ProfitPercent, c.StopLossPercent)
}
