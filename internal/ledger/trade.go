// Package ledger holds the trade ledger and equity curve types produced by a
// simulation run.
package ledger

import (
	"time"
)

// Side of a position. Only long positions are simulated.
type Side string

const (
	Long Side = "LONG"
)

// ExitReason explains why a position was closed
type ExitReason string

const (
	ExitZScoreReversion ExitReason = "Z_SCORE_REVERSION"
	ExitProfitTarget    ExitReason = "PROFIT_TARGET"
	ExitStopLoss        ExitReason = "STOP_LOSS"
	ExitForcedClose     ExitReason = "FORCED_CLOSE"
)

// Valid reports whether r is one of the defined exit reasons.
func (r ExitReason) Valid() bool {
	switch r {
	case ExitZScoreReversion, ExitProfitTarget, ExitStopLoss, ExitForcedClose:
		return true
	}
	return false
}

// Trade is a closed position. Trades are immutable once appended to a ledger.
type Trade struct {
	Asset             string     `json:"asset" db:"asset"`
	EntryTime         time.Time  `json:"entry_time" db:"entry_time"`
	ExitTime          time.Time  `json:"exit_time" db:"exit_time"`
	Side              Side       `json:"side" db:"side"`
	EntryPrice        float64    `json:"entry_price" db:"entry_price"`
	ExitPrice         float64    `json:"exit_price" db:"exit_price"`
	Quantity          float64    `json:"quantity" db:"quantity"`
	EntryFee          float64    `json:"entry_fee" db:"entry_fee"`
	ExitFee           float64    `json:"exit_fee" db:"exit_fee"`
	ExitReason        ExitReason `json:"exit_reason" db:"exit_reason"`
	ProfitLoss        float64    `json:"profit_loss" db:"profit_loss"`               // net of both fees
	ProfitLossPercent float64    `json:"profit_loss_percent" db:"profit_loss_percent"` // relative to entry notional
	DurationHours     float64    `json:"duration_hours" db:"duration_hours"`
}

// Won reports a strictly positive net result.
func (t Trade) Won() bool {
	return t.ProfitLoss > 0
}

// EquityPoint is the account value at one processed time step.
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Overlapping returns the index pairs of trades on the same asset whose
// holding intervals intersect. A trade exiting at the instant the next one
// enters does not overlap.
func Overlapping(trades []Trade) [][2]int {
	var out [][2]int
	for i := range trades {
		for j := i + 1; j < len(trades); j++ {
			a, b := trades[i], trades[j]
			if a.Asset != b.Asset {
				continue
			}
			if a.EntryTime.Before(b.ExitTime) && b.EntryTime.Before(a.ExitTime) {
				out = append(out, [2]int{i, j})
			}
		}
	}
	return out
}
