package meanrev

import (
	"time"

	"github.com/sawpanic/glickorun/internal/ledger"
	"github.com/sawpanic/glickorun/internal/market"
	"github.com/sawpanic/glickorun/internal/signal"
)

// State of the simulator's single position slot
type State int

const (
	Flat State = iota
	Long
)

func (s State) String() string {
	if s == Long {
		return "LONG"
	}
	return "FLAT"
}

// Position is the open long between an entry and its exit
type Position struct {
	EntryTime       time.Time
	EntryPrice      float64
	Quantity        float64
	EntryFee        float64
	TakeProfitPrice float64
	StopLossPrice   float64
}

// Simulator is the per-run FLAT/LONG state machine. It is not safe for
// concurrent use; each run owns its own instance.
type Simulator struct {
	cfg Config

	state     State
	pos       Position
	cash      float64
	lastPrice float64
	seen      bool

	trades []ledger.Trade
	equity []ledger.EquityPoint
	gaps   int
}

// NewSimulator creates a flat simulator holding cfg.InitialCapital in cash.
// The equity curve opens with that capital at cfg.StartTime.
func NewSimulator(cfg Config) *Simulator {
	return &Simulator{
		cfg:    cfg,
		cash:   cfg.InitialCapital,
		trades: make([]ledger.Trade, 0),
		equity: []ledger.EquityPoint{{Timestamp: cfg.StartTime, Value: cfg.InitialCapital}},
	}
}

// Step applies at most one transition for an aligned signal and candle,
// then marks equity at the candle close.
func (s *Simulator) Step(z signal.Point, price market.PricePoint) {
	ts := z.Timestamp
	s.lastPrice = price.Close
	s.seen = true

	switch s.state {
	case Flat:
		if signal.Classify(z.ZScore, s.cfg.ZScoreThreshold) == signal.Entry {
			s.enter(ts, price.Close)
		}
	case Long:
		if exitPrice, reason, ok := s.checkExit(z.ZScore, price); ok {
			s.exit(ts, exitPrice, reason)
		}
	}

	s.mark(ts, price.Close)
}

// Gap records a signal with no matching candle. No decision is taken and
// equity is carried at the last known close.
func (s *Simulator) Gap(ts time.Time) {
	s.gaps++
	if !s.seen {
		s.record(ts, s.cash)
		return
	}
	s.mark(ts, s.lastPrice)
}

// Finish liquidates any open position at finalPrice stamped at end and
// appends a closing equity point equal to cash. A non-positive finalPrice
// falls back to the last close seen.
func (s *Simulator) Finish(end time.Time, finalPrice float64) {
	if finalPrice <= 0 {
		finalPrice = s.lastPrice
	}
	if s.state == Long {
		s.exit(end, finalPrice, ledger.ExitForcedClose)
	}

	final := ledger.EquityPoint{Timestamp: end, Value: s.cash}
	if n := len(s.equity); n > 0 && !s.equity[n-1].Timestamp.Before(end) {
		s.equity[n-1] = final
		return
	}
	s.equity = append(s.equity, final)
}

// checkExit evaluates the exit rules in priority order: reversion, profit
// target, stop loss.
func (s *Simulator) checkExit(z float64, price market.PricePoint) (float64, ledger.ExitReason, bool) {
	if signal.Classify(z, s.cfg.ZScoreThreshold) == signal.Exit {
		return price.Close, ledger.ExitZScoreReversion, true
	}

	if s.cfg.IntrabarExits {
		low, high := price.Low, price.High
		if low <= 0 {
			low = price.Close
		}
		if high <= 0 {
			high = price.Close
		}
		// Both touched in one candle resolves to the stop
		if low <= s.pos.StopLossPrice {
			return s.pos.StopLossPrice, ledger.ExitStopLoss, true
		}
		if high >= s.pos.TakeProfitPrice {
			return s.pos.TakeProfitPrice, ledger.ExitProfitTarget, true
		}
		return 0, "", false
	}

	if price.Close >= s.pos.TakeProfitPrice {
		return s.pos.TakeProfitPrice, ledger.ExitProfitTarget, true
	}
	if price.Close <= s.pos.StopLossPrice {
		return s.pos.StopLossPrice, ledger.ExitStopLoss, true
	}
	return 0, "", false
}

func (s *Simulator) enter(ts time.Time, price float64) {
	if price <= 0 || s.cash <= 0 {
		return
	}
	qty := s.cash * s.cfg.AllocationFraction / (price * (1 + s.cfg.FeeRate))
	cost := qty * price
	fee := cost * s.cfg.FeeRate

	s.cash -= cost + fee
	s.pos = Position{
		EntryTime:       ts,
		EntryPrice:      price,
		Quantity:        qty,
		EntryFee:        fee,
		TakeProfitPrice: price * (1 + s.cfg.ProfitPercent/100),
		StopLossPrice:   price * (1 - s.cfg.StopLossPercent/100),
	}
	s.state = Long
}

func (s *Simulator) exit(ts time.Time, price float64, reason ledger.ExitReason) {
	p := s.pos
	proceeds := p.Quantity * price
	fee := proceeds * s.cfg.FeeRate
	s.cash += proceeds - fee

	basis := p.Quantity * p.EntryPrice
	pnl := proceeds - fee - (basis + p.EntryFee)
	pct := 0.0
	if basis > 0 {
		pct = pnl / basis * 100
	}

	s.trades = append(s.trades, ledger.Trade{
		Asset:             s.cfg.Asset,
		EntryTime:         p.EntryTime,
		ExitTime:          ts,
		Side:              ledger.Long,
		EntryPrice:        p.EntryPrice,
		ExitPrice:         price,
		Quantity:          p.Quantity,
		EntryFee:          p.EntryFee,
		ExitFee:           fee,
		ExitReason:        reason,
		ProfitLoss:        pnl,
		ProfitLossPercent: pct,
		DurationHours:     ts.Sub(p.EntryTime).Hours(),
	})

	s.pos = Position{}
	s.state = Flat
}

func (s *Simulator) mark(ts time.Time, price float64) {
	value := s.cash
	if s.state == Long {
		value += s.pos.Quantity * price
	}
	s.record(ts, value)
}

// record appends an equity point, replacing one already stamped at ts
func (s *Simulator) record(ts time.Time, value float64) {
	p := ledger.EquityPoint{Timestamp: ts, Value: value}
	if n := len(s.equity); n > 0 && s.equity[n-1].Timestamp.Equal(ts) {
		s.equity[n-1] = p
		return
	}
	s.equity = append(s.equity, p)
}

// State returns the current position state
func (s *Simulator) State() State { return s.state }

// Position returns the open position and whether one exists
func (s *Simulator) Position() (Position, bool) { return s.pos, s.state == Long }

// Cash returns uncommitted cash
func (s *Simulator) Cash() float64 { return s.cash }

// Trades returns the closed trades in exit order
func (s *Simulator) Trades() []ledger.Trade { return s.trades }

// Equity returns the equity curve
func (s *Simulator) Equity() []ledger.EquityPoint { return s.equity }

// DataGaps returns the number of signals skipped for missing prices
func (s *Simulator) DataGaps() int { return s.gaps }
