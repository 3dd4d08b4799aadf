// Package sqlstore persists backtest runs to PostgreSQL or SQLite through sqlx.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sawpanic/glickorun/internal/backtest/meanrev"
	"github.com/sawpanic/glickorun/internal/ledger"
	"github.com/sawpanic/glickorun/internal/persistence"
	"github.com/sawpanic/glickorun/internal/report/perf"
)

// ErrDuplicateRun is returned when a run ID is saved twice
var ErrDuplicateRun = errors.New("duplicate run")

var _ persistence.ResultStore = (*Sink)(nil)

// Sink implements persistence.ResultStore on a SQL database
type Sink struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewSink creates a SQL sink. Every call is bounded by timeout.
func NewSink(db *sqlx.DB, timeout time.Duration) *Sink {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Sink{db: db, timeout: timeout}
}

// runRow is the flattened backtest_runs row
type runRow struct {
	RunID     string    `db:"run_id"`
	Asset     string    `db:"asset"`
	StartTime time.Time `db:"start_time"`
	EndTime   time.Time `db:"end_time"`
	Status    string    `db:"status"`
	Error     string    `db:"error"`
	DataGaps  int       `db:"data_gaps"`
	Config    []byte    `db:"config"`
	CreatedAt time.Time `db:"created_at"`
	perf.Record
}

// tradeRow is one backtest_trades row
type tradeRow struct {
	RunID string `db:"run_id"`
	Seq   int    `db:"seq"`
	ledger.Trade
}

const insertRun = `
	INSERT INTO backtest_runs (
		run_id, asset, start_time, end_time, status, error, data_gaps, config,
		total_return, annualized_return, benchmark_return, benchmark_annualized_return,
		alpha, final_equity, sharpe_ratio, sortino_ratio, calmar_ratio, max_drawdown,
		annualized_volatility, win_ratio, profit_factor, gross_profit, gross_loss,
		total_trades, avg_trade_duration_hours, no_trades, created_at
	) VALUES (
		:run_id, :asset, :start_time, :end_time, :status, :error, :data_gaps, :config,
		:total_return, :annualized_return, :benchmark_return, :benchmark_annualized_return,
		:alpha, :final_equity, :sharpe_ratio, :sortino_ratio, :calmar_ratio, :max_drawdown,
		:annualized_volatility, :win_ratio, :profit_factor, :gross_profit, :gross_loss,
		:total_trades, :avg_trade_duration_hours, :no_trades, :created_at
	)`

const insertTrade = `
	INSERT INTO backtest_trades (
		run_id, seq, asset, entry_time, exit_time, side, entry_price, exit_price,
		quantity, entry_fee, exit_fee, exit_reason, profit_loss, profit_loss_percent, duration_hours
	) VALUES (
		:run_id, :seq, :asset, :entry_time, :exit_time, :side, :entry_price, :exit_price,
		:quantity, :entry_fee, :exit_fee, :exit_reason, :profit_loss, :profit_loss_percent, :duration_hours
	)`

// Migrate creates the tables if they do not exist
func (s *Sink) Migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	for _, stmt := range Schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// Save writes the run and its trades in one transaction
func (s *Sink) Save(ctx context.Context, rec persistence.Record) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cfg, err := json.Marshal(rec.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	row := runRow{
		RunID:     rec.RunID,
		Asset:     rec.Config.Asset,
		StartTime: rec.Config.StartTime.UTC(),
		EndTime:   rec.Config.EndTime.UTC(),
		Status:    string(rec.Status),
		Error:     rec.Error,
		DataGaps:  rec.DataGaps,
		Config:    cfg,
		CreatedAt: rec.CreatedAt.UTC(),
		Record:    rec.Metrics,
	}
	if _, err := tx.NamedExecContext(ctx, insertRun, row); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateRun, rec.RunID)
		}
		return fmt.Errorf("failed to insert run %s: %w", rec.RunID, err)
	}

	for i, t := range rec.Trades {
		t.EntryTime = t.EntryTime.UTC()
		t.ExitTime = t.ExitTime.UTC()
		if _, err := tx.NamedExecContext(ctx, insertTrade, tradeRow{RunID: rec.RunID, Seq: i, Trade: t}); err != nil {
			return fmt.Errorf("failed to insert trade %d of run %s: %w", i, rec.RunID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", rec.RunID, err)
	}
	return nil
}

// Get loads one run with its trades
func (s *Sink) Get(ctx context.Context, runID string) (*persistence.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var row runRow
	query := s.db.Rebind(`SELECT * FROM backtest_runs WHERE run_id = ?`)
	if err := s.db.GetContext(ctx, &row, query, runID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", persistence.ErrNotFound, runID)
		}
		return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}

	rec, err := row.record()
	if err != nil {
		return nil, err
	}

	var trades []tradeRow
	query = s.db.Rebind(`SELECT * FROM backtest_trades WHERE run_id = ? ORDER BY seq`)
	if err := s.db.SelectContext(ctx, &trades, query, runID); err != nil {
		return nil, fmt.Errorf("failed to load trades for run %s: %w", runID, err)
	}
	for _, t := range trades {
		rec.Trades = append(rec.Trades, t.Trade)
	}
	return rec, nil
}

// ListByAsset returns run summaries without trades, newest first
func (s *Sink) ListByAsset(ctx context.Context, asset string, limit int) ([]persistence.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	var rows []runRow
	query := s.db.Rebind(`SELECT * FROM backtest_runs WHERE asset = ? ORDER BY created_at DESC LIMIT ?`)
	if err := s.db.SelectContext(ctx, &rows, query, asset, limit); err != nil {
		return nil, fmt.Errorf("failed to list runs for %s: %w", asset, err)
	}

	out := make([]persistence.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := row.record()
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, nil
}

func (r runRow) record() (*persistence.Record, error) {
	var cfg meanrev.Config
	if err := json.Unmarshal(r.Config, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config of run %s: %w", r.RunID, err)
	}
	return &persistence.Record{
		RunID:     r.RunID,
		Config:    cfg,
		Metrics:   r.Record,
		Status:    persistence.Status(r.Status),
		Error:     r.Error,
		DataGaps:  r.DataGaps,
		CreatedAt: r.CreatedAt,
	}, nil
}

// isUniqueViolation reports a PostgreSQL unique_violation (23505)
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
