package sqlstore

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/glickorun/internal/backtest/meanrev"
	"github.com/sawpanic/glickorun/internal/ledger"
	"github.com/sawpanic/glickorun/internal/persistence"
	"github.com/sawpanic/glickorun/internal/report/perf"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newMockSink(t *testing.T) (*Sink, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return NewSink(sqlx.NewDb(mockDB, "postgres"), 5*time.Second), mock
}

func sampleRecord() persistence.Record {
	cfg := meanrev.DefaultConfig()
	cfg.Asset = "BTCUSDT"
	cfg.StartTime = day0
	cfg.EndTime = day0.Add(90 * 24 * time.Hour)

	trade := ledger.Trade{
		Asset:      "BTCUSDT",
		EntryTime:  day0.Add(24 * time.Hour),
		ExitTime:   day0.Add(48 * time.Hour),
		Side:       ledger.Long,
		EntryPrice: 100,
		ExitPrice:  95,
		Quantity:   1,
		ExitReason: ledger.ExitStopLoss,
		ProfitLoss: -5,
	}
	return persistence.Record{
		RunID:     "run-1",
		Config:    cfg,
		Trades:    []ledger.Trade{trade, trade},
		Metrics:   perf.Record{TotalTrades: 2, TotalReturn: -1},
		Status:    persistence.StatusSuccess,
		CreatedAt: day0.Add(100 * 24 * time.Hour),
	}
}

func TestSink_Save(t *testing.T) {
	sink, mock := newMockSink(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO backtest_runs")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO backtest_trades")).
		WithArgs("run-1", 0, "BTCUSDT", day0.Add(24*time.Hour), day0.Add(48*time.Hour), "LONG",
			100.0, 95.0, 1.0, 0.0, 0.0, "STOP_LOSS", -5.0, 0.0, 0.0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO backtest_trades")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, sink.Save(context.Background(), sampleRecord()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSink_SaveRollsBackOnTradeError(t *testing.T) {
	sink, mock := newMockSink(t)
	boom := errors.New("disk full")

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO backtest_runs")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO backtest_trades")).
		WillReturnError(boom)
	mock.ExpectRollback()

	err := sink.Save(context.Background(), sampleRecord())
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSink_SaveDuplicate(t *testing.T) {
	sink, mock := newMockSink(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO backtest_runs")).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key"})
	mock.ExpectRollback()

	err := sink.Save(context.Background(), sampleRecord())
	assert.ErrorIs(t, err, ErrDuplicateRun)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSink_Get(t *testing.T) {
	sink, mock := newMockSink(t)
	rec := sampleRecord()
	cfg, err := json.Marshal(rec.Config)
	require.NoError(t, err)

	runs := sqlmock.NewRows([]string{"run_id", "asset", "status", "error", "data_gaps", "config", "total_trades", "total_return", "no_trades", "created_at"}).
		AddRow("run-1", "BTCUSDT", "success", "", 4, cfg, 2, -1.0, false, rec.CreatedAt)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM backtest_runs WHERE run_id = $1")).
		WithArgs("run-1").
		WillReturnRows(runs)

	trades := sqlmock.NewRows([]string{"run_id", "seq", "asset", "side", "entry_price", "exit_reason"}).
		AddRow("run-1", 0, "BTCUSDT", "LONG", 100.0, "STOP_LOSS").
		AddRow("run-1", 1, "BTCUSDT", "LONG", 101.0, "PROFIT_TARGET")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM backtest_trades WHERE run_id = $1 ORDER BY seq")).
		WithArgs("run-1").
		WillReturnRows(trades)

	got, err := sink.Get(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, persistence.StatusSuccess, got.Status)
	assert.Equal(t, 4, got.DataGaps)
	assert.Equal(t, 2, got.Metrics.TotalTrades)
	assert.Equal(t, 20, got.Config.MovingAveragePeriod)
	assert.True(t, rec.Config.StartTime.Equal(got.Config.StartTime))
	require.Len(t, got.Trades, 2)
	assert.Equal(t, ledger.ExitProfitTarget, got.Trades[1].ExitReason)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSink_GetNotFound(t *testing.T) {
	sink, mock := newMockSink(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM backtest_runs")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"run_id"}))

	_, err := sink.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, persistence.ErrNotFound)
}

func TestSink_ListByAsset(t *testing.T) {
	sink, mock := newMockSink(t)
	cfg, err := json.Marshal(sampleRecord().Config)
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{"run_id", "asset", "status", "config"}).
		AddRow("run-2", "BTCUSDT", "failed", cfg).
		AddRow("run-1", "BTCUSDT", "success", cfg)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM backtest_runs WHERE asset = $1 ORDER BY created_at DESC LIMIT $2")).
		WithArgs("BTCUSDT", 100).
		WillReturnRows(rows)

	got, err := sink.ListByAsset(context.Background(), "BTCUSDT", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "run-2", got[0].RunID)
	assert.Equal(t, persistence.StatusFailed, got[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSink_Migrate(t *testing.T) {
	sink, mock := newMockSink(t)
	for range Schema {
		mock.ExpectExec("CREATE").WillReturnResult(sqlmock.NewResult(0, 0))
	}
	require.NoError(t, sink.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
