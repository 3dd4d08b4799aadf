package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/glickorun/internal/backtest/meanrev"
	"github.com/sawpanic/glickorun/internal/ledger"
	"github.com/sawpanic/glickorun/internal/persistence"
	"github.com/sawpanic/glickorun/internal/report/perf"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, DriverPostgres, config.Driver)
	assert.Equal(t, 10, config.MaxOpenConns)
	assert.Equal(t, 5, config.MaxIdleConns)
	assert.Equal(t, 30*time.Minute, config.ConnMaxLifetime)
	assert.Equal(t, 30*time.Second, config.QueryTimeout)
	assert.False(t, config.Enabled)
}

func TestConfig_Validate(t *testing.T) {
	valid := DefaultConfig()
	valid.Enabled = true
	valid.DSN = "postgres://localhost/glickorun"

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"disabled skips checks", func(c *Config) { c.Enabled = false; c.DSN = "" }, ""},
		{"unknown driver", func(c *Config) { c.Driver = "mysql" }, "unsupported database driver"},
		{"missing dsn", func(c *Config) { c.DSN = "" }, "DSN is required"},
		{"idle above open", func(c *Config) { c.MaxIdleConns = 20 }, "max_idle_conns cannot exceed"},
		{"zero timeout", func(c *Config) { c.QueryTimeout = 0 }, "query_timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_DSN", "file:results.db")
	t.Setenv("DB_ENABLED", "true")
	t.Setenv("DB_QUERY_TIMEOUT", "5s")

	config := DefaultConfig()
	ApplyEnvOverrides(&config)

	assert.Equal(t, DriverSQLite, config.Driver)
	assert.Equal(t, "file:results.db", config.DSN)
	assert.True(t, config.Enabled)
	assert.Equal(t, 5*time.Second, config.QueryTimeout)
}

func TestNewManager_Disabled(t *testing.T) {
	manager, err := NewManager(context.Background(), Config{Enabled: false})
	require.NoError(t, err)

	assert.False(t, manager.IsEnabled())
	assert.Nil(t, manager.Store())
	assert.Nil(t, manager.DB())
	assert.NoError(t, manager.Close())

	health := manager.Health().Health(context.Background())
	assert.True(t, health.Healthy)
	assert.Contains(t, health.Errors[0], "disabled")
	assert.NoError(t, manager.Health().Ping(context.Background()))
}

func TestNewManager_MissingDSN(t *testing.T) {
	config := DefaultConfig()
	config.Enabled = true

	_, err := NewManager(context.Background(), config)
	assert.ErrorContains(t, err, "DSN is required")
}

func TestHealthChecker_Enabled(t *testing.T) {
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer mockDB.Close()

	h := &healthChecker{enabled: true, db: sqlx.NewDb(mockDB, "postgres"), timeout: time.Second}

	mock.ExpectPing()
	health := h.Health(context.Background())
	assert.True(t, health.Healthy)
	assert.Empty(t, health.Errors)

	mock.ExpectPing().WillReturnError(assert.AnError)
	health = h.Health(context.Background())
	assert.False(t, health.Healthy)
	assert.Contains(t, health.Errors[0], "ping failed")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestManager_SQLiteRoundTrip(t *testing.T) {
	config := DefaultConfig()
	config.Enabled = true
	config.Driver = DriverSQLite
	config.DSN = filepath.Join(t.TempDir(), "results.db")
	config.MaxOpenConns = 1
	config.MaxIdleConns = 1

	ctx := context.Background()
	manager, err := NewManager(ctx, config)
	require.NoError(t, err)
	defer manager.Close()
	require.True(t, manager.IsEnabled())

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := meanrev.DefaultConfig()
	cfg.Asset = "ETHUSDT"
	cfg.StartTime = start
	cfg.EndTime = start.Add(60 * 24 * time.Hour)

	rec := persistence.Record{
		RunID:  "sqlite-run",
		Config: cfg,
		Trades: []ledger.Trade{{
			Asset:      "ETHUSDT",
			EntryTime:  start.Add(24 * time.Hour),
			ExitTime:   start.Add(72 * time.Hour),
			Side:       ledger.Long,
			EntryPrice: 2000,
			ExitPrice:  2200,
			Quantity:   0.5,
			ExitReason: ledger.ExitProfitTarget,
			ProfitLoss: 100,
		}},
		Metrics:   perf.Record{TotalTrades: 1, WinRatio: 1, ProfitFactor: perf.RatioCap},
		Status:    persistence.StatusSuccess,
		CreatedAt: start.Add(90 * 24 * time.Hour),
	}

	store := manager.Store()
	require.NoError(t, store.Save(ctx, rec))

	got, err := store.Get(ctx, "sqlite-run")
	require.NoError(t, err)
	assert.Equal(t, "ETHUSDT", got.Config.Asset)
	assert.Equal(t, perf.RatioCap, got.Metrics.ProfitFactor)
	require.Len(t, got.Trades, 1)
	assert.Equal(t, ledger.ExitProfitTarget, got.Trades[0].ExitReason)
	assert.InDelta(t, 0.5, got.Trades[0].Quantity, 1e-9)

	list, err := store.ListByAsset(ctx, "ETHUSDT", 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, persistence.ErrNotFound)
}
