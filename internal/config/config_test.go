package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/glickorun/internal/tune/sweep"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "glickorun.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, SourceCSV, cfg.Data.Source)
	assert.Equal(t, 7*24*time.Hour, cfg.Data.RatingPeriod)
	assert.Equal(t, 81, cfg.Sweep.Grid.Size())
	assert.Equal(t, sweep.BySharpe, cfg.Sweep.RankBy)
	assert.False(t, cfg.Database.Enabled)
	assert.False(t, cfg.Data.Redis.Enabled)
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Backtest, cfg.Backtest)
}

func TestLoad_OverridesOnlyGivenKeys(t *testing.T) {
	path := writeConfig(t, `
backtest:
  asset: BTCUSDT
  start_time: 2023-01-01T00:00:00Z
  end_time: 2024-01-01T00:00:00Z
  z_score_threshold: 1.5
data:
  source: parquet
  dir: /srv/klines
  rating_period: 24h
  redis:
    enabled: true
    addr: redis:6379
    ttl: 1h
sweep:
  workers: 4
  run_timeout: 30s
  rank_by: total_return
  grid:
    assets: [BTCUSDT, ETHUSDT]
    z_score_thresholds: [1.5, 2.5]
monitor:
  addr: 0.0.0.0:9100
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", cfg.Backtest.Asset)
	assert.Equal(t, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), cfg.Backtest.StartTime.UTC())
	assert.Equal(t, 1.5, cfg.Backtest.ZScoreThreshold)
	assert.Equal(t, 20, cfg.Backtest.MovingAveragePeriod, "unset keys keep defaults")

	assert.Equal(t, SourceParquet, cfg.Data.Source)
	assert.Equal(t, "/srv/klines", cfg.Data.Dir)
	assert.Equal(t, 24*time.Hour, cfg.Data.RatingPeriod)
	assert.True(t, cfg.Data.Redis.Enabled)
	assert.Equal(t, "redis:6379", cfg.Data.Redis.Addr)
	assert.Equal(t, time.Hour, cfg.Data.Redis.TTL)

	assert.Equal(t, 4, cfg.Sweep.Workers)
	assert.Equal(t, 30*time.Second, cfg.Sweep.RunTimeout)
	assert.Equal(t, sweep.ByTotalReturn, cfg.Sweep.RankBy)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, cfg.Sweep.Grid.Assets)
	assert.Equal(t, []float64{1.5, 2.5}, cfg.Sweep.Grid.ZScoreThresholds)

	assert.Equal(t, "0.0.0.0:9100", cfg.Monitor.Addr)
	assert.Equal(t, 10*time.Second, cfg.Monitor.ReadTimeout)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad yaml", "data: [unterminated", "failed to parse"},
		{"unknown source", "data:\n  source: xlsx\n", "data source"},
		{"negative period", "data:\n  rating_period: -1h\n", "rating_period"},
		{"unknown metric", "sweep:\n  rank_by: luck\n", "sweep"},
		{"negative workers", "sweep:\n  workers: -2\n", "workers"},
		{"bad drawdown threshold", "thresholds:\n  max_drawdown: 2\n", "max_drawdown"},
		{"db without dsn", "database:\n  enabled: true\n", "database"},
		{"bad rating config", "rating:\n  min_deviation: -1\n", "rating"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DB_ENABLED", "true")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_DSN", "file:runs.db")
	t.Setenv("REDIS_ADDR", "cache:6380")
	t.Setenv("GLICKORUN_DATA_DIR", "/data/klines")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.True(t, cfg.Database.Enabled)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "file:runs.db", cfg.Database.DSN)
	assert.True(t, cfg.Data.Redis.Enabled)
	assert.Equal(t, "cache:6380", cfg.Data.Redis.Addr)
	assert.Equal(t, "/data/klines", cfg.Data.Dir)
}

func TestLoad_ShippedExample(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config", "glickorun.yaml"))
	require.NoError(t, err)

	require.NoError(t, cfg.Backtest.Validate())
	assert.Equal(t, 2*81, cfg.Sweep.Grid.Size())
	assert.Equal(t, 168*time.Hour, cfg.Data.RatingPeriod)
	assert.Equal(t, 50.0, cfg.Rating.Benchmark.Deviation)
}
