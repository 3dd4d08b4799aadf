// Package config loads the glickorun YAML configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sawpanic/glickorun/internal/backtest/meanrev"
	"github.com/sawpanic/glickorun/internal/data"
	"github.com/sawpanic/glickorun/internal/infrastructure/db"
	httpapi "github.com/sawpanic/glickorun/internal/interfaces/http"
	"github.com/sawpanic/glickorun/internal/rating"
	"github.com/sawpanic/glickorun/internal/report/perf"
	"github.com/sawpanic/glickorun/internal/tune/sweep"
)

// Kline file formats
const (
	SourceCSV     = "csv"
	SourceParquet = "parquet"
)

// Config is the complete application configuration
type Config struct {
	Backtest   meanrev.Config       `yaml:"backtest"`
	Rating     rating.Config        `yaml:"rating"`
	Data       DataConfig           `yaml:"data"`
	Sweep      SweepConfig          `yaml:"sweep"`
	Thresholds perf.Thresholds      `yaml:"thresholds"`
	Database   db.Config            `yaml:"database"`
	Monitor    httpapi.ServerConfig `yaml:"monitor"`
	Output     OutputConfig         `yaml:"output"`
}

// DataConfig selects where klines come from and how they are cached
type DataConfig struct {
	Source       string           `yaml:"source"`        // csv or parquet
	Dir          string           `yaml:"dir"`           // one file per asset
	RatingPeriod time.Duration    `yaml:"rating_period"` // 0 rates every candle (default: 168h)
	Guard        data.GuardConfig `yaml:"guard"`
	Redis        RedisSection     `yaml:"redis"`
}

// RedisSection enables the Redis series tier
type RedisSection struct {
	Enabled          bool `yaml:"enabled"`
	data.RedisConfig `yaml:",inline"`
}

// SweepConfig configures the parameter sweep
type SweepConfig struct {
	sweep.Config `yaml:",inline"`
	Grid         sweep.Grid `yaml:"grid"`
	RankBy       string     `yaml:"rank_by"` // default: sharpe_ratio
	Top          int        `yaml:"top"`     // rows in the report (default: 20)
	WindowMonths int        `yaml:"window_months"`
}

// OutputConfig controls where artifacts are written
type OutputConfig struct {
	Dir       string `yaml:"dir"`        // default: artifacts
	SinkJSONL string `yaml:"sink_jsonl"` // optional JSONL result sink
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Backtest: meanrev.DefaultConfig(),
		Rating:   rating.DefaultConfig(),
		Data: DataConfig{
			Source:       SourceCSV,
			Dir:          "data",
			RatingPeriod: 7 * 24 * time.Hour,
			Guard:        data.DefaultGuardConfig("klines"),
			Redis: RedisSection{
				RedisConfig: data.RedisConfig{Addr: "localhost:6379", TTL: 24 * time.Hour},
			},
		},
		Sweep: SweepConfig{
			Config:       sweep.DefaultConfig(),
			Grid:         sweep.DefaultGrid(),
			RankBy:       sweep.BySharpe,
			Top:          20,
			WindowMonths: meanrev.DefaultWindowMonths,
		},
		Thresholds: perf.DefaultThresholds(),
		Database:   db.DefaultConfig(),
		Monitor:    httpapi.DefaultServerConfig(),
		Output:     OutputConfig{Dir: "artifacts"},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(&config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &config, nil
}

// applyEnvOverrides lets secrets and endpoints come from the environment
func applyEnvOverrides(config *Config) {
	db.ApplyEnvOverrides(&config.Database)

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		config.Data.Redis.Addr = addr
		config.Data.Redis.Enabled = true
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		config.Data.Redis.Password = pw
	}
	if dir := os.Getenv("GLICKORUN_DATA_DIR"); dir != "" {
		config.Data.Dir = dir
	}
}

// Validate ensures the configuration is valid and consistent. The backtest
// section is checked per run, after CLI flags are applied.
func (c *Config) Validate() error {
	if err := c.Rating.Validate(); err != nil {
		return fmt.Errorf("rating: %w", err)
	}

	switch c.Data.Source {
	case SourceCSV, SourceParquet:
	default:
		return fmt.Errorf("data source must be %s or %s, got %q", SourceCSV, SourceParquet, c.Data.Source)
	}
	if c.Data.RatingPeriod < 0 {
		return fmt.Errorf("data rating_period cannot be negative, got %s", c.Data.RatingPeriod)
	}
	if c.Data.Guard.RPS < 0 {
		return fmt.Errorf("data guard rps cannot be negative, got %v", c.Data.Guard.RPS)
	}
	if c.Data.Redis.Enabled && c.Data.Redis.Addr == "" {
		return fmt.Errorf("data redis addr is required when enabled")
	}

	if err := c.Sweep.Grid.Validate(); err != nil {
		return fmt.Errorf("sweep grid: %w", err)
	}
	if c.Sweep.Workers < 0 {
		return fmt.Errorf("sweep workers cannot be negative, got %d", c.Sweep.Workers)
	}
	if c.Sweep.RunTimeout < 0 {
		return fmt.Errorf("sweep run_timeout cannot be negative, got %s", c.Sweep.RunTimeout)
	}
	if c.Sweep.WindowMonths < 0 {
		return fmt.Errorf("sweep window_months cannot be negative, got %d", c.Sweep.WindowMonths)
	}
	if _, err := sweep.Rank(nil, c.Sweep.RankBy); err != nil {
		return fmt.Errorf("sweep: %w", err)
	}

	if c.Thresholds.MaxDrawdown <= 0 || c.Thresholds.MaxDrawdown > 1 {
		return fmt.Errorf("thresholds max_drawdown must be in (0, 1], got %v", c.Thresholds.MaxDrawdown)
	}

	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	return nil
}
