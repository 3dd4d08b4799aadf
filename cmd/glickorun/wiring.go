package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/sawpanic/glickorun/internal/backtest/meanrev"
	"github.com/sawpanic/glickorun/internal/config"
	"github.com/sawpanic/glickorun/internal/data"
	"github.com/sawpanic/glickorun/internal/data/cold"
	"github.com/sawpanic/glickorun/internal/infrastructure/db"
	httpapi "github.com/sawpanic/glickorun/internal/interfaces/http"
	"github.com/sawpanic/glickorun/internal/persistence"
	"github.com/sawpanic/glickorun/internal/rating"
)

// defaultLookback is the rating warm-up used when ratings are not resampled
const defaultLookback = 365 * 24 * time.Hour

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// newKlineSource picks the cold store named by the config
func newKlineSource(cfg config.DataConfig) data.KlineSource {
	if cfg.Source == config.SourceParquet {
		return cold.NewParquetStore(cfg.Dir)
	}
	return cold.NewCSVSource(cfg.Dir)
}

// openProvider stacks the rating computation, the guard and the optional
// Redis tier. The returned close func releases the Redis client.
func openProvider(ctx context.Context, cfg *config.Config, observer data.CacheObserver) (data.Provider, func(), error) {
	engine, err := rating.NewEngine(cfg.Rating)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create rating engine: %w", err)
	}

	var provider data.Provider = data.NewComputingProvider(newKlineSource(cfg.Data), engine, cfg.Data.RatingPeriod)
	provider = data.NewGuardedProvider(provider, cfg.Data.Guard)

	closer := func() {}
	if cfg.Data.Redis.Enabled {
		client, err := data.NewRedisClient(ctx, cfg.Data.Redis.RedisConfig)
		if err != nil {
			log.Warn().Err(err).Str("addr", cfg.Data.Redis.Addr).Msg("Redis unavailable, continuing without series cache")
		} else {
			tier := data.NewRedisTier(client, provider, cfg.Data.Redis.TTL)
			if observer != nil {
				tier.Observe(observer)
			}
			provider = tier
			closer = func() { closeRedis(client) }
		}
	}

	log.Info().
		Str("source", cfg.Data.Source).
		Str("dir", cfg.Data.Dir).
		Dur("rating_period", cfg.Data.RatingPeriod).
		Bool("redis", cfg.Data.Redis.Enabled).
		Msg("Data provider ready")
	return provider, closer, nil
}

func closeRedis(client *redis.Client) {
	if err := client.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close redis client")
	}
}

// loadSeries preloads every asset of configs over the widest window
func loadSeries(ctx context.Context, p data.Provider, cfg *config.Config, configs []meanrev.Config) (*data.SeriesCache, error) {
	if len(configs) == 0 {
		return data.NewSeriesCache(), nil
	}

	seen := make(map[string]bool)
	req := data.CacheRequest{Start: configs[0].StartTime, End: configs[0].EndTime}
	maxPeriod := 0
	for _, c := range configs {
		if !seen[c.Asset] {
			seen[c.Asset] = true
			req.Assets = append(req.Assets, c.Asset)
		}
		if c.StartTime.Before(req.Start) {
			req.Start = c.StartTime
		}
		if c.EndTime.After(req.End) {
			req.End = c.EndTime
		}
		if c.MovingAveragePeriod > maxPeriod {
			maxPeriod = c.MovingAveragePeriod
		}
	}
	req.RatingLookback = ratingLookback(cfg.Data.RatingPeriod, maxPeriod)

	cache, err := data.BuildSeriesCache(ctx, p, req)
	if err != nil {
		return nil, err
	}
	for _, asset := range cache.Assets() {
		s, _ := cache.Get(asset)
		log.Info().
			Str("asset", asset).
			Int("prices", len(s.Prices)).
			Int("ratings", len(s.Ratings)).
			Msg("Series loaded")
	}
	return cache, nil
}

// ratingLookback covers one moving-average window of ratings before start
func ratingLookback(period time.Duration, maPeriod int) time.Duration {
	if period <= 0 {
		return defaultLookback
	}
	return period * time.Duration(maPeriod+1)
}

// openSink builds the result sink from the config: a JSONL file, the SQL
// store, both or neither. The returned close func flushes them.
func openSink(ctx context.Context, cfg *config.Config) (persistence.ResultSink, *db.Manager, func(), error) {
	var sinks persistence.MultiSink
	var closers []func()

	if cfg.Output.SinkJSONL != "" {
		jsonl, err := persistence.NewJSONLSink(cfg.Output.SinkJSONL)
		if err != nil {
			return nil, nil, nil, err
		}
		sinks = append(sinks, jsonl)
		closers = append(closers, func() {
			if err := jsonl.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close JSONL sink")
			}
		})
	}

	manager, err := db.NewManager(ctx, cfg.Database)
	if err != nil {
		for _, c := range closers {
			c()
		}
		return nil, nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	if store := manager.Store(); store != nil {
		sinks = append(sinks, store)
	}
	closers = append(closers, func() {
		if err := manager.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close database")
		}
	})

	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	if len(sinks) == 0 {
		return nil, manager, closeAll, nil
	}
	return sinks, manager, closeAll, nil
}

// startMetricsServer serves /metrics while a batch runs. Empty addr disables it.
func startMetricsServer(addr string, cfg *config.Config, metrics *httpapi.MetricsRegistry, manager *db.Manager) func() {
	if addr == "" {
		return func() {}
	}
	serverCfg := cfg.Monitor
	serverCfg.Addr = addr
	server := httpapi.NewServer(serverCfg, metrics, manager.Store(), manager.Health(), version)
	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("Metrics server failed")
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("Metrics server shutdown error")
		}
	}
}

// addBacktestFlags registers the flags that override the backtest section
func addBacktestFlags(f *pflag.FlagSet) {
	f.String("asset", "", "Asset symbol, e.g. BTCUSDT")
	f.String("start", "", "Start of the run window (YYYY-MM-DD or RFC3339)")
	f.String("end", "", "End of the run window (YYYY-MM-DD or RFC3339)")
	f.Float64("threshold", 0, "Z-score entry threshold")
	f.Int("ma", 0, "Moving average period in rating periods")
	f.Float64("tp", 0, "Profit target percent")
	f.Float64("sl", 0, "Stop loss percent")
	f.Float64("capital", 0, "Initial capital")
	f.Float64("fee", 0, "Proportional fee per side")
	f.Bool("intrabar", false, "Check profit target and stop loss against candle high/low")
}

// backtestFromFlags applies the flags the user set on top of base
func backtestFromFlags(f *pflag.FlagSet, base meanrev.Config) (meanrev.Config, error) {
	cfg := base

	if f.Changed("asset") {
		cfg.Asset, _ = f.GetString("asset")
	}
	for _, tf := range []struct {
		name string
		dst  *time.Time
	}{{"start", &cfg.StartTime}, {"end", &cfg.EndTime}} {
		if !f.Changed(tf.name) {
			continue
		}
		raw, _ := f.GetString(tf.name)
		ts, err := parseTime(raw)
		if err != nil {
			return cfg, fmt.Errorf("invalid --%s: %w", tf.name, err)
		}
		*tf.dst = ts
	}
	if f.Changed("threshold") {
		cfg.ZScoreThreshold, _ = f.GetFloat64("threshold")
	}
	if f.Changed("ma") {
		cfg.MovingAveragePeriod, _ = f.GetInt("ma")
	}
	if f.Changed("tp") {
		cfg.ProfitPercent, _ = f.GetFloat64("tp")
	}
	if f.Changed("sl") {
		cfg.StopLossPercent, _ = f.GetFloat64("sl")
	}
	if f.Changed("capital") {
		cfg.InitialCapital, _ = f.GetFloat64("capital")
	}
	if f.Changed("fee") {
		cfg.FeeRate, _ = f.GetFloat64("fee")
	}
	if f.Changed("intrabar") {
		cfg.IntrabarExits, _ = f.GetBool("intrabar")
	}
	return cfg, nil
}

func parseTime(raw string) (time.Time, error) {
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", raw)
}
