package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sawpanic/glickorun/internal/config"
)

const (
	appName = "glickorun"
	version = "v0.4.0"
)

var (
	configPath string
	logLevel   string
	logJSON    bool
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Glicko-2 rating mean-reversion backtester",
		Version: version,
		Long: `glickorun rates assets against a benchmark with Glicko-2, turns the rating
series into a z-score signal and replays a long-only mean-reversion strategy
over historical klines.

Commands:
   ratings   compute a rating series from a kline file
   convert   convert CSV klines to parquet
   backtest  run one backtest
   windowed  run overlapping walk-forward windows
   sweep     run a parameter grid on a worker pool
   monitor   serve health, metrics and stored runs`,
		SilenceUsage:      true,
		PersistentPreRunE: setupLogging,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (defaults are used when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Write JSON logs even on a terminal")

	rootCmd.AddCommand(newRatingsCmd())  // Rating series
	rootCmd.AddCommand(newConvertCmd())  // Cold storage
	rootCmd.AddCommand(newBacktestCmd()) // Single run
	rootCmd.AddCommand(newWindowedCmd()) // Walk-forward
	rootCmd.AddCommand(newSweepCmd())    // Parameter grid
	rootCmd.AddCommand(newMonitorCmd())  // Monitoring

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

// setupLogging loads .env and configures the global logger
func setupLogging(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", logLevel, err)
	}
	zerolog.SetGlobalLevel(level)

	if !logJSON && stderrIsTerminal() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	return nil
}

func stderrIsTerminal() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}

// loadConfig reads the --config file
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("path", configPath).Str("source", cfg.Data.Source).Msg("Configuration loaded")
	return cfg, nil
}
