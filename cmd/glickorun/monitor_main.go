package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/glickorun/internal/infrastructure/db"
	httpapi "github.com/sawpanic/glickorun/internal/interfaces/http"
)

func newMonitorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Start monitoring HTTP server",
		Long:  "Serves /health, /metrics and stored runs (/runs?asset=, /runs/{id}) until interrupted",
		RunE:  runMonitor,
	}
	cmd.Flags().String("addr", "", "Listen address (defaults to monitor.addr)")
	return cmd
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Monitor.Addr = addr
	}

	ctx, cancel := signalContext()
	defer cancel()

	manager, err := db.NewManager(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer manager.Close()
	if !manager.IsEnabled() {
		log.Warn().Msg("Database disabled, run lookups will answer 503")
	}

	server := httpapi.NewServer(cfg.Monitor, httpapi.NewMetricsRegistry(), manager.Store(), manager.Health(), version)

	serverErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("health", fmt.Sprintf("http://%s/health", cfg.Monitor.Addr)).
			Str("metrics", fmt.Sprintf("http://%s/metrics", cfg.Monitor.Addr)).
			Str("runs", fmt.Sprintf("http://%s/runs?asset={asset}", cfg.Monitor.Addr)).
			Msg("Monitor endpoints available")
		serverErr <- server.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
		return err
	}

	log.Info().Msg("Monitor server shutdown complete")
	return nil
}
