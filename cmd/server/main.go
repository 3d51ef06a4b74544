package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"susmarket/internal/app"
	"susmarket/internal/config"
	"susmarket/internal/domain"
	"susmarket/internal/ingest"
	"susmarket/internal/metrics"
	"susmarket/internal/settlement"
	httpTransport "susmarket/internal/transport/http"
)

// liveMatchCode is the pinned match the configured event source feeds
const liveMatchCode = "LIVE"

func main() {
	// Load configuration
	cfg := config.Load()

	// Set up logger
	var logger *slog.Logger
	logOpts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Logging.Level),
	}

	if cfg.Logging.Format == "json" {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, logOpts))
	} else {
		logger = slog.New(slog.NewTextHandler(os.Stdout, logOpts))
	}

	slog.SetDefault(logger)

	logger.Info("starting susmarket server",
		"env", cfg.Server.Env,
		"port", cfg.Server.Port,
		"ingest", cfg.Ingest.Source,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var hubOpts []app.HubOption
	var serverOpts []httpTransport.ServerOption

	if cfg.Metrics.Enabled {
		collector := metrics.NewCollector()
		hubOpts = append(hubOpts, app.WithMetrics(collector))
		serverOpts = append(serverOpts, httpTransport.WithMetricsHandler(collector.Handler()))
	}

	if cfg.Storage.SQLitePath != "" {
		store, err := settlement.Open(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			logger.Error("failed to open settlement store", "path", cfg.Storage.SQLitePath, "error", err)
			os.Exit(1)
		}
		defer store.Close()

		hubOpts = append(hubOpts, app.WithRecorder(store))
		serverOpts = append(serverOpts, httpTransport.WithResolutions(store))
	}

	// Create match hub
	hub := app.NewMatchHub(app.HubConfig{
		Defaults: domain.TokenDefaults{
			Name:            cfg.Engine.Title,
			Ticker:          cfg.Engine.Ticker,
			BasePrice:       cfg.Engine.BasePrice,
			StartingCredits: cfg.Engine.StartingCredits,
		},
		Seed:        cfg.Engine.Seed,
		ReopenDelay: cfg.Engine.ReopenDelay,
		Blind:       cfg.Engine.BlindSpectating,
		CodeLength:  cfg.Engine.MatchCodeLength,
		StaleAfter:  cfg.Engine.StaleMatchAfter,
	}, logger, hubOpts...)
	defer hub.Close()

	live, err := hub.CreatePinnedMatch(liveMatchCode)
	if err != nil {
		logger.Error("failed to create live match", "error", err)
		os.Exit(1)
	}

	if err := startSource(ctx, cfg, live, logger); err != nil {
		logger.Error("failed to start event source", "error", err)
		os.Exit(1)
	}

	// Create HTTP server
	server := httpTransport.NewServer(cfg, hub, logger, serverOpts...)

	// Start server in goroutine
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	cancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("server stopped")
}

// startSource feeds the live match from the configured upstream
func startSource(ctx context.Context, cfg *config.Config, live *app.MatchSession, logger *slog.Logger) error {
	var source ingest.Source

	switch cfg.Ingest.Source {
	case "none":
		return nil
	case "demo":
		return live.StartDemo(cfg.Engine.Seed)
	case "ws":
		source = ingest.NewWSSource(cfg.Ingest.WSURL, live, cfg.Ingest.ReconnectInterval, logger.With("source", "ws"))
	case "nats":
		source = ingest.NewNATSSource(cfg.Ingest.NATSURL, cfg.Ingest.NATSSubject, live, cfg.Ingest.ReconnectInterval, logger.With("source", "nats"))
	default:
		return fmt.Errorf("unknown ingest source %q", cfg.Ingest.Source)
	}

	go func() {
		if err := source.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("event source stopped", "error", err)
		}
	}()
	return nil
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
