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

	"github.com/spf13/cobra"

	"github.com/tommypritchett/shotgun-formation-2025-sub000/internal/app"
	"github.com/tommypritchett/shotgun-formation-2025-sub000/internal/config"
	"github.com/tommypritchett/shotgun-formation-2025-sub000/internal/storage/postgres"
	httpTransport "github.com/tommypritchett/shotgun-formation-2025-sub000/internal/transport/http"
)

const releaseVersion = "0.1.0"

func main() {
	cobra.CheckErr(newCmd().Execute())
}

func newCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "shotgun-server",
		Short:         "Real-time game server for the Shotgun Formation drinking game.",
		Args:          cobra.NoArgs,
		Version:       releaseVersion,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}

	config.BindFlags(cmd.Flags())

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("shotgun-server v{{.Version}}\n")

	return cmd
}

func run(cfg *config.Config) error {
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

	logger.Info("starting shotgun formation server",
		"env", cfg.Server.Env,
		"port", cfg.Server.Port,
	)

	ledger, closeLedger, err := openLedger(cfg, logger)
	if err != nil {
		return err
	}
	defer closeLedger()

	// Create game hub
	hub := app.NewGameHub(app.HubConfig{
		RoomCodeLength:   cfg.Game.RoomCodeLength,
		StaleRoomTimeout: cfg.Game.StaleRoomTimeout,
		ReconnectGrace:   cfg.Game.ReconnectGracePeriod,
		Room:             cfg.RoomSettings(),
		Ticker:           app.RealTicker,
		Ledger:           ledger,
	}, logger)
	defer hub.Close()

	// Create HTTP server
	server := httpTransport.NewServer(cfg, hub, logger)

	// Start server in goroutine
	errs := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-errs:
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("server stopped")
	return nil
}

// openLedger picks the round ledger: postgres when a database url is set, memory otherwise
func openLedger(cfg *config.Config, logger *slog.Logger) (app.RoundLedger, func(), error) {
	if cfg.Ledger.DatabaseURL == "" {
		logger.Info("round ledger in memory")
		return app.NewMemoryLedger(), func() {}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ledger, err := postgres.NewLedger(ctx, cfg.Ledger.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("opening round ledger: %w", err)
	}

	logger.Info("round ledger in postgres")
	return ledger, ledger.Close, nil
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
