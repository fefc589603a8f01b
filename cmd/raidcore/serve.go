package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/raidcore/raidcore/internal/app"
	"github.com/raidcore/raidcore/internal/config"
	"github.com/raidcore/raidcore/internal/telemetry"
)

var errShutdownTimeout = errors.New("raidcore: shutdown did not complete within the grace period")

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway's HTTP/WS surface until terminated",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

// runServe loads config and blocks inside app.Run until SIGINT/SIGTERM,
// matching goclaw's runGateway() construction-order-then-signal-driven
// shutdown shape.
func runServe(parent context.Context) error {
	level := "info"
	if verbose {
		level = "debug"
	}
	logger := telemetry.NewLogger(level)

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		logger.Error("cmd.config_load_failed", "error", err)
		return fmt.Errorf("load config: %w", err)
	}

	shutdownTracer, err := telemetry.InitTracer(parent, "raidcore-gateway")
	if err != nil {
		logger.Warn("cmd.tracer_init_failed", "error", err)
		shutdownTracer = func(context.Context) error { return nil }
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("cmd.shutdown_signal_received")
		cancel()
	}()

	if cfg.Gateway.Token == "" {
		logger.Warn("cmd.no_gateway_token_configured")
	}

	runErr := app.Run(ctx, cfg, logger)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace())
	defer shutdownCancel()
	if err := shutdownTracer(shutdownCtx); err != nil {
		logger.Warn("cmd.tracer_shutdown_failed", "error", err)
	}
	if shutdownCtx.Err() != nil {
		return errShutdownTimeout
	}

	return runErr
}
