package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/volgate/volgate/internal/config"
	"github.com/volgate/volgate/internal/engine"
	httpiface "github.com/volgate/volgate/internal/interfaces/http"
)

// serveCmd starts the local HTTP control surface
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local HTTP control surface",
	Long: `Start the loopback-only HTTP control surface over one engine instance.

Endpoints:
  POST /evaluate       run the admission pipeline for one candidate
  GET  /bins/snapshot  inspect the capital ledger
  POST /session/reset  start a new session day
  GET  /health         liveness
  GET  /metrics        Prometheus exposition

Example usage:
  volgate serve --config config/volgate.yaml --equity 250000`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	eng, err := engine.New(cfg, flagEquity)
	if err != nil {
		return fmt.Errorf("failed to wire engine: %w", err)
	}

	srv, err := httpiface.NewServer(cfg.Server, eng)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutdown requested")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func loadConfig() (config.Config, error) {
	if flagConfig == "" {
		return config.Default(), nil
	}
	return config.Load(flagConfig)
}
