package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Sternrassler/hatebu-galaxy/internal/api"
	"github.com/Sternrassler/hatebu-galaxy/internal/scheduler"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the scheduled top-ups",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger.Info().Interface("config", cfg.Redacted()).Msg("Configuration loaded")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	var sched *scheduler.Scheduler
	if cfg.Scheduler.TopUpSchedule != "" && len(cfg.Scheduler.Users) > 0 {
		sched, err = scheduler.New(a.gatherer, cfg.Scheduler.TopUpSchedule, cfg.Scheduler.Users)
		if err != nil {
			return err
		}
		sched.Start()
	}

	srv := api.NewServer(cfg.Server.Listen, a.deps(version))
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case <-ctx.Done():
		logger.Info().Msg("Shutdown signal received")
	case err = <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("HTTP server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if sched != nil {
		sched.Stop(shutdownCtx)
	}
	if stopErr := srv.Stop(shutdownCtx); stopErr != nil {
		logger.Warn().Err(stopErr).Msg("HTTP server shutdown incomplete")
	}

	logger.Info().Msg("Shutdown complete")
	return err
}
