package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/lemurdu20escalade/LeSite-sub001/internal/app"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/config"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/jobs"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/log"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.LogLevel)

	ctx := context.Background()

	container, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build application")
	}
	if err := container.Bootstrap(ctx); err != nil {
		logger.Fatal().Err(err).Msg("bootstrap failed")
	}

	httpServer := server.NewHTTPServer(cfg, logger, container.HandlerSet())

	scheduler := jobs.NewScheduler(container.Redis, cfg.Worker.Stream, logger)
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, scheduler, container)
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer, scheduler *jobs.Scheduler, container *app.Container) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	scheduler.Stop()
	container.Close()

	logger.Info().Msg("server exited cleanly")
}
