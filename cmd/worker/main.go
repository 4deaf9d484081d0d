package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/lemurdu20escalade/LeSite-sub001/internal/app"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/config"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/log"
	"github.com/lemurdu20escalade/LeSite-sub001/internal/queue"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.LogLevel)

	container, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build application")
	}
	defer container.Close()

	consumer := queue.NewConsumer(
		container.Redis,
		cfg.Worker.Stream,
		cfg.Worker.Group,
		cfg.Worker.Consumer,
		cfg.Worker.ClaimInterval,
		logger,
		container.Processor(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Fatal().Err(err).Msg("consumer stopped unexpectedly")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")
	time.Sleep(500 * time.Millisecond)
}
