package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agribot/internal/config"
	"agribot/internal/logger"
	"agribot/internal/processor"
)

func main() {
	configDir := flag.String("config", ".", "directory holding config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configDir)
	if err != nil {
		logger.Init("info")
		logger.Logger.Fatal().Err(err).Msg("failed to load config")
	}
	logger.Init(cfg.Log.Level)
	log := logger.WithComponent("main")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// create processor
	p := processor.New(cfg)

	// run processor in background
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := p.Run(ctx); err != nil {
			log.Error().Err(err).Msg("processor exited")
			cancel()
		}
	}()

	// wait for termination signals
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()
	case <-ctx.Done():
	}

	// give graceful shutdown some time
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		log.Warn().Msg("shutdown timed out")
	}
	log.Info().Msg("exited")
}
