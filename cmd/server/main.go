package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/johnrirwin/ordo/internal/app"
	"github.com/johnrirwin/ordo/internal/config"
	"github.com/johnrirwin/ordo/internal/logging"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	application, err := app.New(ctx, cfg)
	if err != nil {
		logging.New(logging.LevelError).Error("Failed to start", logging.WithField("error", err.Error()))
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		application.Logger.Info("Shutting down...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		_ = application.Shutdown(shutdownCtx)
	}()

	if err := application.Run(ctx); err != nil {
		application.Logger.Error("HTTP server error", logging.WithField("error", err.Error()))
		os.Exit(1)
	}
}
