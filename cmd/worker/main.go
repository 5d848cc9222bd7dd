package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/leozw/pulse-monitor/internal/app"
	"github.com/leozw/pulse-monitor/internal/config"
	"github.com/leozw/pulse-monitor/internal/logging"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Setup logger
	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	engine, err := app.Open(cfg, logger, prometheus.DefaultRegisterer)
	if err != nil {
		logger.Fatal("Failed to initialize engine", zap.Error(err))
	}

	trigger, err := engine.Trigger()
	if err != nil {
		logger.Fatal("Failed to create trigger", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine.Dispatcher.Start(ctx)
	trigger.Start(ctx)

	// Start metrics exporter
	metricsSrv := &http.Server{
		Addr:    ":" + cfg.Metrics.Port,
		Handler: promhttp.Handler(),
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()

	logger.Info("Worker started",
		zap.String("schedule", cfg.Scheduler.Schedule),
		zap.Int("workers", cfg.Scheduler.WorkerCount),
		zap.String("metrics_port", cfg.Metrics.Port),
	)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down worker...")

	// Let the running cycle record what it has, then abort it.
	done := trigger.Stop()
	select {
	case <-done.Done():
	case <-time.After(30 * time.Second):
		logger.Warn("Cycle did not finish in time, cancelling")
		cancel()
		<-done.Done()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Metrics server forced to shutdown", zap.Error(err))
	}

	// Deliver queued notifications before the context goes away.
	if err := engine.Close(); err != nil {
		logger.Error("Failed to close engine", zap.Error(err))
	}

	logger.Info("Worker exited")
}
