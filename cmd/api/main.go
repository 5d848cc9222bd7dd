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
	"go.uber.org/zap"

	"github.com/leozw/pulse-monitor/internal/api"
	"github.com/leozw/pulse-monitor/internal/api/handlers"
	"github.com/leozw/pulse-monitor/internal/app"
	"github.com/leozw/pulse-monitor/internal/config"
	"github.com/leozw/pulse-monitor/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	engine, err := app.Open(cfg, logger, prometheus.DefaultRegisterer)
	if err != nil {
		logger.Fatal("Failed to initialize engine", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine.Dispatcher.Start(ctx)

	h := handlers.NewHandler(engine.Store, engine.Uptime, engine.Orchestrator, engine.Engine, engine, logger)
	router := api.NewRouter(cfg.Server, h, prometheus.DefaultGatherer, logger)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("API server started", zap.String("port", cfg.Server.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	// Deliver queued notifications before the context goes away.
	if err := engine.Close(); err != nil {
		logger.Error("Failed to close engine", zap.Error(err))
	}

	logger.Info("Server exited")
}
