// Command check runs a single check cycle and prints its counters. With
// --url it probes an ad-hoc monitor held in memory instead of the database.
package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/leozw/pulse-monitor/internal/app"
	"github.com/leozw/pulse-monitor/internal/config"
	"github.com/leozw/pulse-monitor/internal/db"
	"github.com/leozw/pulse-monitor/internal/logging"
	"github.com/leozw/pulse-monitor/internal/storage/memory"
)

func main() {
	url := flag.StringP("url", "u", "", "probe this URL instead of the monitors in the database")
	method := flag.String("method", "GET", "HTTP method for --url")
	expect := flag.Int("expect", 200, "expected status code for --url")
	timeout := flag.Int("timeout", 30, "probe timeout in seconds for --url")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	var engine *app.App
	if *url != "" {
		store := memory.New()
		store.AddMonitor(&db.Monitor{
			Name:               *url,
			URL:                *url,
			Method:             *method,
			ExpectedStatusCode: *expect,
			CheckInterval:      60,
			Timeout:            *timeout,
			IsActive:           true,
		})
		engine, err = app.New(cfg, store, logger, prometheus.NewRegistry())
	} else {
		engine, err = app.Open(cfg, logger, prometheus.NewRegistry())
	}
	if err != nil {
		logger.Fatal("Failed to initialize engine", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	engine.Dispatcher.Start(ctx)
	stats, err := engine.Orchestrator.RunCycle(ctx)
	// Close flushes any alert notifications raised by the cycle.
	if cerr := engine.Close(); cerr != nil {
		logger.Warn("Failed to close engine", zap.Error(cerr))
	}
	if err != nil {
		logger.Fatal("Check cycle failed", zap.Error(err))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(stats); err != nil {
		logger.Fatal("Failed to write stats", zap.Error(err))
	}
	if stats.Failed > 0 {
		os.Exit(1)
	}
}
