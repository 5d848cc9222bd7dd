// Package app assembles the monitoring engine from configuration. The
// binaries under cmd/ differ only in which parts they start.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/leozw/pulse-monitor/internal/alerts"
	"github.com/leozw/pulse-monitor/internal/checks"
	"github.com/leozw/pulse-monitor/internal/clock"
	"github.com/leozw/pulse-monitor/internal/config"
	"github.com/leozw/pulse-monitor/internal/db"
	"github.com/leozw/pulse-monitor/internal/metrics"
	"github.com/leozw/pulse-monitor/internal/notify"
	"github.com/leozw/pulse-monitor/internal/scheduler"
	"github.com/leozw/pulse-monitor/internal/uptime"
)

type App struct {
	Config       *config.Config
	Logger       *zap.Logger
	Clock        clock.Clock
	Store        db.Store
	Collector    *metrics.Collector
	Engine       *alerts.Engine
	Uptime       *uptime.Service
	Dispatcher   *notify.Dispatcher
	Orchestrator *scheduler.Orchestrator
	Reporter     *scheduler.Reporter

	database *sqlx.DB
}

// Open connects to Postgres, applies migrations when enabled and builds
// the engine on top of the repository.
func Open(cfg *config.Config, logger *zap.Logger, reg prometheus.Registerer) (*App, error) {
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}

	database, err := db.NewConnection(cfg.Database.URL, db.PoolOptions{
		MaxOpenConns: cfg.Database.MaxConnections,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if cfg.Database.Migrate {
		if err := db.Migrate(database); err != nil {
			database.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		logger.Info("Database migrations applied")
	}

	a, err := New(cfg, db.NewRepository(database), logger, reg)
	if err != nil {
		database.Close()
		return nil, err
	}
	a.database = database
	return a, nil
}

// New builds the engine on an existing store.
func New(cfg *config.Config, store db.Store, logger *zap.Logger, reg prometheus.Registerer) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	clk := clock.New(loc)
	collector := metrics.NewCollector(reg)

	notifier := notify.Channels(logger, cfg.Notify.WebhookURL, notify.SMTPConfig{
		Host:     cfg.Notify.SMTP.Host,
		Port:     cfg.Notify.SMTP.Port,
		Username: cfg.Notify.SMTP.Username,
		Password: cfg.Notify.SMTP.Password,
		From:     cfg.Notify.SMTP.From,
		To:       cfg.Notify.SMTP.To,
	})
	dispatcher := notify.NewDispatcher(notifier, notify.Options{
		QueueSize:     cfg.Notify.QueueSize,
		Workers:       cfg.Notify.Workers,
		Timeout:       cfg.Notify.Timeout,
		RatePerSecond: cfg.Notify.RatePerSecond,
		Burst:         cfg.Notify.Burst,
	}, collector, logger)

	engine := alerts.NewEngine(store, store, clk, collector, logger)
	orch := scheduler.NewOrchestrator(
		store,
		checks.NewHTTPChecker(),
		uptime.NewRecorder(store, clk, logger),
		engine,
		dispatcher,
		collector,
		logger,
		cfg.Scheduler.WorkerCount,
	)

	return &App{
		Config:       cfg,
		Logger:       logger,
		Clock:        clk,
		Store:        store,
		Collector:    collector,
		Engine:       engine,
		Uptime:       uptime.NewService(store, clk),
		Dispatcher:   dispatcher,
		Orchestrator: orch,
		Reporter:     scheduler.NewReporter(store, store, clk, dispatcher, logger),
	}, nil
}

// Ping checks the database when there is one.
func (a *App) Ping(ctx context.Context) error {
	if a.database == nil {
		return nil
	}
	return a.database.PingContext(ctx)
}

// Trigger builds the cron driver for the orchestrator and reporter.
func (a *App) Trigger() (*scheduler.Trigger, error) {
	loc, err := a.Config.Location()
	if err != nil {
		return nil, err
	}
	return scheduler.NewTrigger(a.Orchestrator, a.Reporter, scheduler.TriggerOptions{
		Schedule:        a.Config.Scheduler.Schedule,
		SummarySchedule: a.Config.Scheduler.SummarySchedule,
		Location:        loc,
		CycleTimeout:    a.Config.Scheduler.CycleTimeout,
	}, a.Logger)
}

// Close drains pending notifications and releases the database.
func (a *App) Close() error {
	a.Dispatcher.Close()
	if a.database != nil {
		return a.database.Close()
	}
	return nil
}
