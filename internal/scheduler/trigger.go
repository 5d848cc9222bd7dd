package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	DefaultSchedule        = "@every 1m"
	DefaultSummarySchedule = "@daily"
)

// cronLogger routes cron's own logging through zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}

// Trigger fires check cycles and the daily summary on cron schedules.
// A cycle that is still running when the next tick arrives is skipped.
type Trigger struct {
	cron         *cron.Cron
	orchestrator *Orchestrator
	reporter     *Reporter
	logger       *zap.Logger
	cycleTimeout time.Duration

	ctx context.Context
}

type TriggerOptions struct {
	Schedule        string
	SummarySchedule string
	Location        *time.Location
	// CycleTimeout bounds a single cycle; zero means one minute.
	CycleTimeout time.Duration
}

func NewTrigger(orch *Orchestrator, reporter *Reporter, opts TriggerOptions, logger *zap.Logger) (*Trigger, error) {
	if opts.Schedule == "" {
		opts.Schedule = DefaultSchedule
	}
	if opts.SummarySchedule == "" {
		opts.SummarySchedule = DefaultSummarySchedule
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.CycleTimeout <= 0 {
		opts.CycleTimeout = time.Minute
	}

	cl := cronLogger{s: logger.Sugar()}
	t := &Trigger{
		cron: cron.New(
			cron.WithLocation(opts.Location),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		orchestrator: orch,
		reporter:     reporter,
		logger:       logger,
		cycleTimeout: opts.CycleTimeout,
		ctx:          context.Background(),
	}

	if _, err := t.cron.AddFunc(opts.Schedule, t.runCycle); err != nil {
		return nil, fmt.Errorf("invalid check schedule %q: %w", opts.Schedule, err)
	}
	if reporter != nil {
		if _, err := t.cron.AddFunc(opts.SummarySchedule, t.sendSummary); err != nil {
			return nil, fmt.Errorf("invalid summary schedule %q: %w", opts.SummarySchedule, err)
		}
	}
	return t, nil
}

// Start begins firing jobs. Jobs inherit ctx, so cancelling it aborts an
// in-flight cycle.
func (t *Trigger) Start(ctx context.Context) {
	t.ctx = ctx
	t.cron.Start()
	t.logger.Info("Trigger started", zap.Int("jobs", len(t.cron.Entries())))
}

// Stop prevents new runs and returns a context that is done once running
// jobs have finished.
func (t *Trigger) Stop() context.Context {
	t.logger.Info("Stopping trigger")
	return t.cron.Stop()
}

// RunNow performs one cycle immediately, outside the schedule.
func (t *Trigger) RunNow() {
	t.runCycle()
}

func (t *Trigger) runCycle() {
	ctx, cancel := context.WithTimeout(t.ctx, t.cycleTimeout)
	defer cancel()

	if _, err := t.orchestrator.RunCycle(ctx); err != nil {
		t.logger.Error("Check cycle failed", zap.Error(err))
	}
}

func (t *Trigger) sendSummary() {
	ctx, cancel := context.WithTimeout(t.ctx, t.cycleTimeout)
	defer cancel()

	if _, err := t.reporter.SendDailySummary(ctx); err != nil {
		t.logger.Error("Failed to send daily summary", zap.Error(err))
	}
}
