package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/leozw/pulse-monitor/internal/alerts"
	"github.com/leozw/pulse-monitor/internal/checks"
	"github.com/leozw/pulse-monitor/internal/db"
	"github.com/leozw/pulse-monitor/internal/metrics"
	"github.com/leozw/pulse-monitor/internal/uptime"
)

const DefaultWorkerCount = 10

// AlertDispatcher hands created alerts to the notification layer. It must
// not block.
type AlertDispatcher interface {
	Dispatch(alert *db.Alert, monitor *db.Monitor) bool
}

type CycleStats struct {
	Checked   int           `json:"checked"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Duration  time.Duration `json:"duration"`
}

// Orchestrator runs one check cycle per call. It is driven by an external
// trigger and holds no timers of its own.
type Orchestrator struct {
	monitors    db.MonitorStore
	runner      checks.Runner
	recorder    *uptime.Recorder
	engine      *alerts.Engine
	dispatcher  AlertDispatcher
	metrics     *metrics.Collector
	logger      *zap.Logger
	workerCount int

	// post-record steps run detached from cycle cancellation, bounded by this
	finishTimeout time.Duration
}

func NewOrchestrator(
	monitors db.MonitorStore,
	runner checks.Runner,
	recorder *uptime.Recorder,
	engine *alerts.Engine,
	dispatcher AlertDispatcher,
	metrics *metrics.Collector,
	logger *zap.Logger,
	workerCount int,
) *Orchestrator {
	if workerCount <= 0 {
		workerCount = DefaultWorkerCount
	}
	return &Orchestrator{
		monitors:      monitors,
		runner:        runner,
		recorder:      recorder,
		engine:        engine,
		dispatcher:    dispatcher,
		metrics:       metrics,
		logger:        logger,
		workerCount:   workerCount,
		finishTimeout: 30 * time.Second,
	}
}

// RunCycle checks every active monitor once. Per-monitor failures are
// counted, never returned; the error is reserved for failing to load the
// monitor list.
func (o *Orchestrator) RunCycle(ctx context.Context) (CycleStats, error) {
	start := time.Now()

	monitors, err := o.monitors.ActiveMonitors(ctx)
	if err != nil {
		return CycleStats{}, fmt.Errorf("failed to load active monitors: %w", err)
	}

	if len(monitors) == 0 {
		o.logger.Warn("No active monitors found")
		stats := CycleStats{Duration: time.Since(start)}
		o.metrics.RecordCycle(stats.Duration, 0, 0, 0)
		return stats, nil
	}

	o.logger.Info("Starting check cycle",
		zap.Int("monitors", len(monitors)),
		zap.Int("worker_count", o.workerCount),
	)

	outcomes := make([]outcome, len(monitors))
	var g errgroup.Group
	g.SetLimit(o.workerCount)

	for i, monitor := range monitors {
		i, monitor := i, monitor
		g.Go(func() error {
			outcomes[i] = o.safeProcess(ctx, monitor)
			return nil
		})
	}
	_ = g.Wait()

	stats := CycleStats{}
	for _, oc := range outcomes {
		switch oc {
		case outcomeSucceeded:
			stats.Succeeded++
		case outcomeFailed:
			stats.Failed++
		default:
			stats.Skipped++
		}
	}
	stats.Checked = stats.Succeeded + stats.Failed
	stats.Duration = time.Since(start)

	o.metrics.RecordCycle(stats.Duration, stats.Succeeded, stats.Failed, stats.Skipped)
	o.logger.Info("Check cycle complete",
		zap.Int("checked", stats.Checked),
		zap.Int("succeeded", stats.Succeeded),
		zap.Int("failed", stats.Failed),
		zap.Int("skipped", stats.Skipped),
		zap.Duration("duration", stats.Duration),
	)

	return stats, nil
}

// CheckMonitor runs the pipeline for a single monitor on demand.
func (o *Orchestrator) CheckMonitor(ctx context.Context, monitorID string) (*db.Metric, error) {
	monitor, err := o.monitors.GetMonitor(ctx, monitorID)
	if err != nil {
		return nil, err
	}
	metric, _, err := o.process(ctx, monitor)
	if metric == nil {
		if err == nil {
			err = ctx.Err()
		}
		return nil, err
	}
	if err != nil {
		// The metric is already stored; report it and keep the error in the log.
		o.logger.Error("Manual check finished with errors",
			zap.String("monitor_id", monitor.ID),
			zap.Error(err),
		)
	}
	return metric, nil
}
