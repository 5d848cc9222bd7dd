package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/leozw/pulse-monitor/internal/db"
)

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeSucceeded
	outcomeFailed
)

// safeProcess isolates one monitor's pipeline so a panic or error never
// reaches the rest of the cycle.
func (o *Orchestrator) safeProcess(ctx context.Context, monitor *db.Monitor) (res outcome) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("Check pipeline panicked",
				zap.String("monitor_id", monitor.ID),
				zap.Any("panic", r),
			)
			res = outcomeFailed
		}
	}()

	if ctx.Err() != nil {
		return outcomeSkipped
	}

	metric, _, err := o.process(ctx, monitor)
	switch {
	case err != nil:
		o.logger.Error("Failed to check monitor",
			zap.String("monitor_id", monitor.ID),
			zap.String("monitor_name", monitor.Name),
			zap.Error(err),
		)
		return outcomeFailed
	case metric == nil:
		return outcomeSkipped
	case metric.IsSuccess:
		return outcomeSucceeded
	default:
		return outcomeFailed
	}
}

// process runs probe, record, evaluate and dispatch in order. A nil metric
// with a nil error means ctx ended before anything was written.
func (o *Orchestrator) process(ctx context.Context, monitor *db.Monitor) (*db.Metric, []*db.Alert, error) {
	start := time.Now()

	o.logger.Debug("Processing check",
		zap.String("monitor_id", monitor.ID),
		zap.String("url", monitor.URL),
	)

	result := o.runner.Check(ctx, monitor)
	if ctx.Err() != nil {
		o.logger.Debug("Check abandoned, cycle cancelled", zap.String("monitor_id", monitor.ID))
		return nil, nil, nil
	}

	metric, summary, err := o.recorder.Record(ctx, monitor, result)
	if err != nil {
		if ctx.Err() != nil {
			// The write was rolled back with the cycle; nothing was stored.
			o.logger.Debug("Record abandoned, cycle cancelled", zap.String("monitor_id", monitor.ID))
			return nil, nil, nil
		}
		return nil, nil, err
	}
	o.metrics.RecordCheck(monitor, metric)
	o.metrics.RecordUptime(monitor, summary)

	// The metric is stored; finish alerting even if the cycle is being
	// cancelled so the write is never left without its evaluation.
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.finishTimeout)
	defer cancel()

	created, err := o.engine.Evaluate(finishCtx, monitor, metric)
	for _, a := range created {
		o.dispatcher.Dispatch(a, monitor)
	}
	if err != nil {
		return metric, created, fmt.Errorf("alert evaluation: %w", err)
	}

	o.logger.Debug("Check completed",
		zap.String("monitor_id", monitor.ID),
		zap.Bool("success", metric.IsSuccess),
		zap.Int("status_code", metric.StatusCode),
		zap.Int("alerts", len(created)),
		zap.Duration("duration", time.Since(start)),
	)

	return metric, created, nil
}
