// Package uptime turns probe results into stored metrics and daily uptime
// rows, and answers aggregate questions over them.
package uptime

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/leozw/pulse-monitor/internal/checks"
	"github.com/leozw/pulse-monitor/internal/clock"
	"github.com/leozw/pulse-monitor/internal/db"
)

type Recorder struct {
	store  db.MetricStore
	clock  clock.Clock
	logger *zap.Logger
}

func NewRecorder(store db.MetricStore, clk clock.Clock, logger *zap.Logger) *Recorder {
	return &Recorder{
		store:  store,
		clock:  clk,
		logger: logger,
	}
}

// Record persists one metric for monitor and folds it into today's summary.
func (r *Recorder) Record(ctx context.Context, monitor *db.Monitor, res checks.Result) (*db.Metric, *db.UptimeSummary, error) {
	now := r.clock.Now()

	metric := &db.Metric{
		ID:             uuid.New().String(),
		MonitorID:      monitor.ID,
		StatusCode:     res.StatusCode,
		ResponseTimeMs: res.ResponseTimeMs,
		IsSuccess:      res.Success,
		CheckedAt:      now,
		CreatedAt:      now,
	}
	if res.Error != "" {
		msg := res.Error
		metric.ErrorMessage = &msg
	}

	summary, err := r.store.RecordMetric(ctx, metric, clock.Day(now))
	if err != nil {
		return nil, nil, fmt.Errorf("record metric for monitor %s: %w", monitor.ID, err)
	}

	r.logger.Debug("Metric recorded",
		zap.String("monitor_id", monitor.ID),
		zap.Bool("success", metric.IsSuccess),
		zap.Int64("response_time_ms", metric.ResponseTimeMs),
		zap.Float64("uptime_today", summary.UptimePercentage),
	)

	return metric, summary, nil
}
