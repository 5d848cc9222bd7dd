package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/leozw/pulse-monitor/internal/clock"
	"github.com/leozw/pulse-monitor/internal/db"
	"github.com/leozw/pulse-monitor/internal/notify"
)

var ErrSummaryDropped = errors.New("daily summary notification was not queued")

type NotificationQueue interface {
	Enqueue(n *notify.Notification) bool
}

// Reporter builds the daily rollup across all monitors.
type Reporter struct {
	metrics db.MetricStore
	alerts  db.AlertStore
	clock   clock.Clock
	queue   NotificationQueue
	logger  *zap.Logger
}

func NewReporter(metricStore db.MetricStore, alertStore db.AlertStore, clk clock.Clock, queue NotificationQueue, logger *zap.Logger) *Reporter {
	return &Reporter{
		metrics: metricStore,
		alerts:  alertStore,
		clock:   clk,
		queue:   queue,
		logger:  logger,
	}
}

// DailyStats aggregates the calendar day containing day.
func (r *Reporter) DailyStats(ctx context.Context, day time.Time) (notify.DailyStats, error) {
	start := clock.Day(day)
	end := start.AddDate(0, 0, 1)
	stats := notify.DailyStats{Date: start}

	rows, err := r.metrics.UptimeSummaries(ctx, "", start, start)
	if err != nil {
		return stats, fmt.Errorf("failed to load uptime summaries: %w", err)
	}
	for _, s := range rows {
		stats.TotalChecks += s.TotalChecks
		stats.SuccessfulChecks += s.SuccessfulChecks
	}
	stats.FailedChecks = stats.TotalChecks - stats.SuccessfulChecks
	stats.UptimePercentage = db.UptimePercentage(stats.SuccessfulChecks, stats.TotalChecks)

	created, err := r.alerts.ListAlerts(ctx, db.AlertFilter{Since: start})
	if err != nil {
		return stats, fmt.Errorf("failed to load alerts: %w", err)
	}
	for _, a := range created {
		if a.CreatedAt.Before(end) {
			stats.AlertsCreated++
		}
	}
	return stats, nil
}

// SendDailySummary reports on yesterday and queues the notification.
func (r *Reporter) SendDailySummary(ctx context.Context) (notify.DailyStats, error) {
	yesterday := clock.Day(r.clock.Now()).AddDate(0, 0, -1)

	stats, err := r.DailyStats(ctx, yesterday)
	if err != nil {
		return stats, err
	}

	n, err := notify.FormatDailySummary(stats)
	if err != nil {
		return stats, err
	}
	if !r.queue.Enqueue(n) {
		return stats, ErrSummaryDropped
	}

	r.logger.Info("Daily summary queued",
		zap.Time("date", stats.Date),
		zap.Int("total_checks", stats.TotalChecks),
		zap.Float64("uptime_percentage", stats.UptimePercentage),
		zap.Int("alerts_created", stats.AlertsCreated),
	)
	return stats, nil
}
