// Package alerts evaluates freshly recorded metrics against the downtime,
// slow-response and consecutive-failure rules.
package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/leozw/pulse-monitor/internal/clock"
	"github.com/leozw/pulse-monitor/internal/db"
	"github.com/leozw/pulse-monitor/internal/metrics"
)

const (
	SlowResponseThresholdMs = 5000
	DedupWindow             = time.Hour
	FailureWindow           = 5
	FailureThreshold        = 3
)

var ErrAlreadyResolved = db.ErrAlreadyResolved

type Engine struct {
	metrics   db.MetricStore
	alerts    db.AlertStore
	clock     clock.Clock
	collector *metrics.Collector
	logger    *zap.Logger
}

func NewEngine(metricStore db.MetricStore, alertStore db.AlertStore, clk clock.Clock, collector *metrics.Collector, logger *zap.Logger) *Engine {
	return &Engine{
		metrics:   metricStore,
		alerts:    alertStore,
		clock:     clk,
		collector: collector,
		logger:    logger,
	}
}

// Evaluate runs every rule against metric, which must already be stored.
// It returns the alerts it created; suppressed candidates are not returned.
func (e *Engine) Evaluate(ctx context.Context, monitor *db.Monitor, metric *db.Metric) ([]*db.Alert, error) {
	var (
		created []*db.Alert
		errs    error
	)

	add := func(a *db.Alert, err error) {
		if err != nil {
			errs = multierr.Append(errs, err)
			return
		}
		if a != nil {
			created = append(created, a)
		}
	}

	if !metric.IsSuccess {
		errText := metric.ErrorText()
		if errText == "" {
			errText = "Unknown error"
		}
		msg := fmt.Sprintf("Monitor \"%s\" is down. Status code: %d, Error: %s", monitor.Name, metric.StatusCode, errText)
		add(e.raise(ctx, monitor, db.AlertTypeDown, db.SeverityCritical, msg))
	}

	if metric.ResponseTimeMs > SlowResponseThresholdMs {
		msg := fmt.Sprintf("Monitor \"%s\" has slow response time: %dms", monitor.Name, metric.ResponseTimeMs)
		add(e.raise(ctx, monitor, db.AlertTypeSlow, db.SeverityWarning, msg))
	}

	recent, err := e.metrics.RecentMetrics(ctx, monitor.ID, FailureWindow)
	if err != nil {
		add(nil, fmt.Errorf("failed to load recent metrics: %w", err))
	} else if n := LeadingFailures(recent); n >= FailureThreshold {
		msg := fmt.Sprintf("Monitor \"%s\" has %d consecutive failures", monitor.Name, n)
		add(e.raise(ctx, monitor, db.AlertTypeThreshold, db.SeverityWarning, msg))
	}

	return created, errs
}

// raise creates an alert unless an unresolved one of the same type was
// opened inside DedupWindow. A nil alert with a nil error means suppressed.
func (e *Engine) raise(ctx context.Context, monitor *db.Monitor, t db.AlertType, sev db.Severity, msg string) (*db.Alert, error) {
	now := e.clock.Now()

	alert, err := db.NewAlert(monitor.ID, t, sev, msg, now)
	if err != nil {
		return nil, err
	}
	alert.ID = uuid.New().String()

	existing, err := e.alerts.CreateAlertUnlessOpen(ctx, alert, now.Add(-DedupWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s alert: %w", t, err)
	}
	if existing != nil {
		e.collector.RecordAlertSuppressed(t)
		e.logger.Debug("Alert suppressed",
			zap.String("monitor_id", monitor.ID),
			zap.String("alert_type", string(t)),
			zap.String("existing_alert_id", existing.ID),
		)
		return nil, nil
	}

	e.collector.RecordAlert(alert)
	e.logger.Info("Alert created",
		zap.String("alert_id", alert.ID),
		zap.String("monitor_id", monitor.ID),
		zap.String("alert_type", string(t)),
		zap.String("severity", string(sev)),
	)
	return alert, nil
}

// Resolve closes an open alert.
func (e *Engine) Resolve(ctx context.Context, alertID string) (*db.Alert, error) {
	alert, err := e.alerts.GetAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if err := alert.Resolve(e.clock.Now()); err != nil {
		return nil, err
	}
	if err := e.alerts.UpdateAlert(ctx, alert); err != nil {
		return nil, fmt.Errorf("failed to resolve alert: %w", err)
	}

	e.collector.RecordAlertResolved(alert)
	e.logger.Info("Alert resolved",
		zap.String("alert_id", alert.ID),
		zap.String("monitor_id", alert.MonitorID),
	)
	return alert, nil
}

// LeadingFailures counts failures from the newest metric until the first
// success. history must be ordered newest first.
func LeadingFailures(history []*db.Metric) int {
	n := 0
	for _, m := range history {
		if m.IsSuccess {
			break
		}
		n++
	}
	return n
}
