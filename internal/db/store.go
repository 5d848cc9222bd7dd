package db

import (
	"context"
	"time"
)

type MonitorStore interface {
	ActiveMonitors(ctx context.Context) ([]*Monitor, error)
	GetMonitor(ctx context.Context, id string) (*Monitor, error)
	ListMonitors(ctx context.Context) ([]*Monitor, error)
}

type MetricStore interface {
	// RecordMetric persists m and applies it to the (monitor, day) uptime
	// summary in one transaction. It returns the updated summary.
	RecordMetric(ctx context.Context, m *Metric, day time.Time) (*UptimeSummary, error)
	// RecentMetrics returns up to limit metrics, newest first. Metrics with
	// the same checked_at come in reverse insertion order.
	RecentMetrics(ctx context.Context, monitorID string, limit int) ([]*Metric, error)
	// MetricsBetween returns metrics with checked_at in [from, to], oldest first.
	MetricsBetween(ctx context.Context, monitorID string, from, to time.Time) ([]*Metric, error)
	// UptimeSummaries returns rows with date in [from, to], oldest first.
	// An empty monitorID matches every monitor.
	UptimeSummaries(ctx context.Context, monitorID string, from, to time.Time) ([]*UptimeSummary, error)
}

type AlertStore interface {
	CreateAlert(ctx context.Context, a *Alert) error
	// CreateAlertUnlessOpen inserts a unless an unresolved alert of the same
	// monitor and type was created after since. The check and the insert
	// are atomic. It returns the blocking alert, or nil when a was stored.
	CreateAlertUnlessOpen(ctx context.Context, a *Alert, since time.Time) (*Alert, error)
	// FindRecentUnresolved returns the newest unresolved alert of type t
	// created after since, or nil.
	FindRecentUnresolved(ctx context.Context, monitorID string, t AlertType, since time.Time) (*Alert, error)
	GetAlert(ctx context.Context, id string) (*Alert, error)
	UpdateAlert(ctx context.Context, a *Alert) error
	ListAlerts(ctx context.Context, f AlertFilter) ([]*Alert, error)
}

type Store interface {
	MonitorStore
	MetricStore
	AlertStore
}
