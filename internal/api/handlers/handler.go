package handlers

import (
	"context"

	"go.uber.org/zap"

	"github.com/leozw/pulse-monitor/internal/db"
	"github.com/leozw/pulse-monitor/internal/uptime"
)

// MonitorChecker runs the check pipeline for one monitor on demand.
type MonitorChecker interface {
	CheckMonitor(ctx context.Context, monitorID string) (*db.Metric, error)
}

type AlertResolver interface {
	Resolve(ctx context.Context, alertID string) (*db.Alert, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	store    db.Store
	uptime   *uptime.Service
	checker  MonitorChecker
	resolver AlertResolver
	pinger   Pinger
	logger   *zap.Logger
}

// NewHandler wires the API. pinger may be nil when there is no external
// database to probe.
func NewHandler(store db.Store, uptimeSvc *uptime.Service, checker MonitorChecker, resolver AlertResolver, pinger Pinger, logger *zap.Logger) *Handler {
	return &Handler{
		store:    store,
		uptime:   uptimeSvc,
		checker:  checker,
		resolver: resolver,
		pinger:   pinger,
		logger:   logger,
	}
}
