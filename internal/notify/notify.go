// Package notify formats alerts and delivers them to outbound channels
// without blocking the check pipeline.
package notify

import (
	"context"

	"go.uber.org/multierr"

	"github.com/leozw/pulse-monitor/internal/db"
)

type Notification struct {
	Subject     string      `json:"subject"`
	Body        string      `json:"text"`
	HTMLBody    string      `json:"-"`
	Severity    db.Severity `json:"severity,omitempty"`
	MonitorName string      `json:"monitor_name,omitempty"`
	Alert       *db.Alert   `json:"alert,omitempty"`
}

type Notifier interface {
	Name() string
	Deliver(ctx context.Context, n *Notification) error
}

// Multi fans a notification out to every channel and reports all failures.
type Multi []Notifier

func (m Multi) Name() string { return "multi" }

func (m Multi) Deliver(ctx context.Context, n *Notification) error {
	var errs error
	for _, ch := range m {
		if ch == nil {
			continue
		}
		if err := ch.Deliver(ctx, n); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}
