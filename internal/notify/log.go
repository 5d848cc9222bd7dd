package notify

import (
	"context"

	"go.uber.org/zap"
)

// Log writes notifications to the application log. It is the fallback
// channel when nothing else is configured.
type Log struct {
	logger *zap.Logger
}

func NewLog(logger *zap.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) Name() string { return "log" }

func (l *Log) Deliver(ctx context.Context, n *Notification) error {
	fields := []zap.Field{
		zap.String("subject", n.Subject),
		zap.String("severity", string(n.Severity)),
	}
	if n.Alert != nil {
		fields = append(fields,
			zap.String("alert_id", n.Alert.ID),
			zap.String("monitor_id", n.Alert.MonitorID),
			zap.String("message", n.Alert.Message),
		)
	}
	l.logger.Warn("Notification", fields...)
	return nil
}
