package checks

import (
	"context"

	"github.com/leozw/pulse-monitor/internal/db"
)

// Result is the outcome of a single probe. It is never persisted directly.
type Result struct {
	StatusCode     int    `json:"status_code"`
	ResponseTimeMs int64  `json:"response_time_ms"`
	Success        bool   `json:"is_success"`
	Error          string `json:"error_message,omitempty"`
}

// Runner performs exactly one attempt against a monitor. Transport
// failures are reported in the Result, never returned.
type Runner interface {
	Check(ctx context.Context, monitor *db.Monitor) Result
}

type RunnerFunc func(ctx context.Context, monitor *db.Monitor) Result

func (f RunnerFunc) Check(ctx context.Context, monitor *db.Monitor) Result {
	return f(ctx, monitor)
}
