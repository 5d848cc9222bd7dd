package db

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidAlertType = errors.New("invalid alert type")
	ErrInvalidSeverity  = errors.New("invalid alert severity")
	ErrAlreadyResolved  = errors.New("alert already resolved")
)

type AlertType string

const (
	AlertTypeDown      AlertType = "down"
	AlertTypeSlow      AlertType = "slow"
	AlertTypeThreshold AlertType = "threshold"
)

func (t AlertType) Valid() bool {
	switch t {
	case AlertTypeDown, AlertTypeSlow, AlertTypeThreshold:
		return true
	}
	return false
}

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityWarning, SeverityInfo:
		return true
	}
	return false
}

// Monitor is read-only input to the engine.
type Monitor struct {
	ID                 string    `json:"id" db:"id"`
	UserID             string    `json:"user_id" db:"user_id"`
	Name               string    `json:"name" db:"name"`
	URL                string    `json:"url" db:"url"`
	Method             string    `json:"method" db:"method"`
	ExpectedStatusCode int       `json:"expected_status_code" db:"expected_status_code"`
	CheckInterval      int       `json:"check_interval" db:"check_interval"`
	Timeout            int       `json:"timeout" db:"timeout"`
	IsActive           bool      `json:"is_active" db:"is_active"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at"`
}

// Metric is the immutable outcome of one probe.
type Metric struct {
	ID             string    `json:"id" db:"id"`
	MonitorID      string    `json:"monitor_id" db:"monitor_id"`
	StatusCode     int       `json:"status_code" db:"status_code"`
	ResponseTimeMs int64     `json:"response_time" db:"response_time"`
	IsSuccess      bool      `json:"is_success" db:"is_success"`
	ErrorMessage   *string   `json:"error_message" db:"error_message"`
	CheckedAt      time.Time `json:"checked_at" db:"checked_at"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	// Seq is assigned by the store in insertion order and breaks ties
	// between metrics with the same CheckedAt.
	Seq int64 `json:"-" db:"seq"`
}

func (m *Metric) ErrorText() string {
	if m.ErrorMessage == nil {
		return ""
	}
	return *m.ErrorMessage
}

// UptimeSummary holds one (monitor, date) row. UptimePercentage is always
// derived from the two counters.
type UptimeSummary struct {
	ID               string    `json:"id" db:"id"`
	MonitorID        string    `json:"monitor_id" db:"monitor_id"`
	Date             time.Time `json:"date" db:"date"`
	TotalChecks      int       `json:"total_checks" db:"total_checks"`
	SuccessfulChecks int       `json:"successful_checks" db:"successful_checks"`
	UptimePercentage float64   `json:"uptime_percentage" db:"uptime_percentage"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// Apply counts one probe and recomputes the percentage.
func (s *UptimeSummary) Apply(success bool, now time.Time) {
	s.TotalChecks++
	if success {
		s.SuccessfulChecks++
	}
	s.UptimePercentage = UptimePercentage(s.SuccessfulChecks, s.TotalChecks)
	s.UpdatedAt = now
}

// UptimePercentage returns successful/total*100 rounded to two decimals,
// or 0 when total is 0.
func UptimePercentage(successful, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(successful)/float64(total)*100*100) / 100
}

type Alert struct {
	ID         string     `json:"id" db:"id"`
	MonitorID  string     `json:"monitor_id" db:"monitor_id"`
	AlertType  AlertType  `json:"alert_type" db:"alert_type"`
	Severity   Severity   `json:"severity" db:"severity"`
	Message    string     `json:"message" db:"message"`
	IsResolved bool       `json:"is_resolved" db:"is_resolved"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at" db:"resolved_at"`
}

// NewAlert builds an open alert. The caller assigns the ID.
func NewAlert(monitorID string, t AlertType, sev Severity, message string, now time.Time) (*Alert, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAlertType, t)
	}
	if !sev.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSeverity, sev)
	}
	return &Alert{
		MonitorID: monitorID,
		AlertType: t,
		Severity:  sev,
		Message:   message,
		CreatedAt: now,
	}, nil
}

// Resolve moves the alert to resolved. There is no way back.
func (a *Alert) Resolve(now time.Time) error {
	if a.IsResolved {
		return ErrAlreadyResolved
	}
	if now.Before(a.CreatedAt) {
		now = a.CreatedAt
	}
	a.IsResolved = true
	a.ResolvedAt = &now
	return nil
}

// AlertFilter narrows ListAlerts. Zero values match everything.
type AlertFilter struct {
	MonitorID string
	Resolved  *bool
	Since     time.Time
	Limit     int
}
