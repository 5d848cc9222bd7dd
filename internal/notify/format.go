package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/leozw/pulse-monitor/internal/db"
)

const (
	productName         = "Pulse Monitor"
	DailySummarySubject = productName + " - Daily Monitoring Summary"
)

var alertTmpl = template.Must(template.New("alert").Parse(`<html>
<head>
<style>
body { font-family: Arial, sans-serif; margin: 20px; }
.alert-header { background: #f8f9fa; padding: 15px; border-left: 4px solid {{.Color}}; }
.alert-content { padding: 15px; }
.severity { font-weight: bold; color: {{.Color}}; }
.timestamp { color: #666; font-size: 0.9em; }
</style>
</head>
<body>
<div class="alert-header">
<h2>{{.Product}} Alert Notification</h2>
<p class="severity">{{.Severity}} - {{.Type}}</p>
<p class="timestamp">Created: {{.Created}}</p>
</div>
<div class="alert-content">
<p><strong>Message:</strong></p>
<p>{{.Message}}</p>
<hr>
<p>This is an automated notification from the {{.Product}} monitoring system.</p>
</div>
</body>
</html>`))

var summaryTmpl = template.Must(template.New("summary").Parse(`<html>
<head>
<style>
body { font-family: Arial, sans-serif; margin: 20px; }
.summary-header { background: #667eea; color: white; padding: 15px; }
.summary-content { padding: 15px; }
.stat-box { background: #f8f9fa; padding: 10px; text-align: center; border-radius: 4px; }
.stat-number { font-size: 1.5em; font-weight: bold; }
.uptime-good { color: #38a169; }
.uptime-warning { color: #ed8936; }
.uptime-critical { color: #e53e3e; }
</style>
</head>
<body>
<div class="summary-header">
<h2>{{.Product}} Daily Summary - {{.Date}}</h2>
</div>
<div class="summary-content">
<div class="stat-box"><div class="stat-number">{{.TotalChecks}}</div><div>Total Checks</div></div>
<div class="stat-box"><div class="stat-number">{{.SuccessfulChecks}}</div><div>Successful</div></div>
<div class="stat-box"><div class="stat-number">{{.FailedChecks}}</div><div>Failed</div></div>
<div class="stat-box"><div class="stat-number {{.UptimeClass}}">{{printf "%.2f" .UptimePercentage}}%</div><div>Uptime</div></div>
<p><strong>Alerts Created:</strong> {{.AlertsCreated}}</p>
<hr>
<p>This is an automated daily summary from the {{.Product}} monitoring system.</p>
</div>
</body>
</html>`))

// SeverityColor returns the accent color used for a severity.
func SeverityColor(s db.Severity) string {
	switch s {
	case db.SeverityCritical:
		return "#e53e3e"
	case db.SeverityWarning:
		return "#ed8936"
	case db.SeverityInfo:
		return "#3182ce"
	default:
		return "#718096"
	}
}

func typeTitle(t db.AlertType) string {
	s := strings.ReplaceAll(string(t), "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func AlertSubject(a *db.Alert) string {
	return fmt.Sprintf("%s Alert: %s - %s", productName, strings.ToUpper(string(a.Severity)), typeTitle(a.AlertType))
}

// FormatAlert renders the plain and HTML bodies for an alert.
func FormatAlert(a *db.Alert, monitorName string) (*Notification, error) {
	severity := strings.ToUpper(string(a.Severity))
	created := a.CreatedAt.Format("2006-01-02 15:04:05")

	var html bytes.Buffer
	err := alertTmpl.Execute(&html, map[string]string{
		"Product":  productName,
		"Color":    SeverityColor(a.Severity),
		"Severity": severity,
		"Type":     typeTitle(a.AlertType),
		"Created":  created,
		"Message":  a.Message,
	})
	if err != nil {
		return nil, fmt.Errorf("render alert: %w", err)
	}

	body := fmt.Sprintf("%s - %s\n%s\nCreated: %s", severity, typeTitle(a.AlertType), a.Message, created)

	return &Notification{
		Subject:     AlertSubject(a),
		Body:        body,
		HTMLBody:    html.String(),
		Severity:    a.Severity,
		MonitorName: monitorName,
		Alert:       a,
	}, nil
}

// DailyStats is the cross-monitor rollup for one calendar day.
type DailyStats struct {
	Date             time.Time `json:"date"`
	TotalChecks      int       `json:"total_checks"`
	SuccessfulChecks int       `json:"successful_checks"`
	FailedChecks     int       `json:"failed_checks"`
	UptimePercentage float64   `json:"uptime_percentage"`
	AlertsCreated    int       `json:"alerts_created"`
}

func uptimeClass(p float64) string {
	switch {
	case p >= 99:
		return "uptime-good"
	case p >= 95:
		return "uptime-warning"
	default:
		return "uptime-critical"
	}
}

func FormatDailySummary(s DailyStats) (*Notification, error) {
	date := s.Date.Format("2006-01-02")

	var html bytes.Buffer
	err := summaryTmpl.Execute(&html, struct {
		DailyStats
		Product     string
		Date        string
		UptimeClass string
	}{s, productName, date, uptimeClass(s.UptimePercentage)})
	if err != nil {
		return nil, fmt.Errorf("render daily summary: %w", err)
	}

	body := fmt.Sprintf(
		"%s Daily Summary - %s\nTotal checks: %d\nSuccessful: %d\nFailed: %d\nUptime: %.2f%%\nAlerts created: %d",
		productName, date, s.TotalChecks, s.SuccessfulChecks, s.FailedChecks, s.UptimePercentage, s.AlertsCreated,
	)

	return &Notification{
		Subject:  DailySummarySubject,
		Body:     body,
		HTMLBody: html.String(),
		Severity: db.SeverityInfo,
	}, nil
}
