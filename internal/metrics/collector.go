package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/leozw/pulse-monitor/internal/db"
)

// Collector exposes engine activity to Prometheus. A nil *Collector is
// valid and records nothing.
type Collector struct {
	// Checks
	checkDuration     *prometheus.HistogramVec
	checkUp           *prometheus.GaugeVec
	checksTotal       *prometheus.CounterVec
	checkResponseCode *prometheus.GaugeVec
	uptimeToday       *prometheus.GaugeVec

	// Alerts
	alertsTotal      *prometheus.CounterVec
	alertsSuppressed *prometheus.CounterVec
	alertsResolved   *prometheus.CounterVec

	// Notifications
	notificationsSent    *prometheus.CounterVec
	notificationsDropped prometheus.Counter
	notificationLatency  *prometheus.HistogramVec

	// Cycles
	cycleDuration      prometheus.Histogram
	cycleMonitors      *prometheus.CounterVec
	lastCycleTimestamp prometheus.Gauge
}

func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		checkDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pulse_check_duration_seconds",
				Help:    "Duration of HTTP checks in seconds",
				Buckets: []float64{.025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"monitor_id", "monitor_name"},
		),

		checkUp: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pulse_check_up",
				Help: "Whether the last check succeeded (1) or not (0)",
			},
			[]string{"monitor_id", "monitor_name"},
		),

		checksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulse_checks_total",
				Help: "Total number of checks performed",
			},
			[]string{"monitor_id", "monitor_name", "status"},
		),

		checkResponseCode: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pulse_http_response_code",
				Help: "HTTP response code of the last check",
			},
			[]string{"monitor_id", "monitor_name"},
		),

		uptimeToday: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pulse_uptime_today_percentage",
				Help: "Uptime percentage of the current day",
			},
			[]string{"monitor_id", "monitor_name"},
		),

		alertsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulse_alerts_total",
				Help: "Total number of alerts created",
			},
			[]string{"type", "severity"},
		),

		alertsSuppressed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulse_alerts_suppressed_total",
				Help: "Alert candidates dropped because an open alert already exists",
			},
			[]string{"type"},
		),

		alertsResolved: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulse_alerts_resolved_total",
				Help: "Total number of alerts resolved",
			},
			[]string{"type"},
		),

		notificationsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulse_notifications_total",
				Help: "Notification deliveries by channel and outcome",
			},
			[]string{"channel", "status"},
		),

		notificationsDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "pulse_notifications_dropped_total",
				Help: "Notifications dropped because the queue was full",
			},
		),

		notificationLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pulse_notification_duration_seconds",
				Help:    "Time spent delivering a notification",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"channel"},
		),

		cycleDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pulse_cycle_duration_seconds",
				Help:    "Duration of a full check cycle",
				Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		),

		cycleMonitors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulse_cycle_monitors_total",
				Help: "Monitors processed by check cycles, by result",
			},
			[]string{"result"},
		),

		lastCycleTimestamp: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "pulse_last_cycle_timestamp_seconds",
				Help: "Unix time of the last completed check cycle",
			},
		),
	}
}

func (c *Collector) RecordCheck(monitor *db.Monitor, m *db.Metric) {
	if c == nil {
		return
	}
	labels := prometheus.Labels{
		"monitor_id":   monitor.ID,
		"monitor_name": monitor.Name,
	}

	c.checkDuration.With(labels).Observe(float64(m.ResponseTimeMs) / 1000)

	upValue := 0.0
	status := "down"
	if m.IsSuccess {
		upValue = 1.0
		status = "up"
	}
	c.checkUp.With(labels).Set(upValue)

	c.checksTotal.With(prometheus.Labels{
		"monitor_id":   monitor.ID,
		"monitor_name": monitor.Name,
		"status":       status,
	}).Inc()

	if m.StatusCode > 0 {
		c.checkResponseCode.With(labels).Set(float64(m.StatusCode))
	}
}

func (c *Collector) RecordUptime(monitor *db.Monitor, s *db.UptimeSummary) {
	if c == nil || s == nil {
		return
	}
	c.uptimeToday.With(prometheus.Labels{
		"monitor_id":   monitor.ID,
		"monitor_name": monitor.Name,
	}).Set(s.UptimePercentage)
}

func (c *Collector) RecordAlert(a *db.Alert) {
	if c == nil {
		return
	}
	c.alertsTotal.WithLabelValues(string(a.AlertType), string(a.Severity)).Inc()
}

func (c *Collector) RecordAlertSuppressed(t db.AlertType) {
	if c == nil {
		return
	}
	c.alertsSuppressed.WithLabelValues(string(t)).Inc()
}

func (c *Collector) RecordAlertResolved(a *db.Alert) {
	if c == nil {
		return
	}
	c.alertsResolved.WithLabelValues(string(a.AlertType)).Inc()
}

// RecordNotification counts one delivery attempt. status is "sent" or "failed".
func (c *Collector) RecordNotification(channel, status string, took time.Duration) {
	if c == nil {
		return
	}
	c.notificationsSent.WithLabelValues(channel, status).Inc()
	c.notificationLatency.WithLabelValues(channel).Observe(took.Seconds())
}

func (c *Collector) RecordNotificationDropped() {
	if c == nil {
		return
	}
	c.notificationsDropped.Inc()
}

func (c *Collector) RecordCycle(took time.Duration, succeeded, failed, skipped int) {
	if c == nil {
		return
	}
	c.cycleDuration.Observe(took.Seconds())
	c.cycleMonitors.WithLabelValues("succeeded").Add(float64(succeeded))
	c.cycleMonitors.WithLabelValues("failed").Add(float64(failed))
	c.cycleMonitors.WithLabelValues("skipped").Add(float64(skipped))
	c.lastCycleTimestamp.SetToCurrentTime()
}
