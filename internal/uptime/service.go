package uptime

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/leozw/pulse-monitor/internal/clock"
	"github.com/leozw/pulse-monitor/internal/db"
)

type Summary struct {
	MonitorID           string  `json:"monitor_id"`
	PeriodDays          int     `json:"period_days"`
	TotalChecks         int     `json:"total_checks"`
	SuccessfulChecks    int     `json:"successful_checks"`
	UptimePercentage    float64 `json:"uptime_percentage"`
	AverageResponseTime *int64  `json:"average_response_time"`
	P95ResponseTime     *int64  `json:"p95_response_time"`
}

type HourlyBucket struct {
	Hour                int    `json:"hour"`
	TotalChecks         int    `json:"total_checks"`
	SuccessfulChecks    int    `json:"successful_checks"`
	AverageResponseTime *int64 `json:"average_response_time"`
}

type Service struct {
	store db.MetricStore
	clock clock.Clock
}

func NewService(store db.MetricStore, clk clock.Clock) *Service {
	return &Service{store: store, clock: clk}
}

// Now reports the current time in the service's location.
func (s *Service) Now() time.Time {
	return s.clock.Now()
}

// Summary aggregates the trailing window of days ending now.
func (s *Service) Summary(ctx context.Context, monitorID string, days int) (*Summary, error) {
	if days <= 0 {
		return nil, fmt.Errorf("days must be positive, got %d", days)
	}
	now := s.clock.Now()
	since := now.AddDate(0, 0, -days)

	metrics, err := s.store.MetricsBetween(ctx, monitorID, since, now)
	if err != nil {
		return nil, fmt.Errorf("failed to load metrics: %w", err)
	}

	out := &Summary{
		MonitorID:   monitorID,
		PeriodDays:  days,
		TotalChecks: len(metrics),
	}
	if len(metrics) == 0 {
		return out, nil
	}

	latencies := make([]float64, len(metrics))
	for i, m := range metrics {
		if m.IsSuccess {
			out.SuccessfulChecks++
		}
		latencies[i] = float64(m.ResponseTimeMs)
	}
	out.UptimePercentage = db.UptimePercentage(out.SuccessfulChecks, out.TotalChecks)

	avg := int64(math.Round(stat.Mean(latencies, nil)))
	out.AverageResponseTime = &avg

	sort.Float64s(latencies)
	p95 := int64(math.Round(stat.Quantile(0.95, stat.Empirical, latencies, nil)))
	out.P95ResponseTime = &p95

	return out, nil
}

// Hourly splits one calendar day, in the clock's location, into 24 buckets.
func (s *Service) Hourly(ctx context.Context, monitorID string, date time.Time) ([]HourlyBucket, error) {
	loc := s.clock.Now().Location()
	y, mo, d := date.Date()
	start := time.Date(y, mo, d, 0, 0, 0, 0, loc)
	end := start.AddDate(0, 0, 1).Add(-time.Nanosecond)

	metrics, err := s.store.MetricsBetween(ctx, monitorID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load metrics: %w", err)
	}

	buckets := make([]HourlyBucket, 24)
	latencies := make([][]float64, 24)
	for h := range buckets {
		buckets[h].Hour = h
	}
	for _, m := range metrics {
		h := m.CheckedAt.In(loc).Hour()
		buckets[h].TotalChecks++
		if m.IsSuccess {
			buckets[h].SuccessfulChecks++
		}
		latencies[h] = append(latencies[h], float64(m.ResponseTimeMs))
	}
	for h, l := range latencies {
		if len(l) == 0 {
			continue
		}
		avg := int64(math.Round(stat.Mean(l, nil)))
		buckets[h].AverageResponseTime = &avg
	}
	return buckets, nil
}

// Daily returns the stored uptime rows for the last days calendar days,
// today included, oldest first.
func (s *Service) Daily(ctx context.Context, monitorID string, days int) ([]*db.UptimeSummary, error) {
	if days <= 0 {
		return nil, fmt.Errorf("days must be positive, got %d", days)
	}
	today := clock.Day(s.clock.Now())
	from := today.AddDate(0, 0, -(days - 1))

	rows, err := s.store.UptimeSummaries(ctx, monitorID, from, today)
	if err != nil {
		return nil, fmt.Errorf("failed to load uptime summaries: %w", err)
	}
	return rows, nil
}
