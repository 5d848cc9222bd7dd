package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/leozw/pulse-monitor/internal/db"
)

func newMonitor(s *Store, active bool) *db.Monitor {
	return s.AddMonitor(&db.Monitor{
		Name:               "example",
		URL:                "https://example.com",
		Method:             "GET",
		ExpectedStatusCode: 200,
		Timeout:            5,
		IsActive:           active,
	})
}

func TestStore_ActiveMonitors(t *testing.T) {
	ctx := context.Background()
	s := New()
	on := newMonitor(s, true)
	newMonitor(s, false)

	got, err := s.ActiveMonitors(ctx)
	if err != nil {
		t.Fatalf("ActiveMonitors: %v", err)
	}
	if len(got) != 1 || got[0].ID != on.ID {
		t.Fatalf("expected only the active monitor, got %+v", got)
	}

	all, _ := s.ListMonitors(ctx)
	if len(all) != 2 {
		t.Fatalf("expected 2 monitors, got %d", len(all))
	}
}

func TestStore_GetMonitorNotFound(t *testing.T) {
	_, err := New().GetMonitor(context.Background(), "missing")
	if !errors.Is(err, db.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestStore_RecordMetricUpdatesSummary(t *testing.T) {
	ctx := context.Background()
	s := New()
	mon := newMonitor(s, true)
	day := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)

	var last *db.UptimeSummary
	for i, ok := range []bool{true, true, false, true, true} {
		at := day.Add(time.Duration(i) * time.Minute)
		sum, err := s.RecordMetric(ctx, &db.Metric{ID: "m" + string(rune('a'+i)), MonitorID: mon.ID, IsSuccess: ok, CheckedAt: at}, day)
		if err != nil {
			t.Fatalf("RecordMetric: %v", err)
		}
		last = sum
	}
	if last.TotalChecks != 5 || last.SuccessfulChecks != 4 || last.UptimePercentage != 80 {
		t.Fatalf("unexpected summary: %+v", last)
	}

	rows, _ := s.UptimeSummaries(ctx, mon.ID, day, day)
	if len(rows) != 1 {
		t.Fatalf("expected one row per day, got %d", len(rows))
	}
}

func TestStore_RecordMetricConcurrent(t *testing.T) {
	ctx := context.Background()
	s := New()
	mon := newMonitor(s, true)
	day := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.RecordMetric(ctx, &db.Metric{MonitorID: mon.ID, IsSuccess: true, CheckedAt: day}, day); err != nil {
				t.Errorf("RecordMetric: %v", err)
			}
		}()
	}
	wg.Wait()

	rows, _ := s.UptimeSummaries(ctx, mon.ID, day, day)
	if len(rows) != 1 || rows[0].TotalChecks != 50 || rows[0].SuccessfulChecks != 50 {
		t.Fatalf("lost updates: %+v", rows)
	}
}

func TestStore_RecentMetricsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := New()
	mon := newMonitor(s, true)
	base := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 6; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		s.RecordMetric(ctx, &db.Metric{MonitorID: mon.ID, StatusCode: 200 + i, CheckedAt: at}, base)
	}

	got, err := s.RecentMetrics(ctx, mon.ID, 3)
	if err != nil {
		t.Fatalf("RecentMetrics: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 metrics, got %d", len(got))
	}
	if got[0].StatusCode != 205 || got[2].StatusCode != 203 {
		t.Fatalf("wrong order: %d, %d", got[0].StatusCode, got[2].StatusCode)
	}
}

func TestStore_RecentMetricsSameTimestamp(t *testing.T) {
	ctx := context.Background()
	s := New()
	mon := newMonitor(s, true)
	at := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

	for _, ok := range []bool{false, false, false, true} {
		if _, err := s.RecordMetric(ctx, &db.Metric{MonitorID: mon.ID, IsSuccess: ok, CheckedAt: at}, at); err != nil {
			t.Fatalf("RecordMetric: %v", err)
		}
	}

	got, _ := s.RecentMetrics(ctx, mon.ID, 5)
	if len(got) != 4 || !got[0].IsSuccess {
		t.Fatalf("latest insert should come first, got %+v", got[0])
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].Seq <= got[i].Seq {
			t.Fatalf("seq not descending at %d: %d, %d", i, got[i-1].Seq, got[i].Seq)
		}
	}

	between, _ := s.MetricsBetween(ctx, mon.ID, at, at)
	if len(between) != 4 || !between[3].IsSuccess {
		t.Fatalf("MetricsBetween should keep insertion order, got %+v", between)
	}
}

func TestStore_CreateAlertUnlessOpenConcurrent(t *testing.T) {
	ctx := context.Background()
	s := New()
	mon := newMonitor(s, true)
	now := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, _ := db.NewAlert(mon.ID, db.AlertTypeDown, db.SeverityCritical, "down", now)
			existing, err := s.CreateAlertUnlessOpen(ctx, a, now.Add(-time.Hour))
			if err != nil {
				t.Errorf("CreateAlertUnlessOpen: %v", err)
				return
			}
			if existing == nil {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if created != 1 {
		t.Fatalf("created %d alerts, want 1", created)
	}
	all, _ := s.ListAlerts(ctx, db.AlertFilter{MonitorID: mon.ID})
	if len(all) != 1 {
		t.Fatalf("stored %d alerts, want 1", len(all))
	}

	// An open alert older than the window does not block a new one.
	later := now.Add(2 * time.Hour)
	a, _ := db.NewAlert(mon.ID, db.AlertTypeDown, db.SeverityCritical, "down again", later)
	if existing, err := s.CreateAlertUnlessOpen(ctx, a, later.Add(-time.Hour)); err != nil || existing != nil {
		t.Fatalf("expected insert after window, got %v, %v", existing, err)
	}
}

func TestStore_FindRecentUnresolved(t *testing.T) {
	ctx := context.Background()
	s := New()
	mon := newMonitor(s, true)
	now := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

	a, _ := db.NewAlert(mon.ID, db.AlertTypeDown, db.SeverityCritical, "down", now.Add(-30*time.Minute))
	if err := s.CreateAlert(ctx, a); err != nil {
		t.Fatalf("CreateAlert: %v", err)
	}

	got, _ := s.FindRecentUnresolved(ctx, mon.ID, db.AlertTypeDown, now.Add(-time.Hour))
	if got == nil || got.ID != a.ID {
		t.Fatalf("expected alert %s, got %+v", a.ID, got)
	}
	if got, _ := s.FindRecentUnresolved(ctx, mon.ID, db.AlertTypeSlow, now.Add(-time.Hour)); got != nil {
		t.Fatalf("type filter ignored: %+v", got)
	}
	if got, _ := s.FindRecentUnresolved(ctx, mon.ID, db.AlertTypeDown, now.Add(-10*time.Minute)); got != nil {
		t.Fatalf("window ignored: %+v", got)
	}

	a.Resolve(now)
	if err := s.UpdateAlert(ctx, a); err != nil {
		t.Fatalf("UpdateAlert: %v", err)
	}
	if got, _ := s.FindRecentUnresolved(ctx, mon.ID, db.AlertTypeDown, now.Add(-time.Hour)); got != nil {
		t.Fatalf("resolved alert returned: %+v", got)
	}
}

func TestStore_ListAlertsFilter(t *testing.T) {
	ctx := context.Background()
	s := New()
	m1 := newMonitor(s, true)
	m2 := newMonitor(s, true)
	now := time.Now().UTC()

	a1, _ := db.NewAlert(m1.ID, db.AlertTypeDown, db.SeverityCritical, "a", now)
	a2, _ := db.NewAlert(m2.ID, db.AlertTypeSlow, db.SeverityWarning, "b", now.Add(time.Second))
	s.CreateAlert(ctx, a1)
	s.CreateAlert(ctx, a2)
	a1.Resolve(now)
	s.UpdateAlert(ctx, a1)

	open := false
	got, _ := s.ListAlerts(ctx, db.AlertFilter{Resolved: &open})
	if len(got) != 1 || got[0].ID != a2.ID {
		t.Fatalf("unexpected open alerts: %+v", got)
	}
	got, _ = s.ListAlerts(ctx, db.AlertFilter{MonitorID: m1.ID})
	if len(got) != 1 || got[0].ID != a1.ID {
		t.Fatalf("unexpected alerts for m1: %+v", got)
	}
}
