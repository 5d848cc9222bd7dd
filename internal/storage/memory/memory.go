// Package memory is an in-process implementation of the db store
// interfaces. It backs tests and the single-shot check command when no
// database is configured.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/leozw/pulse-monitor/internal/db"
)

const dateLayout = "2006-01-02"

type summaryKey struct {
	monitorID string
	date      string
}

type Store struct {
	mu        sync.RWMutex
	monitors  map[string]*db.Monitor
	metrics   []*db.Metric
	seq       int64
	summaries map[summaryKey]*db.UptimeSummary
	alerts    map[string]*db.Alert
}

var _ db.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		monitors:  make(map[string]*db.Monitor),
		metrics:   make([]*db.Metric, 0, 128),
		summaries: make(map[summaryKey]*db.UptimeSummary),
		alerts:    make(map[string]*db.Alert),
	}
}

// AddMonitor registers a monitor, assigning an ID when it has none.
func (s *Store) AddMonitor(m *db.Monitor) *db.Monitor {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
		m.UpdatedAt = m.CreatedAt
	}
	cp := *m
	s.monitors[m.ID] = &cp
	return m
}

func (s *Store) ActiveMonitors(ctx context.Context) ([]*db.Monitor, error) {
	return s.listMonitors(true), nil
}

func (s *Store) ListMonitors(ctx context.Context) ([]*db.Monitor, error) {
	return s.listMonitors(false), nil
}

func (s *Store) listMonitors(activeOnly bool) []*db.Monitor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*db.Monitor, 0, len(s.monitors))
	for _, m := range s.monitors {
		if activeOnly && !m.IsActive {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *Store) GetMonitor(ctx context.Context, id string) (*db.Monitor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.monitors[id]
	if !ok {
		return nil, fmt.Errorf("monitor %s: %w", id, db.ErrNotFound)
	}
	cp := *m
	return &cp, nil
}

func (s *Store) RecordMetric(ctx context.Context, m *db.Metric, day time.Time) (*db.UptimeSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.monitors[m.MonitorID]; !ok {
		return nil, fmt.Errorf("monitor %s: %w", m.MonitorID, db.ErrNotFound)
	}

	s.seq++
	m.Seq = s.seq
	cp := *m
	s.metrics = append(s.metrics, &cp)

	key := summaryKey{monitorID: m.MonitorID, date: day.Format(dateLayout)}
	sum, ok := s.summaries[key]
	if !ok {
		sum = &db.UptimeSummary{
			ID:        uuid.New().String(),
			MonitorID: m.MonitorID,
			Date:      day,
			CreatedAt: m.CheckedAt,
		}
		s.summaries[key] = sum
	}
	sum.Apply(m.IsSuccess, m.CheckedAt)

	out := *sum
	return &out, nil
}

func (s *Store) RecentMetrics(ctx context.Context, monitorID string, limit int) ([]*db.Metric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*db.Metric, 0)
	for _, m := range s.metrics {
		if m.MonitorID == monitorID {
			matched = append(matched, m)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.CheckedAt.Equal(b.CheckedAt) {
			return a.CheckedAt.After(b.CheckedAt)
		}
		return a.Seq > b.Seq
	})
	out := make([]*db.Metric, 0, len(matched))
	for _, m := range matched {
		if limit > 0 && len(out) >= limit {
			break
		}
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) MetricsBetween(ctx context.Context, monitorID string, from, to time.Time) ([]*db.Metric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*db.Metric, 0)
	for _, m := range s.metrics {
		if m.MonitorID != monitorID || m.CheckedAt.Before(from) || m.CheckedAt.After(to) {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.CheckedAt.Equal(b.CheckedAt) {
			return a.CheckedAt.Before(b.CheckedAt)
		}
		return a.Seq < b.Seq
	})
	return out, nil
}

func (s *Store) UptimeSummaries(ctx context.Context, monitorID string, from, to time.Time) ([]*db.UptimeSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lo, hi := from.Format(dateLayout), to.Format(dateLayout)
	out := make([]*db.UptimeSummary, 0)
	for key, sum := range s.summaries {
		if monitorID != "" && key.monitorID != monitorID {
			continue
		}
		if key.date < lo || key.date > hi {
			continue
		}
		cp := *sum
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		di, dj := out[i].Date.Format(dateLayout), out[j].Date.Format(dateLayout)
		if di == dj {
			return out[i].MonitorID < out[j].MonitorID
		}
		return di < dj
	})
	return out, nil
}

func (s *Store) CreateAlert(ctx context.Context, a *db.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if _, exists := s.alerts[a.ID]; exists {
		return fmt.Errorf("alert %s already exists", a.ID)
	}
	cp := *a
	s.alerts[a.ID] = &cp
	return nil
}

func (s *Store) CreateAlertUnlessOpen(ctx context.Context, a *db.Alert, since time.Time) (*db.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if open := s.recentUnresolved(a.MonitorID, a.AlertType, since); open != nil {
		cp := *open
		return &cp, nil
	}
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	cp := *a
	s.alerts[a.ID] = &cp
	return nil, nil
}

func (s *Store) FindRecentUnresolved(ctx context.Context, monitorID string, t db.AlertType, since time.Time) (*db.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	newest := s.recentUnresolved(monitorID, t, since)
	if newest == nil {
		return nil, nil
	}
	cp := *newest
	return &cp, nil
}

// recentUnresolved expects s.mu to be held.
func (s *Store) recentUnresolved(monitorID string, t db.AlertType, since time.Time) *db.Alert {
	var newest *db.Alert
	for _, a := range s.alerts {
		if a.MonitorID != monitorID || a.AlertType != t || a.IsResolved || !a.CreatedAt.After(since) {
			continue
		}
		if newest == nil || a.CreatedAt.After(newest.CreatedAt) {
			newest = a
		}
	}
	return newest
}

func (s *Store) GetAlert(ctx context.Context, id string) (*db.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.alerts[id]
	if !ok {
		return nil, fmt.Errorf("alert %s: %w", id, db.ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

func (s *Store) UpdateAlert(ctx context.Context, a *db.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.alerts[a.ID]
	if !ok {
		return fmt.Errorf("alert %s: %w", a.ID, db.ErrNotFound)
	}
	cur.IsResolved = a.IsResolved
	if a.ResolvedAt != nil {
		at := *a.ResolvedAt
		cur.ResolvedAt = &at
	} else {
		cur.ResolvedAt = nil
	}
	return nil
}

func (s *Store) ListAlerts(ctx context.Context, f db.AlertFilter) ([]*db.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*db.Alert, 0)
	for _, a := range s.alerts {
		if f.MonitorID != "" && a.MonitorID != f.MonitorID {
			continue
		}
		if f.Resolved != nil && a.IsResolved != *f.Resolved {
			continue
		}
		if !f.Since.IsZero() && a.CreatedAt.Before(f.Since) {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}
