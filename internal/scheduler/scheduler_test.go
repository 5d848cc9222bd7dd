package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/leozw/pulse-monitor/internal/alerts"
	"github.com/leozw/pulse-monitor/internal/checks"
	"github.com/leozw/pulse-monitor/internal/clock"
	"github.com/leozw/pulse-monitor/internal/db"
	"github.com/leozw/pulse-monitor/internal/metrics"
	"github.com/leozw/pulse-monitor/internal/notify"
	"github.com/leozw/pulse-monitor/internal/storage/memory"
	"github.com/leozw/pulse-monitor/internal/uptime"
)

type fakeDispatcher struct {
	mu   sync.Mutex
	sent []*db.Alert
}

func (f *fakeDispatcher) Dispatch(a *db.Alert, m *db.Monitor) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, a)
	return true
}

func (f *fakeDispatcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type harness struct {
	store      *memory.Store
	clock      *clock.Manual
	dispatcher *fakeDispatcher
	orch       *Orchestrator
}

func newHarness(t *testing.T, runner checks.Runner, store db.Store, mem *memory.Store) *harness {
	t.Helper()
	clk := clock.NewManual(time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC))
	collector := metrics.NewCollector(prometheus.NewRegistry())
	logger := zap.NewNop()
	disp := &fakeDispatcher{}
	orch := NewOrchestrator(
		store,
		runner,
		uptime.NewRecorder(store, clk, logger),
		alerts.NewEngine(store, store, clk, collector, logger),
		disp,
		collector,
		logger,
		4,
	)
	return &harness{store: mem, clock: clk, dispatcher: disp, orch: orch}
}

func addMonitor(s *memory.Store, name string) *db.Monitor {
	return s.AddMonitor(&db.Monitor{
		Name:               name,
		URL:                "https://" + name + ".example.com",
		Method:             "GET",
		ExpectedStatusCode: 200,
		Timeout:            30,
		IsActive:           true,
	})
}

// sequenceRunner returns the given status codes in order.
func sequenceRunner(codes ...int) checks.Runner {
	var i int32 = -1
	return checks.RunnerFunc(func(ctx context.Context, m *db.Monitor) checks.Result {
		c := codes[atomic.AddInt32(&i, 1)]
		return checks.Result{StatusCode: c, ResponseTimeMs: 100, Success: c == m.ExpectedStatusCode}
	})
}

func TestRunCycle_EndToEndDay(t *testing.T) {
	mem := memory.New()
	mon := addMonitor(mem, "shop")
	h := newHarness(t, sequenceRunner(200, 200, 500, 200, 200), mem, mem)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := h.orch.RunCycle(ctx); err != nil {
			t.Fatalf("RunCycle: %v", err)
		}
		h.clock.Advance(time.Minute)
	}

	rows, _ := mem.UptimeSummaries(ctx, mon.ID, h.clock.Now(), h.clock.Now())
	if len(rows) != 1 {
		t.Fatalf("expected one summary row, got %d", len(rows))
	}
	if rows[0].TotalChecks != 5 || rows[0].SuccessfulChecks != 4 || rows[0].UptimePercentage != 80 {
		t.Fatalf("unexpected summary: %+v", rows[0])
	}

	all, _ := mem.ListAlerts(ctx, db.AlertFilter{MonitorID: mon.ID})
	if len(all) != 1 || all[0].AlertType != db.AlertTypeDown || all[0].Severity != db.SeverityCritical {
		t.Fatalf("expected a single critical down alert, got %+v", all)
	}
	if h.dispatcher.count() != 1 {
		t.Fatalf("expected 1 dispatched alert, got %d", h.dispatcher.count())
	}
}

func TestRunCycle_Counts(t *testing.T) {
	mem := memory.New()
	for _, n := range []string{"a", "b", "c"} {
		addMonitor(mem, n)
	}
	mem.AddMonitor(&db.Monitor{Name: "off", IsActive: false})

	runner := checks.RunnerFunc(func(ctx context.Context, m *db.Monitor) checks.Result {
		if m.Name == "b" {
			return checks.Result{Error: "connection refused"}
		}
		return checks.Result{StatusCode: 200, Success: true}
	})
	h := newHarness(t, runner, mem, mem)

	stats, err := h.orch.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if stats.Checked != 3 || stats.Succeeded != 2 || stats.Failed != 1 || stats.Skipped != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

type flakyStore struct {
	*memory.Store
	failFor string
}

func (f flakyStore) RecordMetric(ctx context.Context, m *db.Metric, day time.Time) (*db.UptimeSummary, error) {
	if m.MonitorID == f.failFor {
		return nil, errors.New("disk full")
	}
	return f.Store.RecordMetric(ctx, m, day)
}

func TestRunCycle_PersistenceFailureIsolated(t *testing.T) {
	mem := memory.New()
	bad := addMonitor(mem, "bad")
	good := addMonitor(mem, "good")

	runner := checks.RunnerFunc(func(ctx context.Context, m *db.Monitor) checks.Result {
		return checks.Result{StatusCode: 200, Success: true}
	})
	h := newHarness(t, runner, flakyStore{Store: mem, failFor: bad.ID}, mem)

	stats, err := h.orch.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if stats.Succeeded != 1 || stats.Failed != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	recent, _ := mem.RecentMetrics(context.Background(), good.ID, 5)
	if len(recent) != 1 {
		t.Fatalf("healthy monitor should still be recorded")
	}
}

func TestRunCycle_PanicIsolated(t *testing.T) {
	mem := memory.New()
	addMonitor(mem, "boom")
	addMonitor(mem, "fine")

	runner := checks.RunnerFunc(func(ctx context.Context, m *db.Monitor) checks.Result {
		if m.Name == "boom" {
			panic("unexpected nil")
		}
		return checks.Result{StatusCode: 200, Success: true}
	})
	h := newHarness(t, runner, mem, mem)

	stats, err := h.orch.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if stats.Succeeded != 1 || stats.Failed != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestRunCycle_CancelledBeforeStart(t *testing.T) {
	mem := memory.New()
	mon := addMonitor(mem, "x")
	h := newHarness(t, sequenceRunner(200), mem, mem)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats, err := h.orch.RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if stats.Skipped != 1 || stats.Checked != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if recent, _ := mem.RecentMetrics(context.Background(), mon.ID, 5); len(recent) != 0 {
		t.Fatalf("cancelled cycle wrote %d metrics", len(recent))
	}
}

func TestRunCycle_CancelledDuringProbe(t *testing.T) {
	mem := memory.New()
	mon := addMonitor(mem, "slow")

	ctx, cancel := context.WithCancel(context.Background())
	runner := checks.RunnerFunc(func(c context.Context, m *db.Monitor) checks.Result {
		cancel()
		<-c.Done()
		return checks.Result{Error: c.Err().Error()}
	})
	h := newHarness(t, runner, mem, mem)

	stats, err := h.orch.RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if stats.Skipped != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if recent, _ := mem.RecentMetrics(context.Background(), mon.ID, 5); len(recent) != 0 {
		t.Fatalf("abandoned probe was recorded")
	}
}

// cancellingStore aborts the cycle while the metric write is in flight and
// fails the write the way a rolled back transaction would.
type cancellingStore struct {
	*memory.Store
	cancel context.CancelFunc
}

func (c cancellingStore) RecordMetric(ctx context.Context, m *db.Metric, day time.Time) (*db.UptimeSummary, error) {
	c.cancel()
	<-ctx.Done()
	return nil, fmt.Errorf("commit: %w", ctx.Err())
}

func TestRunCycle_CancelledDuringRecord(t *testing.T) {
	mem := memory.New()
	mon := addMonitor(mem, "x")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newHarness(t, sequenceRunner(200), cancellingStore{Store: mem, cancel: cancel}, mem)

	stats, err := h.orch.RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if stats.Skipped != 1 || stats.Failed != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if recent, _ := mem.RecentMetrics(context.Background(), mon.ID, 5); len(recent) != 0 {
		t.Fatalf("rolled back write left %d metrics", len(recent))
	}
	if h.dispatcher.count() != 0 {
		t.Fatalf("nothing should be dispatched")
	}
}

func TestRunCycle_BoundedConcurrency(t *testing.T) {
	mem := memory.New()
	for i := 0; i < 12; i++ {
		addMonitor(mem, string(rune('a'+i)))
	}

	var inFlight, peak int32
	runner := checks.RunnerFunc(func(ctx context.Context, m *db.Monitor) checks.Result {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return checks.Result{StatusCode: 200, Success: true}
	})
	h := newHarness(t, runner, mem, mem)

	stats, _ := h.orch.RunCycle(context.Background())
	if stats.Succeeded != 12 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if peak > 4 {
		t.Fatalf("peak concurrency %d exceeds worker count 4", peak)
	}
}

func TestRunCycle_NoMonitors(t *testing.T) {
	mem := memory.New()
	h := newHarness(t, sequenceRunner(), mem, mem)
	stats, err := h.orch.RunCycle(context.Background())
	if err != nil || stats.Checked != 0 {
		t.Fatalf("stats = %+v, err = %v", stats, err)
	}
}

func TestCheckMonitor(t *testing.T) {
	mem := memory.New()
	mon := addMonitor(mem, "api")
	h := newHarness(t, sequenceRunner(500), mem, mem)

	m, err := h.orch.CheckMonitor(context.Background(), mon.ID)
	if err != nil {
		t.Fatalf("CheckMonitor: %v", err)
	}
	if m.IsSuccess || m.StatusCode != 500 {
		t.Fatalf("unexpected metric: %+v", m)
	}
	if h.dispatcher.count() != 1 {
		t.Fatalf("down alert should be dispatched")
	}

	if _, err := h.orch.CheckMonitor(context.Background(), "missing"); !errors.Is(err, db.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

type fakeQueue struct {
	got    []*notify.Notification
	reject bool
}

func (q *fakeQueue) Enqueue(n *notify.Notification) bool {
	if q.reject {
		return false
	}
	q.got = append(q.got, n)
	return true
}

func TestReporter_SendDailySummary(t *testing.T) {
	mem := memory.New()
	m1 := addMonitor(mem, "a")
	m2 := addMonitor(mem, "b")
	ctx := context.Background()
	yesterday := time.Date(2025, 1, 14, 0, 0, 0, 0, time.UTC)

	record := func(id string, ok bool, at time.Time) {
		mem.RecordMetric(ctx, &db.Metric{MonitorID: id, IsSuccess: ok, CheckedAt: at}, clock.Day(at))
	}
	for i := 0; i < 3; i++ {
		record(m1.ID, true, yesterday.Add(time.Duration(i)*time.Hour))
	}
	record(m2.ID, false, yesterday.Add(5*time.Hour))
	record(m1.ID, false, yesterday.AddDate(0, 0, 1).Add(time.Hour))

	a1, _ := db.NewAlert(m2.ID, db.AlertTypeDown, db.SeverityCritical, "down", yesterday.Add(5*time.Hour))
	a2, _ := db.NewAlert(m1.ID, db.AlertTypeDown, db.SeverityCritical, "down", yesterday.AddDate(0, 0, 1).Add(time.Hour))
	mem.CreateAlert(ctx, a1)
	mem.CreateAlert(ctx, a2)

	q := &fakeQueue{}
	clk := clock.NewManual(yesterday.AddDate(0, 0, 1).Add(2 * time.Hour))
	r := NewReporter(mem, mem, clk, q, zap.NewNop())

	stats, err := r.SendDailySummary(ctx)
	if err != nil {
		t.Fatalf("SendDailySummary: %v", err)
	}
	if stats.TotalChecks != 4 || stats.SuccessfulChecks != 3 || stats.FailedChecks != 1 || stats.UptimePercentage != 75 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.AlertsCreated != 1 {
		t.Fatalf("alerts created = %d, want 1", stats.AlertsCreated)
	}
	if len(q.got) != 1 || q.got[0].Subject != notify.DailySummarySubject {
		t.Fatalf("summary not queued: %+v", q.got)
	}

	q.reject = true
	if _, err := r.SendDailySummary(ctx); !errors.Is(err, ErrSummaryDropped) {
		t.Fatalf("err = %v, want ErrSummaryDropped", err)
	}
}

func TestNewTrigger_InvalidSchedule(t *testing.T) {
	if _, err := NewTrigger(nil, nil, TriggerOptions{Schedule: "every now and then"}, zap.NewNop()); err == nil {
		t.Fatalf("expected error for invalid schedule")
	}
}

func TestTrigger_RunNow(t *testing.T) {
	mem := memory.New()
	mon := addMonitor(mem, "api")
	h := newHarness(t, sequenceRunner(200), mem, mem)

	tr, err := NewTrigger(h.orch, nil, TriggerOptions{Schedule: "@every 1h"}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewTrigger: %v", err)
	}
	tr.RunNow()

	if recent, _ := mem.RecentMetrics(context.Background(), mon.ID, 5); len(recent) != 1 {
		t.Fatalf("RunNow did not run a cycle")
	}
}
