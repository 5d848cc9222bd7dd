package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

const dateLayout = "2006-01-02"

type Repository struct {
	db *sqlx.DB
}

type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func NewConnection(databaseURL string, opts PoolOptions) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, err
	}

	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 25
	}
	if opts.MaxIdleConns <= 0 {
		opts.MaxIdleConns = 5
	}
	if opts.ConnMaxLifetime <= 0 {
		opts.ConnMaxLifetime = 5 * time.Minute
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)

	return db, nil
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Monitor operations
func (r *Repository) ActiveMonitors(ctx context.Context) ([]*Monitor, error) {
	monitors := []*Monitor{}
	query := `
		SELECT * FROM monitors
		WHERE is_active = true
		ORDER BY created_at, id`

	err := r.db.SelectContext(ctx, &monitors, query)
	return monitors, err
}

func (r *Repository) ListMonitors(ctx context.Context) ([]*Monitor, error) {
	monitors := []*Monitor{}
	query := `SELECT * FROM monitors ORDER BY created_at, id`
	err := r.db.SelectContext(ctx, &monitors, query)
	return monitors, err
}

func (r *Repository) GetMonitor(ctx context.Context, id string) (*Monitor, error) {
	var m Monitor
	query := `SELECT * FROM monitors WHERE id = $1`
	err := r.db.GetContext(ctx, &m, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("monitor %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Metrics and daily uptime
func (r *Repository) RecordMetric(ctx context.Context, m *Metric, day time.Time) (*UptimeSummary, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO metrics (
			id, monitor_id, status_code, response_time, is_success,
			error_message, checked_at, created_at
		) VALUES (
			:id, :monitor_id, :status_code, :response_time, :is_success,
			:error_message, :checked_at, :created_at
		)`

	if _, err = tx.NamedExecContext(ctx, query, m); err != nil {
		return nil, fmt.Errorf("insert metric: %w", err)
	}

	date := day.Format(dateLayout)

	// The row may not exist yet; create it empty so the lock below always
	// has something to hold.
	seed := `
		INSERT INTO uptime_summaries (
			id, monitor_id, date, total_checks, successful_checks,
			uptime_percentage, created_at, updated_at
		) VALUES ($1, $2, $3::date, 0, 0, 0, $4, $4)
		ON CONFLICT (monitor_id, date) DO NOTHING`

	if _, err = tx.ExecContext(ctx, seed, uuid.New().String(), m.MonitorID, date, m.CheckedAt); err != nil {
		return nil, fmt.Errorf("seed uptime summary: %w", err)
	}

	var s UptimeSummary
	lock := `
		SELECT * FROM uptime_summaries
		WHERE monitor_id = $1 AND date = $2::date
		FOR UPDATE`

	if err = tx.GetContext(ctx, &s, lock, m.MonitorID, date); err != nil {
		return nil, fmt.Errorf("lock uptime summary: %w", err)
	}

	s.Apply(m.IsSuccess, m.CheckedAt)

	update := `
		UPDATE uptime_summaries SET
			total_checks = :total_checks,
			successful_checks = :successful_checks,
			uptime_percentage = :uptime_percentage,
			updated_at = :updated_at
		WHERE id = :id`

	if _, err = tx.NamedExecContext(ctx, update, &s); err != nil {
		return nil, fmt.Errorf("update uptime summary: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repository) RecentMetrics(ctx context.Context, monitorID string, limit int) ([]*Metric, error) {
	metrics := []*Metric{}
	query := `
		SELECT * FROM metrics
		WHERE monitor_id = $1
		ORDER BY checked_at DESC, seq DESC
		LIMIT $2`

	err := r.db.SelectContext(ctx, &metrics, query, monitorID, limit)
	return metrics, err
}

func (r *Repository) MetricsBetween(ctx context.Context, monitorID string, from, to time.Time) ([]*Metric, error) {
	metrics := []*Metric{}
	query := `
		SELECT * FROM metrics
		WHERE monitor_id = $1 AND checked_at BETWEEN $2 AND $3
		ORDER BY checked_at, seq`

	err := r.db.SelectContext(ctx, &metrics, query, monitorID, from, to)
	return metrics, err
}

func (r *Repository) UptimeSummaries(ctx context.Context, monitorID string, from, to time.Time) ([]*UptimeSummary, error) {
	summaries := []*UptimeSummary{}
	args := []interface{}{from.Format(dateLayout), to.Format(dateLayout)}
	query := `
		SELECT * FROM uptime_summaries
		WHERE date BETWEEN $1::date AND $2::date`

	if monitorID != "" {
		query += ` AND monitor_id = $3`
		args = append(args, monitorID)
	}
	query += ` ORDER BY date, monitor_id`

	err := r.db.SelectContext(ctx, &summaries, query, args...)
	return summaries, err
}

// Alerts
func (r *Repository) CreateAlert(ctx context.Context, a *Alert) error {
	query := `
		INSERT INTO alerts (
			id, monitor_id, alert_type, severity, message,
			is_resolved, created_at, resolved_at
		) VALUES (
			:id, :monitor_id, :alert_type, :severity, :message,
			:is_resolved, :created_at, :resolved_at
		)`

	_, err := r.db.NamedExecContext(ctx, query, a)
	return err
}

func (r *Repository) CreateAlertUnlessOpen(ctx context.Context, a *Alert, since time.Time) (*Alert, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// Serializes concurrent raises for one (monitor, type) across processes
	// until the transaction ends.
	lockKey := a.MonitorID + ":" + string(a.AlertType)
	if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, lockKey); err != nil {
		return nil, fmt.Errorf("lock alert key: %w", err)
	}

	var existing Alert
	query := `
		SELECT * FROM alerts
		WHERE monitor_id = $1
		AND alert_type = $2
		AND is_resolved = false
		AND created_at > $3
		ORDER BY created_at DESC
		LIMIT 1`

	err = tx.GetContext(ctx, &existing, query, a.MonitorID, a.AlertType, since)
	switch {
	case err == nil:
		return &existing, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, err
	}

	insert := `
		INSERT INTO alerts (
			id, monitor_id, alert_type, severity, message,
			is_resolved, created_at, resolved_at
		) VALUES (
			:id, :monitor_id, :alert_type, :severity, :message,
			:is_resolved, :created_at, :resolved_at
		)`

	if _, err = tx.NamedExecContext(ctx, insert, a); err != nil {
		return nil, fmt.Errorf("insert alert: %w", err)
	}
	return nil, tx.Commit()
}

func (r *Repository) FindRecentUnresolved(ctx context.Context, monitorID string, t AlertType, since time.Time) (*Alert, error) {
	var a Alert
	query := `
		SELECT * FROM alerts
		WHERE monitor_id = $1
		AND alert_type = $2
		AND is_resolved = false
		AND created_at > $3
		ORDER BY created_at DESC
		LIMIT 1`

	err := r.db.GetContext(ctx, &a, query, monitorID, t, since)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *Repository) GetAlert(ctx context.Context, id string) (*Alert, error) {
	var a Alert
	err := r.db.GetContext(ctx, &a, `SELECT * FROM alerts WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("alert %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *Repository) UpdateAlert(ctx context.Context, a *Alert) error {
	query := `
		UPDATE alerts SET
			is_resolved = :is_resolved,
			resolved_at = :resolved_at
		WHERE id = :id`

	res, err := r.db.NamedExecContext(ctx, query, a)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("alert %s: %w", a.ID, ErrNotFound)
	}
	return nil
}

func (r *Repository) ListAlerts(ctx context.Context, f AlertFilter) ([]*Alert, error) {
	alerts := []*Alert{}
	var (
		where []string
		args  []interface{}
	)
	if f.MonitorID != "" {
		args = append(args, f.MonitorID)
		where = append(where, fmt.Sprintf("monitor_id = $%d", len(args)))
	}
	if f.Resolved != nil {
		args = append(args, *f.Resolved)
		where = append(where, fmt.Sprintf("is_resolved = $%d", len(args)))
	}
	if !f.Since.IsZero() {
		args = append(args, f.Since)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}

	query := `SELECT * FROM alerts`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	err := r.db.SelectContext(ctx, &alerts, query, args...)
	return alerts, err
}
