package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pulseward/pulseward/internal/validate"
)

// Monitor is a single HTTP (or reserved TCP/UDP) health check target.
type Monitor struct {
	ID            string
	OrgID         string
	Name          string
	Kind          string
	Enabled       bool
	Config        string // opaque JSON: {url, interval_s, timeout_ms, verify_tls, follow_redirects}
	Status        string
	LastCheckedAt sql.NullInt64
	LastFailedAt  sql.NullInt64
	FirstCheckedAt sql.NullInt64
	RTMs          sql.NullInt64
	Region        sql.NullString
	RelayID       sql.NullString
	LastError     sql.NullString
	NextRunAt     sql.NullInt64
	OnDownScript  string
	CreatedAt     int64
	UpdatedAt     int64
}

// MonitorWrite is used to create or update user-editable monitor fields.
type MonitorWrite struct {
	ID           string
	OrgID        string
	Name         string
	Kind         string
	Enabled      bool
	Config       string
	RelayID      string
	OnDownScript string
}

func (s *Store) CreateMonitor(ctx context.Context, w MonitorWrite, now int64) (Monitor, error) {
	if !validate.MonitorName(w.Name) {
		return Monitor{}, fmt.Errorf("store: invalid monitor name %q", w.Name)
	}
	id := w.ID
	if id == "" {
		id = newID("mon")
	}
	kind := w.Kind
	if kind == "" {
		kind = "http"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO monitors (id, org_id, name, kind, enabled, config, status, relay_id, on_down_script, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, 'pending', NULLIF(?, ''), ?, ?, ?)`,
		id, w.OrgID, w.Name, kind, boolToInt(w.Enabled), w.Config, w.RelayID, w.OnDownScript, now, now)
	if err != nil {
		return Monitor{}, err
	}
	return s.GetMonitor(ctx, id)
}

func (s *Store) GetMonitor(ctx context.Context, id string) (Monitor, error) {
	row := s.db.QueryRowContext(ctx, monitorSelectColumns+" FROM monitors WHERE id = ?", id)
	return scanMonitor(row)
}

const monitorSelectColumns = `SELECT id, org_id, name, kind, enabled, config, status,
	last_checked_at, last_failed_at, first_checked_at, rt_ms, region, relay_id,
	last_error, next_run_at, on_down_script, created_at, updated_at`

func scanMonitor(row interface{ Scan(dest ...any) error }) (Monitor, error) {
	var m Monitor
	var enabled int
	if err := row.Scan(
		&m.ID, &m.OrgID, &m.Name, &m.Kind, &enabled, &m.Config, &m.Status,
		&m.LastCheckedAt, &m.LastFailedAt, &m.FirstCheckedAt, &m.RTMs, &m.Region,
		&m.RelayID, &m.LastError, &m.NextRunAt, &m.OnDownScript, &m.CreatedAt, &m.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Monitor{}, ErrNotFound
		}
		return Monitor{}, err
	}
	m.Enabled = enabled != 0
	return m, nil
}

// ClaimDueMonitors selects up to limit enabled monitors for org whose
// next_run_at is unset or has arrived, ordered ascending, then sets
// their next_run_at to now + intervalMs in a single batch update. Claim and
// advance happen inside one transaction so no other Ticker instance (there
// should never be more than one per org, but this also protects against a
// crashed-and-restarted ticker double-claiming) can observe a half-claimed
// batch.
func (s *Store) ClaimDueMonitors(ctx context.Context, orgID string, now, intervalMs int64, limit int) ([]Monitor, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx,
		monitorSelectColumns+` FROM monitors
		 WHERE org_id = ? AND enabled = 1 AND (next_run_at IS NULL OR next_run_at <= ?)
		 ORDER BY COALESCE(next_run_at, 0) ASC
		 LIMIT ?`,
		orgID, now, limit)
	if err != nil {
		return nil, fmt.Errorf("select due monitors: %w", err)
	}
	var claimed []Monitor
	for rows.Next() {
		m, err := scanMonitor(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		if m.Kind != "http" {
			_ = rows.Close()
			return nil, fmt.Errorf("claim due monitors: monitor %s has non-http kind %q (schema/code drift)", m.ID, m.Kind)
		}
		claimed = append(claimed, m)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if len(claimed) == 0 {
		return nil, tx.Commit()
	}

	stmt, err := tx.PrepareContext(ctx,
		`UPDATE monitors SET next_run_at = ?, last_checked_at = ?, updated_at = ? WHERE id = ?`)
	if err != nil {
		return nil, fmt.Errorf("prepare claim update: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	nextRunAt := now + intervalMs
	for _, m := range claimed {
		if _, err := stmt.ExecContext(ctx, nextRunAt, now, now, m.ID); err != nil {
			return nil, fmt.Errorf("advance next_run_at for %s: %w", m.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return claimed, nil
}

// StatusAggregateUpdate carries the fields a heartbeat contributes to a
// monitor's status aggregate, per the transition rules.
type StatusAggregateUpdate struct {
	Status       string
	Timestamp    int64
	LatencyMs    int64
	Region       string
	Error        string
}

// ApplyStatusAggregate applies the §4.2a transition rules: first_checked_at
// set-once, last_failed_at advances only on a non-down/degraded -> down/
// degraded transition, last_error defaults when absent on a failing result.
func (s *Store) ApplyStatusAggregate(ctx context.Context, monitorID string, u StatusAggregateUpdate, now int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var priorStatus string
	var firstCheckedAt, lastFailedAt sql.NullInt64
	err = tx.QueryRowContext(ctx,
		"SELECT status, first_checked_at, last_failed_at FROM monitors WHERE id = ?", monitorID,
	).Scan(&priorStatus, &firstCheckedAt, &lastFailedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	isFailing := u.Status == "down" || u.Status == "degraded"
	wasFailing := priorStatus == "down" || priorStatus == "degraded"

	newFirstCheckedAt := firstCheckedAt
	if !newFirstCheckedAt.Valid {
		newFirstCheckedAt = sql.NullInt64{Int64: now, Valid: true}
	}

	newLastFailedAt := lastFailedAt
	if isFailing && !wasFailing {
		newLastFailedAt = sql.NullInt64{Int64: now, Valid: true}
	}

	lastError := u.Error
	if lastError == "" && isFailing {
		lastError = "Health check failed"
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE monitors SET
		 status = ?, first_checked_at = ?, last_failed_at = ?, last_error = ?,
		 last_checked_at = ?, rt_ms = ?, region = ?, updated_at = ?
		 WHERE id = ?`,
		u.Status, newFirstCheckedAt, newLastFailedAt, lastError,
		u.Timestamp, u.LatencyMs, u.Region, now, monitorID)
	if err != nil {
		return err
	}
	return tx.Commit()
}
