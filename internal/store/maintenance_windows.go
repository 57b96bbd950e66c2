package store

import (
	"context"
	"database/sql"
)

// MaintenanceWindow suppresses dispatch claiming for an organization while
// the current time falls within duration_ms of a cron firing.
type MaintenanceWindow struct {
	ID         string
	OrgID      string
	Name       string
	CronExpr   string
	DurationMs int64
	Timezone   string
	Enabled    bool
	CreatedAt  int64
}

// MaintenanceWindowWrite is used to create or update a maintenance window.
type MaintenanceWindowWrite struct {
	ID         string
	OrgID      string
	Name       string
	CronExpr   string
	DurationMs int64
	Timezone   string
	Enabled    bool
}

// ListMaintenanceWindows returns all enabled maintenance windows for an
// organization, ordered by name.
func (s *Store) ListMaintenanceWindows(ctx context.Context, orgID string) ([]MaintenanceWindow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, org_id, name, cron_expr, duration_ms, timezone, enabled, created_at
		 FROM maintenance_windows WHERE org_id = ? AND enabled = 1
		 ORDER BY name ASC`, orgID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanMaintenanceWindows(rows)
}

// InsertMaintenanceWindow creates a new maintenance window.
func (s *Store) InsertMaintenanceWindow(ctx context.Context, w MaintenanceWindowWrite) (MaintenanceWindow, error) {
	id := w.ID
	if id == "" {
		id = newID("mw")
	}
	tz := w.Timezone
	if tz == "" {
		tz = "UTC"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO maintenance_windows
		 (id, org_id, name, cron_expr, duration_ms, timezone, enabled, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, unixepoch())`,
		id, w.OrgID, w.Name, w.CronExpr, w.DurationMs, tz, boolToInt(w.Enabled))
	if err != nil {
		return MaintenanceWindow{}, err
	}
	return s.getMaintenanceWindowByID(ctx, id)
}

// UpdateMaintenanceWindow updates an existing window.
func (s *Store) UpdateMaintenanceWindow(ctx context.Context, w MaintenanceWindowWrite) (MaintenanceWindow, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE maintenance_windows SET
		 name = ?, cron_expr = ?, duration_ms = ?, timezone = ?, enabled = ?
		 WHERE id = ? AND org_id = ?`,
		w.Name, w.CronExpr, w.DurationMs, w.Timezone, boolToInt(w.Enabled), w.ID, w.OrgID)
	if err != nil {
		return MaintenanceWindow{}, err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return MaintenanceWindow{}, sql.ErrNoRows
	}
	return s.getMaintenanceWindowByID(ctx, w.ID)
}

// DeleteMaintenanceWindow removes a window by ID.
func (s *Store) DeleteMaintenanceWindow(ctx context.Context, orgID, id string) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM maintenance_windows WHERE id = ? AND org_id = ?", id, orgID)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) getMaintenanceWindowByID(ctx context.Context, id string) (MaintenanceWindow, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, org_id, name, cron_expr, duration_ms, timezone, enabled, created_at
		 FROM maintenance_windows WHERE id = ?`, id)
	return scanMaintenanceWindow(row)
}

func scanMaintenanceWindows(rows *sql.Rows) ([]MaintenanceWindow, error) {
	var out []MaintenanceWindow
	for rows.Next() {
		var w MaintenanceWindow
		var enabled int
		if err := rows.Scan(
			&w.ID, &w.OrgID, &w.Name, &w.CronExpr, &w.DurationMs, &w.Timezone,
			&enabled, &w.CreatedAt,
		); err != nil {
			return nil, err
		}
		w.Enabled = enabled != 0
		out = append(out, w)
	}
	return out, rows.Err()
}

type maintenanceWindowRowScanner interface {
	Scan(dest ...any) error
}

func scanMaintenanceWindow(row maintenanceWindowRowScanner) (MaintenanceWindow, error) {
	var w MaintenanceWindow
	var enabled int
	if err := row.Scan(
		&w.ID, &w.OrgID, &w.Name, &w.CronExpr, &w.DurationMs, &w.Timezone,
		&enabled, &w.CreatedAt,
	); err != nil {
		return MaintenanceWindow{}, err
	}
	w.Enabled = enabled != 0
	return w, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
