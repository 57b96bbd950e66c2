package store

import (
	"context"
	"database/sql"
	"errors"
)

// DispatchHot is the single-row-per-monitor mirror of the currently
// inflight or most recent dispatch attempt.
type DispatchHot struct {
	MonitorID      string
	DispatchID     string
	OrgID          string
	Status         string
	ScheduledForTs int64
	DispatchedAtTs sql.NullInt64
	CompletedAtTs  sql.NullInt64
	RunnerColo     string
	Error          string
	UpdatedAt      int64
}

// UpsertPendingDispatch records a new claimed dispatch as pending,
// overwriting whatever the prior attempt's terminal state was. This models
// at-most-one inflight attempt per monitor: a re-claim before the prior
// attempt finished simply replaces it.
func (s *Store) UpsertPendingDispatch(ctx context.Context, monitorID, dispatchID, orgID string, scheduledForTs, now int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO monitor_dispatch_hot
		 (monitor_id, dispatch_id, org_id, status, scheduled_for_ts, dispatched_at_ts, completed_at_ts, runner_colo, error, updated_at)
		 VALUES (?, ?, ?, 'pending', ?, NULL, NULL, '', '', ?)
		 ON CONFLICT(monitor_id) DO UPDATE SET
		   dispatch_id = excluded.dispatch_id,
		   org_id = excluded.org_id,
		   status = 'pending',
		   scheduled_for_ts = excluded.scheduled_for_ts,
		   dispatched_at_ts = NULL,
		   completed_at_ts = NULL,
		   runner_colo = '',
		   error = '',
		   updated_at = excluded.updated_at`,
		monitorID, dispatchID, orgID, scheduledForTs, now)
	return err
}

// MarkDispatchRunning transitions a pending dispatch to running, stamping
// the runner's colo. It only applies if dispatchID still matches the row
// the Ticker most recently claimed.
func (s *Store) MarkDispatchRunning(ctx context.Context, monitorID, dispatchID, runnerColo string, now int64) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE monitor_dispatch_hot SET status = 'running', dispatched_at_ts = ?, runner_colo = ?, updated_at = ?
		 WHERE monitor_id = ? AND dispatch_id = ?`,
		now, runnerColo, now, monitorID, dispatchID)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// FinalizeDispatch marks a dispatch completed or failed. errMsg is stored
// only on failure.
func (s *Store) FinalizeDispatch(ctx context.Context, monitorID, dispatchID string, ok bool, errMsg string, completedAtTs int64) error {
	status := "completed"
	if !ok {
		status = "failed"
	} else {
		errMsg = ""
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE monitor_dispatch_hot SET status = ?, completed_at_ts = ?, error = ?, updated_at = ?
		 WHERE monitor_id = ? AND dispatch_id = ?`,
		status, completedAtTs, errMsg, completedAtTs, monitorID, dispatchID)
	return err
}

func (s *Store) GetDispatchHot(ctx context.Context, monitorID string) (DispatchHot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT monitor_id, dispatch_id, org_id, status, scheduled_for_ts, dispatched_at_ts,
		        completed_at_ts, runner_colo, error, updated_at
		 FROM monitor_dispatch_hot WHERE monitor_id = ?`, monitorID)
	var d DispatchHot
	if err := row.Scan(
		&d.MonitorID, &d.DispatchID, &d.OrgID, &d.Status, &d.ScheduledForTs,
		&d.DispatchedAtTs, &d.CompletedAtTs, &d.RunnerColo, &d.Error, &d.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return DispatchHot{}, ErrNotFound
		}
		return DispatchHot{}, err
	}
	return d, nil
}
