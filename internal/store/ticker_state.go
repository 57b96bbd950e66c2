package store

import (
	"context"
	"database/sql"
	"errors"
)

// TickerState is a tenant's durable scheduler state: small enough to be
// loaded whole at tick entry and written whole at tick exit.
type TickerState struct {
	OrgID             string
	HasConfig         bool
	TickIntervalMs    int64
	BatchSize         int
	LastTickTs        int64
	ConsecutiveErrors int
}

func (s *Store) GetTickerState(ctx context.Context, orgID string) (TickerState, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT org_id, has_config, tick_interval_ms, batch_size, last_tick_ts, consecutive_errors
		 FROM ticker_state WHERE org_id = ?`, orgID)
	var t TickerState
	var hasConfig int
	if err := row.Scan(&t.OrgID, &hasConfig, &t.TickIntervalMs, &t.BatchSize, &t.LastTickTs, &t.ConsecutiveErrors); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TickerState{OrgID: orgID}, nil
		}
		return TickerState{}, err
	}
	t.HasConfig = hasConfig != 0
	return t, nil
}

// SaveTickerState performs the single load-at-entry/save-at-exit write for
// a tick. The row is upserted so the first bootstrap call doesn't need a
// separate insert path.
func (s *Store) SaveTickerState(ctx context.Context, t TickerState) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ticker_state (org_id, has_config, tick_interval_ms, batch_size, last_tick_ts, consecutive_errors)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(org_id) DO UPDATE SET
		   has_config = excluded.has_config,
		   tick_interval_ms = excluded.tick_interval_ms,
		   batch_size = excluded.batch_size,
		   last_tick_ts = excluded.last_tick_ts,
		   consecutive_errors = excluded.consecutive_errors`,
		t.OrgID, boolToInt(t.HasConfig), t.TickIntervalMs, t.BatchSize, t.LastTickTs, t.ConsecutiveErrors)
	return err
}
