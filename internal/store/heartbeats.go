package store

import "context"

// Heartbeat is one sample-gated analytics point. Written to the local
// fallback table when AE_ACCOUNT_ID/AE_HEARTBEATS_DATASET are unset; see
// internal/analytics for the ClickHouse-backed sink used otherwise.
type Heartbeat struct {
	MonitorID  string
	OrgID      string
	DispatchID string
	Ts         int64
	Status     string
	LatencyMs  int64
	Region     string
	Colo       string
	SampleRate float64
	Error      string
	Code       int
}

func (s *Store) InsertHeartbeat(ctx context.Context, h Heartbeat) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO heartbeats
		 (monitor_id, org_id, dispatch_id, ts, status, latency_ms, region, colo, sample_rate, error, code)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.MonitorID, h.OrgID, h.DispatchID, h.Ts, h.Status, h.LatencyMs,
		h.Region, h.Colo, h.SampleRate, h.Error, h.Code)
	return err
}

// ListHeartbeats returns the most recent heartbeats for a monitor, newest
// first. Intended for local debugging; the analytics read-side proper is
// out of scope (see §1 Non-goals).
func (s *Store) ListHeartbeats(ctx context.Context, monitorID string, limit int) ([]Heartbeat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT monitor_id, org_id, dispatch_id, ts, status, latency_ms, region, colo, sample_rate, error, code
		 FROM heartbeats WHERE monitor_id = ? ORDER BY ts DESC LIMIT ?`, monitorID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Heartbeat
	for rows.Next() {
		var h Heartbeat
		if err := rows.Scan(&h.MonitorID, &h.OrgID, &h.DispatchID, &h.Ts, &h.Status,
			&h.LatencyMs, &h.Region, &h.Colo, &h.SampleRate, &h.Error, &h.Code); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
