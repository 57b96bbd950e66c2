package analytics

import (
	"context"

	"github.com/pulseward/pulseward/internal/store"
)

// SQLiteSink is the local fallback analytics sink, used for single-node
// deployments that have not configured a ClickHouse account. It writes
// directly into internal/store's heartbeats table.
type SQLiteSink struct {
	store *store.Store
}

// NewSQLiteSink wraps st as a Sink.
func NewSQLiteSink(st *store.Store) *SQLiteSink {
	return &SQLiteSink{store: st}
}

func (s *SQLiteSink) Record(ctx context.Context, p Point) error {
	return s.store.InsertHeartbeat(ctx, store.Heartbeat{
		MonitorID:  p.MonitorID,
		OrgID:      p.OrgID,
		DispatchID: p.DispatchID,
		Ts:         p.Timestamp,
		Status:     p.Status,
		LatencyMs:  p.LatencyMs,
		Region:     p.Region,
		Colo:       p.Colo,
		SampleRate: p.SampleRate,
		Error:      p.Error,
		Code:       p.Code,
	})
}

func (s *SQLiteSink) Close() error { return nil }
