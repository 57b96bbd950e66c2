// Package analytics records heartbeat points: append-only,
// sample-gated analytics facts, kept separate from the live status
// aggregate that internal/store's monitors table carries. Two Sink
// implementations exist: a SQLite-backed default for single-node
// deployments, and a ClickHouse-backed sink used once AE_ACCOUNT_ID and
// AE_HEARTBEATS_DATASET are configured.
package analytics

import "context"

// Point is one heartbeat record, column order matching spec.md §6's
// literal sequence.
type Point struct {
	MonitorID  string
	OrgID      string
	DispatchID string
	Timestamp  int64
	Status     string
	LatencyMs  int64
	Region     string
	Colo       string
	Error      string
	Code       int
	SampleRate float64
}

// Sink accepts sampled heartbeat points. Implementations must not block
// the Dispatcher's outcome pipeline on slow downstream writes longer
// than the caller's context allows.
type Sink interface {
	Record(ctx context.Context, p Point) error
	Close() error
}
