// Package dispatcher implements the stateless probe engine: it accepts
// one dispatch request at a time from a Ticker, runs the configured
// probe, classifies the outcome, updates the status aggregate, records
// a sample-gated analytics point, and finalizes the hot dispatch row.
// Nothing here is tenant-stateful — any Dispatcher process instance can
// serve any request.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pulseward/pulseward/internal/analytics"
	"github.com/pulseward/pulseward/internal/store"
)

// Request is the decoded body of POST /internal/dispatch/run.
type Request struct {
	DispatchID   string  `json:"dispatchId"`
	MonitorID    string  `json:"monitorId"`
	OrgID        string  `json:"orgId"`
	Kind         string  `json:"kind"`
	Config       string  `json:"config"`
	TimeoutMs    int64   `json:"timeoutMs"`
	SampleRate   float64 `json:"sampleRate"`
	OnDownScript string  `json:"onDownScript,omitempty"`
}

// Service runs the outcome pipeline for one dispatch at a time. It holds
// no per-tenant state; a Service is safe to call concurrently from many
// goroutines, one per inflight dispatch.
type Service struct {
	store *store.Store
	probe *Prober
	sink  analytics.Sink
	gate  *analytics.Gate
	exec  *Remediator
	colo  string
}

// NewService wires a dispatcher Service from its collaborators. colo
// identifies this process instance and is stamped onto monitor_dispatch_hot
// rows as runner_colo.
func NewService(st *store.Store, probe *Prober, sink analytics.Sink, gate *analytics.Gate, exec *Remediator, colo string) *Service {
	if colo == "" {
		colo = "unknown"
	}
	return &Service{store: st, probe: probe, sink: sink, gate: gate, exec: exec, colo: colo}
}

// Run executes the four-stage outcome pipeline of spec.md §4.2: probe ->
// classify -> status aggregate -> analytics point -> hot-row finalize.
// Commit ordering matches spec.md §5: hot-row "running" before the
// probe, heartbeat+analytics before hot-row finalize.
func (s *Service) Run(ctx context.Context, req Request) error {
	now := time.Now().UnixMilli()

	if err := s.store.MarkDispatchRunning(ctx, req.MonitorID, req.DispatchID, s.colo, now); err != nil {
		return fmt.Errorf("mark dispatch running: %w", err)
	}

	outcome := s.probe.Probe(ctx, req)

	priorStatus := ""
	if m, err := s.store.GetMonitor(ctx, req.MonitorID); err == nil {
		priorStatus = m.Status
	}

	aggErr := s.store.ApplyStatusAggregate(ctx, req.MonitorID, store.StatusAggregateUpdate{
		Status:    outcome.Status,
		Timestamp: now,
		LatencyMs: outcome.LatencyMs,
		Region:    outcome.Region,
		Error:     outcome.Error,
	}, now)
	if aggErr != nil {
		slog.Warn("dispatcher: apply status aggregate failed", "monitor", req.MonitorID, "err", aggErr)
	}

	if s.gate.Sample(req.SampleRate) {
		point := analytics.Point{
			MonitorID:  req.MonitorID,
			OrgID:      req.OrgID,
			DispatchID: req.DispatchID,
			Timestamp:  now,
			Status:     outcome.Status,
			LatencyMs:  outcome.LatencyMs,
			Region:     outcome.Region,
			Colo:       outcome.Colo,
			Error:      outcome.Error,
			Code:       outcome.Code,
			SampleRate: req.SampleRate,
		}
		if err := s.sink.Record(ctx, point); err != nil {
			slog.Warn("dispatcher: record analytics point failed", "monitor", req.MonitorID, "err", err)
		}
	}

	if outcome.Status == "down" && priorStatus != "down" && req.OnDownScript != "" {
		s.exec.RunOnDown(ctx, req.MonitorID, req.OnDownScript)
	}

	completedAt := time.Now().UnixMilli()
	finalizeErr := s.store.FinalizeDispatch(ctx, req.MonitorID, req.DispatchID, outcome.Error == "", outcome.Error, completedAt)
	if finalizeErr != nil {
		return fmt.Errorf("finalize dispatch: %w", finalizeErr)
	}
	return aggErr
}
