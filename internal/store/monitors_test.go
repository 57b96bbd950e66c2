package store

import (
	"context"
	"testing"
)

func seedOrgAndMonitor(t *testing.T, s *Store, enabled bool) (Organization, Monitor) {
	t.Helper()
	ctx := context.Background()
	org, err := s.CreateOrganization(ctx, "acme", "Acme Corp", "mem_1")
	if err != nil {
		t.Fatalf("CreateOrganization: %v", err)
	}
	mon, err := s.CreateMonitor(ctx, MonitorWrite{
		OrgID:   org.ID,
		Name:    "homepage",
		Kind:    "http",
		Enabled: enabled,
		Config:  `{"url":"https://example.test/ok","interval_s":60,"timeout_ms":5000,"verify_tls":true,"follow_redirects":true}`,
	}, 1_000_000)
	if err != nil {
		t.Fatalf("CreateMonitor: %v", err)
	}
	return org, mon
}

func TestCreateMonitorDefaultsToPending(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	_, mon := seedOrgAndMonitor(t, s, true)

	if mon.Status != "pending" {
		t.Fatalf("status = %q, want %q", mon.Status, "pending")
	}
	if mon.FirstCheckedAt.Valid {
		t.Fatal("FirstCheckedAt should be unset for a newly created monitor")
	}
}

func TestClaimDueMonitorsAdvancesNextRunAt(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	org, mon := seedOrgAndMonitor(t, s, true)

	const now = int64(1_000_000)
	const intervalMs = int64(15_000)

	claimed, err := s.ClaimDueMonitors(ctx, org.ID, now, intervalMs, 100)
	if err != nil {
		t.Fatalf("ClaimDueMonitors: %v", err)
	}
	if len(claimed) != 1 || claimed[0].ID != mon.ID {
		t.Fatalf("claimed = %+v, want exactly monitor %s", claimed, mon.ID)
	}

	got, err := s.GetMonitor(ctx, mon.ID)
	if err != nil {
		t.Fatalf("GetMonitor: %v", err)
	}
	if !got.NextRunAt.Valid || got.NextRunAt.Int64 != now+intervalMs {
		t.Fatalf("NextRunAt = %+v, want %d", got.NextRunAt, now+intervalMs)
	}

	// A second claim at the same instant must not re-select it.
	claimed, err = s.ClaimDueMonitors(ctx, org.ID, now, intervalMs, 100)
	if err != nil {
		t.Fatalf("second ClaimDueMonitors: %v", err)
	}
	if len(claimed) != 0 {
		t.Fatalf("second claim returned %d monitors, want 0", len(claimed))
	}
}

func TestClaimDueMonitorsSkipsDisabled(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	org, _ := seedOrgAndMonitor(t, s, false)

	claimed, err := s.ClaimDueMonitors(ctx, org.ID, 1_000_000, 15_000, 100)
	if err != nil {
		t.Fatalf("ClaimDueMonitors: %v", err)
	}
	if len(claimed) != 0 {
		t.Fatalf("claimed %d disabled monitors, want 0", len(claimed))
	}
}

func TestClaimDueMonitorsRespectsLimit(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	org, err := s.CreateOrganization(ctx, "acme", "Acme Corp", "mem_1")
	if err != nil {
		t.Fatalf("CreateOrganization: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := s.CreateMonitor(ctx, MonitorWrite{
			OrgID: org.ID, Name: "m", Kind: "http", Enabled: true, Config: "{}",
		}, 1_000_000); err != nil {
			t.Fatalf("CreateMonitor: %v", err)
		}
	}

	claimed, err := s.ClaimDueMonitors(ctx, org.ID, 1_000_000, 15_000, 2)
	if err != nil {
		t.Fatalf("ClaimDueMonitors: %v", err)
	}
	if len(claimed) != 2 {
		t.Fatalf("claimed %d monitors, want 2 (batch_size limit)", len(claimed))
	}
}

func TestClaimDueMonitorsRejectsNonHTTPKind(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	org, err := s.CreateOrganization(ctx, "acme", "Acme Corp", "mem_1")
	if err != nil {
		t.Fatalf("CreateOrganization: %v", err)
	}
	if _, err := s.CreateMonitor(ctx, MonitorWrite{
		OrgID: org.ID, Name: "pingable", Kind: "tcp", Enabled: true, Config: "{}",
	}, 1_000_000); err != nil {
		t.Fatalf("CreateMonitor: %v", err)
	}

	_, err = s.ClaimDueMonitors(ctx, org.ID, 1_000_000, 15_000, 100)
	if err == nil {
		t.Fatal("expected ClaimDueMonitors to fail on a non-http monitor kind")
	}
}

func TestApplyStatusAggregateFirstCheckedAtSetOnce(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	_, mon := seedOrgAndMonitor(t, s, true)

	err := s.ApplyStatusAggregate(ctx, mon.ID, StatusAggregateUpdate{
		Status: "up", Timestamp: 1_000_100, LatencyMs: 42, Region: "wnam",
	}, 1_000_100)
	if err != nil {
		t.Fatalf("ApplyStatusAggregate: %v", err)
	}

	got, err := s.GetMonitor(ctx, mon.ID)
	if err != nil {
		t.Fatalf("GetMonitor: %v", err)
	}
	if !got.FirstCheckedAt.Valid || got.FirstCheckedAt.Int64 != 1_000_100 {
		t.Fatalf("FirstCheckedAt = %+v, want 1000100", got.FirstCheckedAt)
	}

	// A second, later heartbeat must not move first_checked_at.
	err = s.ApplyStatusAggregate(ctx, mon.ID, StatusAggregateUpdate{
		Status: "up", Timestamp: 1_000_200, LatencyMs: 10, Region: "wnam",
	}, 1_000_200)
	if err != nil {
		t.Fatalf("ApplyStatusAggregate (2nd): %v", err)
	}
	got, err = s.GetMonitor(ctx, mon.ID)
	if err != nil {
		t.Fatalf("GetMonitor: %v", err)
	}
	if got.FirstCheckedAt.Int64 != 1_000_100 {
		t.Fatalf("FirstCheckedAt moved to %d, want pinned at 1000100", got.FirstCheckedAt.Int64)
	}
}

func TestApplyStatusAggregateLastFailedAtOnlyOnTransition(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	_, mon := seedOrgAndMonitor(t, s, true)

	// First heartbeat: down. Transition from pending -> down stamps last_failed_at.
	if err := s.ApplyStatusAggregate(ctx, mon.ID, StatusAggregateUpdate{
		Status: "down", Timestamp: 1_000_100, Error: "boom",
	}, 1_000_100); err != nil {
		t.Fatalf("ApplyStatusAggregate: %v", err)
	}
	got, err := s.GetMonitor(ctx, mon.ID)
	if err != nil {
		t.Fatalf("GetMonitor: %v", err)
	}
	if !got.LastFailedAt.Valid || got.LastFailedAt.Int64 != 1_000_100 {
		t.Fatalf("LastFailedAt = %+v, want 1000100", got.LastFailedAt)
	}

	// Second heartbeat: still down. last_failed_at must not move.
	if err := s.ApplyStatusAggregate(ctx, mon.ID, StatusAggregateUpdate{
		Status: "down", Timestamp: 1_000_200, Error: "boom again",
	}, 1_000_200); err != nil {
		t.Fatalf("ApplyStatusAggregate (2nd): %v", err)
	}
	got, err = s.GetMonitor(ctx, mon.ID)
	if err != nil {
		t.Fatalf("GetMonitor: %v", err)
	}
	if got.LastFailedAt.Int64 != 1_000_100 {
		t.Fatalf("LastFailedAt moved to %d on repeated down heartbeat, want pinned at 1000100", got.LastFailedAt.Int64)
	}
	if got.LastError.String != "boom again" {
		t.Fatalf("LastError = %q, want %q", got.LastError.String, "boom again")
	}
}

func TestApplyStatusAggregateDefaultErrorOnFailure(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	_, mon := seedOrgAndMonitor(t, s, true)

	if err := s.ApplyStatusAggregate(ctx, mon.ID, StatusAggregateUpdate{
		Status: "down", Timestamp: 1_000_100,
	}, 1_000_100); err != nil {
		t.Fatalf("ApplyStatusAggregate: %v", err)
	}
	got, err := s.GetMonitor(ctx, mon.ID)
	if err != nil {
		t.Fatalf("GetMonitor: %v", err)
	}
	if got.LastError.String != "Health check failed" {
		t.Fatalf("LastError = %q, want default %q", got.LastError.String, "Health check failed")
	}
}

func TestApplyStatusAggregateNotFound(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	err := s.ApplyStatusAggregate(ctx, "mon_missing", StatusAggregateUpdate{Status: "up"}, 1)
	if err == nil {
		t.Fatal("expected error for missing monitor")
	}
}
