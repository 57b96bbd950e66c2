package store

import (
	"context"
	"testing"
)

func TestInsertAndListHeartbeats(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	_, mon := seedOrgAndMonitor(t, s, true)

	for i := 0; i < 3; i++ {
		h := Heartbeat{
			MonitorID: mon.ID, OrgID: mon.OrgID, DispatchID: "disp", Ts: int64(1_000_000 + i),
			Status: "up", LatencyMs: 20, Region: "wnam", Colo: "sjc", SampleRate: 1.0,
		}
		if err := s.InsertHeartbeat(ctx, h); err != nil {
			t.Fatalf("InsertHeartbeat %d: %v", i, err)
		}
	}

	got, err := s.ListHeartbeats(ctx, mon.ID, 10)
	if err != nil {
		t.Fatalf("ListHeartbeats: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len(got) = %d, want 3", len(got))
	}
	if got[0].Ts < got[1].Ts {
		t.Fatal("ListHeartbeats should return newest first")
	}
}

func TestListHeartbeatsRespectsLimit(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	_, mon := seedOrgAndMonitor(t, s, true)

	for i := 0; i < 5; i++ {
		if err := s.InsertHeartbeat(ctx, Heartbeat{
			MonitorID: mon.ID, OrgID: mon.OrgID, DispatchID: "disp", Ts: int64(1_000_000 + i), Status: "up",
		}); err != nil {
			t.Fatalf("InsertHeartbeat: %v", err)
		}
	}

	got, err := s.ListHeartbeats(ctx, mon.ID, 2)
	if err != nil {
		t.Fatalf("ListHeartbeats: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2", len(got))
	}
}
