package ticker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/pulseward/pulseward/internal/config"
	"github.com/pulseward/pulseward/internal/store"
)

type fakeDispatch struct {
	mu    sync.Mutex
	calls []DispatchRequest
}

func (f *fakeDispatch) Run(ctx context.Context, d DispatchRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, d)
	return nil
}

func (f *fakeDispatch) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// failingDispatch always errors, exercising the "dispatch failure fails
// the tick" path of spec.md §7.
type failingDispatch struct {
	mu    sync.Mutex
	calls int
}

func (f *failingDispatch) Run(ctx context.Context, d DispatchRequest) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return errors.New("dispatch boom")
}

func (f *failingDispatch) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestRegistry(t *testing.T) (*Registry, *store.Store, *fakeDispatch) {
	t.Helper()
	st, err := store.NewInMemory(context.Background())
	if err != nil {
		t.Fatalf("NewInMemory: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	fd := &fakeDispatch{}
	cfg := config.Config{
		TickIntervalDefault: 50 * time.Millisecond,
		BatchSizeDefault:    10,
		HTTPTimeoutDefault:  time.Second,
	}
	return NewRegistry(st, fd, cfg), st, fd
}

func seedOrgAndMonitor(t *testing.T, st *store.Store) store.Organization {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UnixMilli()
	org, err := st.CreateOrganization(ctx, "org-"+uuid.NewString(), "org", "owner_"+uuid.NewString())
	if err != nil {
		t.Fatalf("CreateOrganization: %v", err)
	}
	if _, err := st.CreateMonitor(ctx, store.MonitorWrite{
		OrgID:   org.ID,
		Name:    "example",
		Kind:    "http",
		Enabled: true,
		Config:  `{"url":"https://example.com"}`,
	}, now); err != nil {
		t.Fatalf("CreateMonitor: %v", err)
	}
	return org
}

func TestBootstrapArmsTickAndClaims(t *testing.T) {
	reg, st, fd := newTestRegistry(t)
	org := seedOrgAndMonitor(t, st)

	tenant := reg.Tenant(org.ID)
	if err := tenant.Bootstrap(context.Background(), 50, 10); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if fd.count() > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if fd.count() == 0 {
		t.Fatal("expected at least one dispatch after bootstrap")
	}
}

func TestTickFailsAndBacksOffWhenDispatchErrors(t *testing.T) {
	st, err := store.NewInMemory(context.Background())
	if err != nil {
		t.Fatalf("NewInMemory: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	org := seedOrgAndMonitor(t, st)

	fd := &failingDispatch{}
	cfg := config.Config{
		TickIntervalDefault: 50 * time.Millisecond,
		BatchSizeDefault:    10,
		HTTPTimeoutDefault:  time.Second,
	}
	reg := NewRegistry(st, fd, cfg)
	tenant := reg.Tenant(org.ID)
	if err := tenant.Bootstrap(context.Background(), 50, 10); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if fd.count() > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if fd.count() == 0 {
		t.Fatal("expected at least one dispatch attempt")
	}

	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		report, err := tenant.Status(context.Background())
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if report.ConsecutiveErrors > 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("expected ConsecutiveErrors > 0 after a tick whose only dispatch failed")
}

func TestStatusReflectsBootstrap(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	orgID := "org_" + uuid.NewString()

	tenant := reg.Tenant(orgID)
	if err := tenant.Bootstrap(context.Background(), 5000, 25); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	report, err := tenant.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !report.HasConfig {
		t.Fatal("HasConfig = false, want true")
	}
	if report.TickIntervalMs != 5000 || report.BatchSize != 25 {
		t.Fatalf("report = %+v", report)
	}
}

func TestStatusBeforeBootstrapHasNoConfig(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	tenant := reg.Tenant("org_" + uuid.NewString())

	report, err := tenant.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if report.HasConfig {
		t.Fatal("HasConfig = true before Bootstrap, want false")
	}
}

func TestBackoffCapsAtMax(t *testing.T) {
	if got := backoff(100); got != maxBackoff {
		t.Fatalf("backoff(100) = %v, want %v", got, maxBackoff)
	}
	if got := backoff(0); got < minRearmInterval {
		t.Fatalf("backoff(0) = %v, want at least %v", got, minRearmInterval)
	}
}

func TestRegistryReturnsSameTenantForSameOrg(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	orgID := "org_" + uuid.NewString()
	a := reg.Tenant(orgID)
	b := reg.Tenant(orgID)
	if a != b {
		t.Fatal("expected the same *Tenant instance for repeated lookups")
	}
}

func TestRegistryShutdownStopsAllTenants(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	reg.Tenant("org_" + uuid.NewString())
	reg.Tenant("org_" + uuid.NewString())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	reg.Shutdown(ctx)
}
