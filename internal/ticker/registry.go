// Package ticker hosts one state machine per tenant organization,
// responsible for claiming due monitors, fanning dispatches out to the
// Dispatcher, and re-arming its own alarm. One process runs every
// tenant's Ticker as a goroutine keyed by org_id, mirroring the
// teacher's internal/scheduler.Service single-tick-loop shape
// (time.NewTicker + select + sync.Once start/stop) but instantiated
// once per tenant instead of once globally.
package ticker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pulseward/pulseward/internal/config"
	"github.com/pulseward/pulseward/internal/store"
)

const (
	minRearmInterval = 1 * time.Second
	maxBackoff       = 60 * time.Second
	maxConcurrentCap = 20
	backlogAlarm     = 1 * time.Second
)

// Dispatch is the Ticker's view of the Dispatcher: a function that hands
// one claimed monitor off for execution. Implemented by *Client in
// dispatch.go; a separate interface keeps Registry/Tenant testable
// without a real HTTP round trip.
type Dispatch interface {
	Run(ctx context.Context, d DispatchRequest) error
}

// Registry owns one Tenant per org_id, created lazily on first touch.
type Registry struct {
	store    *store.Store
	dispatch Dispatch
	cfg      config.Config

	mu      sync.Mutex
	tenants map[string]*Tenant
}

// NewRegistry constructs a Registry. cfg supplies the scheduler defaults
// (tick interval, batch size, HTTP timeout) used to bootstrap a tenant
// that has no prior ticker_state row.
func NewRegistry(st *store.Store, dispatch Dispatch, cfg config.Config) *Registry {
	return &Registry{
		store:    st,
		dispatch: dispatch,
		cfg:      cfg,
		tenants:  make(map[string]*Tenant),
	}
}

// Tenant returns the Tenant for orgID, creating and starting it on first
// access. Durable state (internal/store ticker_state) is the source of
// truth; the returned Tenant is a cache that can be dropped and rebuilt
// from that row at any time.
func (r *Registry) Tenant(orgID string) *Tenant {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.tenants[orgID]; ok {
		return t
	}
	t := newTenant(orgID, r.store, r.dispatch, r.cfg)
	r.tenants[orgID] = t
	t.start()
	return t
}

// Shutdown stops every tenant's tick loop and waits for in-flight
// dispatches to drain, honoring ctx's deadline.
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.Lock()
	tenants := make([]*Tenant, 0, len(r.tenants))
	for _, t := range r.tenants {
		tenants = append(tenants, t)
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, t := range tenants {
		wg.Add(1)
		go func(t *Tenant) {
			defer wg.Done()
			t.stop(ctx)
		}(t)
	}
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("ticker registry shutdown timed out with tenants still draining")
	}
}
