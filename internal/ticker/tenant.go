package ticker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pulseward/pulseward/internal/config"
	"github.com/pulseward/pulseward/internal/store"
	"github.com/pulseward/pulseward/internal/validate"
)

// Tenant is one organization's durable-object-style scheduler state
// machine. All of its operations (Bootstrap, Poke, Status, the internal
// alarm-fired tick) run on the same goroutine, guarded by runCh, so the
// durable state is never mutated concurrently — the single-threaded
// cooperative model of spec.md §5.
type Tenant struct {
	orgID string
	store *store.Store
	disp  Dispatch
	cfg   config.Config

	runCh  chan func()
	alarm  *time.Timer
	doneCh chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
}

// StatusReport answers GET /internal/status.
type StatusReport struct {
	OrgID             string `json:"orgId"`
	HasConfig         bool   `json:"hasConfig"`
	TickIntervalMs    int64  `json:"tickIntervalMs"`
	BatchSize         int    `json:"batchSize"`
	LastTickTs        int64  `json:"lastTickTs"`
	ConsecutiveErrors int    `json:"consecutiveErrors"`
}

func newTenant(orgID string, st *store.Store, disp Dispatch, cfg config.Config) *Tenant {
	return &Tenant{
		orgID:  orgID,
		store:  st,
		disp:   disp,
		cfg:    cfg,
		runCh:  make(chan func(), 8),
		doneCh: make(chan struct{}),
	}
}

func (t *Tenant) start() {
	t.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		t.cancel = cancel
		t.alarm = time.NewTimer(time.Hour) // disarmed until Bootstrap/Poke arm it
		t.alarm.Stop()

		go t.loop(ctx)
	})
}

func (t *Tenant) stop(ctx context.Context) {
	t.stopOnce.Do(func() {
		if t.cancel != nil {
			t.cancel()
		}
	})
	select {
	case <-t.doneCh:
	case <-ctx.Done():
	}
}

// loop is the only goroutine that ever touches durable ticker_state for
// this tenant; every exported method funnels through runCh so the
// invariant "no two ticks run concurrently" holds without a mutex.
func (t *Tenant) loop(ctx context.Context) {
	defer close(t.doneCh)
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-t.runCh:
			fn()
		case <-t.alarm.C:
			t.tick(ctx)
		}
	}
}

func (t *Tenant) exec(ctx context.Context, fn func()) {
	done := make(chan struct{})
	wrapped := func() {
		fn()
		close(done)
	}
	select {
	case t.runCh <- wrapped:
	case <-ctx.Done():
		return
	}
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// Bootstrap creates or resets the tenant's durable scheduler config and
// arms the first tick immediately.
func (t *Tenant) Bootstrap(ctx context.Context, tickIntervalMs int64, batchSize int) error {
	if tickIntervalMs <= 0 {
		tickIntervalMs = t.cfg.TickIntervalDefault.Milliseconds()
	}
	if batchSize <= 0 {
		batchSize = t.cfg.BatchSizeDefault
	}

	var outErr error
	t.exec(ctx, func() {
		state := store.TickerState{
			OrgID:          t.orgID,
			HasConfig:      true,
			TickIntervalMs: tickIntervalMs,
			BatchSize:      batchSize,
		}
		if err := t.store.SaveTickerState(ctx, state); err != nil {
			outErr = err
			return
		}
		t.arm(minRearmInterval)
	})
	return outErr
}

// Poke nudges the tenant to tick as soon as possible, without waiting
// for the current alarm.
func (t *Tenant) Poke(ctx context.Context) {
	t.exec(ctx, func() { t.arm(minRearmInterval) })
}

// Status reports the tenant's durable state.
func (t *Tenant) Status(ctx context.Context) (StatusReport, error) {
	var report StatusReport
	var outErr error
	t.exec(ctx, func() {
		state, err := t.store.GetTickerState(ctx, t.orgID)
		if err != nil {
			outErr = err
			return
		}
		report = StatusReport{
			OrgID:             state.OrgID,
			HasConfig:         state.HasConfig,
			TickIntervalMs:    state.TickIntervalMs,
			BatchSize:         state.BatchSize,
			LastTickTs:        state.LastTickTs,
			ConsecutiveErrors: state.ConsecutiveErrors,
		}
	})
	return report, outErr
}

func (t *Tenant) arm(d time.Duration) {
	if d < minRearmInterval {
		d = minRearmInterval
	}
	if !t.alarm.Stop() {
		select {
		case <-t.alarm.C:
		default:
		}
	}
	t.alarm.Reset(d)
}

// tick runs the five-step algorithm of spec.md §4.1: load state, claim
// due monitors (skipping any currently in an active maintenance
// window), fan dispatches out with bounded concurrency, then re-arm.
// Durable state is loaded once at entry and saved once at exit.
func (t *Tenant) tick(ctx context.Context) {
	now := time.Now().UnixMilli()

	state, err := t.store.GetTickerState(ctx, t.orgID)
	if err != nil {
		slog.Warn("ticker: load state failed", "org", t.orgID, "err", err)
		t.arm(time.Duration(t.cfg.TickIntervalDefault))
		return
	}
	if !state.HasConfig {
		return // never bootstrapped; stay disarmed
	}

	claimed, claimErr := t.store.ClaimDueMonitors(ctx, t.orgID, now, state.TickIntervalMs, state.BatchSize)
	if claimErr != nil {
		state.ConsecutiveErrors++
		_ = t.store.SaveTickerState(ctx, state)
		t.arm(backoff(state.ConsecutiveErrors))
		slog.Warn("ticker: claim failed", "org", t.orgID, "err", claimErr)
		return
	}

	active, mwErr := t.activeMaintenanceWindows(ctx, now)
	if mwErr != nil {
		slog.Warn("ticker: maintenance window check failed", "org", t.orgID, "err", mwErr)
	}

	org, orgErr := t.store.GetOrganization(ctx, t.orgID)
	sampleRate := 1.0
	if orgErr == nil {
		sampleRate = org.AESampleRate
	}

	failed := t.dispatchBatch(ctx, claimed, active, state.BatchSize, sampleRate)
	if failed > 0 {
		state.ConsecutiveErrors++
		_ = t.store.SaveTickerState(ctx, state)
		t.arm(backoff(state.ConsecutiveErrors))
		slog.Warn("ticker: tick had dispatch failures", "org", t.orgID, "failed", failed)
		return
	}

	state.LastTickTs = now
	state.ConsecutiveErrors = 0
	if err := t.store.SaveTickerState(ctx, state); err != nil {
		slog.Warn("ticker: save state failed", "org", t.orgID, "err", err)
	}

	next := time.Duration(state.TickIntervalMs) * time.Millisecond
	if len(claimed) >= state.BatchSize {
		next = backlogAlarm
	}
	t.arm(next)
}

func (t *Tenant) activeMaintenanceWindows(ctx context.Context, nowMs int64) (map[string]bool, error) {
	windows, err := t.store.ListMaintenanceWindows(ctx, t.orgID)
	if err != nil {
		return nil, err
	}
	active := make(map[string]bool)
	now := time.UnixMilli(nowMs)
	for _, w := range windows {
		if inWindow(w, now) {
			active[w.ID] = true
		}
	}
	return active, nil
}

// dispatchBatch fans claimed monitors out to the Dispatcher with
// concurrency bounded by min(batch_size, 20), the same buffered-channel
// semaphore idiom as the teacher's scheduler.Service.sem. It returns the
// number of dispatches (including failed pending-row upserts) that did
// not complete successfully, so tick() can fail the tick per spec.md §7.
func (t *Tenant) dispatchBatch(ctx context.Context, claimed []store.Monitor, suppressedByWindow map[string]bool, batchSize int, sampleRate float64) int {
	maxConc := batchSize
	if maxConc > maxConcurrentCap || maxConc <= 0 {
		maxConc = maxConcurrentCap
	}
	sem := make(chan struct{}, maxConc)

	var wg sync.WaitGroup
	var mu sync.Mutex
	failed := 0

	for _, m := range claimed {
		if !m.Enabled {
			continue
		}
		if suppressed(m, suppressedByWindow) {
			continue
		}

		dispatchID := uuid.NewString()
		now := time.Now().UnixMilli()
		scheduledFor := now
		if m.NextRunAt.Valid {
			scheduledFor = m.NextRunAt.Int64
		}
		if err := t.store.UpsertPendingDispatch(ctx, m.ID, dispatchID, t.orgID, scheduledFor, now); err != nil {
			slog.Warn("ticker: upsert pending dispatch failed", "monitor", m.ID, "err", err)
			mu.Lock()
			failed++
			mu.Unlock()
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(m store.Monitor, dispatchID string) {
			defer wg.Done()
			defer func() { <-sem }()

			req := DispatchRequest{
				DispatchID: dispatchID,
				Monitor:    m,
				SampleRate: sampleRate,
				TimeoutMs:  t.cfg.HTTPTimeoutDefault.Milliseconds(),
			}
			if err := t.disp.Run(ctx, req); err != nil {
				slog.Warn("ticker: dispatch failed", "monitor", m.ID, "dispatch", dispatchID, "err", err)
				mu.Lock()
				failed++
				mu.Unlock()
			}
		}(m, dispatchID)
	}
	wg.Wait()
	return failed
}

// suppressed reports whether m is skipped this tick because of an active
// maintenance window. Windows are not scoped to a region or a monitor:
// any active window suppresses every monitor claimed this tick. It does
// not touch next_run_at, which the claim query has already advanced.
func suppressed(m store.Monitor, activeWindows map[string]bool) bool {
	return len(activeWindows) > 0
}

func inWindow(w store.MaintenanceWindow, now time.Time) bool {
	loc := time.UTC
	if err := validate.Timezone(w.Timezone); err != nil {
		slog.Warn("ticker: invalid maintenance window timezone, using UTC", "window", w.ID, "timezone", w.Timezone, "err", err)
	} else if w.Timezone != "" {
		loc, _ = time.LoadLocation(w.Timezone)
	}
	schedule, err := validate.ParseCron(w.CronExpr)
	if err != nil {
		slog.Warn("ticker: invalid maintenance window cron expression", "window", w.ID, "expr", w.CronExpr, "err", err)
		return false
	}
	local := now.In(loc)
	prev := schedule.Next(local.Add(-time.Duration(w.DurationMs) * time.Millisecond))
	return !prev.After(local) && local.Before(prev.Add(time.Duration(w.DurationMs)*time.Millisecond))
}

func backoff(consecutiveErrors int) time.Duration {
	d := minRearmInterval * time.Duration(1<<uint(min(consecutiveErrors, 6)))
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}
