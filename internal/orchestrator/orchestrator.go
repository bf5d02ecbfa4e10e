// Copyright (C) 2026 ShieldCore Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package orchestrator implements the Backend Orchestrator (C8): the
// FirewallState state machine that selects, starts, and fails over
// between the four enforcement backends in response to privilege,
// environment, and rule-store changes.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"shieldcore.dev/fwcore/internal/backend"
	"shieldcore.dev/fwcore/internal/logging"
	"shieldcore.dev/fwcore/internal/metrics"
	"shieldcore.dev/fwcore/internal/model"
	"shieldcore.dev/fwcore/internal/resolver"
)

const (
	healthIntervalInitial = 30 * time.Second
	healthStableThreshold = 10
	healthIntervalStable  = 5 * time.Minute
	healthFailuresToTrip  = 2
)

// BootGuard is the seam over C9, invoked on start to release the
// boot-time block before handing off to the chosen backend.
type BootGuard interface {
	TeardownBootRules(ctx context.Context) error
}

// AlertSink receives a user-visible alert when every backend has failed.
type AlertSink interface {
	Alert(reason string)
}

// command is one entry in the orchestrator's single-threaded cooperative
// scheduler: every external trigger (start/stop/input change) is enqueued
// rather than processed inline, per spec.md §4.5's ordering guarantees.
type command func(ctx context.Context)

// Orchestrator drives the FirewallState machine.
type Orchestrator struct {
	backends  map[model.BackendKind]backend.Backend
	connMgrOS bool // whether this OS build supports ConnMgr at all
	bootGuard BootGuard
	alerts    AlertSink
	logger    *logging.Logger
	metrics   metrics.Recorder

	resolveMu sync.Mutex // serializes reapply's backend.Apply calls (one lock for all backends)

	mu           sync.Mutex
	state        model.FirewallState
	mode         model.FirewallMode
	privilege    model.PrivilegeLevel
	transport    model.NetworkType
	screen       model.ScreenState
	applied      model.BlockedSet
	resolverIn   resolver.Input
	listeners    []chan model.FirewallState
	healthCancel context.CancelFunc

	cmds   chan command
	cancel context.CancelFunc
}

// New builds an Orchestrator over the four backend implementations.
// connMgrOS reports whether the current OS build exposes the ConnMgr API
// at all (a static platform fact, not a runtime probe).
func New(backends map[model.BackendKind]backend.Backend, connMgrOS bool, bootGuard BootGuard, alerts AlertSink, logger *logging.Logger, recorder metrics.Recorder) *Orchestrator {
	if logger == nil {
		logger = logging.Default().WithComponent("orchestrator")
	}
	if alerts == nil {
		alerts = noopAlerts{}
	}
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	o := &Orchestrator{
		backends:  backends,
		connMgrOS: connMgrOS,
		bootGuard: bootGuard,
		alerts:    alerts,
		logger:    logger,
		metrics:   recorder,
		state:     model.FirewallState{Kind: model.StateStopped},
		applied:   model.NewBlockedSet(),
		cmds:      make(chan command, 64),
	}
	return o
}

type noopAlerts struct{}

func (noopAlerts) Alert(string) {}

// Run drives the command queue until ctx is cancelled. Must be started
// before any public method is used.
func (o *Orchestrator) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.cancel = cancel
	o.mu.Unlock()
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-o.cmds:
			cmd(ctx)
		}
	}
}

func (o *Orchestrator) enqueue(cmd command) {
	select {
	case o.cmds <- cmd:
	default:
		o.logger.Warn("orchestrator command queue full, dropping command")
	}
}

// State returns a snapshot of the current FirewallState.
func (o *Orchestrator) State() model.FirewallState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Subscribe registers a distinct-until-changed FirewallState listener.
func (o *Orchestrator) Subscribe(ctx context.Context) (<-chan model.FirewallState, func()) {
	ch := make(chan model.FirewallState, 1)
	o.mu.Lock()
	ch <- o.state
	o.listeners = append(o.listeners, ch)
	o.mu.Unlock()
	cancel := func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		for i, l := range o.listeners {
			if l == ch {
				o.listeners = append(o.listeners[:i], o.listeners[i+1:]...)
				break
			}
		}
	}
	return ch, cancel
}

func (o *Orchestrator) setState(s model.FirewallState) {
	o.mu.Lock()
	if s.Equal(o.state) {
		o.mu.Unlock()
		return
	}
	o.state = s
	listeners := append([]chan model.FirewallState(nil), o.listeners...)
	o.mu.Unlock()

	o.logger.Info("firewall state changed", "state", s.String())
	for _, ch := range listeners {
		select {
		case ch <- s:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- s
		}
	}
}

// Start is idempotent: a no-op if already Running for the chosen mode's
// backend. It enqueues the actual transition on the command queue.
func (o *Orchestrator) Start(ctx context.Context, mode model.FirewallMode) {
	o.mu.Lock()
	o.mode = mode
	o.mu.Unlock()
	o.metrics.SetOrchestratorMode(mode)
	o.enqueue(func(ctx context.Context) { o.doStart(ctx, mode) })
}

func (o *Orchestrator) doStart(ctx context.Context, mode model.FirewallMode) {
	chosen := o.selectBackend(mode)
	current := o.State()
	if current.Kind == model.StateRunning && current.Backend == chosen {
		return // already running the chosen backend
	}

	if o.bootGuard != nil {
		if err := o.bootGuard.TeardownBootRules(ctx); err != nil {
			o.logger.Warn("boot guard teardown failed, proceeding anyway", "error", err)
		}
	}

	o.setState(model.FirewallState{Kind: model.StateStarting, Backend: chosen})
	if !o.bringUp(ctx, chosen) {
		o.tryFallback(ctx, chosen)
	}
}

// bringUp starts the chosen backend and applies the first resolved
// BlockedSet. Returns false on failure, leaving state untouched for the
// caller to decide fallback.
func (o *Orchestrator) bringUp(ctx context.Context, kind model.BackendKind) bool {
	be, ok := o.backends[kind]
	if !ok {
		o.logger.Warn("backend not wired", "kind", kind.String())
		return false
	}
	if avail, err := be.CheckAvailability(ctx); err != nil || !avail.Available {
		o.logger.Warn("backend unavailable", "kind", kind.String(), "reason", avail.Reason)
		return false
	}
	if err := be.Start(ctx); err != nil {
		o.logger.Warn("backend start failed", "kind", kind.String(), "error", err)
		_ = be.Stop(ctx)
		return false
	}

	blocked := o.recomputeBlockedSet()
	start := time.Now()
	err := be.Apply(ctx, blocked)
	o.metrics.ObserveApply(kind, time.Since(start), err)
	if err != nil {
		o.logger.Warn("backend first apply failed", "kind", kind.String(), "error", err)
		_ = be.Stop(ctx)
		return false
	}

	o.mu.Lock()
	o.applied = blocked
	o.mu.Unlock()
	o.metrics.SetBlockedSetSize(len(blocked))

	o.setState(model.FirewallState{Kind: model.StateRunning, Backend: kind})
	o.metrics.SetBackendActive(kind, true)
	o.startHealthCheck(ctx, kind)
	return true
}

func (o *Orchestrator) tryFallback(ctx context.Context, failed model.BackendKind) {
	order := o.fallbackOrder(failed)
	for _, candidate := range order {
		if o.bringUp(ctx, candidate) {
			return
		}
	}
	o.setState(model.FirewallState{Kind: model.StateError, Backend: failed, Message: "all backends failed to start"})
	o.alerts.Alert("firewall could not be started on any backend")
}

// fallbackOrder lists the remaining candidates strictly less-preferred
// than failed, in Auto's try-order (spec.md §4.5).
func (o *Orchestrator) fallbackOrder(failed model.BackendKind) []model.BackendKind {
	full := []model.BackendKind{model.BackendConnMgr, model.BackendPacketFilter, model.BackendNetPolicy, model.BackendTunnel}
	var out []model.BackendKind
	started := false
	for _, k := range full {
		if started {
			out = append(out, k)
		}
		if k == failed {
			started = true
		}
	}
	return out
}

// selectBackend implements Auto's first-available-wins order; non-Auto
// modes are fixed (availability is checked at bring-up time).
func (o *Orchestrator) selectBackend(mode model.FirewallMode) model.BackendKind {
	o.mu.Lock()
	privilege := o.privilege
	o.mu.Unlock()

	switch mode {
	case model.ModeTunnel:
		return model.BackendTunnel
	case model.ModePacketFilter:
		return model.BackendPacketFilter
	case model.ModeConnMgr:
		return model.BackendConnMgr
	case model.ModeNetPolicy:
		return model.BackendNetPolicy
	default: // Auto
		if o.connMgrOS && (privilege == model.PrivilegeAssistiveAdbMode || privilege == model.PrivilegeAssistiveRootMode || privilege == model.PrivilegeRoot) {
			return model.BackendConnMgr
		}
		if privilege == model.PrivilegeAssistiveRootMode || privilege == model.PrivilegeRoot {
			return model.BackendPacketFilter
		}
		if privilege != model.PrivilegeNone {
			return model.BackendNetPolicy
		}
		return model.BackendTunnel
	}
}

// ComputeStartPlan reports what Start(mode) would choose, without side
// effects, for the control surface's compute_start_plan (C10).
func (o *Orchestrator) ComputeStartPlan(mode model.FirewallMode) backend.StartPlan {
	chosen := o.selectBackend(mode)
	return backend.StartPlan{
		Mode:      mode,
		Chosen:    chosen,
		Rationale: "selected by Auto preference order over current PrivilegeLevel",
		Fallbacks: o.fallbackOrder(chosen),
	}
}

// Stop tears down the active backend and transitions to Stopped,
// idempotently.
func (o *Orchestrator) Stop(ctx context.Context) {
	o.enqueue(func(ctx context.Context) { o.doStop(ctx) })
}

func (o *Orchestrator) doStop(ctx context.Context) {
	o.stopHealthCheck()
	current := o.State()
	if current.Kind == model.StateStopped {
		return
	}
	if be, ok := o.backends[current.Backend]; ok {
		if err := be.Stop(ctx); err != nil {
			o.logger.Warn("backend stop failed during orchestrator stop", "error", err)
		}
		o.metrics.SetBackendActive(current.Backend, false)
	}
	o.mu.Lock()
	o.applied = model.NewBlockedSet()
	o.mu.Unlock()
	o.metrics.SetBlockedSetSize(0)
	o.setState(model.FirewallState{Kind: model.StateStopped})
}

// OnInputChange is called whenever PrivilegeLevel, NetworkType,
// ScreenState, or the rule stream emits. It is enqueued, coalescing
// adjacent events is the caller's responsibility (latest-wins upstream).
func (o *Orchestrator) OnInputChange(ctx context.Context, in resolver.Input, privilege model.PrivilegeLevel, transport model.NetworkType, screen model.ScreenState) {
	o.mu.Lock()
	o.resolverIn = in
	prevPrivilege := o.privilege
	o.privilege = privilege
	o.transport = transport
	o.screen = screen
	mode := o.mode
	o.mu.Unlock()
	o.metrics.SetPrivilegeLevel(privilege)

	o.enqueue(func(ctx context.Context) {
		current := o.State()
		if current.Kind != model.StateRunning {
			return
		}

		if privilege != prevPrivilege {
			preferred := o.selectBackend(mode)
			if preferred != current.Backend && o.isStrictlyPreferable(preferred, current.Backend) {
				o.failoverTo(ctx, preferred, current.Backend)
				return
			}
		}

		o.reapply(ctx, current.Backend)
	})
}

// isStrictlyPreferable reports whether candidate sits earlier than
// current in Auto's preference order.
func (o *Orchestrator) isStrictlyPreferable(candidate, current model.BackendKind) bool {
	order := []model.BackendKind{model.BackendConnMgr, model.BackendPacketFilter, model.BackendNetPolicy, model.BackendTunnel}
	ci, cj := -1, -1
	for i, k := range order {
		if k == candidate {
			ci = i
		}
		if k == current {
			cj = i
		}
	}
	return ci >= 0 && cj >= 0 && ci < cj
}

// failoverTo starts the new backend first, then tears down the old one
// (new-before-old, spec.md §4.5). If the new backend fails to start, stays
// on the old one and logs.
func (o *Orchestrator) failoverTo(ctx context.Context, next, prev model.BackendKind) {
	o.setState(model.FirewallState{Kind: model.StateStarting, Backend: next})
	if !o.bringUp(ctx, next) {
		o.logger.Warn("failover start failed, remaining on previous backend", "next", next.String(), "prev", prev.String())
		o.setState(model.FirewallState{Kind: model.StateRunning, Backend: prev})
		return
	}
	if be, ok := o.backends[prev]; ok {
		if err := be.Stop(ctx); err != nil {
			o.logger.Warn("old backend stop failed after failover", "error", err)
		}
		o.metrics.SetBackendActive(prev, false)
	}
	o.metrics.IncFailover()
}

func (o *Orchestrator) reapply(ctx context.Context, kind model.BackendKind) {
	be, ok := o.backends[kind]
	if !ok {
		return
	}
	blocked := o.recomputeBlockedSet()

	o.mu.Lock()
	already := o.applied.Equal(blocked)
	o.mu.Unlock()
	if already {
		return
	}

	o.resolveMu.Lock()
	start := time.Now()
	err := be.Apply(ctx, blocked)
	o.resolveMu.Unlock()
	o.metrics.ObserveApply(kind, time.Since(start), err)
	if err != nil {
		o.logger.Warn("reapply failed", "kind", kind.String(), "error", err)
		return
	}
	o.mu.Lock()
	o.applied = blocked
	o.mu.Unlock()
	o.metrics.SetBlockedSetSize(len(blocked))
}

func (o *Orchestrator) recomputeBlockedSet() model.BlockedSet {
	o.mu.Lock()
	in := o.resolverIn
	o.mu.Unlock()
	return resolver.Resolve(in)
}

// startHealthCheck launches the adaptive health-check loop for privileged
// backends (C5/C6/C7); the Tunnel backend manages its own failure/backoff
// internally and is skipped here.
func (o *Orchestrator) startHealthCheck(ctx context.Context, kind model.BackendKind) {
	o.stopHealthCheck()
	if kind == model.BackendTunnel {
		return
	}
	hctx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.healthCancel = cancel
	o.mu.Unlock()
	go o.healthLoop(hctx, kind)
}

func (o *Orchestrator) stopHealthCheck() {
	o.mu.Lock()
	cancel := o.healthCancel
	o.healthCancel = nil
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (o *Orchestrator) healthLoop(ctx context.Context, kind model.BackendKind) {
	interval := healthIntervalInitial
	successes := 0
	failures := 0
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		be, ok := o.backends[kind]
		healthy := ok && be.IsActive()
		o.metrics.ObserveHealthCheck(kind, healthy)
		if healthy {
			successes++
			failures = 0
			if successes >= healthStableThreshold {
				interval = healthIntervalStable
			}
		} else {
			failures++
			successes = 0
			interval = healthIntervalInitial
			if failures >= healthFailuresToTrip {
				o.logger.Warn("health check tripped, attempting fallback", "kind", kind.String())
				o.enqueue(func(ctx context.Context) { o.tryFallback(ctx, kind) })
				return
			}
		}
		timer.Reset(interval)
	}
}
