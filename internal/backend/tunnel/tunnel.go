// Copyright (C) 2026 ShieldCore Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package tunnel implements the Tunnel backend (C4): a user-space tunnel
// interface that owns an inverted allow-list. Packages to be blocked are
// routed into the tunnel and their packets silently discarded; everything
// else bypasses the tunnel.
package tunnel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vishvananda/netlink"

	"shieldcore.dev/fwcore/internal/backend"
	fwerrors "shieldcore.dev/fwcore/internal/errors"
	"shieldcore.dev/fwcore/internal/logging"
	"shieldcore.dev/fwcore/internal/model"
)

const (
	debounceInterval = 300 * time.Millisecond
	backoffInitial   = 1 * time.Second
	backoffSteady    = 30 * time.Second
	alertThreshold   = 2
)

// backoffSchedule is the documented retry sequence for a failed tunnel
// establish: 1s, 2s, 5s, then 30s steady-state for every attempt after.
var backoffSchedule = []time.Duration{1 * time.Second, 2 * time.Second, 5 * time.Second, backoffSteady}

// InterfaceHandle is one established tunnel interface, the unit that gets
// swapped new-before-old on rebuild.
type InterfaceHandle struct {
	Link   netlink.Link
	Name   string
	Apps   map[model.UID]struct{}
}

// Establisher creates and tears down the tunnel-owned netlink interface.
// Abstracted so tests can avoid real netlink/TUN device creation.
type Establisher interface {
	// Establish brings up a tunnel interface carrying the given blocked
	// app set. A nil handle is treated as an establish failure, the same
	// as a non-nil error; the zero-block case never calls Establish.
	Establish(ctx context.Context, blocked model.BlockedSet) (*InterfaceHandle, error)
	// Close tears down a previously-established interface. Must tolerate
	// nil (a no-op) and an already-closed handle.
	Close(ctx context.Context, h *InterfaceHandle) error
	// AnotherProviderActive reports whether some other tunnel provider
	// currently owns the device's tunnel permission (used on revocation).
	AnotherProviderActive(ctx context.Context) bool
}

// AlertSink receives a user-visible alert when consecutive_failures crosses
// alertThreshold, and a clear once the tunnel recovers.
type AlertSink interface {
	Alert(reason string)
	ClearAlert()
}

// Backend implements backend.Backend for the Tunnel mechanism.
type Backend struct {
	establisher Establisher
	alerts      AlertSink
	logger      *logging.Logger

	mu                sync.Mutex
	active            bool
	handle            *InterfaceHandle
	lastBlocked       model.BlockedSet
	lastTransport     model.NetworkType
	lastScreen        model.ScreenState
	consecutiveFails  int
	debounceTimer     *time.Timer
	backoff           time.Duration
	revokedNoRestart  bool
}

// New builds a Tunnel backend. alerts may be nil to discard alerts.
func New(establisher Establisher, alerts AlertSink, logger *logging.Logger) *Backend {
	if logger == nil {
		logger = logging.Default().WithComponent("backend.tunnel")
	}
	if alerts == nil {
		alerts = noopAlerts{}
	}
	return &Backend{
		establisher: establisher,
		alerts:      alerts,
		logger:      logger,
		lastBlocked: model.NewBlockedSet(),
		backoff:     backoffInitial,
	}
}

func (b *Backend) Kind() model.BackendKind { return model.BackendTunnel }

// CheckAvailability is always Ok: the tunnel requires only the
// user-consented tunnel permission, which is out of the core's scope to
// verify (the OS gates interface creation itself).
func (b *Backend) CheckAvailability(ctx context.Context) (backend.Availability, error) {
	return backend.Availability{Available: true}, nil
}

// Start establishes the baseline tunnel. Per the zero-block optimization,
// Start with no blocked apps yet configured succeeds without creating an
// interface; the first Apply call decides whether one is actually needed.
func (b *Backend) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.active = true
	b.revokedNoRestart = false
	b.logger.Info("tunnel backend started")
	return nil
}

// Stop tears down any established interface and marks the backend
// inactive. Idempotent: calling Stop twice, or on a never-started backend,
// is a no-op the second time.
func (b *Backend) Stop(ctx context.Context) error {
	b.mu.Lock()
	h := b.handle
	b.handle = nil
	b.active = false
	if b.debounceTimer != nil {
		b.debounceTimer.Stop()
		b.debounceTimer = nil
	}
	b.mu.Unlock()

	if h == nil {
		return nil
	}
	if err := b.establisher.Close(ctx, h); err != nil {
		b.logger.Warn("tunnel close failed during stop", "error", err)
		return err
	}
	return nil
}

// Apply debounces 300ms then rebuilds the tunnel to match blocked. The
// actual rebuild happens in applyNow; Apply itself only arms the debounce
// timer, returning immediately per the orchestrator's non-blocking
// dispatch requirement.
func (b *Backend) Apply(ctx context.Context, blocked model.BlockedSet) error {
	b.mu.Lock()
	if b.debounceTimer != nil {
		b.debounceTimer.Stop()
	}
	pending := blocked
	b.debounceTimer = time.AfterFunc(debounceInterval, func() {
		b.applyNow(context.Background(), pending)
	})
	b.mu.Unlock()
	return nil
}

func (b *Backend) applyNow(ctx context.Context, blocked model.BlockedSet) {
	b.mu.Lock()
	old := b.handle
	b.mu.Unlock()

	if len(blocked) == 0 {
		// Zero-block optimization: no interface needed at all.
		if old != nil {
			_ = b.establisher.Close(ctx, old)
		}
		b.mu.Lock()
		b.handle = nil
		b.lastBlocked = blocked
		b.consecutiveFails = 0
		b.backoff = backoffInitial
		b.mu.Unlock()
		b.alerts.ClearAlert()
		return
	}

	next, err := b.establisher.Establish(ctx, blocked)
	if err != nil || next == nil {
		b.onEstablishFailure(ctx)
		return
	}

	// New-before-old: close the previous handle only after the new one
	// is up.
	if old != nil {
		_ = b.establisher.Close(ctx, old)
	}

	b.mu.Lock()
	b.handle = next
	b.lastBlocked = blocked
	b.consecutiveFails = 0
	b.backoff = backoffInitial
	b.mu.Unlock()
	b.alerts.ClearAlert()
}

func (b *Backend) onEstablishFailure(ctx context.Context) {
	b.mu.Lock()
	b.consecutiveFails++
	fails := b.consecutiveFails
	step := fails - 1
	if step >= len(backoffSchedule) {
		step = len(backoffSchedule) - 1
	}
	backoff := backoffSchedule[step]
	b.backoff = backoff
	b.mu.Unlock()

	b.logger.Warn("tunnel establish failed", "consecutive_failures", fails)
	if fails >= alertThreshold {
		b.alerts.Alert("tunnel backend repeatedly failed to establish")
	}

	time.AfterFunc(backoff, func() {
		b.mu.Lock()
		blocked := b.lastBlocked
		active := b.active
		b.mu.Unlock()
		if active {
			b.applyNow(ctx, blocked)
		}
	})
}

// IsActive reflects the external "interface-active" flag: true whenever
// Start has been called and Stop has not, regardless of whether an
// interface is actually installed (zero-block optimization keeps this true
// with a nil handle).
func (b *Backend) IsActive() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

func (b *Backend) SupportsGranularControl() bool { return true }

// HandleRevocation is called when the OS reports the tunnel permission was
// revoked. Per spec: if another provider is now active, treat it as an
// explicit stop (no auto-restart); otherwise remain eligible for automatic
// restart once conditions permit (e.g. airplane mode lifted).
func (b *Backend) HandleRevocation(ctx context.Context) {
	if b.establisher.AnotherProviderActive(ctx) {
		b.mu.Lock()
		b.revokedNoRestart = true
		b.mu.Unlock()
		_ = b.Stop(ctx)
		b.logger.Info("tunnel permission revoked to another provider; stopping")
		return
	}
	b.logger.Info("tunnel permission revoked, no other provider; eligible for auto-restart")
}

type noopAlerts struct{}

func (noopAlerts) Alert(string) {}
func (noopAlerts) ClearAlert()  {}

// NetlinkEstablisher is the production Establisher using
// vishvananda/netlink to create a TUN interface per rebuild.
type NetlinkEstablisher struct {
	NamePrefix string // e.g. "fwtun"
	seq        int
}

// Establish creates a new TUN link named <prefix><seq>, brings it up, and
// returns its handle. This type only owns link lifecycle: the handle
// exposes no file descriptor, no reader goroutine drains the link, and no
// route or rule steers the blocked UIDs' traffic into it.
func (e *NetlinkEstablisher) Establish(ctx context.Context, blocked model.BlockedSet) (*InterfaceHandle, error) {
	e.seq++
	name := fmt.Sprintf("%s%d", e.prefix(), e.seq)

	tuntap := &netlink.Tuntap{
		LinkAttrs: netlink.LinkAttrs{Name: name},
		Mode:      netlink.TUNTAP_MODE_TUN,
		Flags:     netlink.TUNTAP_DEFAULTS,
	}
	if err := netlink.LinkAdd(tuntap); err != nil {
		return nil, fwerrors.Wrap(err, fwerrors.KindUnavailable, "create tun interface")
	}
	if err := netlink.LinkSetUp(tuntap); err != nil {
		_ = netlink.LinkDel(tuntap)
		return nil, fwerrors.Wrap(err, fwerrors.KindUnavailable, "bring tun interface up")
	}

	apps := make(map[model.UID]struct{}, len(blocked))
	for uid := range blocked {
		apps[uid] = struct{}{}
	}
	return &InterfaceHandle{Link: tuntap, Name: name, Apps: apps}, nil
}

// Close brings the link down and deletes it, tolerating absence.
func (e *NetlinkEstablisher) Close(ctx context.Context, h *InterfaceHandle) error {
	if h == nil || h.Link == nil {
		return nil
	}
	if err := netlink.LinkDel(h.Link); err != nil {
		if _, err2 := netlink.LinkByName(h.Name); err2 != nil {
			return nil // already gone
		}
		return fwerrors.Wrap(err, fwerrors.KindInternal, "delete tun interface")
	}
	return nil
}

// AnotherProviderActive has no portable netlink signal for "another VPN
// app holds the tunnel permission" (that is an OS-level VPN-service
// registration, outside netlink's model); conservatively reports false so
// the backend stays eligible for auto-restart, the safer default per the
// revocation semantics in spec.md §4.4.a.
func (e *NetlinkEstablisher) AnotherProviderActive(ctx context.Context) bool {
	return false
}

func (e *NetlinkEstablisher) prefix() string {
	if e.NamePrefix == "" {
		return "fwtun"
	}
	return e.NamePrefix
}
