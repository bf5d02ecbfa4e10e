// Copyright (C) 2026 ShieldCore Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package connmgr implements the ConnMgr backend (C6): a modern-OS-only
// high-level per-UID network-restriction API, called through the assistive
// daemon's system-service binder rather than raw kernel rule manipulation.
package connmgr

import (
	"context"
	"fmt"
	"sync"

	"shieldcore.dev/fwcore/internal/backend"
	fwerrors "shieldcore.dev/fwcore/internal/errors"
	"shieldcore.dev/fwcore/internal/logging"
	"shieldcore.dev/fwcore/internal/model"
)

// RestrictionAPI is the seam over the assistive daemon's high-level
// "set restricted" binder call. One bool per UID; the real system service
// does not expose a transport-conditional variant on most OS builds, which
// is why SupportsGranularControl defaults to false.
type RestrictionAPI interface {
	// Supported reports whether the connected OS build exposes the
	// connmgr restriction API at all.
	Supported(ctx context.Context) bool
	// SetRestricted toggles the per-UID boolean restriction.
	SetRestricted(ctx context.Context, uid model.UID, restricted bool) error
	// SupportsTransportAware reports whether this OS build's API honors
	// a transport-dependent restriction rather than a single global bool.
	SupportsTransportAware(ctx context.Context) bool
}

// Backend implements backend.Backend for the ConnMgr mechanism.
type Backend struct {
	api    RestrictionAPI
	logger *logging.Logger

	mu        sync.Mutex
	active    bool
	installed map[model.UID]struct{}
}

// New builds a ConnMgr backend over api.
func New(api RestrictionAPI, logger *logging.Logger) *Backend {
	if logger == nil {
		logger = logging.Default().WithComponent("backend.connmgr")
	}
	return &Backend{api: api, logger: logger, installed: map[model.UID]struct{}{}}
}

func (b *Backend) Kind() model.BackendKind { return model.BackendConnMgr }

// CheckAvailability reports availability based on whether the OS build
// exposes the connmgr API (it does not exist pre-modern-OS).
func (b *Backend) CheckAvailability(ctx context.Context) (backend.Availability, error) {
	if !b.api.Supported(ctx) {
		return backend.Availability{Available: false, Reason: "connmgr restriction API unavailable on this OS build"}, nil
	}
	return backend.Availability{Available: true}, nil
}

// Start has no baseline structure to install beyond confirming the API is
// reachable; the binder channel itself is owned by the privilege probe.
func (b *Backend) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.api.Supported(ctx) {
		return fwerrors.New(fwerrors.KindUnavailable, "connmgr restriction API unavailable")
	}
	b.active = true
	b.logger.Info("connmgr backend started")
	return nil
}

// Apply diffs against the installed UID set and issues one SetRestricted
// call per changed UID: true for newly-added, false for newly-removed.
func (b *Backend) Apply(ctx context.Context, blocked model.BlockedSet) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.active {
		return fwerrors.New(fwerrors.KindInternal, "apply called before start")
	}

	current := make(model.BlockedSet, len(b.installed))
	for uid := range b.installed {
		current[uid] = struct{}{}
	}
	add, remove := blocked.Diff(current)

	var firstErr error
	for _, uid := range add {
		if err := b.api.SetRestricted(ctx, uid, true); err != nil {
			b.logger.Warn("connmgr: set restricted failed", "uid", uid, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("uid %d: %w", uid, err)
			}
			continue
		}
		b.installed[uid] = struct{}{}
	}
	for _, uid := range remove {
		if err := b.api.SetRestricted(ctx, uid, false); err != nil {
			b.logger.Warn("connmgr: clear restricted failed", "uid", uid, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("uid %d: %w", uid, err)
			}
			continue
		}
		delete(b.installed, uid)
	}
	return firstErr
}

// Stop clears every currently-restricted UID, best-effort, then marks the
// backend inactive.
func (b *Backend) Stop(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.active {
		return nil
	}
	for uid := range b.installed {
		if err := b.api.SetRestricted(ctx, uid, false); err != nil {
			b.logger.Warn("connmgr: stop clear failed", "uid", uid, "error", err)
		}
	}
	b.installed = map[model.UID]struct{}{}
	b.active = false
	return nil
}

func (b *Backend) IsActive() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

// SupportsGranularControl reports true only if the underlying OS API
// honors transport-dependent restriction calls; most builds answer false,
// expressing only a global per-UID block per spec.md §4.4.c.
func (b *Backend) SupportsGranularControl() bool {
	return b.api.SupportsTransportAware(context.Background())
}
