// Copyright (C) 2026 ShieldCore Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package netpolicy implements the NetPolicy backend (C7): a legacy
// per-UID "metered background restriction" policy tool, invoked through
// the privilege executor rather than a library binding (no such OS
// version ships a Go-callable API; the tool is a command-line utility).
package netpolicy

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"shieldcore.dev/fwcore/internal/backend"
	fwerrors "shieldcore.dev/fwcore/internal/errors"
	"shieldcore.dev/fwcore/internal/logging"
	"shieldcore.dev/fwcore/internal/model"
)

// Executor runs a single privileged command line and returns its exit
// status, matching the privilege probe's ExecutePrivileged contract
// (5s timeout, combined stdout+stderr, owned by the caller).
type Executor interface {
	ExecutePrivileged(ctx context.Context, command string) (exitCode int, combinedOutput string)
}

const policyTool = "cmd netpolicy"

// Backend implements backend.Backend for the NetPolicy mechanism.
type Backend struct {
	exec   Executor
	logger *logging.Logger

	mu        sync.Mutex
	active    bool
	installed map[model.UID]struct{}
}

// New builds a NetPolicy backend driving commands through exec.
func New(exec Executor, logger *logging.Logger) *Backend {
	if logger == nil {
		logger = logging.Default().WithComponent("backend.netpolicy")
	}
	return &Backend{exec: exec, logger: logger, installed: map[model.UID]struct{}{}}
}

func (b *Backend) Kind() model.BackendKind { return model.BackendNetPolicy }

// CheckAvailability probes the policy tool with a harmless list command.
func (b *Backend) CheckAvailability(ctx context.Context) (backend.Availability, error) {
	code, _ := b.exec.ExecutePrivileged(ctx, policyTool+" list")
	if code != 0 {
		return backend.Availability{Available: false, Reason: "netpolicy tool unavailable or not privileged"}, nil
	}
	return backend.Availability{Available: true}, nil
}

// Start has no persistent baseline to install; the legacy tool operates
// directly on the live per-UID policy table.
func (b *Backend) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.active = true
	b.logger.Info("netpolicy backend started")
	return nil
}

// Apply diffs against the installed set, adding/removing the metered
// background restriction per changed UID.
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
		if err := b.setRestricted(ctx, uid, true); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		b.installed[uid] = struct{}{}
	}
	for _, uid := range remove {
		if err := b.setRestricted(ctx, uid, false); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		delete(b.installed, uid)
	}
	return firstErr
}

func (b *Backend) setRestricted(ctx context.Context, uid model.UID, restricted bool) error {
	action := "remove-restrict-background"
	if restricted {
		action = "add-restrict-background"
	}
	cmd := fmt.Sprintf("%s %s %d", policyTool, action, uid)
	code, out := b.exec.ExecutePrivileged(ctx, cmd)
	if code != 0 && !strings.Contains(out, "already") {
		return fwerrors.Errorf(fwerrors.KindInternal, "netpolicy %s uid=%d: exit=%d output=%q", action, uid, code, out)
	}
	return nil
}

// Stop clears every installed restriction, best-effort, then marks the
// backend inactive.
func (b *Backend) Stop(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.active {
		return nil
	}
	for uid := range b.installed {
		if err := b.setRestricted(ctx, uid, false); err != nil {
			b.logger.Warn("netpolicy stop: clear failed", "uid", uid, "error", err)
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

// SupportsGranularControl is false: the legacy policy tool expresses only
// a global per-UID metered-background restriction, with no transport
// distinction, per spec.md §4.4.d.
func (b *Backend) SupportsGranularControl() bool { return false }
