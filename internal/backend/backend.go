// Copyright (C) 2026 ShieldCore Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package backend defines the common contract the four enforcement
// backends (C4 Tunnel, C5 PacketFilter, C6 ConnMgr, C7 NetPolicy) implement,
// and the types the orchestrator (C8) uses to drive them.
package backend

import (
	"context"

	"shieldcore.dev/fwcore/internal/model"
)

// Backend is the enforcement surface the orchestrator drives. Every method
// takes a context so a stuck privileged call (su, daemon RPC, netlink) can
// be bounded by the caller rather than hanging the state machine.
type Backend interface {
	// Kind identifies which of the four enforcement mechanisms this is.
	Kind() model.BackendKind

	// CheckAvailability reports whether this backend can run on the
	// current device (kernel features, privilege level, required
	// binaries/tools present) without making any persistent change.
	CheckAvailability(ctx context.Context) (Availability, error)

	// Start brings the backend up: creates whatever persistent kernel
	// object it owns (PacketFilter's nftables chains; Tunnel, ConnMgr and
	// NetPolicy create nothing at Start) but applies no blocking rules
	// yet — the first Apply call after Start does that.
	Start(ctx context.Context) error

	// Stop tears down everything Start created, leaving the device in
	// its pre-Start state. Stop must be safe to call on a backend that
	// never started, or that partially started and failed.
	Stop(ctx context.Context) error

	// Apply pushes a new blocked-UID set, diffing against whatever is
	// currently enforced so only the incremental change is made
	// (PacketFilter, ConnMgr, NetPolicy); Tunnel instead rebuilds its
	// interface for the whole app set.
	Apply(ctx context.Context, blocked model.BlockedSet) error

	// IsActive reports whether the backend is currently up and enforcing
	// (i.e. Start succeeded and Stop has not been called since).
	IsActive() bool

	// SupportsGranularControl reports whether this backend can express
	// per-app WiFi/Mobile/Roaming/ScreenOff distinctions, or only a single
	// blocked/not-blocked bit per UID (NetPolicy always answers false;
	// ConnMgr answers whatever its RestrictionAPI's SupportsTransportAware
	// reports).
	SupportsGranularControl() bool
}

// Availability is the result of a CheckAvailability probe.
type Availability struct {
	Available bool
	Reason    string // human-readable reason when Available is false
}

// StartPlan is the output of choosing which backend to start for a given
// FirewallMode, used by both the orchestrator and the control surface's
// compute_start_plan (C10).
type StartPlan struct {
	Mode      model.FirewallMode
	Chosen    model.BackendKind
	Rationale string
	Fallbacks []model.BackendKind // remaining candidates, in try-order
}
