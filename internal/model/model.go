// Copyright (C) 2026 ShieldCore Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package model holds the data types shared across the firewall core:
// application identity, persisted rules, environment readings, and the
// observable states owned by the orchestrator and boot protection manager.
package model

import "time"

// UID is the kernel-level numeric owner id shared by one or more packages.
// It is the enforcement key for every backend.
type UID int32

// AppID identifies one installed application by package name and profile.
// Multiple AppIDs may share a UID.
type AppID struct {
	PackageName string
	ProfileID   int
}

// InstalledApp is the OS-adapter's view of one installed, network-capable app.
type InstalledApp struct {
	AppID       AppID
	UID         UID
	Permissions []string
}

// FirewallRule is a persisted per-application rule, owned by the external
// rule store. The core never mutates it.
type FirewallRule struct {
	App                AppID
	Enabled            bool
	WifiBlocked        bool
	MobileBlocked      bool
	RoamingBlocked     bool
	BlockWhenScreenOff bool
	LastModified       time.Time
}

// NetworkType is the active default-route transport.
type NetworkType int

const (
	NetworkNone NetworkType = iota
	NetworkWifi
	NetworkMobile
	NetworkMobileRoaming
)

func (n NetworkType) String() string {
	switch n {
	case NetworkWifi:
		return "wifi"
	case NetworkMobile:
		return "mobile"
	case NetworkMobileRoaming:
		return "mobile_roaming"
	default:
		return "none"
	}
}

// ScreenState is the device screen power state.
type ScreenState int

const (
	ScreenOn ScreenState = iota
	ScreenOff
)

func (s ScreenState) String() string {
	if s == ScreenOff {
		return "off"
	}
	return "on"
}

// DefaultPolicy governs apps with no enabled rule for their UID.
type DefaultPolicy int

const (
	PolicyAllowAll DefaultPolicy = iota
	PolicyBlockAll
)

// FirewallMode is the user-selected backend preference.
type FirewallMode int

const (
	ModeAuto FirewallMode = iota
	ModeTunnel
	ModePacketFilter
	ModeConnMgr
	ModeNetPolicy
)

func (m FirewallMode) String() string {
	switch m {
	case ModeTunnel:
		return "tunnel"
	case ModePacketFilter:
		return "packet_filter"
	case ModeConnMgr:
		return "conn_mgr"
	case ModeNetPolicy:
		return "net_policy"
	default:
		return "auto"
	}
}

// BackendKind is the backend actually active, as opposed to the user's mode preference.
type BackendKind int

const (
	BackendTunnel BackendKind = iota
	BackendPacketFilter
	BackendConnMgr
	BackendNetPolicy
)

func (k BackendKind) String() string {
	switch k {
	case BackendTunnel:
		return "tunnel"
	case BackendPacketFilter:
		return "packet_filter"
	case BackendConnMgr:
		return "conn_mgr"
	case BackendNetPolicy:
		return "net_policy"
	default:
		return "unknown"
	}
}

// PrivilegeLevel is the capability set currently available to the core.
type PrivilegeLevel int

const (
	PrivilegeNone PrivilegeLevel = iota
	PrivilegeAssistiveAdbMode
	PrivilegeAssistiveRootMode
	PrivilegeRoot
)

func (p PrivilegeLevel) String() string {
	switch p {
	case PrivilegeAssistiveAdbMode:
		return "assistive_adb"
	case PrivilegeAssistiveRootMode:
		return "assistive_root"
	case PrivilegeRoot:
		return "root"
	default:
		return "none"
	}
}

// FirewallStateKind enumerates the observable states of the orchestrator.
type FirewallStateKind int

const (
	StateStopped FirewallStateKind = iota
	StateStarting
	StateRunning
	StateError
)

// FirewallState is the orchestrator's single observable state value.
type FirewallState struct {
	Kind    FirewallStateKind
	Backend BackendKind // meaningful for Starting/Running/Error
	Message string      // meaningful for Error
}

func (s FirewallState) String() string {
	switch s.Kind {
	case StateStarting:
		return "starting(" + s.Backend.String() + ")"
	case StateRunning:
		return "running(" + s.Backend.String() + ")"
	case StateError:
		return "error(" + s.Backend.String() + "): " + s.Message
	default:
		return "stopped"
	}
}

// Equal reports whether two FirewallState values are observably identical,
// the predicate used by the distinct-until-changed state stream.
func (s FirewallState) Equal(o FirewallState) bool {
	return s.Kind == o.Kind && s.Backend == o.Backend && s.Message == o.Message
}

// BlockedSet is an unordered set of UIDs: the canonical input to every backend.
type BlockedSet map[UID]struct{}

// NewBlockedSet builds a BlockedSet from a slice of UIDs.
func NewBlockedSet(uids ...UID) BlockedSet {
	s := make(BlockedSet, len(uids))
	for _, u := range uids {
		s[u] = struct{}{}
	}
	return s
}

// Has reports whether uid is a member.
func (s BlockedSet) Has(uid UID) bool {
	_, ok := s[uid]
	return ok
}

// Diff computes add := s \ prev and remove := prev \ s.
func (s BlockedSet) Diff(prev BlockedSet) (add, remove []UID) {
	for u := range s {
		if !prev.Has(u) {
			add = append(add, u)
		}
	}
	for u := range prev {
		if !s.Has(u) {
			remove = append(remove, u)
		}
	}
	return add, remove
}

// Equal reports whether two blocked sets contain the same UIDs.
func (s BlockedSet) Equal(o BlockedSet) bool {
	if len(s) != len(o) {
		return false
	}
	for u := range s {
		if !o.Has(u) {
			return false
		}
	}
	return true
}
