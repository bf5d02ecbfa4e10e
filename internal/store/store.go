// Copyright (C) 2026 ShieldCore Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package store declares the read-only contracts the firewall core consumes
// from collaborators that own their own state: the transactional rule store
// and the OS's installed-app lister. The core never implements either side;
// persistence, app enumeration, and permission discovery are out of scope
// per spec.md §1.
package store

import (
	"context"

	"shieldcore.dev/fwcore/internal/model"
)

// RuleStore is the reactive, read-only view of persisted rules the core
// consumes. Rules are mutated only by external UIs over the store's own
// transactional API.
type RuleStore interface {
	// Rules returns a stream of full rule snapshots; every mutation to the
	// underlying store produces a new emission.
	Rules(ctx context.Context) (<-chan []model.FirewallRule, error)

	// GetRule returns the rule for appID, if one exists.
	GetRule(ctx context.Context, appID model.AppID) (model.FirewallRule, bool, error)
}

// InstalledAppLister supplies the installed, network-capable app snapshot
// C3 needs. Implemented by the OS adapter (out of scope).
type InstalledAppLister interface {
	// InstalledApps returns every installed app that declares at least one
	// recognized network permission.
	InstalledApps(ctx context.Context) ([]model.InstalledApp, error)
}

// VPNProviderChecker decides whether a package is a VPN provider, per the
// is_vpn_provider runtime predicate in spec.md §4.3.
type VPNProviderChecker interface {
	IsVPNProvider(ctx context.Context, packageName string) bool
}
