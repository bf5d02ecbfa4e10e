// Copyright (C) 2026 ShieldCore Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package resolver implements the pure computation that turns persisted
// rules plus the current environment into the set of UIDs whose outbound
// traffic must be dropped. Resolve is referentially transparent: the same
// inputs always produce the same BlockedSet, independent of call order.
package resolver

import (
	"shieldcore.dev/fwcore/internal/model"
	"shieldcore.dev/fwcore/internal/whitelist"
)

// Input bundles every argument Resolve needs. Rules not present, or present
// with Enabled=false, are treated as "no rule" and fall through to Policy.
type Input struct {
	Rules        map[model.AppID]model.FirewallRule
	Installed    []model.InstalledApp
	Transport    model.NetworkType
	Screen       model.ScreenState
	Policy       model.DefaultPolicy
	IsVPNProvider func(packageName string) bool
}

// RuleBlocks evaluates the per-rule predicate from the design spec's
// rule_blocks truth table:
//
//	screen=Off && block_when_screen_off      -> true
//	transport=None                           -> wifi_blocked || mobile_blocked
//	transport=Wifi                           -> wifi_blocked
//	transport=Mobile                         -> mobile_blocked
//	transport=MobileRoaming                  -> mobile_blocked || roaming_blocked
//
// The transport=None case is deliberately conservative: it is exercised
// during the boot window before any transport is up, and must not be
// generalized away (see DESIGN.md Open Question on boot-window semantics).
func RuleBlocks(r model.FirewallRule, transport model.NetworkType, screen model.ScreenState) bool {
	if screen == model.ScreenOff && r.BlockWhenScreenOff {
		return true
	}
	switch transport {
	case model.NetworkNone:
		return r.WifiBlocked || r.MobileBlocked
	case model.NetworkWifi:
		return r.WifiBlocked
	case model.NetworkMobile:
		return r.MobileBlocked
	case model.NetworkMobileRoaming:
		return r.MobileBlocked || r.RoamingBlocked
	default:
		return false
	}
}

// Resolve computes the BlockedSet for the given input. It never returns a
// UID belonging to an own-app, a system-critical package, or a VPN
// provider, regardless of rule content.
func Resolve(in Input) model.BlockedSet {
	blocked := make(model.BlockedSet)

	// Group enabled rules by UID; a UID is "any_block" if any package
	// sharing it would be blocked under the current transport/screen —
	// the conservative shared-UID policy from the design spec.
	rulesByUID := make(map[model.UID][]model.FirewallRule)
	for appID, rule := range in.Rules {
		if !rule.Enabled {
			continue
		}
		uid := uidForApp(in.Installed, appID)
		if uid == 0 && !appInstalled(in.Installed, appID) {
			continue // rule for an app not present in the installed snapshot
		}
		rulesByUID[uid] = append(rulesByUID[uid], rule)
	}

	anyBlock := make(map[model.UID]bool, len(rulesByUID))
	for uid, rules := range rulesByUID {
		for _, r := range rules {
			if RuleBlocks(r, in.Transport, in.Screen) {
				anyBlock[uid] = true
				break
			}
		}
	}

	hasRule := make(map[model.UID]bool, len(rulesByUID))
	for uid := range rulesByUID {
		hasRule[uid] = true
	}

	for _, app := range in.Installed {
		if whitelist.IsOwnApp(app.AppID.PackageName) || whitelist.IsSystemCritical(app.AppID.PackageName) {
			continue
		}
		if in.IsVPNProvider != nil && in.IsVPNProvider(app.AppID.PackageName) {
			continue
		}
		if hasRule[app.UID] {
			if anyBlock[app.UID] {
				blocked[app.UID] = struct{}{}
			}
			continue
		}
		if in.Policy == model.PolicyBlockAll {
			blocked[app.UID] = struct{}{}
		}
	}

	return blocked
}

func uidForApp(installed []model.InstalledApp, appID model.AppID) model.UID {
	for _, app := range installed {
		if app.AppID == appID {
			return app.UID
		}
	}
	return 0
}

func appInstalled(installed []model.InstalledApp, appID model.AppID) bool {
	for _, app := range installed {
		if app.AppID == appID {
			return true
		}
	}
	return false
}
