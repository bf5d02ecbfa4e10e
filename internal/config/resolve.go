// Copyright (C) 2026 ShieldCore Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"fmt"

	"shieldcore.dev/fwcore/internal/model"
)

// ResolveMode parses the mode string into a model.FirewallMode, falling
// back to ModeAuto for an empty or unrecognized value. LoadFile already
// rejects an unrecognized mode through Validate, so the fallback only
// applies to a Config that did not come through LoadFile.
func (c Config) ResolveMode() model.FirewallMode {
	switch c.Mode {
	case "tunnel":
		return model.ModeTunnel
	case "packet_filter":
		return model.ModePacketFilter
	case "conn_mgr":
		return model.ModeConnMgr
	case "net_policy":
		return model.ModeNetPolicy
	default:
		return model.ModeAuto
	}
}

// ResolveDefaultPolicy parses default_policy, defaulting to PolicyAllowAll.
func (c Config) ResolveDefaultPolicy() model.DefaultPolicy {
	if c.DefaultPolicy == "deny_all" {
		return model.PolicyBlockAll
	}
	return model.PolicyAllowAll
}

// Validate reports a descriptive error for a field value that parses but
// isn't one of the documented choices, so a bad config file fails loudly
// at startup rather than silently falling back to a default.
func (c Config) Validate() error {
	switch c.Mode {
	case "", "auto", "tunnel", "packet_filter", "conn_mgr", "net_policy":
	default:
		return fmt.Errorf("config: mode %q is not one of auto, tunnel, packet_filter, conn_mgr, net_policy", c.Mode)
	}
	switch c.DefaultPolicy {
	case "", "allow_all", "deny_all":
	default:
		return fmt.Errorf("config: default_policy %q is not one of allow_all, deny_all", c.DefaultPolicy)
	}
	return nil
}
