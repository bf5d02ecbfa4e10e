// Copyright (C) 2026 ShieldCore Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shieldcore.dev/fwcore/internal/model"
)

// TestRuleBlocksExhaustive covers the full Cartesian product of
// (wifi_blocked, mobile_blocked, roaming_blocked, block_when_screen_off) x
// NetworkType x ScreenState against the truth table in the design spec.
func TestRuleBlocksExhaustive(t *testing.T) {
	transports := []model.NetworkType{
		model.NetworkNone, model.NetworkWifi, model.NetworkMobile, model.NetworkMobileRoaming,
	}
	screens := []model.ScreenState{model.ScreenOn, model.ScreenOff}

	for _, wifi := range []bool{false, true} {
		for _, mobile := range []bool{false, true} {
			for _, roaming := range []bool{false, true} {
				for _, screenOff := range []bool{false, true} {
					rule := model.FirewallRule{
						Enabled:            true,
						WifiBlocked:        wifi,
						MobileBlocked:      mobile,
						RoamingBlocked:     roaming,
						BlockWhenScreenOff: screenOff,
					}
					for _, transport := range transports {
						for _, screen := range screens {
							want := expected(rule, transport, screen)
							got := RuleBlocks(rule, transport, screen)
							if got != want {
								t.Errorf("RuleBlocks(%+v, %v, %v) = %v, want %v",
									rule, transport, screen, got, want)
							}
						}
					}
				}
			}
		}
	}
}

func expected(r model.FirewallRule, transport model.NetworkType, screen model.ScreenState) bool {
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
	}
	return false
}

func appX() model.AppID { return model.AppID{PackageName: "com.x"} }
func appY() model.AppID { return model.AppID{PackageName: "com.y"} }

// S1: Allow-all default, one explicit Wi-Fi block.
func TestScenarioS1(t *testing.T) {
	in := Input{
		Rules: map[model.AppID]model.FirewallRule{
			appX(): {App: appX(), Enabled: true, WifiBlocked: true},
		},
		Installed: []model.InstalledApp{
			{AppID: appX(), UID: 10123},
			{AppID: appY(), UID: 10124},
		},
		Transport: model.NetworkWifi,
		Screen:    model.ScreenOn,
		Policy:    model.PolicyAllowAll,
	}
	got := Resolve(in)
	require.True(t, got.Has(10123))
	assert.False(t, got.Has(10124))
	assert.Len(t, got, 1)
}

// S2: Same rules, transport switches to Mobile -> no block.
func TestScenarioS2(t *testing.T) {
	in := Input{
		Rules: map[model.AppID]model.FirewallRule{
			appX(): {App: appX(), Enabled: true, WifiBlocked: true},
		},
		Installed: []model.InstalledApp{
			{AppID: appX(), UID: 10123},
			{AppID: appY(), UID: 10124},
		},
		Transport: model.NetworkMobile,
		Screen:    model.ScreenOn,
		Policy:    model.PolicyAllowAll,
	}
	got := Resolve(in)
	assert.Empty(t, got)
}

// S3: Block-all default, no rules, own app installed -> own app never blocked.
func TestScenarioS3(t *testing.T) {
	own := model.AppID{PackageName: "dev.shieldcore.app"}
	in := Input{
		Rules: map[model.AppID]model.FirewallRule{},
		Installed: []model.InstalledApp{
			{AppID: own, UID: 10050},
			{AppID: appY(), UID: 10124},
		},
		Transport: model.NetworkWifi,
		Screen:    model.ScreenOn,
		Policy:    model.PolicyBlockAll,
	}
	got := Resolve(in)
	assert.False(t, got.Has(10050))
	require.True(t, got.Has(10124))
	assert.Len(t, got, 1)
}

// S4: Screen-off override.
func TestScenarioS4(t *testing.T) {
	app := model.AppID{PackageName: "com.z"}
	in := Input{
		Rules: map[model.AppID]model.FirewallRule{
			app: {App: app, Enabled: true, BlockWhenScreenOff: true},
		},
		Installed: []model.InstalledApp{{AppID: app, UID: 10200}},
		Transport: model.NetworkWifi,
		Screen:    model.ScreenOff,
		Policy:    model.PolicyAllowAll,
	}
	got := Resolve(in)
	require.True(t, got.Has(10200))
}

// S5: Shared-UID conservatism — one package blocks on mobile, the other doesn't.
func TestScenarioS5SharedUIDConservatism(t *testing.T) {
	a := model.AppID{PackageName: "com.shared.a"}
	b := model.AppID{PackageName: "com.shared.b"}
	in := Input{
		Rules: map[model.AppID]model.FirewallRule{
			a: {App: a, Enabled: true, MobileBlocked: true},
			b: {App: b, Enabled: true, MobileBlocked: false},
		},
		Installed: []model.InstalledApp{
			{AppID: a, UID: 10300},
			{AppID: b, UID: 10300},
		},
		Transport: model.NetworkMobile,
		Screen:    model.ScreenOn,
		Policy:    model.PolicyAllowAll,
	}
	got := Resolve(in)
	require.True(t, got.Has(10300))
}

func TestResolveNeverBlocksVPNProvider(t *testing.T) {
	vpn := model.AppID{PackageName: "com.vpn.provider"}
	in := Input{
		Rules:     map[model.AppID]model.FirewallRule{},
		Installed: []model.InstalledApp{{AppID: vpn, UID: 10500}},
		Transport: model.NetworkWifi,
		Screen:    model.ScreenOn,
		Policy:    model.PolicyBlockAll,
		IsVPNProvider: func(pkg string) bool {
			return pkg == "com.vpn.provider"
		},
	}
	got := Resolve(in)
	assert.False(t, got.Has(10500))
}

func TestResolveDisabledRuleFallsThroughToPolicy(t *testing.T) {
	app := model.AppID{PackageName: "com.disabled"}
	in := Input{
		Rules: map[model.AppID]model.FirewallRule{
			app: {App: app, Enabled: false, WifiBlocked: true},
		},
		Installed: []model.InstalledApp{{AppID: app, UID: 10600}},
		Transport:  model.NetworkWifi,
		Screen:     model.ScreenOn,
		Policy:     model.PolicyBlockAll,
	}
	got := Resolve(in)
	require.True(t, got.Has(10600), "disabled rule must fall through to BlockAll policy")
}

// Purity: same inputs, independent of call order, always yield the same result.
func TestResolveIsPure(t *testing.T) {
	in := Input{
		Rules: map[model.AppID]model.FirewallRule{
			appX(): {App: appX(), Enabled: true, WifiBlocked: true},
		},
		Installed: []model.InstalledApp{
			{AppID: appX(), UID: 10123},
			{AppID: appY(), UID: 10124},
		},
		Transport: model.NetworkWifi,
		Screen:    model.ScreenOn,
		Policy:    model.PolicyAllowAll,
	}
	first := Resolve(in)
	for i := 0; i < 5; i++ {
		got := Resolve(in)
		assert.True(t, got.Equal(first))
	}
}
