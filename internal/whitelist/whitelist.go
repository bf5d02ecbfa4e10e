// Copyright (C) 2026 ShieldCore Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package whitelist holds the package-name sets baked into the core: the
// tool's own apps, system-critical infrastructure, and the
// recommended-allow set used only when the external rule manager seeds
// first-run rules. Nothing here ever overrides a user's explicit rule.
// The compiled-in sets are fixed; RegisterExtraNeverEnforce lets the
// operator's config (internal/config's whitelist block) extend the
// system-critical set at startup, additively only.
package whitelist

import "sync"

// OwnAppIDs are the two package names belonging to the tool itself. Their
// UIDs are never enforced against.
var OwnAppIDs = map[string]struct{}{
	"dev.shieldcore.app":    {},
	"dev.shieldcore.helper": {},
}

// SystemCritical are packages providing critical network infrastructure or
// system UI; never enforced against regardless of rule state.
var SystemCritical = map[string]struct{}{
	"android.system.resolver":    {}, // DNS resolver
	"com.android.networkstack":  {},
	"com.android.systemui":      {},
	"com.android.settings":      {},
	"com.android.providers.downloads": {},
	"com.google.android.gms.supervision": {},
}

// SystemRecommendedAllow are packages recommended to ship with no block rule
// when an external rule manager seeds first-run rules (Wi-Fi, Bluetooth,
// download manager, NFC). Seeding-time guidance only; never consulted by the
// resolver itself.
var SystemRecommendedAllow = map[string]struct{}{
	"com.android.bluetooth":           {},
	"com.android.nfc":                 {},
	"com.android.providers.downloads": {},
	"com.android.wifi":                {},
}

// VPNServiceBindPermission is the OS permission a service must declare to be
// bound as a VPN provider.
const VPNServiceBindPermission = "android.permission.BIND_VPN_SERVICE"

// AppPermissionInfo is the minimal view of an app's declared services needed
// to decide whether it is a VPN provider. Supplied by the OS adapter.
type AppPermissionInfo struct {
	PackageName       string
	DeclaredServices  []ServiceInfo
}

// ServiceInfo is one declared <service> entry for an app.
type ServiceInfo struct {
	Permission string
}

// IsVPNProvider reports whether any of the app's declared services requires
// the VPN-service bind permission. Per spec, a VPN provider is never
// enforced against and a rule is always seeded all-allow for it.
func IsVPNProvider(info AppPermissionInfo) bool {
	for _, svc := range info.DeclaredServices {
		if svc.Permission == VPNServiceBindPermission {
			return true
		}
	}
	return false
}

// IsOwnApp reports whether packageName belongs to the tool itself.
func IsOwnApp(packageName string) bool {
	_, ok := OwnAppIDs[packageName]
	return ok
}

var (
	extraMu    sync.RWMutex
	extraNever = map[string]struct{}{}
)

// RegisterExtraNeverEnforce adds operator-configured package names to the
// never-enforce set, on top of the compiled-in SystemCritical list. Called
// once at startup from the daemon's loaded config; safe to call again on
// config reload, which replaces the prior extension set entirely.
func RegisterExtraNeverEnforce(packageNames []string) {
	extraMu.Lock()
	defer extraMu.Unlock()
	extraNever = make(map[string]struct{}, len(packageNames))
	for _, name := range packageNames {
		extraNever[name] = struct{}{}
	}
}

// IsSystemCritical reports whether packageName is system-critical
// infrastructure: either compiled-in or operator-registered.
func IsSystemCritical(packageName string) bool {
	if _, ok := SystemCritical[packageName]; ok {
		return true
	}
	extraMu.RLock()
	defer extraMu.RUnlock()
	_, ok := extraNever[packageName]
	return ok
}
