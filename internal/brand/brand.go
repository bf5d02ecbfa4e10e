// Copyright (C) 2026 ShieldCore Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package brand centralizes the handful of name-derived constants the rest
// of the core reads: default paths, environment variable prefix, the
// control socket name.
package brand

// ConfigEnvPrefix is prepended to every path-override environment
// variable (e.g. SHIELDCORE_STATE_DIR).
const ConfigEnvPrefix = "SHIELDCORE"

// LowerName is the lowercase brand token used in generated filenames.
const LowerName = "fwcore"

// SocketName is the control socket's file name, without the brand prefix.
const SocketName = "ctl.sock"

// Info holds the default filesystem locations for one build.
type Info struct {
	DefaultConfigDir    string
	DefaultStateDir     string
	DefaultLogDir       string
	DefaultCacheDir     string
	DefaultRunDir       string
	DefaultShareDir     string
	DefaultBootScriptDir string
}

var current = Info{
	DefaultConfigDir:     "/data/adb/shieldcore/config",
	DefaultStateDir:      "/data/adb/shieldcore/state",
	DefaultLogDir:        "/data/adb/shieldcore/log",
	DefaultCacheDir:      "/data/adb/shieldcore/cache",
	DefaultRunDir:        "/data/adb/shieldcore/run",
	DefaultShareDir:      "/data/adb/shieldcore/share",
	DefaultBootScriptDir: "/data/adb/service.d",
}

// Get returns the active brand info. A single build-time value today;
// kept as a function (rather than exported vars) so a future multi-brand
// build can swap it in an init().
func Get() Info { return current }
