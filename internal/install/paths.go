// Copyright (C) 2026 ShieldCore Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package install

import (
	"os"
	"path/filepath"

	"shieldcore.dev/fwcore/internal/brand"
)

// Exported variables for backward compatibility and convenience
var (
	DefaultConfigDir     string
	DefaultStateDir      string
	DefaultLogDir        string
	DefaultCacheDir      string
	DefaultRunDir        string
	DefaultShareDir      string
	DefaultBootScriptDir string

	// Build-time path overrides (set via -ldflags), letting distributions
	// override the brand's compiled-in defaults back to /etc, /var, etc.
	BuildDefaultConfigDir     = ""
	BuildDefaultStateDir      = ""
	BuildDefaultLogDir        = ""
	BuildDefaultCacheDir      = ""
	BuildDefaultRunDir        = ""
	BuildDefaultShareDir      = ""
	BuildDefaultBootScriptDir = ""
)

func init() {
	b := brand.Get()

	// Apply build-time overrides if set, otherwise use the brand defaults
	if BuildDefaultConfigDir != "" {
		DefaultConfigDir = BuildDefaultConfigDir
	} else {
		DefaultConfigDir = b.DefaultConfigDir
	}

	if BuildDefaultStateDir != "" {
		DefaultStateDir = BuildDefaultStateDir
	} else {
		DefaultStateDir = b.DefaultStateDir
	}

	if BuildDefaultLogDir != "" {
		DefaultLogDir = BuildDefaultLogDir
	} else {
		DefaultLogDir = b.DefaultLogDir
	}

	if BuildDefaultCacheDir != "" {
		DefaultCacheDir = BuildDefaultCacheDir
	} else {
		DefaultCacheDir = b.DefaultCacheDir
	}

	if BuildDefaultRunDir != "" {
		DefaultRunDir = BuildDefaultRunDir
	} else {
		DefaultRunDir = b.DefaultRunDir
	}

	if BuildDefaultShareDir != "" {
		DefaultShareDir = BuildDefaultShareDir
	} else {
		DefaultShareDir = b.DefaultShareDir
	}

	if BuildDefaultBootScriptDir != "" {
		DefaultBootScriptDir = BuildDefaultBootScriptDir
	} else {
		DefaultBootScriptDir = b.DefaultBootScriptDir
	}
}

// GetStateDir returns the state directory, checking env vars first.
// Priority: SHIELDCORE_STATE_DIR > SHIELDCORE_PREFIX/state > DefaultStateDir
func GetStateDir() string {
	if dir := os.Getenv(brand.ConfigEnvPrefix + "_STATE_DIR"); dir != "" {
		return dir
	}
	if prefix := os.Getenv(brand.ConfigEnvPrefix + "_PREFIX"); prefix != "" {
		return filepath.Join(prefix, "state")
	}
	return DefaultStateDir
}

// GetLogDir returns the log directory, checking env vars first.
// Priority: SHIELDCORE_LOG_DIR > SHIELDCORE_PREFIX/log > DefaultLogDir
func GetLogDir() string {
	if dir := os.Getenv(brand.ConfigEnvPrefix + "_LOG_DIR"); dir != "" {
		return dir
	}
	if prefix := os.Getenv(brand.ConfigEnvPrefix + "_PREFIX"); prefix != "" {
		return filepath.Join(prefix, "log")
	}
	return DefaultLogDir
}

// GetConfigDir returns the config directory, checking env vars first.
// Priority: SHIELDCORE_CONFIG_DIR > SHIELDCORE_PREFIX/config > DefaultConfigDir
func GetConfigDir() string {
	if dir := os.Getenv(brand.ConfigEnvPrefix + "_CONFIG_DIR"); dir != "" {
		return dir
	}
	if prefix := os.Getenv(brand.ConfigEnvPrefix + "_PREFIX"); prefix != "" {
		return filepath.Join(prefix, "config")
	}
	return DefaultConfigDir
}

// GetCacheDir returns the cache directory, checking env vars first.
// Priority: SHIELDCORE_CACHE_DIR > SHIELDCORE_PREFIX/cache > DefaultCacheDir
func GetCacheDir() string {
	if dir := os.Getenv(brand.ConfigEnvPrefix + "_CACHE_DIR"); dir != "" {
		return dir
	}
	if prefix := os.Getenv(brand.ConfigEnvPrefix + "_PREFIX"); prefix != "" {
		return filepath.Join(prefix, "cache")
	}
	return DefaultCacheDir
}

// GetRunDir returns the runtime directory for sockets and PID files.
// Priority: SHIELDCORE_RUN_DIR > SHIELDCORE_PREFIX/run > DefaultRunDir
func GetRunDir() string {
	if dir := os.Getenv(brand.ConfigEnvPrefix + "_RUN_DIR"); dir != "" {
		return dir
	}
	if prefix := os.Getenv(brand.ConfigEnvPrefix + "_PREFIX"); prefix != "" {
		return filepath.Join(prefix, "run")
	}
	return DefaultRunDir
}

// GetShareDir returns the shared directory for persistent data (rule
// snapshots, installed-app cache).
// Priority: SHIELDCORE_SHARE_DIR > SHIELDCORE_PREFIX/share > DefaultShareDir
func GetShareDir() string {
	if dir := os.Getenv(brand.ConfigEnvPrefix + "_SHARE_DIR"); dir != "" {
		return dir
	}
	if prefix := os.Getenv(brand.ConfigEnvPrefix + "_PREFIX"); prefix != "" {
		return filepath.Join(prefix, "share")
	}
	return DefaultShareDir
}

// GetSocketPath returns the full path to the control plane socket.
// The socket name includes the brand name for uniqueness.
func GetSocketPath() string {
	if path := os.Getenv(brand.ConfigEnvPrefix + "_CTL_SOCKET"); path != "" {
		return path
	}
	runDir := GetRunDir()
	return filepath.Join(runDir, brand.LowerName+"-"+brand.SocketName)
}

// GetBootScriptDir returns the directory the OS's boot environment scans
// for early-boot executables (C9's target directory), checking the
// environment first so it can be overridden in tests.
func GetBootScriptDir() string {
	if dir := os.Getenv(brand.ConfigEnvPrefix + "_BOOT_SCRIPT_DIR"); dir != "" {
		return dir
	}
	if prefix := os.Getenv(brand.ConfigEnvPrefix + "_PREFIX"); prefix != "" {
		return filepath.Join(prefix, "service.d")
	}
	return DefaultBootScriptDir
}
