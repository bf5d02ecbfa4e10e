// Copyright (C) 2026 ShieldCore Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package bootguard implements the Boot Protection Manager (C9): a script
// dropped in the OS's early-boot hook directory that blocks all non-system
// traffic until the chosen enforcement backend takes over.
package bootguard

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	fwerrors "shieldcore.dev/fwcore/internal/errors"
	"shieldcore.dev/fwcore/internal/logging"
	"shieldcore.dev/fwcore/internal/metrics"
)

// PrivilegedExecutor is the seam over C2's privilege probe that teardown
// uses to issue nft commands against the boot chain — the same channel
// (root su or the assistive daemon) the enforcement backends execute
// through, so teardown works under whichever privilege level is current.
type PrivilegedExecutor interface {
	ExecutePrivileged(ctx context.Context, command string) (exitCode int, output string)
}

const (
	scriptName   = "10-shieldcore-bootblock.sh"
	manifestName = ".shieldcore-bootguard-manifest.yaml"
	scriptMode   = 0o755

	bootChainName = "shieldcore_boot"
)

// criticalAllowUIDs is the fixed allow-list of system UIDs ACCEPTed by the
// boot-time chain before the DROP-everything-else fallthrough, per
// spec.md §4.6: root daemon (0), system server (1000), wifi (1010), media
// (1013) and gps (1021). No privilege-assist UID is included.
var criticalAllowUIDs = []int{0, 1000, 1010, 1013, 1021}

// Manifest is the drift-detection sidecar written alongside the script:
// enough state to tell whether a previously-enabled boot guard's script
// still matches what this build would write, without re-parsing shell.
type Manifest struct {
	Enabled      bool      `yaml:"enabled"`
	ScriptPath   string    `yaml:"script_path"`
	ChainName    string    `yaml:"chain_name"`
	AllowUIDs    []int     `yaml:"allow_uids"`
	WrittenAt    time.Time `yaml:"written_at"`
	ManagerBuild string    `yaml:"manager_build"`
}

// Manager implements C9 over a boot-script directory.
type Manager struct {
	scriptDir string
	logger    *logging.Logger
	metrics   metrics.Recorder
	exec      PrivilegedExecutor
}

// New builds a Manager targeting scriptDir (the OS's post-fs-data hook
// directory, discovered by the caller at runtime). exec is the privilege
// seam teardown runs nft through; it may be nil on builds with no
// privilege channel available yet, in which case teardown is skipped and
// reported as such rather than silently no-oping.
func New(scriptDir string, logger *logging.Logger, recorder metrics.Recorder, exec PrivilegedExecutor) *Manager {
	if logger == nil {
		logger = logging.Default().WithComponent("bootguard")
	}
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &Manager{scriptDir: scriptDir, logger: logger, metrics: recorder, exec: exec}
}

func (m *Manager) scriptPath() string   { return filepath.Join(m.scriptDir, scriptName) }
func (m *Manager) manifestPath() string { return filepath.Join(m.scriptDir, manifestName) }

// IsSupported checks existence of the boot-script directory.
func (m *Manager) IsSupported() bool {
	info, err := os.Stat(m.scriptDir)
	return err == nil && info.IsDir()
}

// IsEnabled checks existence of the script file.
func (m *Manager) IsEnabled() bool {
	_, err := os.Stat(m.scriptPath())
	return err == nil
}

// SetEnabled creates and chmods the script, or deletes it. The UX
// confirmation prompt this requires is out of scope; the caller is
// expected to have already obtained user consent.
func (m *Manager) SetEnabled(enabled bool) error {
	if !m.IsSupported() {
		return fwerrors.New(fwerrors.KindUnavailable, "boot script directory does not exist")
	}
	if !enabled {
		return m.disable()
	}
	return m.enable()
}

func (m *Manager) enable() error {
	script := renderScript()
	if err := os.WriteFile(m.scriptPath(), []byte(script), scriptMode); err != nil {
		return fwerrors.Wrap(err, fwerrors.KindInternal, "write boot script")
	}
	if err := os.Chmod(m.scriptPath(), scriptMode); err != nil {
		return fwerrors.Wrap(err, fwerrors.KindInternal, "chmod boot script")
	}

	manifest := Manifest{
		Enabled:    true,
		ScriptPath: m.scriptPath(),
		ChainName:  bootChainName,
		AllowUIDs:  append([]int(nil), criticalAllowUIDs...),
		WrittenAt:  time.Now(),
	}
	if err := m.writeManifest(manifest); err != nil {
		m.logger.Warn("boot guard: manifest write failed, script was still installed", "error", err)
	}
	m.logger.Info("boot guard enabled", "script", m.scriptPath())
	m.metrics.SetBootGuardEnabled(true)
	return nil
}

func (m *Manager) disable() error {
	if err := os.Remove(m.scriptPath()); err != nil && !os.IsNotExist(err) {
		return fwerrors.Wrap(err, fwerrors.KindInternal, "remove boot script")
	}
	if err := os.Remove(m.manifestPath()); err != nil && !os.IsNotExist(err) {
		m.logger.Warn("boot guard: manifest removal failed", "error", err)
	}
	m.logger.Info("boot guard disabled")
	m.metrics.SetBootGuardEnabled(false)
	return nil
}

func (m *Manager) writeManifest(manifest Manifest) error {
	data, err := yaml.Marshal(manifest)
	if err != nil {
		return err
	}
	return os.WriteFile(m.manifestPath(), data, 0o644)
}

// CheckDrift reads the manifest (if any) and compares it against what this
// build would currently write, reporting a human-readable description of
// any mismatch (e.g. an externally-edited chain name). A missing manifest
// with an enabled script is itself drift: something else owns that file.
func (m *Manager) CheckDrift() (string, error) {
	if !m.IsEnabled() {
		return "", nil
	}
	data, err := os.ReadFile(m.manifestPath())
	if err != nil {
		if os.IsNotExist(err) {
			return "boot script present with no manifest: possibly externally installed", nil
		}
		return "", fwerrors.Wrap(err, fwerrors.KindInternal, "read boot guard manifest")
	}
	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return "", fwerrors.Wrap(err, fwerrors.KindInternal, "parse boot guard manifest")
	}
	if manifest.ChainName != bootChainName {
		return fmt.Sprintf("manifest chain name %q does not match current build's %q", manifest.ChainName, bootChainName), nil
	}
	return "", nil
}

// TeardownBootRules is called by the orchestrator (C8) on firewall start
// to hand off from the boot-time block to the chosen backend: unlink,
// flush, delete the boot-time chain, each step tolerating absence. The
// chain lives in an `inet` family table, which nftables already evaluates
// for both IPv4 and IPv6 — the single teardown below covers both families
// renderScript installed rules for. This does not remove the script file
// itself (that is SetEnabled's job) — only the live kernel rules it
// installed.
func (m *Manager) TeardownBootRules(ctx context.Context) error {
	if m.exec == nil {
		m.logger.Warn("boot rule teardown skipped: no privilege executor wired")
		return fwerrors.New(fwerrors.KindUnavailable, "no privileged executor available for boot rule teardown")
	}
	if err := m.runTeardown(ctx, bootChainName); err != nil {
		m.logger.Warn("boot rule teardown step failed, continuing best-effort", "error", err)
	}
	return nil
}

// runTeardown issues the unlink/flush/delete sequence against chain's
// `inet` table: unlink the output-hook chain, flush whatever remains in
// the table, delete the table outright. Each step's nonzero exit (chain
// or table already absent, already unlinked) is logged and swallowed —
// teardown is best-effort by contract.
func (m *Manager) runTeardown(ctx context.Context, chain string) error {
	steps := []string{
		fmt.Sprintf("nft delete chain inet %s output", chain),
		fmt.Sprintf("nft flush table inet %s", chain),
		fmt.Sprintf("nft delete table inet %s", chain),
	}
	var lastErr error
	for _, cmd := range steps {
		exitCode, output := m.exec.ExecutePrivileged(ctx, cmd)
		if exitCode != 0 {
			lastErr = fmt.Errorf("%s: exit=%d output=%q", cmd, exitCode, output)
			m.logger.Debug("boot rule teardown step non-zero exit, continuing", "command", cmd, "exit_code", exitCode)
		}
	}
	return lastErr
}

// renderScript produces the boot-time nft script: a custom early-block
// chain, ACCEPT loopback, ACCEPT the critical system UID allow-list, DROP
// everything else, linked at the head of OUTPUT for both families. Exact
// text is design-level per spec.md §4.6, not a contractual wire format.
func renderScript() string {
	var allow string
	for _, uid := range criticalAllowUIDs {
		allow += fmt.Sprintf("add rule inet %s output meta skuid %d accept\n", bootChainName, uid)
	}
	return fmt.Sprintf(`#!/system/bin/sh
# Installed by shieldcore bootguard. Blocks all non-system network traffic
# until the firewall core starts and tears this down via C9.
nft add table inet %[1]s
nft add chain inet %[1]s output { type filter hook output priority filter\; policy accept\; }
nft flush chain inet %[1]s output
nft add rule inet %[1]s output oif lo accept
%[2]snft add rule inet %[1]s output drop
`, bootChainName, allow)
}
