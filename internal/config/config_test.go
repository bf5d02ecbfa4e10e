// Copyright (C) 2026 ShieldCore Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"shieldcore.dev/fwcore/internal/model"
)

func TestLoadFile_MissingFileReturnsDefault(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "does-not-exist.hcl"))
	require.NoError(t, err)
	require.Equal(t, model.ModeAuto, cfg.ResolveMode())
	require.Equal(t, model.PolicyAllowAll, cfg.ResolveDefaultPolicy())
}

func TestLoadFile_ParsesModeAndWhitelist(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shieldcore.hcl")
	writeFile(t, path, `
mode             = "packet_filter"
default_policy   = "deny_all"
boot_script_dir  = "/data/adb/service.d"

whitelist {
  extra_never_enforce = ["com.example.vpnclient"]
}

notifications {
  enabled = true

  channel "ops-webhook" {
    type        = "webhook"
    enabled     = true
    webhook_url = "https://example.com/hook"
  }
}
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, model.ModePacketFilter, cfg.ResolveMode())
	require.Equal(t, model.PolicyBlockAll, cfg.ResolveDefaultPolicy())
	require.Equal(t, "/data/adb/service.d", cfg.BootScriptDir)
	require.NotNil(t, cfg.Whitelist)
	require.Equal(t, []string{"com.example.vpnclient"}, cfg.Whitelist.ExtraNeverEnforce)

	notifCfg := cfg.ToNotificationConfig()
	require.True(t, notifCfg.Enabled)
	require.Len(t, notifCfg.Channels, 1)
	require.Equal(t, "https://example.com/hook", notifCfg.Channels[0].WebhookURL)
}

func TestLoadFile_RejectsUnknownMode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.hcl")
	writeFile(t, path, `mode = "bogus"`+"\n")

	_, err := LoadFile(path)
	require.Error(t, err)
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}
