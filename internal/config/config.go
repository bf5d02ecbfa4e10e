// Copyright (C) 2026 ShieldCore Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package config loads the firewall core's own daemon configuration: the
// things an operator tunes that are not part of the externally-owned rule
// store C3 resolves against (mode preference, default policy, the boot
// script directory override, whitelist extensions, and outbound alerting).
package config

import (
	"shieldcore.dev/fwcore/internal/notification"
)

// CurrentSchemaVersion is bumped whenever a field is added or renamed in a
// way that changes how an existing config file should be read.
const CurrentSchemaVersion = "1.0"

// Config is the top-level daemon configuration, one HCL file.
type Config struct {
	// SchemaVersion lets a future release detect and migrate older files.
	// @default: "1.0"
	SchemaVersion string `hcl:"schema_version,optional"`

	// Mode is the operator's backend preference; "auto" lets C8 pick the
	// most-capable available backend for the current PrivilegeLevel.
	// @enum: auto, tunnel, packet_filter, conn_mgr, net_policy
	// @default: "auto"
	Mode string `hcl:"mode,optional"`

	// DefaultPolicy governs apps with no enabled rule for their UID.
	// @enum: allow_all, deny_all
	// @default: "allow_all"
	DefaultPolicy string `hcl:"default_policy,optional"`

	// BootScriptDir overrides the compiled-in boot-hook directory C9
	// installs its early-boot block script into. Empty uses the brand
	// default (see internal/install.GetBootScriptDir).
	BootScriptDir string `hcl:"boot_script_dir,optional"`

	Whitelist     *WhitelistConfig      `hcl:"whitelist,block"`
	Notifications *NotificationsConfig  `hcl:"notifications,block"`
	Assistive     *AssistiveConfig      `hcl:"assistive,block"`
}

// AssistiveConfig configures the optional out-of-process assistive daemon
// C2 falls back to when no "su" binary is reachable. Leaving the block out
// entirely means no assistive channel is dialed and PrivilegeLevel can
// only ever resolve to None or Root.
type AssistiveConfig struct {
	// SocketPath dials the daemon over a Unix domain socket. Mutually
	// exclusive with VsockCID/VsockPort; SocketPath wins if both are set.
	SocketPath string `hcl:"socket_path,optional"`
	// VsockCID/VsockPort dial the daemon over virtio-vsock, for profiles
	// where the core and the daemon run in separate lightweight VMs.
	VsockCID  uint32 `hcl:"vsock_cid,optional"`
	VsockPort uint32 `hcl:"vsock_port,optional"`
}

// WhitelistConfig supplements the compiled-in internal/whitelist sets with
// operator-provided additions. Extensions only: nothing here can remove a
// package from the compiled-in system-critical set.
type WhitelistConfig struct {
	// ExtraNeverEnforce are additional package names treated like
	// internal/whitelist.SystemCritical: never enforced against.
	ExtraNeverEnforce []string `hcl:"extra_never_enforce,optional"`
}

// NotificationsConfig is the HCL shape of notification.Config.
type NotificationsConfig struct {
	Enabled  bool                  `hcl:"enabled,optional"`
	Channels []NotificationChannel `hcl:"channel,block"`
}

// NotificationChannel is the HCL shape of notification.Channel.
type NotificationChannel struct {
	Name    string `hcl:"name,label"`
	Type    string `hcl:"type"`
	Level   string `hcl:"level,optional"`
	Enabled bool   `hcl:"enabled,optional"`

	WebhookURL string `hcl:"webhook_url,optional"`

	Server string `hcl:"server,optional"`
	Topic  string `hcl:"topic,optional"`

	APIToken SecureString `hcl:"api_token,optional"`
	UserKey  SecureString `hcl:"user_key,optional"`
	Sound    string       `hcl:"sound,optional"`
	Priority int          `hcl:"priority,optional"`

	SMTPHost     string       `hcl:"smtp_host,optional"`
	SMTPPort     int          `hcl:"smtp_port,optional"`
	SMTPUser     string       `hcl:"smtp_user,optional"`
	SMTPPassword SecureString `hcl:"smtp_password,optional"`
	From         string       `hcl:"from,optional"`
	To           []string     `hcl:"to,optional"`
}

// ExtraNeverEnforce returns the configured whitelist extension, or nil if
// no whitelist block was present — callers should not need to nil-check
// Whitelist itself.
func (c Config) ExtraNeverEnforce() []string {
	if c.Whitelist == nil {
		return nil
	}
	return c.Whitelist.ExtraNeverEnforce
}

// Default returns a Config with every optional field at its documented
// default, for a fresh install with no config file present yet.
func Default() Config {
	return Config{
		SchemaVersion: CurrentSchemaVersion,
		Mode:          "auto",
		DefaultPolicy: "allow_all",
	}
}

// ToNotificationConfig converts the HCL-decoded block into the shape
// internal/notification.Dispatcher consumes.
func (c Config) ToNotificationConfig() notification.Config {
	if c.Notifications == nil {
		return notification.Config{}
	}
	out := notification.Config{Enabled: c.Notifications.Enabled}
	for _, ch := range c.Notifications.Channels {
		out.Channels = append(out.Channels, notification.Channel{
			Name:         ch.Name,
			Type:         ch.Type,
			Level:        notification.Severity(ch.Level),
			Enabled:      ch.Enabled,
			WebhookURL:   ch.WebhookURL,
			Server:       ch.Server,
			Topic:        ch.Topic,
			APIToken:     string(ch.APIToken),
			UserKey:      string(ch.UserKey),
			Sound:        ch.Sound,
			Priority:     ch.Priority,
			SMTPHost:     ch.SMTPHost,
			SMTPPort:     ch.SMTPPort,
			SMTPUser:     ch.SMTPUser,
			SMTPPassword: string(ch.SMTPPassword),
			From:         ch.From,
			To:           append([]string(nil), ch.To...),
		})
	}
	return out
}
