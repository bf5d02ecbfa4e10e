// Copyright (C) 2026 ShieldCore Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package logging

import (
	"fmt"
	"net"
	"time"
)

// SyslogConfig configures best-effort forwarding of log lines to a remote
// syslog collector. Disabled by default; the core's own privacy posture
// means remote log shipping is opt-in.
type SyslogConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Protocol string // "udp" or "tcp"
	Tag      string
	Facility int
}

// DefaultSyslogConfig returns the disabled default: RFC3164-ish UDP syslog
// on the standard port, facility 1 (user-level), tagged "fwcore".
func DefaultSyslogConfig() SyslogConfig {
	return SyslogConfig{
		Enabled:  false,
		Port:     514,
		Protocol: "udp",
		Tag:      "fwcore",
		Facility: 1,
	}
}

// syslogWriter is a minimal io.Writer forwarding each Write to a syslog
// collector over UDP or TCP. It does not use log/syslog because that
// package only supports local Unix-socket syslog; remote forwarding needs a
// plain network dial.
type syslogWriter struct {
	conn     net.Conn
	tag      string
	facility int
}

// NewSyslogWriter dials the collector described by cfg and returns a writer
// suitable for use as an additional log sink. cfg.Host is required; Port,
// Protocol, and Tag are defaulted if unset.
func NewSyslogWriter(cfg SyslogConfig) (*syslogWriter, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("logging: syslog host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 514
	}
	if cfg.Protocol == "" {
		cfg.Protocol = "udp"
	}
	if cfg.Tag == "" {
		cfg.Tag = "fwcore"
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	conn, err := net.DialTimeout(cfg.Protocol, addr, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("logging: dial syslog collector %s: %w", addr, err)
	}
	return &syslogWriter{conn: conn, tag: cfg.Tag, facility: cfg.Facility}, nil
}

func (w *syslogWriter) Write(p []byte) (int, error) {
	priority := w.facility*8 + 6 // informational severity
	_, err := fmt.Fprintf(w.conn, "<%d>%s: %s", priority, w.tag, p)
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *syslogWriter) Close() error { return w.conn.Close() }
