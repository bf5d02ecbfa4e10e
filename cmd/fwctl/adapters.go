// Copyright (C) 2026 ShieldCore Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package main

import (
	"context"
	"fmt"

	"shieldcore.dev/fwcore/internal/model"
	"shieldcore.dev/fwcore/internal/privilege"
)

// probeExecutor adapts internal/privilege.Probe's ExecResult-returning
// ExecutePrivileged onto the netpolicy backend's narrower two-value
// Executor contract.
type probeExecutor struct {
	probe *privilege.Probe
}

func (p probeExecutor) ExecutePrivileged(ctx context.Context, command string) (int, string) {
	res := p.probe.ExecutePrivileged(ctx, command)
	return res.ExitCode, res.CombinedOutput
}

// unsupportedConnMgr is the ConnMgr backend's RestrictionAPI for builds
// with no assistive-daemon binder wired: it reports the mechanism
// unavailable so CheckAvailability fails closed and the orchestrator's
// fallback chain moves on to the next backend rather than calling a
// binder that does not exist on this deployment.
type unsupportedConnMgr struct{}

func (unsupportedConnMgr) Supported(ctx context.Context) bool { return false }
func (unsupportedConnMgr) SetRestricted(ctx context.Context, uid model.UID, restricted bool) error {
	return nil
}
func (unsupportedConnMgr) SupportsTransportAware(ctx context.Context) bool { return false }

const connMgrTool = "cmd connmgr"

// daemonConnMgr implements connmgr.RestrictionAPI over a live
// GRPCAssistiveDaemon connection, driving the same "cmd <tool>"
// command-line convention netpolicy's Executor uses, but executed under
// the assistive daemon's authority (privilege.Probe.ExecutePrivileged's
// AssistiveRootMode/AssistiveAdbMode branch) rather than su.
type daemonConnMgr struct {
	daemon *privilege.GRPCAssistiveDaemon
}

func (d daemonConnMgr) Supported(ctx context.Context) bool {
	res, err := d.daemon.Execute(ctx, connMgrTool+" supported")
	return err == nil && res.ExitCode == 0
}

func (d daemonConnMgr) SetRestricted(ctx context.Context, uid model.UID, restricted bool) error {
	action := "remove-restrict"
	if restricted {
		action = "add-restrict"
	}
	res, err := d.daemon.Execute(ctx, fmt.Sprintf("%s %s %d", connMgrTool, action, uid))
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("connmgr %s uid=%d: exit=%d output=%q", action, uid, res.ExitCode, res.CombinedOutput)
	}
	return nil
}

func (d daemonConnMgr) SupportsTransportAware(ctx context.Context) bool {
	res, err := d.daemon.Execute(ctx, connMgrTool+" supports-transport-aware")
	return err == nil && res.ExitCode == 0
}
