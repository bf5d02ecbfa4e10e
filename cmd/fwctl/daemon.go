// Copyright (C) 2026 ShieldCore Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"shieldcore.dev/fwcore/internal/adminapi"
	"shieldcore.dev/fwcore/internal/audit"
	"shieldcore.dev/fwcore/internal/backend"
	"shieldcore.dev/fwcore/internal/backend/connmgr"
	"shieldcore.dev/fwcore/internal/backend/netpolicy"
	"shieldcore.dev/fwcore/internal/backend/packetfilter"
	"shieldcore.dev/fwcore/internal/backend/tunnel"
	"shieldcore.dev/fwcore/internal/bootguard"
	"shieldcore.dev/fwcore/internal/config"
	"shieldcore.dev/fwcore/internal/control"
	"shieldcore.dev/fwcore/internal/install"
	"shieldcore.dev/fwcore/internal/logging"
	"shieldcore.dev/fwcore/internal/metrics"
	"shieldcore.dev/fwcore/internal/model"
	"shieldcore.dev/fwcore/internal/notification"
	"shieldcore.dev/fwcore/internal/orchestrator"
	"shieldcore.dev/fwcore/internal/privilege"
	"shieldcore.dev/fwcore/internal/supervisor"
	"shieldcore.dev/fwcore/internal/whitelist"
)

// runDaemon is the composition root: it builds every ambient and
// enforcement component and blocks until ctx is canceled (SIGTERM/SIGINT).
// The orchestrator starts in Stopped state; an operator (or init script)
// transitions it via "fwctl start", which calls the admin API this process
// exposes.
//
// Connecting the orchestrator to live rule and installed-app data is the
// OS adapter's job (out of scope per DESIGN.md) — this binary runs the
// full backend/failover/metrics/alerting machinery against an initially
// empty rule set, which a platform integration wires real data into via
// internal/store's RuleStore/InstalledAppLister contracts.
func runDaemon(configPath string) error {
	logger := logging.New(logging.DefaultConfig())
	logger.Info("starting", "config", configPath)

	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	whitelist.RegisterExtraNeverEnforce(cfg.ExtraNeverEnforce())

	auditLog := audit.NewLogger(logger.WithComponent("audit"))
	notifier := notification.NewDispatcher(cfg.ToNotificationConfig(), logger.WithComponent("notification"))
	recorder := metrics.NewRecorder()

	sup := supervisor.New(install.GetStateDir(), supervisor.DefaultConfig())
	if sup.ShouldEnterSafeMode() {
		logger.Warn("entering safe mode after repeated crashes; forcing default_policy=deny_all")
		cfg.DefaultPolicy = "deny_all"
	}
	sup.StartStabilityTimer()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	daemonConn := dialAssistiveDaemon(ctx, cfg, logger)
	if daemonConn != nil {
		defer daemonConn.Close()
	}

	// daemonConn is typed *GRPCAssistiveDaemon; passed through a plain nil
	// interface var rather than the typed pointer directly so a nil
	// daemonConn produces a truly nil AssistiveDaemon (Probe's nil checks
	// compare the interface itself, not the concrete pointer underneath).
	var daemonIface privilege.AssistiveDaemon
	if daemonConn != nil {
		daemonIface = daemonConn
	}
	probe := privilege.NewProbe(daemonIface, "su", logger.WithComponent("privilege"))

	bootScriptDir := cfg.BootScriptDir
	if bootScriptDir == "" {
		bootScriptDir = install.GetBootScriptDir()
	}
	bg := bootguard.New(bootScriptDir, logger.WithComponent("bootguard"), recorder, probeExecutor{probe: probe})

	backends, err := buildBackends(probe, daemonConn, logger, notifier)
	if err != nil {
		return fmt.Errorf("build backends: %w", err)
	}

	// ConnMgr's platform-level availability tracks whether an assistive
	// daemon connection is wired at all; CheckAvailability still queries
	// the daemon's own Supported() call underneath.
	connMgrOS := daemonConn != nil
	orch := orchestrator.New(backends, connMgrOS, bg, notifier, logger.WithComponent("orchestrator"), recorder)

	go orch.Run(ctx)
	go auditBackendTransitions(ctx, orch, auditLog)

	watcher := newInputWatcher(probe, orch, cfg.ResolveDefaultPolicy(), logger.WithComponent("watcher"))
	go watcher.Run(ctx)

	surface := control.New(orch)
	apiServer := adminapi.New(surface, logger.WithComponent("adminapi"), adminapi.DefaultServerConfig())

	addr := os.Getenv("SHIELDCORE_ADMINAPI_ADDR")
	if addr == "" {
		addr = "127.0.0.1:8443"
	}

	errCh := make(chan error, 1)
	go func() { errCh <- apiServer.ListenAndServe(ctx, addr) }()
	logger.Info("admin API listening", "addr", addr)

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		orch.Stop(context.Background())
		_ = sup.RecordExit(0, 0, false)
		return nil
	case err := <-errCh:
		if err != nil {
			_ = sup.RecordExit(1, 0, false)
			return fmt.Errorf("admin API: %w", err)
		}
		return nil
	}
}

// auditBackendTransitions records every distinct FirewallState change to
// the operational audit trail, independent of the structured application
// logger — this is the durable, queryable history audit.Logger exists for.
func auditBackendTransitions(ctx context.Context, orch *orchestrator.Orchestrator, auditLog *audit.Logger) {
	states, cancel := orch.Subscribe(ctx)
	defer cancel()
	// A Stopped state carries no Backend, so remember which one was running.
	var running model.BackendKind
	wasRunning := false
	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-states:
			if !ok {
				return
			}
			switch st.Kind {
			case model.StateRunning:
				auditLog.LogBackendStarted(st.Backend)
				running, wasRunning = st.Backend, true
			case model.StateStopped:
				if wasRunning {
					auditLog.LogBackendStopped(running)
					wasRunning = false
				}
			}
		}
	}
}

// buildBackends wires the four enforcement backends with every adapter
// this build can construct: Tunnel (vishvananda/netlink TUN interface) and
// PacketFilter (a real nftables connection) run for real; NetPolicy gets a
// real su-backed privilege executor. ConnMgr needs the assistive daemon's
// system-service binder — when daemonConn is nil (no assistive block
// configured, or the dial failed) it reports itself unsupported so
// CheckAvailability fails closed and the orchestrator's fallback chain
// moves on to the next backend, rather than calling a binder that was
// never connected.
func buildBackends(probe *privilege.Probe, daemonConn *privilege.GRPCAssistiveDaemon, logger *logging.Logger, alerts *notification.Dispatcher) (map[model.BackendKind]backend.Backend, error) {
	conn, err := packetfilter.NewRealConn()
	if err != nil {
		return nil, fmt.Errorf("packetfilter conn: %w", err)
	}

	var connMgrAPI connmgr.RestrictionAPI = unsupportedConnMgr{}
	if daemonConn != nil {
		connMgrAPI = daemonConnMgr{daemon: daemonConn}
	}

	backends := map[model.BackendKind]backend.Backend{
		model.BackendTunnel:       tunnel.New(&tunnel.NetlinkEstablisher{NamePrefix: "fwtun"}, alerts, logger.WithComponent("backend.tunnel")),
		model.BackendPacketFilter: packetfilter.New(conn, logger.WithComponent("backend.packetfilter")),
		model.BackendConnMgr:      connmgr.New(connMgrAPI, logger.WithComponent("backend.connmgr")),
		model.BackendNetPolicy:    netpolicy.New(probeExecutor{probe: probe}, logger.WithComponent("backend.netpolicy")),
	}
	return backends, nil
}

// dialAssistiveDaemon connects to the assistive daemon per cfg.Assistive,
// preferring a Unix socket over vsock when both are set. Returns nil (not
// an error) when no assistive block is configured or the dial fails — C2
// and C6 degrade to su-only / unsupported rather than blocking startup on
// an optional channel.
func dialAssistiveDaemon(ctx context.Context, cfg config.Config, logger *logging.Logger) *privilege.GRPCAssistiveDaemon {
	a := cfg.Assistive
	if a == nil {
		return nil
	}
	switch {
	case a.SocketPath != "":
		daemon, err := privilege.DialUnix(ctx, a.SocketPath)
		if err != nil {
			logger.Warn("assistive daemon dial over unix socket failed, continuing without it", "socket_path", a.SocketPath, "error", err)
			return nil
		}
		logger.Info("assistive daemon connected", "transport", "unix", "socket_path", a.SocketPath)
		return daemon
	case a.VsockPort != 0:
		daemon, err := privilege.DialVsock(ctx, a.VsockCID, a.VsockPort)
		if err != nil {
			logger.Warn("assistive daemon dial over vsock failed, continuing without it", "cid", a.VsockCID, "port", a.VsockPort, "error", err)
			return nil
		}
		logger.Info("assistive daemon connected", "transport", "vsock", "cid", a.VsockCID, "port", a.VsockPort)
		return daemon
	default:
		return nil
	}
}

func defaultConfigPath() string {
	return filepath.Join(install.GetConfigDir(), "shieldcore.hcl")
}
