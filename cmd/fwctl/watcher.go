// Copyright (C) 2026 ShieldCore Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package main

import (
	"context"

	"shieldcore.dev/fwcore/internal/environment"
	"shieldcore.dev/fwcore/internal/logging"
	"shieldcore.dev/fwcore/internal/model"
	"shieldcore.dev/fwcore/internal/orchestrator"
	"shieldcore.dev/fwcore/internal/privilege"
	"shieldcore.dev/fwcore/internal/resolver"
)

// inputWatcher feeds C1's environment monitors and C2's privilege probe
// into the orchestrator's OnInputChange, the live wiring spec.md §4.1/§4.2
// describe. Rules and the installed-app snapshot stay empty: no RuleStore
// or InstalledAppLister adapter is wired on this build (the OS adapter
// layer that owns app persistence and enumeration is out of scope), so
// resolver.Resolve always computes against an empty rule set and an empty
// installed-app list; no admin API endpoint supplies either.
type inputWatcher struct {
	probe     *privilege.Probe
	transport *environment.TransportMonitor
	screen    *environment.ScreenMonitor
	orch      *orchestrator.Orchestrator
	logger    *logging.Logger
	policy    model.DefaultPolicy
}

func newInputWatcher(probe *privilege.Probe, orch *orchestrator.Orchestrator, policy model.DefaultPolicy, logger *logging.Logger) *inputWatcher {
	if logger == nil {
		logger = logging.Default().WithComponent("watcher")
	}
	return &inputWatcher{
		probe:     probe,
		transport: environment.NewTransportMonitor(nil, environment.NewConnectivityProbe(logger.WithComponent("connectivity")), logger.WithComponent("transport")),
		screen:    environment.NewScreenMonitor(nil, logger.WithComponent("screen")),
		orch:      orch,
		logger:    logger,
		policy:    policy,
	}
}

// Run starts both monitors and republishes every distinct change as an
// OnInputChange call until ctx is done.
func (w *inputWatcher) Run(ctx context.Context) {
	go w.transport.Run(ctx)
	go w.screen.Run(ctx)

	privilegeCh, cancelPrivilege := w.probe.Subscribe(ctx)
	defer cancelPrivilege()
	transportCh, cancelTransport := w.transport.Subscribe(ctx)
	defer cancelTransport()
	screenCh, cancelScreen := w.screen.Subscribe(ctx)
	defer cancelScreen()

	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-privilegeCh:
			if !ok {
				return
			}
			w.publish(ctx, p, w.transport.Current(), w.screen.Current())
		case t, ok := <-transportCh:
			if !ok {
				return
			}
			w.publish(ctx, w.probe.Current(), t, w.screen.Current())
		case s, ok := <-screenCh:
			if !ok {
				return
			}
			w.publish(ctx, w.probe.Current(), w.transport.Current(), s)
		}
	}
}

func (w *inputWatcher) publish(ctx context.Context, p model.PrivilegeLevel, t model.NetworkType, s model.ScreenState) {
	in := resolver.Input{
		Transport: t,
		Screen:    s,
		Policy:    w.policy,
	}
	w.orch.OnInputChange(ctx, in, p, t, s)
}
