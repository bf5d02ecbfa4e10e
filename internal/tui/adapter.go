// Copyright (C) 2026 ShieldCore Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package tui

import (
	"context"

	"shieldcore.dev/fwcore/internal/control"
	"shieldcore.dev/fwcore/internal/model"
)

// LocalBackend implements Backend directly over an in-process
// control.Surface, for a dashboard running in the same process as the
// daemon. `fwctl dashboard` does not use it: that subcommand talks to the
// daemon through RemoteBackend.
type LocalBackend struct {
	surface *control.Surface
}

// NewLocalBackend builds a LocalBackend over surface.
func NewLocalBackend(surface *control.Surface) *LocalBackend {
	return &LocalBackend{surface: surface}
}

func (b *LocalBackend) State() model.FirewallState { return b.surface.State() }

func (b *LocalBackend) Start(ctx context.Context, mode model.FirewallMode) error {
	return b.surface.Start(ctx, mode)
}

func (b *LocalBackend) Stop(ctx context.Context) error {
	return b.surface.Stop(ctx)
}

func (b *LocalBackend) StateStream(ctx context.Context) (<-chan model.FirewallState, func()) {
	return b.surface.StateStream(ctx)
}
