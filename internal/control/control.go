// Copyright (C) 2026 ShieldCore Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package control implements the Public Control Surface (C10): the
// method-level contract external front-ends (HTTP/WS, TUI, SSH) drive.
// Transport is unspecified at this layer — it is a thin, in-process
// wrapper over the orchestrator.
package control

import (
	"context"

	"shieldcore.dev/fwcore/internal/backend"
	"shieldcore.dev/fwcore/internal/model"
)

// Orchestrator is the seam over internal/orchestrator.Orchestrator this
// package depends on, narrowed to the methods the control surface needs.
type Orchestrator interface {
	Start(ctx context.Context, mode model.FirewallMode)
	Stop(ctx context.Context)
	State() model.FirewallState
	Subscribe(ctx context.Context) (<-chan model.FirewallState, func())
	ComputeStartPlan(mode model.FirewallMode) backend.StartPlan
}

// StartPlan is what the UI inspects to decide whether to prompt the user
// for the tunnel permission before calling Start.
type StartPlan struct {
	Backend                model.BackendKind
	RequiresTunnelPermission bool
}

// Surface implements the C10 contract.
type Surface struct {
	orch Orchestrator
}

// New builds a Surface over orch.
func New(orch Orchestrator) *Surface {
	return &Surface{orch: orch}
}

// Start is idempotent: a no-op if already Running for the chosen mode.
func (s *Surface) Start(ctx context.Context, mode model.FirewallMode) error {
	s.orch.Start(ctx, mode)
	return nil
}

// Stop is idempotent.
func (s *Surface) Stop(ctx context.Context) error {
	s.orch.Stop(ctx)
	return nil
}

// State returns a FirewallState snapshot.
func (s *Surface) State() model.FirewallState {
	return s.orch.State()
}

// StateStream returns a distinct-until-changed FirewallState stream and a
// cancel function the caller must invoke when done listening.
func (s *Surface) StateStream(ctx context.Context) (<-chan model.FirewallState, func()) {
	return s.orch.Subscribe(ctx)
}

// ComputeStartPlan reports what Start(mode) would choose and whether the
// user-consented tunnel permission would be needed, so the UI can decide
// whether to prompt before calling Start.
func (s *Surface) ComputeStartPlan(mode model.FirewallMode) StartPlan {
	plan := s.orch.ComputeStartPlan(mode)
	return StartPlan{
		Backend:                  plan.Chosen,
		RequiresTunnelPermission: plan.Chosen == model.BackendTunnel,
	}
}
