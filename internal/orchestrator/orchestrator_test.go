// Copyright (C) 2026 ShieldCore Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"shieldcore.dev/fwcore/internal/backend"
	"shieldcore.dev/fwcore/internal/model"
)

// fakeBackend is a scriptable backend.Backend for exercising the
// orchestrator's bring-up/fallback logic without a real kernel.
type fakeBackend struct {
	kind      model.BackendKind
	available bool
	startErr  error

	mu     sync.Mutex
	active bool
}

func (f *fakeBackend) Kind() model.BackendKind { return f.kind }

func (f *fakeBackend) CheckAvailability(ctx context.Context) (backend.Availability, error) {
	if !f.available {
		return backend.Availability{Available: false, Reason: "not available in test"}, nil
	}
	return backend.Availability{Available: true}, nil
}

func (f *fakeBackend) Start(ctx context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.mu.Lock()
	f.active = true
	f.mu.Unlock()
	return nil
}

func (f *fakeBackend) Stop(ctx context.Context) error {
	f.mu.Lock()
	f.active = false
	f.mu.Unlock()
	return nil
}

func (f *fakeBackend) Apply(ctx context.Context, blocked model.BlockedSet) error { return nil }

func (f *fakeBackend) IsActive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

func (f *fakeBackend) SupportsGranularControl() bool { return true }

func waitForState(t *testing.T, o *Orchestrator, want model.FirewallStateKind, timeout time.Duration) model.FirewallState {
	t.Helper()
	deadline := time.After(timeout)
	for {
		st := o.State()
		if st.Kind == want {
			return st
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for state %v, last seen %v", want, st)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func newTestOrchestrator(backends map[model.BackendKind]backend.Backend) (*Orchestrator, context.CancelFunc) {
	o := New(backends, false, nil, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go o.Run(ctx)
	return o, cancel
}

func TestOrchestrator_StartsChosenBackend(t *testing.T) {
	tunnel := &fakeBackend{kind: model.BackendTunnel, available: true}
	o, cancel := newTestOrchestrator(map[model.BackendKind]backend.Backend{model.BackendTunnel: tunnel})
	defer cancel()

	o.Start(context.Background(), model.ModeTunnel)

	st := waitForState(t, o, model.StateRunning, time.Second)
	require.Equal(t, model.BackendTunnel, st.Backend)
	require.True(t, tunnel.IsActive())
}

func TestOrchestrator_FallsBackWhenPreferredUnavailable(t *testing.T) {
	connMgr := &fakeBackend{kind: model.BackendConnMgr, available: false}
	packetFilter := &fakeBackend{kind: model.BackendPacketFilter, available: true}
	o, cancel := newTestOrchestrator(map[model.BackendKind]backend.Backend{
		model.BackendConnMgr:      connMgr,
		model.BackendPacketFilter: packetFilter,
	})
	defer cancel()

	o.Start(context.Background(), model.ModeConnMgr)

	st := waitForState(t, o, model.StateRunning, time.Second)
	require.Equal(t, model.BackendPacketFilter, st.Backend)
	require.False(t, connMgr.IsActive())
	require.True(t, packetFilter.IsActive())
}

func TestOrchestrator_ErrorStateWhenNoBackendAvailable(t *testing.T) {
	tunnel := &fakeBackend{kind: model.BackendTunnel, available: false}
	o, cancel := newTestOrchestrator(map[model.BackendKind]backend.Backend{model.BackendTunnel: tunnel})
	defer cancel()

	o.Start(context.Background(), model.ModeTunnel)

	st := waitForState(t, o, model.StateError, time.Second)
	require.NotEmpty(t, st.Message)
}

func TestOrchestrator_StopTransitionsToStopped(t *testing.T) {
	tunnel := &fakeBackend{kind: model.BackendTunnel, available: true}
	o, cancel := newTestOrchestrator(map[model.BackendKind]backend.Backend{model.BackendTunnel: tunnel})
	defer cancel()

	o.Start(context.Background(), model.ModeTunnel)
	waitForState(t, o, model.StateRunning, time.Second)

	o.Stop(context.Background())
	waitForState(t, o, model.StateStopped, time.Second)
	require.False(t, tunnel.IsActive())
}

func TestOrchestrator_ComputeStartPlanIsSideEffectFree(t *testing.T) {
	tunnel := &fakeBackend{kind: model.BackendTunnel, available: true}
	o, cancel := newTestOrchestrator(map[model.BackendKind]backend.Backend{model.BackendTunnel: tunnel})
	defer cancel()

	plan := o.ComputeStartPlan(model.ModeTunnel)
	require.Equal(t, model.BackendTunnel, plan.Chosen)
	require.Equal(t, model.StateStopped, o.State().Kind)
	require.False(t, tunnel.IsActive())
}
