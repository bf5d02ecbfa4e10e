// Copyright (C) 2026 ShieldCore Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package adminapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"shieldcore.dev/fwcore/internal/backend"
	"shieldcore.dev/fwcore/internal/control"
	"shieldcore.dev/fwcore/internal/model"
)

// fakeOrchestrator is the minimal control.Orchestrator double used by every
// test in this file.
type fakeOrchestrator struct {
	state model.FirewallState
	ch    chan model.FirewallState
}

func newFakeOrchestrator() *fakeOrchestrator {
	return &fakeOrchestrator{
		state: model.FirewallState{Kind: model.StateStopped},
		ch:    make(chan model.FirewallState, 4),
	}
}

func (f *fakeOrchestrator) Start(ctx context.Context, mode model.FirewallMode) {
	f.state = model.FirewallState{Kind: model.StateRunning, Backend: model.BackendTunnel}
	f.ch <- f.state
}

func (f *fakeOrchestrator) Stop(ctx context.Context) {
	f.state = model.FirewallState{Kind: model.StateStopped}
	f.ch <- f.state
}

func (f *fakeOrchestrator) State() model.FirewallState { return f.state }

func (f *fakeOrchestrator) Subscribe(ctx context.Context) (<-chan model.FirewallState, func()) {
	return f.ch, func() {}
}

func (f *fakeOrchestrator) ComputeStartPlan(mode model.FirewallMode) backend.StartPlan {
	return backend.StartPlan{Chosen: model.BackendTunnel}
}

func newTestServer() (*Server, *fakeOrchestrator) {
	orch := newFakeOrchestrator()
	surface := control.New(orch)
	return New(surface, nil, DefaultServerConfig()), orch
}

func TestHandleState_ReturnsCurrentState(t *testing.T) {
	srv, _ := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/v1/state", nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var got stateResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Equal(t, "stopped", got.Kind)
}

func TestHandleStart_TransitionsToRunning(t *testing.T) {
	srv, _ := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/v1/start", nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	require.Equal(t, http.StatusAccepted, rr.Code)
	var got stateResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Equal(t, "running", got.Kind)
	require.Equal(t, "tunnel", got.Backend)
}

func TestHandlePlan_ReturnsChosenBackend(t *testing.T) {
	srv, _ := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/v1/plan?mode=auto", nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var got planResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Equal(t, "tunnel", got.Backend)
	require.True(t, got.RequiresTunnelPermission)
}

func TestHandleStream_PushesStateChanges(t *testing.T) {
	srv, orch := newTestServer()

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	wsURL := "ws" + ts.URL[len("http"):] + "/v1/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var initial stateResponse
	require.NoError(t, conn.ReadJSON(&initial))
	require.Equal(t, "stopped", initial.Kind)

	orch.ch <- model.FirewallState{Kind: model.StateRunning, Backend: model.BackendPacketFilter}

	var next stateResponse
	require.NoError(t, conn.ReadJSON(&next))
	require.Equal(t, "running", next.Kind)
	require.Equal(t, "packet_filter", next.Backend)
}
