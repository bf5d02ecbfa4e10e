// Copyright (C) 2026 ShieldCore Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package tui

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"shieldcore.dev/fwcore/internal/model"
)

type fakeBackend struct {
	state model.FirewallState
	ch    chan model.FirewallState
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{state: model.FirewallState{Kind: model.StateStopped}, ch: make(chan model.FirewallState, 2)}
}

func (f *fakeBackend) State() model.FirewallState { return f.state }

func (f *fakeBackend) Start(ctx context.Context, mode model.FirewallMode) error {
	f.state = model.FirewallState{Kind: model.StateRunning, Backend: model.BackendTunnel}
	return nil
}

func (f *fakeBackend) Stop(ctx context.Context) error {
	f.state = model.FirewallState{Kind: model.StateStopped}
	return nil
}

func (f *fakeBackend) StateStream(ctx context.Context) (<-chan model.FirewallState, func()) {
	return f.ch, func() {}
}

func TestModel_StartKeyTransitionsState(t *testing.T) {
	backend := newFakeBackend()
	m := NewModel(context.Background(), backend)

	keyMsg := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")}
	updated, cmd := m.Update(keyMsg)
	require.NotNil(t, cmd)

	resultMsg := cmd()
	next, _ := updated.Update(resultMsg)
	got := next.(Model)
	require.Equal(t, model.StateRunning, got.state.Kind)
}

func TestModel_ViewRendersStatus(t *testing.T) {
	backend := newFakeBackend()
	backend.state = model.FirewallState{Kind: model.StateRunning, Backend: model.BackendPacketFilter}
	m := NewModel(context.Background(), backend)

	out := m.View()
	require.Contains(t, out, "running")
	require.Contains(t, out, "packet_filter")
}

func TestModel_StreamUpdatesState(t *testing.T) {
	backend := newFakeBackend()
	m := NewModel(context.Background(), backend)

	next, _ := m.Update(streamHandle{ch: backend.ch, cancel: func() {}})
	m = next.(Model)

	next, _ = m.Update(stateMsg(model.FirewallState{Kind: model.StateError, Message: "boom"}))
	got := next.(Model)
	require.Equal(t, model.StateError, got.state.Kind)
	require.Equal(t, "boom", got.state.Message)
}
