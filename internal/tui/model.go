// Copyright (C) 2026 ShieldCore Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package tui is a single-screen bubbletea status dashboard over the
// Public Control Surface (C10): current firewall state, the backend in
// use, and keybindings to start/stop. It carries no app-list, rule, or
// settings UI — those remain out of scope for this module.
package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"shieldcore.dev/fwcore/internal/model"
)

// Backend is the data source this dashboard renders, narrowed to what a
// status view needs. LocalBackend and RemoteBackend both implement it.
type Backend interface {
	State() model.FirewallState
	Start(ctx context.Context, mode model.FirewallMode) error
	Stop(ctx context.Context) error
	StateStream(ctx context.Context) (<-chan model.FirewallState, func())
}

// stateMsg carries a fresh FirewallState read off the stream.
type stateMsg model.FirewallState

// errMsg carries a Backend call failure.
type errMsg struct{ err error }

// streamHandle is stashed in the model so Update can keep reading from
// the same channel across messages without re-subscribing each time.
type streamHandle struct {
	ch     <-chan model.FirewallState
	cancel func()
}

// Model is the dashboard's bubbletea model.
type Model struct {
	backend Backend
	ctx     context.Context

	state           model.FirewallState
	connectionError string
	width, height   int

	stream streamHandle
}

// NewModel builds the initial dashboard model. ctx governs the lifetime of
// the state subscription; canceling it (e.g. on program exit) releases it.
func NewModel(ctx context.Context, backend Backend) Model {
	return Model{backend: backend, ctx: ctx, state: backend.State()}
}

func (m Model) Init() tea.Cmd {
	ch, cancel := m.backend.StateStream(m.ctx)
	return func() tea.Msg {
		return streamHandle{ch: ch, cancel: cancel}
	}
}

// waitForState returns a command that blocks on the stream until the next
// state change, re-issued after every message so the listen loop never dies.
func waitForState(ch <-chan model.FirewallState) tea.Cmd {
	return func() tea.Msg {
		st, ok := <-ch
		if !ok {
			return nil
		}
		return stateMsg(st)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case streamHandle:
		m.stream = msg
		return m, waitForState(m.stream.ch)

	case stateMsg:
		m.state = model.FirewallState(msg)
		m.connectionError = ""
		return m, waitForState(m.stream.ch)

	case errMsg:
		m.connectionError = msg.err.Error()
		return m, nil

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.stream.cancel != nil {
				m.stream.cancel()
			}
			return m, tea.Quit
		case "s":
			return m, func() tea.Msg {
				if err := m.backend.Start(m.ctx, model.ModeAuto); err != nil {
					return errMsg{err}
				}
				return stateMsg(m.backend.State())
			}
		case "x":
			return m, func() tea.Msg {
				if err := m.backend.Stop(m.ctx); err != nil {
					return errMsg{err}
				}
				return stateMsg(m.backend.State())
			}
		}
	}
	return m, nil
}

func (m Model) View() string {
	header := StyleTitle.Render("SHIELDCORE FIREWALL") + "\n" +
		StyleSubtitle.Render("[s] start  [x] stop  [q] quit") + "\n\n"

	statusIcon, statusStyle := "●", StyleStatusWarn
	switch m.state.Kind {
	case model.StateRunning:
		statusIcon, statusStyle = "●", StyleStatusGood
	case model.StateError:
		statusIcon, statusStyle = "●", StyleStatusBad
	case model.StateStopped:
		statusIcon, statusStyle = "○", StyleSubtitle
	}

	card := StyleCard.Render(lipgloss.JoinVertical(lipgloss.Left,
		statusStyle.Render(statusIcon+" "+m.state.String()),
	))

	body := header + card
	if m.connectionError != "" {
		body += "\n\n" + StyleStatusBad.Render("connection lost: "+m.connectionError)
	}
	return StyleApp.Render(body)
}
