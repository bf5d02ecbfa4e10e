// Copyright (C) 2026 ShieldCore Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	bubbletea "github.com/charmbracelet/wish/bubbletea"
	"github.com/charmbracelet/wish/logging"
)

// SSHServerConfig configures the headless/remote dashboard front-end.
type SSHServerConfig struct {
	Addr       string
	HostKeyDir string // directory wish persists its generated host key under
}

// NewSSHServer builds a wish server exposing the same dashboard Model to
// every connecting SSH client; each session gets its own Model bound to
// the shared backend.
func NewSSHServer(cfg SSHServerConfig, backend Backend) (*ssh.Server, error) {
	return wish.NewServer(
		wish.WithAddress(cfg.Addr),
		wish.WithHostKeyPath(cfg.HostKeyDir+"/shieldcore_ed25519"),
		wish.WithMiddleware(
			bubbletea.Middleware(func(s ssh.Session) (tea.Model, []tea.ProgramOption) {
				if _, _, active := s.Pty(); !active {
					wish.Fatalln(s, "no active terminal, skipping")
					return nil, nil
				}
				ctx, cancel := context.WithCancel(s.Context())
				go func() {
					<-s.Context().Done()
					cancel()
				}()
				return NewModel(ctx, backend), []tea.ProgramOption{tea.WithAltScreen()}
			}),
			logging.Middleware(),
		),
	)
}
