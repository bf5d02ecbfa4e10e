// Copyright (C) 2026 ShieldCore Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package privilege implements the privilege probe (C2): determining which
// capability level the core currently has, and executing privileged
// commands through whichever channel backs that level.
package privilege

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"sync"
	"time"

	fwerrors "shieldcore.dev/fwcore/internal/errors"
	"shieldcore.dev/fwcore/internal/logging"
	"shieldcore.dev/fwcore/internal/model"
)

const execTimeout = 5 * time.Second

// ExecResult is the outcome of a privileged command execution.
type ExecResult struct {
	ExitCode       int
	CombinedOutput string
}

// AssistiveDaemon is the seam over the assistive daemon's IPC channel
// (grpc-over-unix-socket in production, grpc-over-vsock on virtualized
// profiles per SPEC_FULL.md §4.2). The probe only needs connectivity and
// effective-UID reporting plus a privileged execute call.
type AssistiveDaemon interface {
	// Reachable reports whether the binder channel is currently up.
	Reachable(ctx context.Context) bool
	// EffectiveUID returns the daemon's own effective UID.
	EffectiveUID(ctx context.Context) (int, error)
	// Execute runs command under the daemon's authority.
	Execute(ctx context.Context, command string) (ExecResult, error)
	// Watch returns a channel that is closed when the daemon connection is
	// torn down for good (or ctx ends); no value is sent on it for
	// individual state transitions.
	Watch(ctx context.Context) <-chan struct{}
}

// CommandRunner is the seam over os/exec so tests can avoid shelling out.
type CommandRunner func(ctx context.Context, name string, args ...string) (ExecResult, error)

// Probe implements the four-state determination in spec.md §4.2, with
// sticky denial: once a permission prompt returns DENIED, the core will not
// auto-retry within the session until an explicit Refresh call.
type Probe struct {
	daemon  AssistiveDaemon
	runCmd  CommandRunner
	suBinary string
	logger  *logging.Logger

	mu           sync.Mutex
	current      model.PrivilegeLevel
	deniedSticky bool
	listeners    []chan model.PrivilegeLevel
}

// NewProbe constructs a Probe. suBinary is typically "su"; daemon may be nil
// if no assistive daemon is configured for this deployment.
func NewProbe(daemon AssistiveDaemon, suBinary string, logger *logging.Logger) *Probe {
	if logger == nil {
		logger = logging.Default().WithComponent("privilege")
	}
	if suBinary == "" {
		suBinary = "su"
	}
	return &Probe{
		daemon:   daemon,
		runCmd:   runOSCommand,
		suBinary: suBinary,
		logger:   logger,
		current:  model.PrivilegeNone,
	}
}

func runOSCommand(ctx context.Context, name string, args ...string) (ExecResult, error) {
	ctx, cancel := context.WithTimeout(ctx, execTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return ExecResult{ExitCode: -1, CombinedOutput: out.String()}, fwerrors.New(fwerrors.KindTimeout, "privileged command timed out")
	}
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return ExecResult{ExitCode: -1, CombinedOutput: out.String()}, err
		}
	}
	return ExecResult{ExitCode: exitCode, CombinedOutput: out.String()}, nil
}

// Current returns the last-determined PrivilegeLevel.
func (p *Probe) Current() model.PrivilegeLevel {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Subscribe registers a listener receiving the current value immediately
// and every subsequent change.
func (p *Probe) Subscribe(ctx context.Context) (<-chan model.PrivilegeLevel, func()) {
	ch := make(chan model.PrivilegeLevel, 1)
	p.mu.Lock()
	ch <- p.current
	p.listeners = append(p.listeners, ch)
	p.mu.Unlock()
	cancel := func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		for i, l := range p.listeners {
			if l == ch {
				p.listeners = append(p.listeners[:i], p.listeners[i+1:]...)
				break
			}
		}
	}
	return ch, cancel
}

// Refresh re-evaluates privilege level, clearing any sticky denial.
func (p *Probe) Refresh(ctx context.Context) model.PrivilegeLevel {
	p.mu.Lock()
	p.deniedSticky = false
	p.mu.Unlock()
	return p.evaluate(ctx)
}

// RequestAssistivePermission asks the user to grant the assistive daemon
// permission (UX out of scope); a DENIED response sets the sticky flag so
// the core does not auto-retry within this session.
func (p *Probe) RequestAssistivePermission(ctx context.Context, granted bool) {
	if !granted {
		p.mu.Lock()
		p.deniedSticky = true
		p.mu.Unlock()
		p.logger.Info("assistive permission denied; sticky until explicit refresh")
	}
	p.evaluate(ctx)
}

// OnDaemonEvent re-evaluates on binder-received / binder-died notifications.
func (p *Probe) OnDaemonEvent(ctx context.Context) {
	p.evaluate(ctx)
}

func (p *Probe) evaluate(ctx context.Context) model.PrivilegeLevel {
	p.mu.Lock()
	denied := p.deniedSticky
	p.mu.Unlock()

	level := model.PrivilegeNone

	switch {
	case hasSUBinary(p.suBinary) && p.rootProbeSucceeds(ctx):
		level = model.PrivilegeRoot
	case !denied && p.daemon != nil && p.daemon.Reachable(ctx):
		uid, err := p.daemon.EffectiveUID(ctx)
		if err == nil && uid == 0 {
			level = model.PrivilegeAssistiveRootMode
		} else if err == nil {
			level = model.PrivilegeAssistiveAdbMode
		}
	}

	p.mu.Lock()
	changed := level != p.current
	p.current = level
	listeners := append([]chan model.PrivilegeLevel(nil), p.listeners...)
	p.mu.Unlock()

	if changed {
		p.logger.Info("privilege level changed", "level", level.String())
		for _, ch := range listeners {
			select {
			case ch <- level:
			default:
				select {
				case <-ch:
				default:
				}
				ch <- level
			}
		}
	}
	return level
}

func hasSUBinary(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

func (p *Probe) rootProbeSucceeds(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := p.runCmd(ctx, p.suBinary, "-c", "id")
	if err != nil {
		return false
	}
	return res.ExitCode == 0 && strings.Contains(res.CombinedOutput, "uid=0")
}

// ExecutePrivileged runs command under whichever channel currently backs the
// privilege level: root su, or the assistive daemon. 5s timeout, draining
// stdout+stderr before waiting, per spec.md §4.2; on timeout exit=-1.
func (p *Probe) ExecutePrivileged(ctx context.Context, command string) ExecResult {
	level := p.Current()
	ctx, cancel := context.WithTimeout(ctx, execTimeout)
	defer cancel()

	switch level {
	case model.PrivilegeRoot:
		res, err := p.runCmd(ctx, p.suBinary, "-c", command)
		if err != nil {
			return ExecResult{ExitCode: -1}
		}
		return res
	case model.PrivilegeAssistiveRootMode, model.PrivilegeAssistiveAdbMode:
		if p.daemon == nil {
			return ExecResult{ExitCode: -1}
		}
		res, err := p.daemon.Execute(ctx, command)
		if err != nil {
			return ExecResult{ExitCode: -1}
		}
		return res
	default:
		return ExecResult{ExitCode: -1, CombinedOutput: "no privilege channel available"}
	}
}
