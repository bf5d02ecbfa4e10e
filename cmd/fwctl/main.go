// Copyright (C) 2026 ShieldCore Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Command fwctl is the per-application network firewall core: a "daemon"
// subcommand runs the long-lived enforcement process, and a handful of
// short-lived client subcommands (start/stop/status/plan/dashboard) drive
// it over its admin HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shieldcore.dev/fwcore/internal/tui"

	tea "github.com/charmbracelet/bubbletea"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "daemon":
		fs := flag.NewFlagSet("daemon", flag.ExitOnError)
		fs.Parse(os.Args[2:])
		configPath := defaultConfigPath()
		if fs.NArg() > 0 {
			configPath = fs.Arg(0)
		}
		err = runDaemon(configPath)
	case "start":
		fs := flag.NewFlagSet("start", flag.ExitOnError)
		mode := fs.String("mode", "auto", "backend mode: auto, tunnel, packet_filter, conn_mgr, net_policy")
		addr := fs.String("addr", defaultAdminAddr(), "admin API address")
		fs.Parse(os.Args[2:])
		configPath := defaultConfigPath()
		if fs.NArg() > 0 {
			configPath = fs.Arg(0)
		}
		err = cmdStart(configPath, *addr, *mode)
	case "stop":
		fs := flag.NewFlagSet("stop", flag.ExitOnError)
		addr := fs.String("addr", defaultAdminAddr(), "admin API address")
		fs.Parse(os.Args[2:])
		err = runStop(context.Background(), *addr)
	case "status":
		fs := flag.NewFlagSet("status", flag.ExitOnError)
		addr := fs.String("addr", defaultAdminAddr(), "admin API address")
		fs.Parse(os.Args[2:])
		err = runStatus(context.Background(), *addr)
	case "plan":
		fs := flag.NewFlagSet("plan", flag.ExitOnError)
		mode := fs.String("mode", "", "backend mode to plan for (defaults to auto)")
		addr := fs.String("addr", defaultAdminAddr(), "admin API address")
		fs.Parse(os.Args[2:])
		err = runPlan(context.Background(), *addr, *mode)
	case "dashboard":
		fs := flag.NewFlagSet("dashboard", flag.ExitOnError)
		addr := fs.String("addr", defaultAdminAddr(), "admin API address")
		fs.Parse(os.Args[2:])
		err = runDashboard(*addr)
	case "-h", "--help", "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `fwctl - per-application network firewall core

Usage:
  fwctl daemon [config-path]       run the enforcement daemon in the foreground
  fwctl start [config-path]        fork the daemon if needed, then enable enforcement
  fwctl stop                       disable enforcement (daemon keeps running)
  fwctl status                     print the current FirewallState
  fwctl plan [-mode MODE]          print which backend would be chosen
  fwctl dashboard                  open the status dashboard against a running daemon`)
}

func defaultAdminAddr() string {
	if addr := os.Getenv("SHIELDCORE_ADMINAPI_ADDR"); addr != "" {
		return addr
	}
	return "127.0.0.1:8443"
}

// cmdStart forks the daemon process if one isn't already running (by PID
// file), then calls the admin API to transition FirewallState out of
// Stopped. Forking and enabling are separate steps because the daemon may
// already be up with enforcement merely paused.
func cmdStart(configPath, addr, mode string) error {
	if err := runStart(configPath); err != nil {
		if !alreadyRunning(err) {
			return err
		}
		fmt.Println(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for {
		if err := runEnable(ctx, addr, mode); err == nil {
			return nil
		} else if ctx.Err() != nil {
			return fmt.Errorf("daemon did not become reachable: %w", err)
		}
		time.Sleep(200 * time.Millisecond)
	}
}

func alreadyRunning(err error) bool {
	return err != nil && len(err.Error()) > 0 && containsAlreadyRunning(err.Error())
}

func containsAlreadyRunning(s string) bool {
	const needle = "already running"
	for i := 0; i+len(needle) <= len(s); i++ {
		if s[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}

func runDashboard(addr string) error {
	backend := tui.NewRemoteBackend("http://"+addr, false)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	model := tui.NewModel(ctx, backend)
	program := tea.NewProgram(model, tea.WithAltScreen())
	_, err := program.Run()
	return err
}
