// Copyright (C) 2026 ShieldCore Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package audit records the firewall core's enforcement-decision and
// privilege-transition trail: every BlockedSet change, backend failover,
// and privilege level change, each correlated by a UUID so a later
// FirewallState::Error can be traced back to what led to it.
package audit

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pmezard/go-difflib/difflib"

	"shieldcore.dev/fwcore/internal/logging"
	"shieldcore.dev/fwcore/internal/model"
)

// EventType categorizes one audit entry.
type EventType string

const (
	EventPrivilegeChanged EventType = "privilege_changed"
	EventBlockedSetApplied EventType = "blocked_set_applied"
	EventBackendStarted   EventType = "backend_started"
	EventBackendStopped   EventType = "backend_stopped"
	EventFailover         EventType = "failover"
	EventBootGuardToggled EventType = "boot_guard_toggled"
	EventAlertRaised      EventType = "alert_raised"
)

// Severity mirrors the teacher's audit severity levels.
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

// Event is one audit log entry.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	EventType EventType `json:"event_type"`
	Severity  Severity  `json:"severity"`
	Summary   string    `json:"summary"`
	Detail    string    `json:"detail,omitempty"`
}

// Logger records audit events to a structured logger and, via Subscribe,
// to any number of in-process listeners.
type Logger struct {
	logger *logging.Logger

	mu        sync.Mutex
	listeners []chan Event
}

// NewLogger builds an audit Logger writing through logger.
func NewLogger(logger *logging.Logger) *Logger {
	if logger == nil {
		logger = logging.Default().WithComponent("audit")
	}
	return &Logger{logger: logger}
}

// Subscribe registers a listener for every emitted Event.
func (l *Logger) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)
	l.mu.Lock()
	l.listeners = append(l.listeners, ch)
	l.mu.Unlock()
	cancel := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		for i, c := range l.listeners {
			if c == ch {
				l.listeners = append(l.listeners[:i], l.listeners[i+1:]...)
				break
			}
		}
	}
	return ch, cancel
}

func (l *Logger) emit(event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	switch event.Severity {
	case SeverityWarn:
		l.logger.Warn("AUDIT", "id", event.ID, "type", event.EventType, "summary", event.Summary)
	case SeverityError:
		l.logger.Error("AUDIT", "id", event.ID, "type", event.EventType, "summary", event.Summary)
	default:
		l.logger.Info("AUDIT", "id", event.ID, "type", event.EventType, "summary", event.Summary)
	}

	l.mu.Lock()
	listeners := append([]chan Event(nil), l.listeners...)
	l.mu.Unlock()
	for _, ch := range listeners {
		select {
		case ch <- event:
		default:
		}
	}
}

// LogPrivilegeChange records a PrivilegeLevel transition.
func (l *Logger) LogPrivilegeChange(from, to model.PrivilegeLevel) {
	l.emit(Event{
		EventType: EventPrivilegeChanged,
		Severity:  SeverityInfo,
		Summary:   fmt.Sprintf("privilege level %s -> %s", from.String(), to.String()),
	})
}

// LogBlockedSetApplied records one diff-based apply call, with a
// human-readable unified diff of the before/after UID set for the detail
// field (useful when investigating an unexpected ApplyFailed).
func (l *Logger) LogBlockedSetApplied(backend model.BackendKind, prev, next model.BlockedSet) {
	detail, err := unifiedUIDDiff(prev, next)
	if err != nil {
		detail = ""
	}
	l.emit(Event{
		EventType: EventBlockedSetApplied,
		Severity:  SeverityInfo,
		Summary:   fmt.Sprintf("%s: applied blocked set (%d uids)", backend.String(), len(next)),
		Detail:    detail,
	})
}

// LogBackendStarted records a successful backend Start.
func (l *Logger) LogBackendStarted(kind model.BackendKind) {
	l.emit(Event{EventType: EventBackendStarted, Severity: SeverityInfo, Summary: kind.String() + " started"})
}

// LogBackendStopped records a backend Stop.
func (l *Logger) LogBackendStopped(kind model.BackendKind) {
	l.emit(Event{EventType: EventBackendStopped, Severity: SeverityInfo, Summary: kind.String() + " stopped"})
}

// LogFailover records a new-before-old backend swap.
func (l *Logger) LogFailover(from, to model.BackendKind, reason string) {
	l.emit(Event{
		EventType: EventFailover,
		Severity:  SeverityWarn,
		Summary:   fmt.Sprintf("failover %s -> %s", from.String(), to.String()),
		Detail:    reason,
	})
}

// LogBootGuardToggled records an enable/disable of the boot-time block.
func (l *Logger) LogBootGuardToggled(enabled bool) {
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	l.emit(Event{EventType: EventBootGuardToggled, Severity: SeverityInfo, Summary: "boot guard " + state})
}

// LogAlert records a user-visible alert raised by the orchestrator.
func (l *Logger) LogAlert(reason string) {
	l.emit(Event{EventType: EventAlertRaised, Severity: SeverityError, Summary: reason})
}

func unifiedUIDDiff(prev, next model.BlockedSet) (string, error) {
	a := sortedUIDLines(prev)
	b := sortedUIDLines(next)
	diff := difflib.UnifiedDiff{
		A:        a,
		B:        b,
		FromFile: "previous",
		ToFile:   "next",
		Context:  0,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func sortedUIDLines(s model.BlockedSet) []string {
	uids := make([]int, 0, len(s))
	for uid := range s {
		uids = append(uids, int(uid))
	}
	for i := 1; i < len(uids); i++ {
		for j := i; j > 0 && uids[j-1] > uids[j]; j-- {
			uids[j-1], uids[j] = uids[j], uids[j-1]
		}
	}
	lines := make([]string, len(uids))
	for i, u := range uids {
		lines[i] = fmt.Sprintf("%d\n", u)
	}
	return lines
}
