// Copyright (C) 2026 ShieldCore Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package environment

import (
	"context"
	"sync"

	"shieldcore.dev/fwcore/internal/logging"
	"shieldcore.dev/fwcore/internal/model"
)

// ScreenEventSource is pushed screen-on/screen-off transitions by the OS
// adapter (out of scope: the actual ACTION_SCREEN_ON/OFF intent receiver).
// The monitor only needs a channel of raw events; it owns duplicate
// suppression and initial-value semantics, and does not debounce.
type ScreenEventSource interface {
	Events() <-chan model.ScreenState
}

// ScreenMonitor republishes ScreenEventSource transitions as a
// distinct-until-changed, multi-subscriber stream.
type ScreenMonitor struct {
	source ScreenEventSource
	logger *logging.Logger

	mu        sync.Mutex
	current   model.ScreenState
	listeners []chan model.ScreenState
}

// NewScreenMonitor builds a monitor over source, initially assuming the
// screen is on (the conservative assumption at process start, before the
// first event arrives).
func NewScreenMonitor(source ScreenEventSource, logger *logging.Logger) *ScreenMonitor {
	if logger == nil {
		logger = logging.Default().WithComponent("environment.screen")
	}
	return &ScreenMonitor{source: source, logger: logger, current: model.ScreenOn}
}

// Subscribe registers a listener that receives the current value
// immediately, then every subsequent distinct-until-changed transition.
func (m *ScreenMonitor) Subscribe(ctx context.Context) (<-chan model.ScreenState, func()) {
	ch := make(chan model.ScreenState, 1)
	m.mu.Lock()
	ch <- m.current
	m.listeners = append(m.listeners, ch)
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, l := range m.listeners {
			if l == ch {
				m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
				break
			}
		}
	}
	return ch, cancel
}

// Run drains the event source until ctx is done, publishing
// distinct-until-changed transitions to every subscriber.
func (m *ScreenMonitor) Run(ctx context.Context) {
	if m.source == nil {
		m.logger.Warn("no screen event source configured, remaining at initial state")
		return
	}
	events := m.source.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-events:
			if !ok {
				return
			}
			m.publish(s)
		}
	}
}

func (m *ScreenMonitor) publish(s model.ScreenState) {
	m.mu.Lock()
	if s == m.current {
		m.mu.Unlock()
		return
	}
	m.current = s
	listeners := append([]chan model.ScreenState(nil), m.listeners...)
	m.mu.Unlock()

	for _, ch := range listeners {
		select {
		case ch <- s:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- s
		}
	}
}

// Current returns the last published ScreenState.
func (m *ScreenMonitor) Current() model.ScreenState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}
