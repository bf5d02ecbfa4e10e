// Copyright (C) 2026 ShieldCore Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package environment hosts the two independent monitors that feed the
// orchestrator: the transport monitor (C1) tracking the active default
// route, and the screen-state monitor. Both are distinct-until-changed
// and never fail permanently — transient OS errors keep the last-known
// value, per spec.md §4.1. Only the transport monitor is debounced.
package environment

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/vishvananda/netlink"

	"shieldcore.dev/fwcore/internal/logging"
	"shieldcore.dev/fwcore/internal/model"
)

// debounce is the minimum spacing between transport-change emissions,
// per spec.md §4.1.
const debounce = 100 * time.Millisecond

// Netlinker is the seam over vishvananda/netlink so tests can inject a fake
// without a real kernel netlink socket, mirroring this codebase's existing
// RealNetlinker/fake-netlinker convention.
type Netlinker interface {
	RouteList(link netlink.Link, family int) ([]netlink.Route, error)
	RouteSubscribe(ch chan<- netlink.RouteUpdate, done <-chan struct{}) error
	LinkByIndex(index int) (netlink.Link, error)
}

type realNetlinker struct{}

func (realNetlinker) RouteList(link netlink.Link, family int) ([]netlink.Route, error) {
	return netlink.RouteList(link, family)
}
func (realNetlinker) RouteSubscribe(ch chan<- netlink.RouteUpdate, done <-chan struct{}) error {
	return netlink.RouteSubscribe(ch, done)
}
func (realNetlinker) LinkByIndex(index int) (netlink.Link, error) {
	return netlink.LinkByIndex(index)
}

// RoamingDetector reports whether the link currently classified as Mobile is
// roaming. The OS adapter (out of scope) owns the actual roaming flag;
// this seam lets the transport monitor fold it into NetworkType without
// depending on the adapter's concrete type.
type RoamingDetector func(linkName string) bool

// TransportMonitor tracks the active default-route transport and publishes
// distinct-until-changed, debounced NetworkType values.
type TransportMonitor struct {
	nl       Netlinker
	roaming  RoamingDetector
	probe    *ConnectivityProbe
	logger   *logging.Logger
	classify func(linkName string) model.NetworkType

	mu        sync.Mutex
	current   model.NetworkType
	listeners []chan model.NetworkType
}

// NewTransportMonitor builds a monitor with the real netlink backend. probe
// corroborates every emitted change with a DNS+ICMP check and, for a
// MobileRoaming link, the NDP gateway check in probe.go; it may be nil to
// skip those checks (tests, or deployments without the canary reachable).
// The ethtool driver check for unrecognized interface names runs either way.
func NewTransportMonitor(roaming RoamingDetector, probe *ConnectivityProbe, logger *logging.Logger) *TransportMonitor {
	if logger == nil {
		logger = logging.Default().WithComponent("environment.transport")
	}
	return &TransportMonitor{
		nl:       realNetlinker{},
		roaming:  roaming,
		probe:    probe,
		logger:   logger,
		classify: ClassifyInterface,
		current:  model.NetworkNone,
	}
}

// ClassifyInterface maps an interface name to a NetworkType using common
// Android/Linux naming conventions. MobileRoaming is resolved separately by
// the configured RoamingDetector once a link classifies as Mobile.
func ClassifyInterface(name string) model.NetworkType {
	switch {
	case strings.HasPrefix(name, "wlan"), strings.HasPrefix(name, "wifi"):
		return model.NetworkWifi
	case strings.HasPrefix(name, "rmnet"), strings.HasPrefix(name, "ccmni"),
		strings.HasPrefix(name, "wwan"), strings.HasPrefix(name, "pdp"):
		return model.NetworkMobile
	default:
		return model.NetworkNone
	}
}

// Subscribe registers a listener channel that receives the current value
// immediately, then every subsequent distinct-until-changed update. The
// returned cancel func unregisters the listener.
func (m *TransportMonitor) Subscribe(ctx context.Context) (<-chan model.NetworkType, func()) {
	ch := make(chan model.NetworkType, 1)
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

// Run subscribes to netlink route updates and publishes debounced,
// distinct-until-changed NetworkType values until ctx is done. Transient
// netlink errors are logged and the last-known value is retained.
func (m *TransportMonitor) Run(ctx context.Context) {
	updates := make(chan netlink.RouteUpdate)
	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(done)
	}()

	if err := m.nl.RouteSubscribe(updates, done); err != nil {
		m.logger.Warn("route subscribe failed, retaining last known transport", "error", err)
		return
	}

	var debounceTimer *time.Timer
	var pending model.NetworkType
	var pendingLink string
	havePending := false

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			nt, linkName := m.resolveRouteUpdate(u)
			pending = nt
			pendingLink = linkName
			havePending = true
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounce, func() {
				if havePending {
					m.publish(ctx, pending, pendingLink)
				}
			})
		}
	}
}

func (m *TransportMonitor) resolveRouteUpdate(u netlink.RouteUpdate) (model.NetworkType, string) {
	link, err := m.nl.LinkByIndex(u.Route.LinkIndex)
	if err != nil {
		m.logger.Debug("could not resolve link for route update, keeping last known transport", "error", err)
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.current, ""
	}
	name := link.Attrs().Name
	nt := m.classify(name)
	if nt == model.NetworkNone {
		// Interface-name prefix classification is a closed list; an
		// unrecognized name is ambiguous, so corroborate against the NIC
		// driver before settling on "no transport" per SPEC_FULL.md §4.1.
		if mobile, err := DriverCorroboratesMobile(name); err == nil && mobile {
			nt = model.NetworkMobile
		}
	}
	if nt == model.NetworkMobile && m.roaming != nil && m.roaming(name) {
		nt = model.NetworkMobileRoaming
	}
	return nt, name
}

// publish applies the distinct-until-changed gate, fans the new value out
// to subscribers, then kicks off best-effort corroboration: the probe
// never gates emission (it already happened above) and every failure is
// logged, never returned, per ConnectivityProbe's contract.
func (m *TransportMonitor) publish(ctx context.Context, nt model.NetworkType, linkName string) {
	m.mu.Lock()
	if nt == m.current {
		m.mu.Unlock()
		return
	}
	m.current = nt
	listeners := append([]chan model.NetworkType(nil), m.listeners...)
	m.mu.Unlock()

	for _, ch := range listeners {
		select {
		case ch <- nt:
		default:
			// Slow consumer: drop the stale value, distinct-until-changed
			// semantics mean the next emission supersedes it anyway.
			select {
			case <-ch:
			default:
			}
			ch <- nt
		}
	}

	if m.probe != nil {
		go m.corroborate(ctx, nt, linkName)
	}
}

// corroborate issues the connectivity probe (and, for a roaming-capable
// mobile link, an IPv6 router-solicitation check) for diagnostic logging
// only — it never revises an already-published NetworkType.
func (m *TransportMonitor) corroborate(ctx context.Context, nt model.NetworkType, linkName string) {
	result := m.probe.Probe(ctx)
	if !result.DNSOk && !result.ICMPOk {
		m.logger.Warn("transport change not corroborated by connectivity probe", "transport", nt.String(), "link", linkName)
	} else {
		m.logger.Debug("transport change corroborated", "transport", nt.String(), "dns_ok", result.DNSOk, "icmp_ok", result.ICMPOk)
	}

	if nt == model.NetworkMobileRoaming && linkName != "" {
		ok, err := ConfirmIPv6Gateway(linkName, 2*time.Second)
		if err != nil {
			m.logger.Debug("ipv6 gateway confirmation failed", "link", linkName, "error", err)
		} else if !ok {
			m.logger.Debug("roaming link has no confirmed ipv6 gateway", "link", linkName)
		}
	}
}

// Current returns the last published NetworkType.
func (m *TransportMonitor) Current() model.NetworkType {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}
