// Copyright (C) 2026 ShieldCore Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package metrics exposes the firewall core's Prometheus metrics: backend
// state, blocked-set size, apply latency, failovers, and health-check
// outcomes. Collection is push-based — the orchestrator and boot guard call
// the Registry directly from the places that already know these facts,
// there is no separate polling collector.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds every metric the firewall core exports.
type Registry struct {
	BackendActive    *prometheus.GaugeVec
	BlockedSetSize   prometheus.Gauge
	ApplyDuration    *prometheus.HistogramVec
	ApplyFailures    *prometheus.CounterVec
	Failovers        prometheus.Counter
	HealthChecks     *prometheus.CounterVec
	PrivilegeLevel   prometheus.Gauge
	OrchestratorMode prometheus.Gauge
	BootGuardEnabled prometheus.Gauge
}

var (
	once     sync.Once
	registry *Registry
)

// Get returns the process-wide Registry, building and registering it with
// the default Prometheus registerer on first use.
func Get() *Registry {
	once.Do(func() {
		registry = newRegistry()
		registry.mustRegister()
	})
	return registry
}

func newRegistry() *Registry {
	return &Registry{
		BackendActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fwcore_backend_active",
			Help: "Whether a given enforcement backend is currently active (1) or not (0).",
		}, []string{"backend"}),
		BlockedSetSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fwcore_blocked_set_size",
			Help: "Number of app UIDs currently denied network access.",
		}),
		ApplyDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fwcore_apply_duration_seconds",
			Help:    "Time taken to apply a blocked-set diff to a backend.",
			Buckets: prometheus.DefBuckets,
		}, []string{"backend"}),
		ApplyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fwcore_apply_failures_total",
			Help: "Total number of failed blocked-set apply attempts.",
		}, []string{"backend"}),
		Failovers: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fwcore_failovers_total",
			Help: "Total number of new-before-old backend swaps performed by the orchestrator.",
		}),
		HealthChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fwcore_health_checks_total",
			Help: "Total number of backend health checks, partitioned by outcome.",
		}, []string{"backend", "outcome"}),
		PrivilegeLevel: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fwcore_privilege_level",
			Help: "Current privilege level as an ordinal (higher is more privileged).",
		}),
		OrchestratorMode: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fwcore_orchestrator_mode",
			Help: "Configured firewall mode as an ordinal (Auto, Tunnel, PacketFilter, ConnMgr, NetPolicy).",
		}),
		BootGuardEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fwcore_boot_guard_enabled",
			Help: "Whether the boot-time block script is currently installed (1) or not (0).",
		}),
	}
}

func (r *Registry) mustRegister() {
	prometheus.MustRegister(
		r.BackendActive,
		r.BlockedSetSize,
		r.ApplyDuration,
		r.ApplyFailures,
		r.Failovers,
		r.HealthChecks,
		r.PrivilegeLevel,
		r.OrchestratorMode,
		r.BootGuardEnabled,
	)
}
