// Copyright (C) 2026 ShieldCore Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package metrics

import (
	"time"

	"shieldcore.dev/fwcore/internal/model"
)

// Recorder is the narrow seam the orchestrator and boot guard hold instead of
// a *Registry directly, so callers unaware of metrics (tests, alternate
// front-ends) can pass a no-op implementation.
type Recorder interface {
	SetBackendActive(kind model.BackendKind, active bool)
	ObserveApply(kind model.BackendKind, d time.Duration, err error)
	SetBlockedSetSize(n int)
	IncFailover()
	ObserveHealthCheck(kind model.BackendKind, ok bool)
	SetPrivilegeLevel(p model.PrivilegeLevel)
	SetOrchestratorMode(m model.FirewallMode)
	SetBootGuardEnabled(enabled bool)
}

// prometheusRecorder is the Recorder backed by the process Registry.
type prometheusRecorder struct {
	reg *Registry
}

// NewRecorder returns a Recorder backed by the process-wide Registry.
func NewRecorder() Recorder {
	return &prometheusRecorder{reg: Get()}
}

func (p *prometheusRecorder) SetBackendActive(kind model.BackendKind, active bool) {
	v := 0.0
	if active {
		v = 1.0
	}
	p.reg.BackendActive.WithLabelValues(kind.String()).Set(v)
}

func (p *prometheusRecorder) ObserveApply(kind model.BackendKind, d time.Duration, err error) {
	p.reg.ApplyDuration.WithLabelValues(kind.String()).Observe(d.Seconds())
	if err != nil {
		p.reg.ApplyFailures.WithLabelValues(kind.String()).Inc()
	}
}

func (p *prometheusRecorder) SetBlockedSetSize(n int) {
	p.reg.BlockedSetSize.Set(float64(n))
}

func (p *prometheusRecorder) IncFailover() {
	p.reg.Failovers.Inc()
}

func (p *prometheusRecorder) ObserveHealthCheck(kind model.BackendKind, ok bool) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	p.reg.HealthChecks.WithLabelValues(kind.String(), outcome).Inc()
}

func (p *prometheusRecorder) SetPrivilegeLevel(level model.PrivilegeLevel) {
	p.reg.PrivilegeLevel.Set(float64(level))
}

func (p *prometheusRecorder) SetOrchestratorMode(mode model.FirewallMode) {
	p.reg.OrchestratorMode.Set(float64(mode))
}

func (p *prometheusRecorder) SetBootGuardEnabled(enabled bool) {
	v := 0.0
	if enabled {
		v = 1.0
	}
	p.reg.BootGuardEnabled.Set(v)
}

// NoopRecorder discards every observation, for tests and front-ends that
// don't wire Prometheus.
type NoopRecorder struct{}

func (NoopRecorder) SetBackendActive(model.BackendKind, bool)            {}
func (NoopRecorder) ObserveApply(model.BackendKind, time.Duration, error) {}
func (NoopRecorder) SetBlockedSetSize(int)                               {}
func (NoopRecorder) IncFailover()                                        {}
func (NoopRecorder) ObserveHealthCheck(model.BackendKind, bool)          {}
func (NoopRecorder) SetPrivilegeLevel(model.PrivilegeLevel)             {}
func (NoopRecorder) SetOrchestratorMode(model.FirewallMode)             {}
func (NoopRecorder) SetBootGuardEnabled(bool)                           {}
