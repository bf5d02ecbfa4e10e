// Copyright (C) 2026 ShieldCore Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"shieldcore.dev/fwcore/internal/model"
)

func TestRecorder_SetBackendActive(t *testing.T) {
	r := NewRecorder()
	require.NotPanics(t, func() {
		r.SetBackendActive(model.BackendTunnel, true)
		r.SetBackendActive(model.BackendTunnel, false)
	})
}

func TestRecorder_ObserveApply(t *testing.T) {
	r := NewRecorder()
	require.NotPanics(t, func() {
		r.ObserveApply(model.BackendPacketFilter, 10*time.Millisecond, nil)
		r.ObserveApply(model.BackendPacketFilter, 10*time.Millisecond, errTest)
	})
}

func TestRecorder_HealthCheckOutcomes(t *testing.T) {
	r := NewRecorder()
	require.NotPanics(t, func() {
		r.ObserveHealthCheck(model.BackendConnMgr, true)
		r.ObserveHealthCheck(model.BackendConnMgr, false)
	})
}

func TestNoopRecorder_DoesNothing(t *testing.T) {
	var r Recorder = NoopRecorder{}
	require.NotPanics(t, func() {
		r.SetBackendActive(model.BackendNetPolicy, true)
		r.ObserveApply(model.BackendNetPolicy, time.Second, nil)
		r.SetBlockedSetSize(3)
		r.IncFailover()
		r.ObserveHealthCheck(model.BackendNetPolicy, true)
		r.SetPrivilegeLevel(model.PrivilegeNone)
		r.SetOrchestratorMode(model.ModeAuto)
		r.SetBootGuardEnabled(true)
	})
}

var errTest = &testError{"boom"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
