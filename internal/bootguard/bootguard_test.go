// Copyright (C) 2026 ShieldCore Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package bootguard

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"shieldcore.dev/fwcore/internal/metrics"
)

type fakeExecutor struct {
	commands []string
	exitCode int
}

func (f *fakeExecutor) ExecutePrivileged(ctx context.Context, command string) (int, string) {
	f.commands = append(f.commands, command)
	return f.exitCode, ""
}

func TestTeardownBootRules_IssuesUnlinkFlushDelete(t *testing.T) {
	exec := &fakeExecutor{}
	m := New(t.TempDir(), nil, metrics.NoopRecorder{}, exec)

	err := m.TeardownBootRules(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{
		"nft delete chain inet shieldcore_boot output",
		"nft flush table inet shieldcore_boot",
		"nft delete table inet shieldcore_boot",
	}, exec.commands)
}

func TestTeardownBootRules_TolerantOfAlreadyAbsent(t *testing.T) {
	exec := &fakeExecutor{exitCode: 1}
	m := New(t.TempDir(), nil, metrics.NoopRecorder{}, exec)

	err := m.TeardownBootRules(context.Background())
	require.NoError(t, err, "teardown is best-effort: a non-zero step must not fail the call")
	require.Len(t, exec.commands, 3)
}

func TestTeardownBootRules_NoExecutorWired(t *testing.T) {
	m := New(t.TempDir(), nil, metrics.NoopRecorder{}, nil)

	err := m.TeardownBootRules(context.Background())
	require.Error(t, err)
}
