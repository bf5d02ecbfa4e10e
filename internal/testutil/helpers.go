// Copyright (C) 2026 ShieldCore Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package testutil

import (
	"os"
	"testing"
)

// RequireKernelNetworking skips the test if SHIELDCORE_KERNEL_TEST is unset,
// for tests that need a real nftables/netlink-capable kernel (the
// packetfilter and tunnel backends) rather than a fake Conn/Establisher.
func RequireKernelNetworking(t *testing.T) {
	t.Helper()
	if os.Getenv("SHIELDCORE_KERNEL_TEST") == "" {
		t.Skip("skipping: requires SHIELDCORE_KERNEL_TEST environment")
	}
}
