// Copyright (C) 2026 ShieldCore Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package environment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"shieldcore.dev/fwcore/internal/model"
)

func TestClassifyInterface(t *testing.T) {
	tests := []struct {
		name string
		want model.NetworkType
	}{
		{"wlan0", model.NetworkWifi},
		{"wifi0", model.NetworkWifi},
		{"rmnet_data0", model.NetworkMobile},
		{"ccmni0", model.NetworkMobile},
		{"wwan0", model.NetworkMobile},
		{"pdp_ip0", model.NetworkMobile},
		{"lo", model.NetworkNone},
		{"eth0", model.NetworkNone},
	}
	for _, tc := range tests {
		require.Equal(t, tc.want, ClassifyInterface(tc.name), tc.name)
	}
}

func TestTransportMonitor_PublishIsDistinctUntilChanged(t *testing.T) {
	m := NewTransportMonitor(nil, nil, nil)
	ctx := context.Background()
	ch, cancel := m.Subscribe(ctx)
	defer cancel()
	require.Equal(t, model.NetworkNone, <-ch)

	m.publish(ctx, model.NetworkWifi, "wlan0")
	require.Equal(t, model.NetworkWifi, <-ch)
	require.Equal(t, model.NetworkWifi, m.Current())

	// Same value again: no second emission.
	m.publish(ctx, model.NetworkWifi, "wlan0")
	select {
	case v := <-ch:
		t.Fatalf("unexpected emission of unchanged value %v", v)
	default:
	}
}

func TestTransportMonitor_RoamingFoldedIntoMobile(t *testing.T) {
	roamed := false
	m := NewTransportMonitor(func(link string) bool {
		roamed = true
		return true
	}, nil, nil)

	nt, _ := m.resolveRouteUpdateForTest("rmnet0")
	require.True(t, roamed)
	require.Equal(t, model.NetworkMobileRoaming, nt)
}

// resolveRouteUpdateForTest exercises the classify+roaming fold without a
// real netlink.RouteUpdate, mirroring what resolveRouteUpdate does once a
// link name is known.
func (m *TransportMonitor) resolveRouteUpdateForTest(name string) (model.NetworkType, string) {
	nt := m.classify(name)
	if nt == model.NetworkMobile && m.roaming != nil && m.roaming(name) {
		nt = model.NetworkMobileRoaming
	}
	return nt, name
}
