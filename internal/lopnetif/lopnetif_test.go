// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package lopnetif

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"grimm.is/flywall/internal/lop"
	"grimm.is/flywall/internal/netif"
)

type fakeSampler struct {
	ifnameEnabled map[string]bool
}

func newFakeSampler() *fakeSampler {
	return &fakeSampler{ifnameEnabled: make(map[string]bool)}
}

func (f *fakeSampler) SetKindEnabled(kind lop.Kind, enabled bool) error { return nil }
func (f *fakeSampler) SetDSCPEnabled(enabled bool) error                { return nil }
func (f *fakeSampler) SetIfnameEnabled(ifname string, enabled bool) error {
	f.ifnameEnabled[ifname] = enabled
	return nil
}
func (f *fakeSampler) Poll(done func()) error { done(); return nil }

func TestBridgeDrivesMLDReResolutionOnVifExistsFlip(t *testing.T) {
	sampler := newFakeSampler()
	core := lop.NewCore(context.Background(), sampler, nil, nil)
	s := core.NewStream()
	s.SetIfname("mld0", true, "")

	core.SetVifMLDIfName("wlan0-24", "mld0")
	core.SetVifMLDIfName("wlan0-5", "mld0")

	NewBridge(core).OnNetifEvent(netif.Event{IfName: "wlan0-24", Exists: true, Up: true})
	NewBridge(core).OnNetifEvent(netif.Event{IfName: "wlan0-5", Exists: true, Up: true})

	require.True(t, sampler.ifnameEnabled["wlan0-24"])
	require.True(t, sampler.ifnameEnabled["wlan0-5"])

	NewBridge(core).OnNetifEvent(netif.Event{IfName: "wlan0-5", Exists: false})
	require.False(t, sampler.ifnameEnabled["wlan0-5"])
	require.True(t, sampler.ifnameEnabled["wlan0-24"])
}

func TestAttachSubscribesBridgeToObserver(t *testing.T) {
	sampler := newFakeSampler()
	core := lop.NewCore(context.Background(), sampler, nil, nil)
	s := core.NewStream()
	s.SetIfname("eth1", true, "")

	obs := netif.NewObserverWithSource(nil, nil)
	b := Attach(obs, core)
	require.NotNil(t, b)

	// eth1 has no MLD binding, so its netdev set is {eth1} whether or
	// not it exists: sampling stays enabled.
	b.OnNetifEvent(netif.Event{IfName: "eth1", Exists: false})
	require.True(t, sampler.ifnameEnabled["eth1"])
}
