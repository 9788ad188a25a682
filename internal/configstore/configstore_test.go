// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package configstore

import (
	"testing"

	"github.com/stretchr/testify/require"
	"grimm.is/flywall/internal/config"
	"grimm.is/flywall/internal/logging"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore("wan0", &fakeThermalFactory{}, newTestCore(), logging.WithComponent("test"))
}

func TestStoreApplyAppliesEachTable(t *testing.T) {
	s := newTestStore(t)

	cfg := &config.Config{
		MapRules:      []config.MapRule{{Name: "bmr", Type: "map-t", IPv6Prefix: "2001:db8::/40", IPv4Prefix: "192.0.2.0/24", EALen: 16}},
		ThermalTables: []config.ThermalTable{testThermalTable("t1")},
		LatencyStreams: []config.LatencyStream{
			{Name: "s1", Ifnames: []string{"wan0"}, Kinds: []string{"min"}, PollMs: 1000, ReportMs: 10000},
		},
	}

	require.NoError(t, s.Apply(cfg))

	st, ok := s.Status("map")
	require.True(t, ok)
	require.True(t, st.Applied, "map row has no end-user prefix yet, but a bare rule-list apply with no enduser set should not fail")

	st, ok = s.Status("thermal_table.t1")
	require.True(t, ok)
	require.True(t, st.Applied)

	st, ok = s.Status("latency_stream.s1")
	require.True(t, ok)
	require.True(t, st.Applied)

	require.Len(t, s.latencyStore.streams, 1)
	require.Len(t, s.thermalStore.loops, 1)
}

func TestStoreApplyIsIdempotentWithoutChanges(t *testing.T) {
	s := newTestStore(t)
	cfg := &config.Config{ThermalTables: []config.ThermalTable{testThermalTable("t1")}}

	require.NoError(t, s.Apply(cfg))
	require.Len(t, s.thermalStore.loops, 1)
	first := s.thermalStore.loops["t1"]

	// Reapplying the identical config produces no diff, so the thermal
	// loop started on the first Apply must still be the same one (not
	// torn down and rebuilt).
	require.NoError(t, s.Apply(cfg))
	require.Len(t, s.thermalStore.loops, 1)
	require.Same(t, first, s.thermalStore.loops["t1"])
}

func TestStoreSetEndUserPrefixDrivesMapApply(t *testing.T) {
	s := newTestStore(t)
	cfg := &config.Config{
		MapRules: []config.MapRule{{Name: "bmr", Type: "map-t", IPv6Prefix: "2001:db8::/40", IPv4Prefix: "192.0.2.0/24", EALen: 16}},
	}
	require.NoError(t, s.Apply(cfg))

	addr := ipv6Bytes(t, "2001:db8:12:3400::")
	require.NoError(t, s.SetEndUserPrefix(addr, 56))

	st, ok := s.Status("map")
	require.True(t, ok)
	require.True(t, st.Applied)
}

func TestStoreCloseStopsEverything(t *testing.T) {
	s := newTestStore(t)
	cfg := &config.Config{
		ThermalTables: []config.ThermalTable{testThermalTable("t1")},
		LatencyStreams: []config.LatencyStream{
			{Name: "s1", Ifnames: []string{"wan0"}},
		},
	}
	require.NoError(t, s.Apply(cfg))
	require.NoError(t, s.Close())
	require.Len(t, s.thermalStore.loops, 0)
	require.Len(t, s.latencyStore.streams, 0)
}
