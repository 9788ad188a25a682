// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package configstore

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"grimm.is/flywall/internal/config"
	"grimm.is/flywall/internal/logging"
	"grimm.is/flywall/internal/mde"
)

func ipv6Bytes(t *testing.T, s string) [16]byte {
	t.Helper()
	ip := net.ParseIP(s)
	require.NotNil(t, ip)
	var out [16]byte
	copy(out[:], ip.To16())
	return out
}

func TestDiffMapRules(t *testing.T) {
	a := config.MapRule{Name: "rule1", Type: "map-t", IPv6Prefix: "2001:db8::/40", IPv4Prefix: "192.0.2.0/24", EALen: 16}
	b := a
	b.EALen = 20

	updates := diffMapRules(nil, []config.MapRule{a})
	require.Len(t, updates, 1)
	require.Equal(t, RowNew, updates[0].Kind)

	updates = diffMapRules([]config.MapRule{a}, []config.MapRule{a})
	require.Len(t, updates, 0, "identical rows produce no update")

	updates = diffMapRules([]config.MapRule{a}, []config.MapRule{b})
	require.Len(t, updates, 1)
	require.Equal(t, RowModify, updates[0].Kind)

	updates = diffMapRules([]config.MapRule{a}, nil)
	require.Len(t, updates, 1)
	require.Equal(t, RowDelete, updates[0].Kind)
}

func TestMapRuleEqualDetectsTypeChange(t *testing.T) {
	a := config.MapRule{Name: "rule1", Type: "map-t"}
	b := a
	b.Type = "map-e"
	require.False(t, mapRuleEqual(a, b))
}

func TestToMDEType(t *testing.T) {
	require.Equal(t, mde.TypeMAPE, toMDEType("map-e"))
	require.Equal(t, mde.TypeMAPT, toMDEType("map-t"))
	require.Equal(t, mde.TypeMAPT, toMDEType(""), "empty type defaults to map-t")
}

// TestMapStoreApplyDerivesAfterEndUserPrefix mirrors spec.md's scenario
// 1: a single BMR plus an end-user prefix within its range derives a
// MAP IPv4/PSID pair once both the rule set and the end-user prefix are
// in place.
func TestMapStoreApplyDerivesAfterEndUserPrefix(t *testing.T) {
	ms := newMapStore("wan0", logging.WithComponent("test"))

	rows := []config.MapRule{{
		Name:       "bmr",
		Type:       "map-t",
		IPv6Prefix: "2001:db8::/40",
		IPv4Prefix: "192.0.2.0/24",
		EALen:      16,
	}}
	require.NoError(t, ms.apply(rows))
	require.Equal(t, mde.TypeMAPT, ms.m.Type(), "apply must set the MAP type before Apply is ever called")

	addr := ipv6Bytes(t, "2001:db8:12:3400::")
	require.NoError(t, ms.setEndUserPrefix(addr, 56))

	_, err := ms.m.IPv4()
	require.NoError(t, err, "derivation should have succeeded once the type and end-user prefix were both set")
}

func TestMapStoreApplySkipsInvalidRule(t *testing.T) {
	ms := newMapStore("wan0", logging.WithComponent("test"))
	rows := []config.MapRule{{Name: "broken", Type: "map-t", IPv6Prefix: "not-a-prefix", IPv4Prefix: "192.0.2.0/24"}}
	require.NoError(t, ms.apply(rows), "invalid rows are logged and skipped, not fatal")
}
