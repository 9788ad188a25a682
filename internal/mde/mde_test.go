// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package mde

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func ipv6(hi, lo uint64) [16]byte {
	var b [16]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(hi >> uint(56-8*i))
	}
	for i := 0; i < 8; i++ {
		b[8+i] = byte(lo >> uint(56-8*i))
	}
	return b
}

func ipv4(a, b, c, d byte) [4]byte { return [4]byte{a, b, c, d} }

// rfc7599WorkedRule returns the MAP-T rule used throughout spec.md's
// scenario 1: 2001:db8::/40 + 192.0.2.0/24, ea_len=16, psid_offset=6.
func rfc7599WorkedRule() Rule {
	return Rule{
		IPv6Prefix: IPv6Prefix{Addr: ipv6(0x2001_0db8_0000_0000, 0), Len: 40},
		IPv4Prefix: IPv4Prefix{Addr: ipv4(192, 0, 2, 0), Len: 24},
		EALen:      16,
		PSIDOffset: 6,
		PSID:       -1,
	}
}

func rfc7599EndUserPrefix() IPv6Prefix {
	return IPv6Prefix{Addr: ipv6(0x2001_0db8_0012_3400, 0), Len: 56}
}

func newAppliedMap(t *testing.T, typ Type) *Map {
	t.Helper()
	m := New("map0")
	m.SetType(typ)
	m.SetBMR(rfc7599WorkedRule())
	require.NoError(t, m.SetEndUserPrefix(rfc7599EndUserPrefix()))
	require.NoError(t, m.Apply())
	return m
}

func TestApplyDerivesPSID(t *testing.T) {
	m := newAppliedMap(t, TypeMAPT)
	psid, psidLen, err := m.PSID()
	require.NoError(t, err)
	require.Equal(t, 8, psidLen)
	require.Equal(t, 0x34, psid)
}

func TestApplyDerivesMapIPv4(t *testing.T) {
	m := newAppliedMap(t, TypeMAPT)
	addr, err := m.IPv4()
	require.NoError(t, err)
	require.Equal(t, ipv4(192, 0, 2, 18), addr)
}

func TestApplyDerivesMapIPv6(t *testing.T) {
	m := newAppliedMap(t, TypeMAPT)
	addr, err := m.IPv6()
	require.NoError(t, err)
	require.Equal(t, ipv6(0x2001_0db8_0012_3400, 0x0000_c000_0212_3400), addr)
}

func TestApplyDerivesMapIPv6LegacyDraft3Offset(t *testing.T) {
	m := New("map0")
	m.SetType(TypeMAPT)
	m.SetLegacyDraft3(true)
	m.SetBMR(rfc7599WorkedRule())
	require.NoError(t, m.SetEndUserPrefix(rfc7599EndUserPrefix()))
	require.NoError(t, m.Apply())

	addr, err := m.IPv6()
	require.NoError(t, err)
	// v4offset shifts from 10 to 9: IPv4 bytes now start one octet earlier.
	require.Equal(t, byte(192), addr[9])
	require.Equal(t, byte(0), addr[10])
	require.Equal(t, byte(2), addr[11])
	require.Equal(t, byte(18), addr[12])
}

// Port sets are internally consistent with spec.md §4.2 step 6's formula:
// 2^psid_offset - 1 disjoint ranges, each spanning 2^(16-O-psid_len) ports,
// strictly increasing, every port in [1, 65535].
func TestApplyPortSetsAreConsistent(t *testing.T) {
	m := newAppliedMap(t, TypeMAPT)
	sets, err := m.PortSets()
	require.NoError(t, err)
	require.Len(t, sets, 63) // 2^6 - 1

	width := sets[0].To - sets[0].From + 1
	require.Equal(t, uint16(4), width) // 1 << (16 - 6 - 8)

	var prevTo uint16
	for i, ps := range sets {
		require.GreaterOrEqual(t, ps.From, uint16(1))
		require.LessOrEqual(t, ps.To, uint16(65535))
		require.LessOrEqual(t, ps.From, ps.To)
		require.Equal(t, width, ps.To-ps.From+1)
		if i > 0 {
			require.Greater(t, ps.From, prevTo)
		}
		prevTo = ps.To
	}
	require.Equal(t, uint16(1024), sets[0].From)
	require.Equal(t, uint16(1027), sets[0].To)
}

func TestApplyNoMatchingRule(t *testing.T) {
	m := New("map0")
	m.SetType(TypeMAPE)
	m.SetBMR(rfc7599WorkedRule())
	require.NoError(t, m.SetEndUserPrefix(IPv6Prefix{Addr: ipv6(0x2001_0db9_0000_0000, 0), Len: 56}))
	err := m.Apply()
	require.ErrorIs(t, err, ErrNoMatchingRule)
}

func TestApplyRequiresTypeAndEndUserPrefix(t *testing.T) {
	m := New("map0")
	m.SetBMR(rfc7599WorkedRule())
	require.ErrorIs(t, m.Apply(), ErrUnsupportedType)

	m2 := New("map0")
	m2.SetType(TypeMAPT)
	m2.SetBMR(rfc7599WorkedRule())
	require.ErrorIs(t, m2.Apply(), ErrMissingEndUserPrefix)
}

func TestFindBMRPrefersLongestMatchFirstOnTie(t *testing.T) {
	short := rfc7599WorkedRule()
	short.IPv6Prefix.Len = 32

	longer := rfc7599WorkedRule()
	longer.IPv6Prefix.Len = 40

	sameLenFirst := rfc7599WorkedRule()
	sameLenFirst.IPv6Prefix.Len = 40
	sameLenFirst.EALen = 20 // distinguishable side effect once matched

	rl := NewRuleList()
	rl.Add(short)
	rl.Add(longer)
	rl.Add(sameLenFirst)

	bmr, err := findBMR(rl, rfc7599EndUserPrefix())
	require.NoError(t, err)
	require.Equal(t, 16, bmr.EALen) // "longer" (first /40 rule) wins the tie, not sameLenFirst
}

func TestApplyRejectsInvalidRule(t *testing.T) {
	bad := rfc7599WorkedRule()
	bad.PSIDLen = 20 // explicit psid_len > 16 is invalid

	m := New("map0")
	m.SetType(TypeMAPT)
	m.SetBMR(bad)
	require.NoError(t, m.SetEndUserPrefix(rfc7599EndUserPrefix()))

	err := m.Apply()
	require.ErrorIs(t, err, ErrInvalidRule)
}

func TestDelResetsDerivedState(t *testing.T) {
	m := newAppliedMap(t, TypeMAPT)
	m.Del()

	_, err := m.IPv4()
	require.ErrorIs(t, err, ErrNotApplied)
	_, _, err = m.PSID()
	require.ErrorIs(t, err, ErrNotApplied)
}

func TestApplyIsIdempotent(t *testing.T) {
	m := newAppliedMap(t, TypeMAPT)
	first, err := m.IPv6()
	require.NoError(t, err)

	require.NoError(t, m.Apply())
	second, err := m.IPv6()
	require.NoError(t, err)
	require.Equal(t, first, second)
}
