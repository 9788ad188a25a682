// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package objm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseValidDocument(t *testing.T) {
	data := []byte(`{"type": "hash:net", "options": "family inet hashsize 1024", "values": ["10.0.0.0/24", "192.168.1.0/24"]}`)

	s, err := Parse(data, "blocklist")
	require.NoError(t, err)
	require.Equal(t, TypeHashNet, s.Type)
	require.Equal(t, "blocklist", s.Name)
	require.Len(t, s.Values, 2)
}

func TestParseRejectsUnknownType(t *testing.T) {
	data := []byte(`{"type": "hash:bogus", "values": ["1.2.3.4"]}`)
	_, err := Parse(data, "s1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown ipset type")
}

func TestParseRejectsBadOptionsCharset(t *testing.T) {
	data := []byte(`{"type": "hash:ip", "options": "family inet; rm -rf /", "values": ["1.2.3.4"]}`)
	_, err := Parse(data, "s1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "options")
}

func TestParseAllowsEmptyOptions(t *testing.T) {
	data := []byte(`{"type": "hash:ip", "values": ["1.2.3.4"]}`)
	s, err := Parse(data, "s1")
	require.NoError(t, err)
	require.Empty(t, s.Options)
}

func TestParseRejectsEmptyValue(t *testing.T) {
	data := []byte(`{"type": "hash:ip", "values": ["1.2.3.4", "  "]}`)
	_, err := Parse(data, "s1")
	require.Error(t, err)
}

func TestParseRejectsEmptyName(t *testing.T) {
	data := []byte(`{"type": "hash:ip", "values": ["1.2.3.4"]}`)
	_, err := Parse(data, "")
	require.Error(t, err)
}

func TestParseRejectsInvalidJSON(t *testing.T) {
	_, err := Parse([]byte("not json"), "s1")
	require.Error(t, err)
}

func TestAllEnumeratedTypesAccepted(t *testing.T) {
	types := []Type{
		TypeBitmapIP, TypeBitmapIPMAC, TypeBitmapPort,
		TypeHashIP, TypeHashMAC, TypeHashIPMAC,
		TypeHashNet, TypeHashNetNet, TypeHashIPPort,
		TypeHashNetPort, TypeHashIPPortIP, TypeHashIPPortNet,
		TypeHashIPMark, TypeHashNetPortNet, TypeHashNetIface,
		TypeListSet,
	}
	require.Len(t, types, 16, "must cover every osn_ipset_type member")
	for _, typ := range types {
		require.True(t, validTypes[typ], typ)
	}
}

func TestApplierApplyBuildsRestoreScript(t *testing.T) {
	var gotStdin string
	var gotArgs []string
	applier := &Applier{Run: func(stdin string, args ...string) error {
		gotStdin = stdin
		gotArgs = args
		return nil
	}}

	s := &Set{Name: "blocklist", Type: TypeHashNet, Options: "family inet", Values: []string{"10.0.0.0/24"}}
	require.NoError(t, applier.Apply(s))

	require.Equal(t, []string{"restore"}, gotArgs)
	require.Contains(t, gotStdin, "create blocklist hash:net family inet -exist")
	require.Contains(t, gotStdin, "flush blocklist")
	require.Contains(t, gotStdin, "add blocklist 10.0.0.0/24")
}

func TestApplierApplyOmitsOptionsWhenEmpty(t *testing.T) {
	var gotStdin string
	applier := &Applier{Run: func(stdin string, args ...string) error {
		gotStdin = stdin
		return nil
	}}
	s := &Set{Name: "s1", Type: TypeHashIP, Values: []string{"1.2.3.4"}}
	require.NoError(t, applier.Apply(s))
	require.Contains(t, gotStdin, "create s1 hash:ip -exist")
}

func TestCheckRowTypeMismatch(t *testing.T) {
	s := &Set{Name: "s1", Type: TypeHashNet}
	err := s.CheckRowType("hash:ip")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrTypeMismatch)
}

func TestCheckRowTypeMatch(t *testing.T) {
	s := &Set{Name: "s1", Type: TypeHashNet}
	require.NoError(t, s.CheckRowType("hash:net"))
}

func TestApplierDestroy(t *testing.T) {
	var gotArgs []string
	applier := &Applier{Run: func(stdin string, args ...string) error {
		gotArgs = args
		return nil
	}}
	require.NoError(t, applier.Destroy("blocklist"))
	require.Equal(t, []string{"destroy", "blocklist", "-exist"}, gotArgs)
}
