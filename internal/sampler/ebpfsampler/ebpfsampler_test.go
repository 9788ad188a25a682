// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package ebpfsampler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"grimm.is/flywall/internal/lop"
)

type fakeMap struct {
	entries map[latKey]latValue
	config  uint32
	isKind  bool
}

func (f *fakeMap) Put(key, value any) error {
	if f.isKind {
		f.config = value.(uint32)
		return nil
	}
	f.entries[key.(latKey)] = value.(latValue)
	return nil
}

func (f *fakeMap) Delete(key any) error {
	delete(f.entries, key.(latKey))
	return nil
}

func (f *fakeMap) Iterate() iterator {
	keys := make([]latKey, 0, len(f.entries))
	for k := range f.entries {
		keys = append(keys, k)
	}
	return &fakeIterator{m: f, keys: keys}
}

type fakeIterator struct {
	m    *fakeMap
	keys []latKey
	i    int
}

func (it *fakeIterator) Next(keyOut, valueOut any) bool {
	if it.i >= len(it.keys) {
		return false
	}
	k := it.keys[it.i]
	it.i++
	*keyOut.(*latKey) = k
	*valueOut.(*latValue) = it.m.entries[k]
	return true
}

type fakeCollection struct {
	kindConfig  *fakeMap
	latSamples  *fakeMap
	attachCalls []int
	closed      bool
}

func newFakeCollection() *fakeCollection {
	return &fakeCollection{
		kindConfig: &fakeMap{entries: map[latKey]latValue{}, isKind: true},
		latSamples: &fakeMap{entries: map[latKey]latValue{}},
	}
}

func (f *fakeCollection) KindConfigMap() mapHandle { return f.kindConfig }
func (f *fakeCollection) LatSamplesMap() mapHandle { return f.latSamples }
func (f *fakeCollection) AttachTC(ifindex int) (closer, error) {
	f.attachCalls = append(f.attachCalls, ifindex)
	return &fakeLink{}, nil
}
func (f *fakeCollection) Close() error { f.closed = true; return nil }

type fakeLink struct {
	closed bool
}

func (l *fakeLink) Close() error { l.closed = true; return nil }

func TestSetKindEnabledWritesConfigBitmask(t *testing.T) {
	coll := newFakeCollection()
	s := newWithCollection(coll, nil, nil)

	require.NoError(t, s.SetKindEnabled(lop.KindMin, true))
	require.Equal(t, kindMin, coll.kindConfig.config)

	require.NoError(t, s.SetKindEnabled(lop.KindMax, true))
	require.Equal(t, kindMin|kindMax, coll.kindConfig.config)

	require.NoError(t, s.SetKindEnabled(lop.KindMin, false))
	require.Equal(t, kindMax, coll.kindConfig.config)
}

func TestSetDSCPEnabledSetsBit(t *testing.T) {
	coll := newFakeCollection()
	s := newWithCollection(coll, nil, nil)

	require.NoError(t, s.SetDSCPEnabled(true))
	require.Equal(t, dscpEnabled, coll.kindConfig.config)
	require.NoError(t, s.SetDSCPEnabled(false))
	require.Equal(t, uint32(0), coll.kindConfig.config)
}

func TestSetIfnameEnabledIsIdempotent(t *testing.T) {
	coll := newFakeCollection()
	s := newWithCollection(coll, nil, nil)

	// loopback always exists in test environments.
	require.NoError(t, s.SetIfnameEnabled("lo", true))
	require.NoError(t, s.SetIfnameEnabled("lo", true))
	require.Len(t, coll.attachCalls, 1)

	require.NoError(t, s.SetIfnameEnabled("lo", false))
	require.NoError(t, s.SetIfnameEnabled("lo", false))
}

func TestPollDrainsAndDeletesEntries(t *testing.T) {
	coll := newFakeCollection()
	mac := [6]byte{1, 2, 3, 4, 5, 6}
	key := latKey{Ifindex: 2, MAC: mac, DSCP: 10}
	coll.latSamples.entries[key] = latValue{MinMs: 5, MaxMs: 9, AvgSumMs: 70, AvgCnt: 10, NumPkts: 10}

	var got []lop.RawSample
	s := newWithCollection(coll, func(ifindex uint32, raw lop.RawSample) {
		got = append(got, raw)
	}, nil)

	doneCalled := false
	require.NoError(t, s.Poll(func() { doneCalled = true }))

	require.True(t, doneCalled)
	require.Len(t, got, 1)
	require.Equal(t, uint32(5), got[0].MinMs)
	require.Equal(t, uint32(9), got[0].MaxMs)
	require.Equal(t, uint32(7), got[0].AvgMs)
	require.NotNil(t, got[0].DSCP)
	require.Equal(t, uint8(10), *got[0].DSCP)
	require.Empty(t, coll.latSamples.entries)
}

func TestPollOmitsDSCPWhenZero(t *testing.T) {
	coll := newFakeCollection()
	key := latKey{Ifindex: 1, MAC: [6]byte{9}}
	coll.latSamples.entries[key] = latValue{NumPkts: 1}

	var got []lop.RawSample
	s := newWithCollection(coll, func(ifindex uint32, raw lop.RawSample) {
		got = append(got, raw)
	}, nil)
	require.NoError(t, s.Poll(func() {}))
	require.Len(t, got, 1)
	require.Nil(t, got[0].DSCP)
}

func TestCloseDetachesAllLinks(t *testing.T) {
	coll := newFakeCollection()
	s := newWithCollection(coll, nil, nil)
	require.NoError(t, s.SetIfnameEnabled("lo", true))

	lnk := s.attached["lo"].(*fakeLink)
	require.NoError(t, s.Close())
	require.True(t, lnk.closed)
	require.True(t, coll.closed)
}
