// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package pcapsampler

import (
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"grimm.is/flywall/internal/lop"
)

func l2ufFrame(src [6]byte, sendNs uint64) []byte {
	frame := make([]byte, sendTimestampOffset+8)
	for i := 0; i < 6; i++ {
		frame[i] = 0xFF // broadcast destination
	}
	copy(frame[6:12], src[:])
	frame[12] = byte(etherTypeL2UF >> 8)
	frame[13] = byte(etherTypeL2UF)
	binary.BigEndian.PutUint64(frame[sendTimestampOffset:], sendNs)
	return frame
}

type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	idx    int
	closed bool
}

func (c *fakeConn) ReadFrame() ([]byte, error) {
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return nil, errors.New("closed")
		}
		if c.idx < len(c.frames) {
			f := c.frames[c.idx]
			c.idx++
			c.mu.Unlock()
			return f, nil
		}
		c.mu.Unlock()
		time.Sleep(time.Millisecond)
	}
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func TestObserveFrameParsesL2UFLoopFrame(t *testing.T) {
	s := newWithOpener(nil, nil, nil)
	src := [6]byte{1, 2, 3, 4, 5, 6}
	sendNs := uint64(time.Now().Add(-10 * time.Millisecond).UnixNano())
	frame := l2ufFrame(src, sendNs)

	raw, ok := s.observeFrame(frame)
	require.True(t, ok)
	require.Equal(t, src, raw.MAC)
	require.Equal(t, uint32(1), raw.NumPkts)
	require.GreaterOrEqual(t, raw.MinMs, uint32(9))
}

func TestObserveFrameRejectsNonBroadcastAndWrongEtherType(t *testing.T) {
	s := newWithOpener(nil, nil, nil)

	frame := l2ufFrame([6]byte{1}, uint64(time.Now().UnixNano()))
	frame[0] = 0x01 // not broadcast
	_, ok := s.observeFrame(frame)
	require.False(t, ok)

	frame2 := l2ufFrame([6]byte{1}, uint64(time.Now().UnixNano()))
	frame2[12], frame2[13] = 0x08, 0x00 // IPv4 ethertype
	_, ok = s.observeFrame(frame2)
	require.False(t, ok)
}

func TestSetIfnameEnabledStartsAndStopsReaderLoop(t *testing.T) {
	fc := &fakeConn{}
	s := newWithOpener(func(ifname string) (conn, error) {
		return fc, nil
	}, func(raw lop.RawSample) {}, nil)

	require.NoError(t, s.SetIfnameEnabled("wlan0", true))
	require.NoError(t, s.SetIfnameEnabled("wlan0", true)) // idempotent
	require.NoError(t, s.SetIfnameEnabled("wlan0", false))
	require.True(t, fc.closed)
}

func TestReadLoopDeliversParsedSamples(t *testing.T) {
	src := [6]byte{9, 9, 9, 9, 9, 9}
	fc := &fakeConn{frames: [][]byte{l2ufFrame(src, uint64(time.Now().UnixNano()))}}

	var mu sync.Mutex
	var got []lop.RawSample
	s := newWithOpener(func(ifname string) (conn, error) {
		return fc, nil
	}, func(raw lop.RawSample) {
		mu.Lock()
		got = append(got, raw)
		mu.Unlock()
	}, nil)

	require.NoError(t, s.SetIfnameEnabled("eth0", true))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, time.Millisecond)

	mu.Lock()
	require.Equal(t, "eth0", got[0].IfName)
	require.Equal(t, src, got[0].MAC)
	mu.Unlock()

	require.NoError(t, s.Close())
}
