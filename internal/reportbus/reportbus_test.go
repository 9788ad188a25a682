// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package reportbus

import (
	"encoding/binary"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"grimm.is/flywall/internal/logging"
	"grimm.is/flywall/internal/lop"
)

func u32(v uint32) *uint32 { return &v }

func TestEncodeReportOmitsUnsetOptionalFields(t *testing.T) {
	host := &lop.Host{
		Key:         lop.HostKey{IfName: "wan0", MAC: [6]byte{1, 2, 3, 4, 5, 6}, DSCP: lop.DSCPNone},
		TimestampMs: 1000,
		Samples: []lop.Sample{
			{Min: u32(10), TimestampMs: 1000},
		},
	}

	frame := EncodeReport("node-1", []*lop.Host{host})
	require.Equal(t, int(binary.BigEndian.Uint32(frame[:4])), len(frame)-4, "length prefix must match body length")

	// flags byte for the sample should only have sampleMin and
	// sampleHasStamp set, since Max/Avg/Last/NumPkts were never
	// observed and must be omitted rather than written as zero.
	// Body layout: node id (len 1 + 6 bytes) at 4, host count at 11,
	// host flags at 12, mac 13-18, ifname (len 1 + 4 bytes) 19-23,
	// host timestamp 24-31, sample count at 32, sample flags at 33.
	hostFlags := frame[12]
	require.Equal(t, uint8(0), hostFlags&hostDSCPPresent, "DSCPNone must not be reported as present")
	require.Equal(t, sampleMin|sampleHasStamp, frame[33])
}

func TestClassifyDSCP(t *testing.T) {
	state, _ := classifyDSCP(lop.DSCPNone)
	require.Equal(t, dscpAbsent, state)

	state, _ = classifyDSCP(lop.DSCPMissing)
	require.Equal(t, dscpMissing, state)

	state, val := classifyDSCP(46)
	require.Equal(t, dscpPresent, state)
	require.Equal(t, uint8(46), val)
}

type fakeSender struct {
	mu    sync.Mutex
	sent  [][]byte
	sends chan struct{}
}

func newFakeSender() *fakeSender {
	return &fakeSender{sends: make(chan struct{}, 64)}
}

func (f *fakeSender) Send(frame []byte) error {
	f.mu.Lock()
	f.sent = append(f.sent, frame)
	f.mu.Unlock()
	f.sends <- struct{}{}
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func TestBusReportFuncSendsFrame(t *testing.T) {
	sender := newFakeSender()
	bus := New(sender, 4, logging.WithComponent("test"))
	defer bus.Close()

	require.NotEmpty(t, bus.NodeID())

	host := &lop.Host{Key: lop.HostKey{IfName: "wan0", MAC: [6]byte{1}}}
	bus.ReportFunc([]*lop.Host{host}, nil)

	<-sender.sends
	require.Equal(t, 1, sender.count())
}

func TestBusDropsOldestWhenQueueFull(t *testing.T) {
	bus := &Bus{
		nodeID: "node-1",
		logger: logging.WithComponent("test"),
		queue:  make(chan []byte, 2),
		done:   make(chan struct{}),
	}
	close(bus.done) // no drain goroutine; we inspect the queue directly

	bus.enqueue([]byte("a"))
	bus.enqueue([]byte("b"))
	bus.enqueue([]byte("c"))

	require.Len(t, bus.queue, 2)
	first := <-bus.queue
	require.Equal(t, []byte("b"), first, "oldest frame should have been dropped to make room")
}
