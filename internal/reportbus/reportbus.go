// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package reportbus serializes internal/lop reports to the length-
// prefixed wire format external collaborators expect and hands the
// resulting frames to a bounded, fire-and-forget send queue. Sending is
// best-effort: a full queue drops the oldest queued frame rather than
// blocking the caller, since the caller is internal/lop's report
// callback running on the poll/report loop.
package reportbus

import (
	"github.com/google/uuid"
	"grimm.is/flywall/internal/logging"
	"grimm.is/flywall/internal/lop"
)

// Sender hands a wire-encoded frame to the transport. Implementations
// are expected to be non-blocking or to fail fast; Bus never retries a
// failed send, matching spec.md's "send failure is logged, the host
// records are still freed" requirement.
type Sender interface {
	Send(frame []byte) error
}

// Bus owns a node identity and a bounded send queue, and exposes a
// lop.ReportFunc suitable for Stream.SetReportFn.
type Bus struct {
	nodeID string
	sender Sender
	logger *logging.Logger

	queue chan []byte
	done  chan struct{}
}

// New creates a Bus with a fresh random node id and starts its drain
// goroutine. queueLen bounds the number of frames held before the
// oldest is dropped to make room for a new one.
func New(sender Sender, queueLen int, logger *logging.Logger) *Bus {
	if logger == nil {
		logger = logging.WithComponent("reportbus")
	}
	if queueLen <= 0 {
		queueLen = 64
	}
	b := &Bus{
		nodeID: uuid.NewString(),
		sender: sender,
		logger: logger,
		queue:  make(chan []byte, queueLen),
		done:   make(chan struct{}),
	}
	go b.drain()
	return b
}

// NodeID returns this bus's node identity, stamped into every Report.
func (b *Bus) NodeID() string { return b.nodeID }

// ReportFunc is installed as a Stream's report callback. It encodes the
// chunk (already bounded to <=64 hosts by internal/lop) into a single
// Report frame and enqueues it; the queue send never blocks.
func (b *Bus) ReportFunc(hosts []*lop.Host, userdata any) {
	frame := EncodeReport(b.nodeID, hosts)
	b.enqueue(frame)
}

func (b *Bus) enqueue(frame []byte) {
	select {
	case b.queue <- frame:
		return
	default:
	}
	// Queue full: drop the oldest frame to make room, per spec.md's
	// bounded-memory send queue.
	select {
	case <-b.queue:
	default:
	}
	select {
	case b.queue <- frame:
	default:
		b.logger.Warn("reportbus: send queue full, dropping frame")
	}
}

func (b *Bus) drain() {
	defer close(b.done)
	for frame := range b.queue {
		if err := b.sender.Send(frame); err != nil {
			b.logger.Warn("reportbus: send failed", "err", err)
		}
	}
}

// Close stops accepting new frames and waits for the drain goroutine to
// finish flushing what is already queued.
func (b *Bus) Close() {
	close(b.queue)
	<-b.done
}
