// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package pcapsampler is the simulation/lab backend for internal/lop's
// Sampler capability interface: it opens a raw AF_PACKET socket per
// enabled netdev and measures L2UF-style broadcast loop frames
// (broadcast destination, not IP/IPv6/ARP), the same frame class
// osp_l2uf_pcap.c listens for with a BPF filter. Unlike the kernel TC
// backend, this one carries its own clock reference embedded in the
// frame payload, which only the lab/simulation frame generator
// produces — useful for bench and CI measurement without real
// hardware latency sources.
package pcapsampler

import (
	"encoding/binary"
	"net"
	"sync"
	"time"

	"github.com/mdlayher/packet"

	"grimm.is/flywall/internal/logging"
	"grimm.is/flywall/internal/lop"
)

// etherTypeL2UF is the sentinel EtherType the lab frame generator
// stamps on its loop-measurement frames, chosen from the
// locally-administered experimental range (IEEE 802 "Local
// Experimental Ethertype 1") so it never collides with IP/IPv6/ARP.
const etherTypeL2UF = 0x88B5

// sendTimestampOffset is the frame payload offset of the 8-byte
// big-endian nanosecond send timestamp the lab generator stamps,
// immediately after the 14-byte Ethernet header.
const sendTimestampOffset = 14

// conn abstracts the raw socket operations pcapsampler performs, so
// tests can inject an in-memory fake instead of opening a real
// AF_PACKET socket (which requires CAP_NET_RAW).
type conn interface {
	ReadFrame() (frame []byte, err error)
	Close() error
}

// connOpener opens a conn bound to a named interface. Factored out so
// tests can substitute a fake without touching net.InterfaceByName or
// packet.Listen.
type connOpener func(ifname string) (conn, error)

// OnSampleFunc receives one observed loop-frame measurement, with
// RawSample.IfName already set to the interface it arrived on.
type OnSampleFunc func(raw lop.RawSample)

// Sampler implements lop.Sampler against raw-socket-observed L2UF-style
// broadcast loop frames.
type Sampler struct {
	mu sync.Mutex

	open     connOpener
	onSample OnSampleFunc
	logger   *logging.Logger

	kindMask map[lop.Kind]bool
	dscp     bool

	conns  map[string]conn
	stopCh map[string]chan struct{}
	wg     sync.WaitGroup
}

// New returns a lab-backend Sampler. onSample is invoked (from an
// internal reader goroutine, one per enabled interface) for every
// observed loop frame.
func New(onSample OnSampleFunc, logger *logging.Logger) *Sampler {
	if logger == nil {
		logger = logging.WithComponent("pcapsampler")
	}
	return newWithOpener(realOpen, onSample, logger)
}

func newWithOpener(open connOpener, onSample OnSampleFunc, logger *logging.Logger) *Sampler {
	return &Sampler{
		open:     open,
		onSample: onSample,
		logger:   logger,
		kindMask: make(map[lop.Kind]bool),
		conns:    make(map[string]conn),
		stopCh:   make(map[string]chan struct{}),
	}
}

// SetKindEnabled implements lop.Sampler. The lab backend always
// measures every kind from the same round-trip timestamp; the setting
// is recorded, and observeFrame fills every field regardless of it.
func (s *Sampler) SetKindEnabled(kind lop.Kind, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kindMask[kind] = enabled
	return nil
}

// SetDSCPEnabled implements lop.Sampler. The lab generator's frames
// carry no IP header, so DSCP is always reported as absent regardless
// of this setting; it is still tracked so tests can assert on it.
func (s *Sampler) SetDSCPEnabled(enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dscp = enabled
	return nil
}

// SetIfnameEnabled implements lop.Sampler: it opens (or closes) a raw
// socket on the named interface and starts (or stops) its reader
// goroutine.
func (s *Sampler) SetIfnameEnabled(ifname string, enabled bool) error {
	s.mu.Lock()
	if enabled {
		if _, ok := s.conns[ifname]; ok {
			s.mu.Unlock()
			return nil
		}
		c, err := s.open(ifname)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		stop := make(chan struct{})
		s.conns[ifname] = c
		s.stopCh[ifname] = stop
		s.wg.Add(1)
		go s.readLoop(ifname, c, stop)
		s.mu.Unlock()
		return nil
	}

	c, ok := s.conns[ifname]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	delete(s.conns, ifname)
	stop := s.stopCh[ifname]
	delete(s.stopCh, ifname)
	s.mu.Unlock()

	close(stop)
	return c.Close()
}

// Poll implements lop.Sampler. Observations arrive asynchronously from
// readLoop, so Poll is a no-op beyond signalling completion: there is
// nothing further to fetch on demand.
func (s *Sampler) Poll(done func()) error {
	if done != nil {
		done()
	}
	return nil
}

func (s *Sampler) readLoop(ifname string, c conn, stop chan struct{}) {
	defer s.wg.Done()
	for {
		select {
		case <-stop:
			return
		default:
		}
		frame, err := c.ReadFrame()
		if err != nil {
			select {
			case <-stop:
				return
			default:
				s.logger.Warn("pcapsampler: read error, stopping interface", "ifname", ifname, "err", err)
				return
			}
		}
		if raw, ok := s.observeFrame(frame); ok {
			raw.IfName = ifname
			s.onSample(raw)
		}
	}
}

// observeFrame parses one captured Ethernet frame into a RawSample. It
// returns ok=false for anything that isn't an L2UF-style loop frame
// (broadcast destination, sentinel EtherType, embedded send
// timestamp).
func (s *Sampler) observeFrame(frame []byte) (lop.RawSample, bool) {
	if len(frame) < sendTimestampOffset+8 {
		return lop.RawSample{}, false
	}
	dst := frame[0:6]
	if !isBroadcast(dst) {
		return lop.RawSample{}, false
	}
	etherType := uint16(frame[12])<<8 | uint16(frame[13])
	if etherType != etherTypeL2UF {
		return lop.RawSample{}, false
	}

	var src [6]byte
	copy(src[:], frame[6:12])

	sendNs := binary.BigEndian.Uint64(frame[sendTimestampOffset : sendTimestampOffset+8])
	nowNs := uint64(time.Now().UnixNano())
	var latencyMs uint32
	if nowNs > sendNs {
		latencyMs = uint32((nowNs - sendNs) / uint64(time.Millisecond))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	raw := lop.RawSample{
		MAC:     src,
		MinMs:   latencyMs,
		MaxMs:   latencyMs,
		LastMs:  latencyMs,
		AvgMs:   latencyMs,
		NumPkts: 1,
	}
	return raw, true
}

func isBroadcast(mac []byte) bool {
	for _, b := range mac {
		if b != 0xFF {
			return false
		}
	}
	return true
}

// Close stops every reader goroutine and closes all open sockets.
func (s *Sampler) Close() error {
	s.mu.Lock()
	ifnames := make([]string, 0, len(s.conns))
	for ifname := range s.conns {
		ifnames = append(ifnames, ifname)
	}
	s.mu.Unlock()

	for _, ifname := range ifnames {
		_ = s.SetIfnameEnabled(ifname, false)
	}
	s.wg.Wait()
	return nil
}

func realOpen(ifname string) (conn, error) {
	ifi, err := net.InterfaceByName(ifname)
	if err != nil {
		return nil, err
	}
	c, err := packet.Listen(ifi, packet.Raw, etherTypeL2UF, nil)
	if err != nil {
		return nil, err
	}
	return &realConn{c: c}, nil
}

type realConn struct {
	c *packet.Conn
}

func (r *realConn) ReadFrame() ([]byte, error) {
	buf := make([]byte, 1500)
	n, _, err := r.c.ReadFrom(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func (r *realConn) Close() error { return r.c.Close() }
