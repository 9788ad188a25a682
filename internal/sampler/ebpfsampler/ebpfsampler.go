// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package ebpfsampler is the real (kernel) backend for internal/lop's
// Sampler capability interface. It attaches a TC classifier program to
// every netdev a stream enables, timestamps frames in-kernel keyed by
// (ifindex, mac, dscp), and drains the resulting aggregation map on
// every Poll.
package ebpfsampler

//go:generate go run github.com/cilium/ebpf/cmd/bpf2go@latest --no-strip --target=bpfel LatSampler c/lat_sampler.c -- -O2 -target bpf -I.

import (
	"fmt"
	"net"
	"sync"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"

	"grimm.is/flywall/internal/logging"
	"grimm.is/flywall/internal/lop"
)

const (
	kindMin       uint32 = 1 << 0
	kindMax       uint32 = 1 << 1
	kindAvg       uint32 = 1 << 2
	kindLast      uint32 = 1 << 3
	kindNumPkts   uint32 = 1 << 4
	dscpEnabled   uint32 = 1 << 5
	kindConfigKey uint32 = 0
)

// latKey mirrors c/lat_sampler.c's struct lat_key byte-for-byte.
type latKey struct {
	Ifindex uint32
	MAC     [6]byte
	DSCP    uint8
	Pad     uint8
}

// latValue mirrors c/lat_sampler.c's struct lat_value byte-for-byte.
type latValue struct {
	MinMs       uint32
	MaxMs       uint32
	LastMs      uint32
	AvgSumMs    uint32
	AvgCnt      uint32
	NumPkts     uint32
	TimestampNs uint64
}

// OnSample is invoked once per (ifindex, mac, dscp) entry drained on
// Poll. The caller is expected to translate ifindex to an interface
// name and forward the result into lop.Core.HandleSample.
type OnSample func(ifindex uint32, raw lop.RawSample)

// closer is the capability a TC attachment exposes. A real
// *link.Link's Close method satisfies it without this package taking
// on link.Link's full (sealed) interface, which only cilium/ebpf's
// own types may implement.
type closer interface {
	Close() error
}

// collection is the subset of an *ebpf.Collection's surface this
// package needs, so tests can inject a fake instead of loading real
// bytecode.
type collection interface {
	KindConfigMap() mapHandle
	LatSamplesMap() mapHandle
	AttachTC(ifindex int) (closer, error)
	Close() error
}

// mapHandle is the map operations ebpfsampler performs, factored out
// so tests can substitute an in-memory fake instead of a real
// *ebpf.Map (which requires a kernel to create).
type mapHandle interface {
	Put(key, value any) error
	Iterate() iterator
	Delete(key any) error
}

type iterator interface {
	Next(keyOut, valueOut any) bool
}

// Sampler implements lop.Sampler against the real kernel TC-classifier
// backend.
type Sampler struct {
	mu sync.Mutex

	coll     collection
	onSample OnSample
	logger   *logging.Logger

	attached map[string]closer // ifname -> attached link

	kindMask uint32
}

// New loads and returns a kernel-backed Sampler. objPath is the path
// to the bpf2go-generated object file (built by `go generate` against
// c/lat_sampler.c, then shipped alongside the binary); it is not
// embedded so the same Go source serves architectures the generated
// object was never built for.
func New(objPath string, onSample OnSample, logger *logging.Logger) (*Sampler, error) {
	if logger == nil {
		logger = logging.WithComponent("ebpfsampler")
	}
	spec, err := ebpf.LoadCollectionSpec(objPath)
	if err != nil {
		return nil, fmt.Errorf("ebpfsampler: failed to load collection spec: %w", err)
	}
	coll, err := ebpf.NewCollection(spec)
	if err != nil {
		return nil, fmt.Errorf("ebpfsampler: failed to load collection: %w", err)
	}
	return newWithCollection(&realCollection{coll: coll}, onSample, logger), nil
}

func newWithCollection(coll collection, onSample OnSample, logger *logging.Logger) *Sampler {
	return &Sampler{
		coll:     coll,
		onSample: onSample,
		logger:   logger,
		attached: make(map[string]closer),
	}
}

// SetKindEnabled implements lop.Sampler.
func (s *Sampler) SetKindEnabled(kind lop.Kind, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bit, ok := kindBit(kind)
	if !ok {
		return nil
	}
	if enabled {
		s.kindMask |= bit
	} else {
		s.kindMask &^= bit
	}
	return s.writeKindConfigLocked()
}

// SetDSCPEnabled implements lop.Sampler.
func (s *Sampler) SetDSCPEnabled(enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if enabled {
		s.kindMask |= dscpEnabled
	} else {
		s.kindMask &^= dscpEnabled
	}
	return s.writeKindConfigLocked()
}

func (s *Sampler) writeKindConfigLocked() error {
	key := kindConfigKey
	return s.coll.KindConfigMap().Put(key, s.kindMask)
}

func kindBit(kind lop.Kind) (uint32, bool) {
	switch kind {
	case lop.KindMin:
		return kindMin, true
	case lop.KindMax:
		return kindMax, true
	case lop.KindAvg:
		return kindAvg, true
	case lop.KindLast:
		return kindLast, true
	case lop.KindNumPkts:
		return kindNumPkts, true
	default:
		return 0, false
	}
}

// SetIfnameEnabled implements lop.Sampler: it attaches/detaches the TC
// classifier on the named netdev.
func (s *Sampler) SetIfnameEnabled(ifname string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if enabled {
		if _, ok := s.attached[ifname]; ok {
			return nil
		}
		ifi, err := net.InterfaceByName(ifname)
		if err != nil {
			return fmt.Errorf("ebpfsampler: interface %s not found: %w", ifname, err)
		}
		lnk, err := s.coll.AttachTC(ifi.Index)
		if err != nil {
			return fmt.Errorf("ebpfsampler: failed to attach tc program to %s: %w", ifname, err)
		}
		s.attached[ifname] = lnk
		return nil
	}

	lnk, ok := s.attached[ifname]
	if !ok {
		return nil
	}
	delete(s.attached, ifname)
	return lnk.Close()
}

// Poll implements lop.Sampler: it drains every entry currently in the
// kernel aggregation map, forwards each to onSample, deletes it, and
// invokes done. Poll is synchronous (the kernel map read is a cheap
// syscall), which lop.Core's doPoll/pollDone split accommodates.
func (s *Sampler) Poll(done func()) error {
	s.mu.Lock()
	m := s.coll.LatSamplesMap()
	var keys []latKey
	var values []latValue

	it := m.Iterate()
	var k latKey
	var v latValue
	for it.Next(&k, &v) {
		keys = append(keys, k)
		values = append(values, v)
	}
	s.mu.Unlock()

	for i, k := range keys {
		v := values[i]
		raw := lop.RawSample{
			MAC:     k.MAC,
			MinMs:   v.MinMs,
			MaxMs:   v.MaxMs,
			LastMs:  v.LastMs,
			AvgMs:   avgFromSum(v.AvgSumMs, v.AvgCnt),
			NumPkts: v.NumPkts,
		}
		if k.DSCP != 0 {
			d := k.DSCP
			raw.DSCP = &d
		}
		if s.onSample != nil {
			s.onSample(k.Ifindex, raw)
		}
		if err := m.Delete(k); err != nil {
			s.logger.Warn("ebpfsampler: failed to clear drained sample", "err", err)
		}
	}

	if done != nil {
		done()
	}
	return nil
}

func avgFromSum(sum, cnt uint32) uint32 {
	if cnt == 0 {
		return 0
	}
	return sum / cnt
}

// Close detaches every attached link and closes the underlying
// collection.
func (s *Sampler) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ifname, lnk := range s.attached {
		if err := lnk.Close(); err != nil {
			s.logger.Warn("ebpfsampler: failed to detach tc program", "ifname", ifname, "err", err)
		}
	}
	s.attached = make(map[string]closer)
	return s.coll.Close()
}

// realCollection adapts a loaded *ebpf.Collection to the collection
// interface.
type realCollection struct {
	coll *ebpf.Collection
}

func (r *realCollection) KindConfigMap() mapHandle { return &realMap{m: r.coll.Maps["kind_config"]} }
func (r *realCollection) LatSamplesMap() mapHandle { return &realMap{m: r.coll.Maps["lat_samples"]} }

func (r *realCollection) AttachTC(ifindex int) (closer, error) {
	prog := r.coll.Programs["lat_sampler_ingress"]
	return link.AttachTCX(link.TCXOptions{
		Program:   prog,
		Attach:    ebpf.AttachTCXIngress,
		Interface: ifindex,
	})
}

func (r *realCollection) Close() error {
	r.coll.Close()
	return nil
}

type realMap struct {
	m *ebpf.Map
}

func (r *realMap) Put(key, value any) error { return r.m.Put(key, value) }
func (r *realMap) Delete(key any) error     { return r.m.Delete(key) }
func (r *realMap) Iterate() iterator        { return r.m.Iterate() }
