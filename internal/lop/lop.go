// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package lop implements the latency observation core: it multiplexes
// any number of independent Streams over a single Sampler, aggregates
// per-host latency samples across a poll axis and a report axis under
// two sampling policies, resolves MLD (multi-link-device) identity for
// reported interface names, and drains finished host records to each
// stream's report callback in bounded chunks. The design mirrors
// sm_lat_core's core/stream split: raw samples arrive on one path,
// poll and report timers drive two independent pending/running state
// machines per stream, and ifname/kind/DSCP enablement is refcounted
// so the underlying sampler only runs what at least one stream needs.
package lop

import (
	"context"
	"sync"
	"time"

	"grimm.is/flywall/internal/clock"
	"grimm.is/flywall/internal/errors"
	"grimm.is/flywall/internal/logging"
)

// Kind is a sample aggregation kind a stream can enable.
type Kind int

const (
	KindMin Kind = iota
	KindMax
	KindAvg
	KindLast
	KindNumPkts
	numKinds
)

func (k Kind) String() string {
	switch k {
	case KindMin:
		return "min"
	case KindMax:
		return "max"
	case KindAvg:
		return "avg"
	case KindLast:
		return "last"
	case KindNumPkts:
		return "num_pkts"
	default:
		return "unknown"
	}
}

// DSCP sentinel values, per spec.md §3's Host key: dscp ∈ {0..63,
// MISSING, NONE}.
const (
	DSCPNone    uint8 = 0xFE // DSCP reporting disabled for the stream
	DSCPMissing uint8 = 0xFF // sampler could not stamp a DSCP value
)

// Sampling is the aggregation policy across a report period.
type Sampling int

const (
	// SamplingSeparate starts a fresh sample at every poll close; a
	// report therefore carries one sample per poll that observed the
	// host.
	SamplingSeparate Sampling = iota
	// SamplingMerge accumulates a single sample across the whole
	// report period.
	SamplingMerge
)

var (
	// ErrSamplerUnavailable identifies an unavailable Sampler. No
	// function in this package returns it.
	ErrSamplerUnavailable = errors.New(errors.KindUnavailable, "lop: sampler unavailable")
)

// Sample is one latency observation window. Fields are optional
// (nil/zero-count) when the corresponding kind was never enabled or
// never observed, matching spec.md §6's wire format where unset
// optional fields are omitted.
type Sample struct {
	Min, Max, Last *uint32
	AvgSumMs       *uint32
	AvgCnt         *uint32
	NumPkts        *uint32
	TimestampMs    uint64
}

// AvgMs computes the reportable average from the internal sum/count
// pair, per spec.md §6: "avg_ms on the wire equals avg_sum_ms /
// avg_cnt; consumers do not see the sum/count pair." Returns ok=false
// if avg was never enabled or never observed.
func (s Sample) AvgMs() (avg uint32, ok bool) {
	if s.AvgSumMs == nil || s.AvgCnt == nil || *s.AvgCnt == 0 {
		return 0, false
	}
	return *s.AvgSumMs / *s.AvgCnt, true
}

// HostKey identifies a host observation: (ifname, mac, dscp).
type HostKey struct {
	IfName string
	MAC    [6]byte
	DSCP   uint8
}

// Host is a finished observation ready to report: a key plus the
// sequence of samples accumulated for it during the report period.
type Host struct {
	Key         HostKey
	IfRole      string
	TimestampMs uint64
	Samples     []Sample
}

// RawSample is a single measurement delivered by the Sampler callback.
// DSCP is nil when the sampler could not stamp one.
type RawSample struct {
	IfName  string
	MAC     [6]byte
	DSCP    *uint8
	MinMs   uint32
	MaxMs   uint32
	LastMs  uint32
	AvgMs   uint32
	NumPkts uint32
}

// Sampler is the capability interface to the opaque OS latency source
// (C3). SetKindEnabled/SetDSCPEnabled/SetIfnameEnabled are invoked only
// on refcount 0↔1 transitions; Poll requests one measurement cycle and
// must invoke done asynchronously (or synchronously, for fakes) exactly
// once per call.
type Sampler interface {
	SetKindEnabled(kind Kind, enabled bool) error
	SetDSCPEnabled(enabled bool) error
	SetIfnameEnabled(ifname string, enabled bool) error
	Poll(done func()) error
}

type ifnameEntry struct {
	refs      map[*Stream]struct{}
	netdevSet map[string]bool
}

// Metrics receives poll/report activity counters for external exposure
// (e.g. Prometheus). Optional: a Core with no Metrics set skips the calls.
type Metrics interface {
	ObservePoll()
	ObserveReport()
	SetOpenStreams(n int)
}

// Core owns the shared Sampler, the ifname/kind/DSCP refcounts, the MLD
// binding table, and the set of live streams multiplexed over it.
type Core struct {
	mu sync.Mutex

	sampler Sampler
	clk     clock.Clock
	logger  *logging.Logger
	ctx     context.Context
	metrics Metrics

	kindRefs [numKinds]int
	dscpRef  int

	ifnames map[string]*ifnameEntry

	mldBinding map[string]string          // vif -> mld name
	mldMembers map[string]map[string]bool // mld name -> set of vif names
	vifExists  map[string]bool

	streams map[*Stream]struct{}

	samplerBusy bool
	pollLatched bool
}

// NewCore allocates a core bound to sampler. ctx bounds the lifetime of
// any background poll/report tickers started by streams created from
// this core (via SetPollMs/SetReportMs); pass context.Background() if only the
// manually-driven PollTick/ReportTick test hooks will be used.
func NewCore(ctx context.Context, sampler Sampler, clk clock.Clock, logger *logging.Logger) *Core {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = logging.WithComponent("lop")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return &Core{
		sampler:    sampler,
		clk:        clk,
		logger:     logger,
		ctx:        ctx,
		ifnames:    make(map[string]*ifnameEntry),
		mldBinding: make(map[string]string),
		mldMembers: make(map[string]map[string]bool),
		vifExists:  make(map[string]bool),
		streams:    make(map[*Stream]struct{}),
	}
}

// SetMetrics attaches a Metrics sink. Nil clears it.
func (c *Core) SetMetrics(m Metrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = m
}

// NewStream allocates a stream with all kinds disabled, no filter, no
// callback, and zero periods.
func (c *Core) NewStream() *Stream {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := &Stream{
		core:         c,
		ifnameFilter: make(map[string]bool),
		sampling:     SamplingSeparate,
		hostsOpen:    make(map[HostKey]*openHost),
		hostsClosed:  make(map[HostKey]*Host),
	}
	c.streams[s] = struct{}{}
	if c.metrics != nil {
		c.metrics.SetOpenStreams(len(c.streams))
	}
	return s
}

// Close stops every live stream (flushing pending closed hosts through
// each report callback one last time) and releases all sampler
// enablement this core was holding. Idempotent.
func (c *Core) Close() {
	c.mu.Lock()
	streams := make([]*Stream, 0, len(c.streams))
	for s := range c.streams {
		streams = append(streams, s)
	}
	c.mu.Unlock()

	for _, s := range streams {
		s.Close()
	}
}

// HandleSample is the single callback wired to the Sampler; it fans one
// raw observation out to every interested stream.
func (c *Core) HandleSample(raw RawSample) {
	c.mu.Lock()
	defer c.mu.Unlock()

	translated := raw.IfName
	if mld, ok := c.mldBinding[raw.IfName]; ok && mld != "" {
		translated = mld
	}

	for s := range c.streams {
		s.observeLocked(translated, raw)
	}
}

// SetVifMLDIfName updates the MLD binding for vif. An empty mldName
// clears the binding. Affected ifname entries (old and new MLD names)
// are re-resolved against the sampler immediately.
func (c *Core) SetVifMLDIfName(vif, mldName string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.mldBinding[vif]
	if old == mldName {
		return
	}

	if old != "" {
		if members := c.mldMembers[old]; members != nil {
			delete(members, vif)
			if len(members) == 0 {
				delete(c.mldMembers, old)
			}
		}
	}
	if mldName == "" {
		delete(c.mldBinding, vif)
	} else {
		c.mldBinding[vif] = mldName
		members := c.mldMembers[mldName]
		if members == nil {
			members = make(map[string]bool)
			c.mldMembers[mldName] = members
		}
		members[vif] = true
	}

	if old != "" {
		c.reconcileIfnameLocked(old)
	}
	if mldName != "" {
		c.reconcileIfnameLocked(mldName)
	}
}

// SetVifExists updates the netif observer's existence state for vif
// (C2). A flip re-resolves the netdev set of vif's MLD, if bound.
func (c *Core) SetVifExists(vif string, exists bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.vifExists[vif] == exists {
		return
	}
	c.vifExists[vif] = exists

	if mld := c.mldBinding[vif]; mld != "" {
		c.reconcileIfnameLocked(mld)
	}
}

// resolveNetdevSetLocked implements spec.md §4.1's netdev-set
// resolution: an MLD name with at least one existing constituent vif
// resolves to that set; otherwise the name resolves to itself.
func (c *Core) resolveNetdevSetLocked(name string) map[string]bool {
	if members, ok := c.mldMembers[name]; ok {
		existing := make(map[string]bool)
		for vif := range members {
			if c.vifExists[vif] {
				existing[vif] = true
			}
		}
		if len(existing) > 0 {
			return existing
		}
	}
	return map[string]bool{name: true}
}

// reconcileIfnameLocked recomputes the netdev set for name (if an
// ifname entry for it still exists, i.e. refcount > 0) and diff-applies
// the delta to the sampler.
func (c *Core) reconcileIfnameLocked(name string) {
	entry, ok := c.ifnames[name]

	var want map[string]bool
	if ok {
		want = c.resolveNetdevSetLocked(name)
	} else {
		want = map[string]bool{}
	}

	var have map[string]bool
	if ok {
		have = entry.netdevSet
	}

	for nd := range have {
		if !want[nd] {
			if err := c.sampler.SetIfnameEnabled(nd, false); err != nil {
				c.logger.Warn("lop: failed to disable sampling on netdev", "netdev", nd, "err", err)
			}
		}
	}
	for nd := range want {
		if !have[nd] {
			if err := c.sampler.SetIfnameEnabled(nd, true); err != nil {
				c.logger.Warn("lop: failed to enable sampling on netdev", "netdev", nd, "err", err)
			}
		}
	}

	if ok {
		entry.netdevSet = want
	}
}

// addIfnameRefLocked registers s's interest in logical ifname name,
// creating the shared entry on first reference.
func (c *Core) addIfnameRefLocked(s *Stream, name string) {
	entry, ok := c.ifnames[name]
	if !ok {
		entry = &ifnameEntry{refs: make(map[*Stream]struct{}), netdevSet: make(map[string]bool)}
		c.ifnames[name] = entry
	}
	entry.refs[s] = struct{}{}
	c.reconcileIfnameLocked(name)
}

// removeIfnameRefLocked removes s's interest in name. When the last
// reference is dropped, sampling for the resolved netdev set is
// disabled and the shared entry is freed.
func (c *Core) removeIfnameRefLocked(s *Stream, name string) {
	entry, ok := c.ifnames[name]
	if !ok {
		return
	}
	delete(entry.refs, s)
	if len(entry.refs) == 0 {
		delete(c.ifnames, name)
		for nd := range entry.netdevSet {
			if err := c.sampler.SetIfnameEnabled(nd, false); err != nil {
				c.logger.Warn("lop: failed to disable sampling on netdev", "netdev", nd, "err", err)
			}
		}
	}
}

func (c *Core) setKindRefLocked(kind Kind, enabled bool) {
	if enabled {
		c.kindRefs[kind]++
		if c.kindRefs[kind] == 1 {
			if err := c.sampler.SetKindEnabled(kind, true); err != nil {
				c.logger.Warn("lop: failed to enable sample kind", "kind", kind, "err", err)
			}
		}
		return
	}
	if c.kindRefs[kind] == 0 {
		c.logger.Warn("lop: kind refcount underflow, clamping at zero", "kind", kind)
		return
	}
	c.kindRefs[kind]--
	if c.kindRefs[kind] == 0 {
		if err := c.sampler.SetKindEnabled(kind, false); err != nil {
			c.logger.Warn("lop: failed to disable sample kind", "kind", kind, "err", err)
		}
	}
}

func (c *Core) setDSCPRefLocked(enabled bool) {
	if enabled {
		c.dscpRef++
		if c.dscpRef == 1 {
			if err := c.sampler.SetDSCPEnabled(true); err != nil {
				c.logger.Warn("lop: failed to enable dscp stamping", "err", err)
			}
		}
		return
	}
	if c.dscpRef == 0 {
		c.logger.Warn("lop: dscp refcount underflow, clamping at zero")
		return
	}
	c.dscpRef--
	if c.dscpRef == 0 {
		if err := c.sampler.SetDSCPEnabled(false); err != nil {
			c.logger.Warn("lop: failed to disable dscp stamping", "err", err)
		}
	}
}

// requestPollLocked is the core-wide async wake: every stream with a
// pending poll transitions to running. It returns true if the sampler
// is idle and should now be polled — callers must invoke doPoll()
// after releasing core.mu, since Sampler.Poll may call its done
// callback synchronously (pollDone re-acquires core.mu itself, so it
// must never run while the lock is already held). If the sampler is
// busy, the intent is latched and re-issued from pollDone.
func (c *Core) requestPollLocked() (shouldPoll bool) {
	any := false
	for s := range c.streams {
		if s.pollPending {
			s.pollPending = false
			s.pollRunning = true
			any = true
		}
	}
	if !any {
		return false
	}
	if c.samplerBusy {
		c.pollLatched = true
		return false
	}
	c.samplerBusy = true
	return true
}

// doPoll issues a single Sampler.Poll. Must be called without core.mu
// held.
func (c *Core) doPoll() {
	if c.metrics != nil {
		c.metrics.ObservePoll()
	}
	if c.sampler == nil {
		c.pollDone()
		return
	}
	if err := c.sampler.Poll(c.pollDone); err != nil {
		c.logger.Warn("lop: sampler poll failed, will retry next period", "err", err)
		c.mu.Lock()
		c.samplerBusy = false
		c.mu.Unlock()
	}
}

// pollDone is the sampler's poll-completion callback. It must not be
// called with core.mu held.
func (c *Core) pollDone() {
	c.mu.Lock()
	c.samplerBusy = false
	for s := range c.streams {
		if !s.pollRunning {
			continue
		}
		s.pollRunning = false
		if s.sampling == SamplingSeparate {
			s.mergeOpenIntoClosedLocked()
		}
		if s.reportPending {
			s.doReportLocked()
		}
	}
	relatch := c.pollLatched
	c.pollLatched = false
	var shouldPoll bool
	if relatch {
		shouldPoll = c.requestPollLocked()
	}
	c.mu.Unlock()

	if shouldPoll {
		c.doPoll()
	}
}

// runTicker starts a goroutine that calls fire every period until
// stopCh closes or ctx is cancelled.
func (c *Core) runTicker(period time.Duration, stopCh <-chan struct{}, fire func()) {
	ticker := c.clk.NewTicker(period)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-c.ctx.Done():
				return
			case <-stopCh:
				return
			case <-ticker.C():
				fire()
			}
		}
	}()
}
