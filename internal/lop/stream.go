// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package lop

import (
	"time"
)

// ReportFunc receives a chunk of at most 64 finished host records.
// hosts is only valid for the duration of the call; implementations
// that need to retain data must copy it.
type ReportFunc func(hosts []*Host, userdata any)

const reportChunkSize = 64

// openHost is a host still accumulating observations within the
// current poll period (under SamplingSeparate) or report period (under
// SamplingMerge).
type openHost struct {
	key    HostKey
	ifRole string
	sample Sample
	set    bool // whether sample has received at least one observation
}

// Stream is a single configured observation session multiplexed over
// its Core's shared Sampler.
type Stream struct {
	core *Core

	kinds        [numKinds]bool
	dscpEnabled  bool
	ifnameFilter map[string]bool
	ifRoles      map[string]string
	sampling     Sampling

	reportMs, pollMs int
	reportFn         ReportFunc
	userdata         any

	hostsOpen   map[HostKey]*openHost
	hostsClosed map[HostKey]*Host

	pollPending, pollRunning, reportPending bool

	pollStop, reportStop chan struct{}

	closed bool
}

// SetReportFn installs the report sink and its opaque userdata.
func (s *Stream) SetReportFn(fn ReportFunc, userdata any) {
	s.core.mu.Lock()
	defer s.core.mu.Unlock()
	s.reportFn = fn
	s.userdata = userdata
}

// SetSampling selects the merge or separate aggregation policy.
func (s *Stream) SetSampling(policy Sampling) {
	s.core.mu.Lock()
	defer s.core.mu.Unlock()
	s.sampling = policy
}

// SetReportMs arms (or disarms, if ms == 0) the periodic report timer.
func (s *Stream) SetReportMs(ms int) {
	s.core.mu.Lock()
	s.reportMs = ms
	if s.reportStop != nil {
		close(s.reportStop)
		s.reportStop = nil
	}
	if ms > 0 {
		stop := make(chan struct{})
		s.reportStop = stop
		s.core.runTicker(time.Duration(ms)*time.Millisecond, stop, s.ReportTick)
	}
	s.core.mu.Unlock()
}

// SetPollMs arms (or disarms, if ms == 0) the periodic poll timer.
func (s *Stream) SetPollMs(ms int) {
	s.core.mu.Lock()
	s.pollMs = ms
	if s.pollStop != nil {
		close(s.pollStop)
		s.pollStop = nil
	}
	if ms > 0 {
		stop := make(chan struct{})
		s.pollStop = stop
		s.core.runTicker(time.Duration(ms)*time.Millisecond, stop, s.PollTick)
	}
	s.core.mu.Unlock()
}

func (s *Stream) setKind(kind Kind, enabled bool) {
	s.core.mu.Lock()
	defer s.core.mu.Unlock()
	if s.kinds[kind] == enabled {
		return
	}
	s.kinds[kind] = enabled
	s.core.setKindRefLocked(kind, enabled)
}

func (s *Stream) SetKindMin(enabled bool)     { s.setKind(KindMin, enabled) }
func (s *Stream) SetKindMax(enabled bool)     { s.setKind(KindMax, enabled) }
func (s *Stream) SetKindAvg(enabled bool)     { s.setKind(KindAvg, enabled) }
func (s *Stream) SetKindLast(enabled bool)    { s.setKind(KindLast, enabled) }
func (s *Stream) SetKindNumPkts(enabled bool) { s.setKind(KindNumPkts, enabled) }

// SetDSCP enables or disables DSCP-keyed host splitting for the stream.
func (s *Stream) SetDSCP(enabled bool) {
	s.core.mu.Lock()
	defer s.core.mu.Unlock()
	if s.dscpEnabled == enabled {
		return
	}
	s.dscpEnabled = enabled
	s.core.setDSCPRefLocked(enabled)
}

// SetIfname adds or removes name from the stream's interface filter
// (an empty filter matches any interface). ifRole, if non-empty, is
// attached to reported hosts observed on name.
func (s *Stream) SetIfname(name string, enabled bool, ifRole string) {
	s.core.mu.Lock()
	defer s.core.mu.Unlock()
	if s.ifnameFilter[name] == enabled {
		return
	}
	if enabled {
		s.ifnameFilter[name] = true
		if ifRole != "" {
			if s.ifRoles == nil {
				s.ifRoles = make(map[string]string)
			}
			s.ifRoles[name] = ifRole
		}
		s.core.addIfnameRefLocked(s, name)
	} else {
		delete(s.ifnameFilter, name)
		delete(s.ifRoles, name)
		s.core.removeIfnameRefLocked(s, name)
	}
}

// PollTick fires the poll-periodic event: it latches pollPending and
// services the core-wide wake. Exposed so tests (and the ticker
// goroutine SetPollMs starts) can drive polls deterministically without a real sampler
// poll loop.
func (s *Stream) PollTick() {
	s.core.mu.Lock()
	s.pollPending = true
	shouldPoll := s.core.requestPollLocked()
	s.core.mu.Unlock()

	if shouldPoll {
		s.core.doPoll()
	}
}

// ReportTick fires the report-periodic event. It is a no-op while the
// stream is mid-poll: pollDone will service the deferred report once
// the poll completes.
func (s *Stream) ReportTick() {
	s.core.mu.Lock()
	defer s.core.mu.Unlock()
	s.reportPending = true
	if s.pollRunning {
		return
	}
	s.doReportLocked()
}

// observeLocked applies one raw sample arrival to this stream, per
// spec.md §4.1's sample-merging algorithm. Called with core.mu held.
func (s *Stream) observeLocked(translatedIfName string, raw RawSample) {
	if len(s.ifnameFilter) > 0 && !s.ifnameFilter[translatedIfName] {
		return
	}

	var dscpKey uint8
	if s.dscpEnabled {
		if raw.DSCP != nil {
			dscpKey = *raw.DSCP
		} else {
			dscpKey = DSCPMissing
		}
	} else {
		dscpKey = DSCPNone
	}

	key := HostKey{IfName: translatedIfName, MAC: raw.MAC, DSCP: dscpKey}
	oh, ok := s.hostsOpen[key]
	if !ok {
		oh = &openHost{key: key, ifRole: s.ifRoles[translatedIfName]}
		s.hostsOpen[key] = oh
	}

	sm := &oh.sample
	first := !oh.set
	oh.set = true

	if s.kinds[KindMin] {
		if first || sm.Min == nil || raw.MinMs < *sm.Min {
			v := raw.MinMs
			sm.Min = &v
		}
	}
	if s.kinds[KindMax] {
		if first || sm.Max == nil || raw.MaxMs > *sm.Max {
			v := raw.MaxMs
			sm.Max = &v
		}
	}
	if s.kinds[KindLast] {
		v := raw.LastMs
		sm.Last = &v
	}
	if s.kinds[KindNumPkts] {
		n := raw.NumPkts
		if sm.NumPkts == nil {
			v := n
			sm.NumPkts = &v
		} else {
			*sm.NumPkts += n
		}
	}
	if s.kinds[KindAvg] {
		n := raw.NumPkts
		if n == 0 {
			n = 1
		}
		add := raw.AvgMs * n
		if sm.AvgSumMs == nil {
			v := add
			sm.AvgSumMs = &v
		} else {
			*sm.AvgSumMs += add
		}
		if sm.AvgCnt == nil {
			v := n
			sm.AvgCnt = &v
		} else {
			*sm.AvgCnt += n
		}
	}
	sm.TimestampMs = s.core.clk.NowMs()
}

// mergeOpenIntoClosedLocked implements "hosts-close": every open host
// with at least one observation is finalized into hostsClosed, merging
// by key (concatenating sample sequences) if already present there.
// hostsOpen is emptied. Called with core.mu held.
func (s *Stream) mergeOpenIntoClosedLocked() {
	for key, oh := range s.hostsOpen {
		if !oh.set {
			continue
		}
		ch, ok := s.hostsClosed[key]
		if !ok {
			ch = &Host{Key: key, IfRole: oh.ifRole}
			s.hostsClosed[key] = ch
		}
		ch.Samples = append(ch.Samples, oh.sample)
		ch.TimestampMs = oh.sample.TimestampMs
		delete(s.hostsOpen, key)
	}
}

// doReportLocked runs hosts-close unconditionally, then drains
// hostsClosed to the report callback in chunks of at most
// reportChunkSize. Called with core.mu held.
func (s *Stream) doReportLocked() {
	s.reportPending = false
	s.mergeOpenIntoClosedLocked()

	if len(s.hostsClosed) == 0 {
		return
	}

	hosts := make([]*Host, 0, len(s.hostsClosed))
	for _, h := range s.hostsClosed {
		hosts = append(hosts, h)
	}
	s.hostsClosed = make(map[HostKey]*Host)

	if s.core.metrics != nil {
		s.core.metrics.ObserveReport()
	}

	if s.reportFn == nil {
		return
	}
	for i := 0; i < len(hosts); i += reportChunkSize {
		end := i + reportChunkSize
		if end > len(hosts) {
			end = len(hosts)
		}
		s.reportFn(hosts[i:end], s.userdata)
	}
}

// Close flushes any pending closed hosts through the report callback
// one last time, releases all refcounted sampler enablement this
// stream was holding, and removes the stream from its core.
func (s *Stream) Close() {
	s.core.mu.Lock()
	defer s.core.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true

	if s.pollStop != nil {
		close(s.pollStop)
		s.pollStop = nil
	}
	if s.reportStop != nil {
		close(s.reportStop)
		s.reportStop = nil
	}

	s.doReportLocked()

	for k, enabled := range s.kinds {
		if enabled {
			s.kinds[Kind(k)] = false
			s.core.setKindRefLocked(Kind(k), false)
		}
	}
	if s.dscpEnabled {
		s.dscpEnabled = false
		s.core.setDSCPRefLocked(false)
	}
	for name := range s.ifnameFilter {
		s.core.removeIfnameRefLocked(s, name)
	}
	s.ifnameFilter = make(map[string]bool)

	delete(s.core.streams, s)
	if s.core.metrics != nil {
		s.core.metrics.SetOpenStreams(len(s.core.streams))
	}
}
