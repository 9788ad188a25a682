// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package configstore

import (
	"fmt"

	"grimm.is/flywall/internal/config"
	"grimm.is/flywall/internal/logging"
	"grimm.is/flywall/internal/lop"
)

// LatencyStreamUpdate is one diffed latency_stream row.
type LatencyStreamUpdate struct {
	Kind UpdateKind
	Name string
	Old  *config.LatencyStream
	New  *config.LatencyStream
}

func diffLatencyStreams(oldRows, newRows []config.LatencyStream) []LatencyStreamUpdate {
	oldByName := make(map[string]*config.LatencyStream, len(oldRows))
	for i := range oldRows {
		oldByName[oldRows[i].Name] = &oldRows[i]
	}
	newByName := make(map[string]*config.LatencyStream, len(newRows))
	for i := range newRows {
		newByName[newRows[i].Name] = &newRows[i]
	}

	var updates []LatencyStreamUpdate
	for name, n := range newByName {
		if o, ok := oldByName[name]; ok {
			if !latencyStreamEqual(*o, *n) {
				updates = append(updates, LatencyStreamUpdate{Kind: RowModify, Name: name, Old: o, New: n})
			}
			continue
		}
		updates = append(updates, LatencyStreamUpdate{Kind: RowNew, Name: name, New: n})
	}
	for name, o := range oldByName {
		if _, ok := newByName[name]; !ok {
			updates = append(updates, LatencyStreamUpdate{Kind: RowDelete, Name: name, Old: o})
		}
	}
	return updates
}

func latencyStreamEqual(a, b config.LatencyStream) bool {
	return a.Name == b.Name && strSliceEqual(a.Ifnames, b.Ifnames) && strSliceEqual(a.Kinds, b.Kinds) &&
		a.DSCPEnabled == b.DSCPEnabled && a.PollMs == b.PollMs && a.ReportMs == b.ReportMs &&
		a.Sampling == b.Sampling
}

type latencyStore struct {
	core   *lop.Core
	logger *logging.Logger

	reportFn lop.ReportFunc
	streams  map[string]*lop.Stream
}

func newLatencyStore(core *lop.Core, logger *logging.Logger) *latencyStore {
	return &latencyStore{core: core, logger: logger, streams: make(map[string]*lop.Stream)}
}

// newStreamLocked creates a stream for row and, if a report sink is set,
// wires it as the stream's report callback with the row name as userdata
// so the sink can tag which latency_stream a report chunk came from.
func (ls *latencyStore) newStreamLocked(row config.LatencyStream) *lop.Stream {
	s := ls.core.NewStream()
	if ls.reportFn != nil {
		s.SetReportFn(ls.reportFn, row.Name)
	}
	ls.streams[row.Name] = s
	applyLatencyStreamFull(s, row)
	return s
}

func (ls *latencyStore) apply(u LatencyStreamUpdate) error {
	switch u.Kind {
	case RowDelete:
		if s, ok := ls.streams[u.Name]; ok {
			s.Close()
			delete(ls.streams, u.Name)
		}
		return nil
	case RowNew:
		ls.newStreamLocked(*u.New)
		return nil
	case RowModify:
		s, ok := ls.streams[u.Name]
		if !ok {
			ls.newStreamLocked(*u.New)
			return nil
		}
		applyLatencyStreamDiff(s, *u.Old, *u.New)
		return nil
	default:
		return fmt.Errorf("configstore: unknown latency_stream update kind %v", u.Kind)
	}
}

func (ls *latencyStore) closeAll() {
	for name, s := range ls.streams {
		s.Close()
		delete(ls.streams, name)
	}
}

// applyLatencyStreamFull configures every setter on a freshly created
// stream (there is no prior state to diff against).
func applyLatencyStreamFull(s *lop.Stream, row config.LatencyStream) {
	for _, ifname := range row.Ifnames {
		s.SetIfname(ifname, true, "")
	}
	for _, kind := range row.Kinds {
		setKind(s, kind, true)
	}
	s.SetDSCP(row.DSCPEnabled)
	s.SetPollMs(row.PollMs)
	s.SetReportMs(row.ReportMs)
	s.SetSampling(toSampling(row.Sampling))
}

// applyLatencyStreamDiff calls only the setters implied by what changed
// between old and new, per spec.md's row-diff DESIGN NOTE.
func applyLatencyStreamDiff(s *lop.Stream, old, new config.LatencyStream) {
	oldIfnames := toSet(old.Ifnames)
	newIfnames := toSet(new.Ifnames)
	for name := range oldIfnames {
		if !newIfnames[name] {
			s.SetIfname(name, false, "")
		}
	}
	for name := range newIfnames {
		if !oldIfnames[name] {
			s.SetIfname(name, true, "")
		}
	}

	oldKinds := toSet(old.Kinds)
	newKinds := toSet(new.Kinds)
	for kind := range oldKinds {
		if !newKinds[kind] {
			setKind(s, kind, false)
		}
	}
	for kind := range newKinds {
		if !oldKinds[kind] {
			setKind(s, kind, true)
		}
	}

	if old.DSCPEnabled != new.DSCPEnabled {
		s.SetDSCP(new.DSCPEnabled)
	}
	if old.PollMs != new.PollMs {
		s.SetPollMs(new.PollMs)
	}
	if old.ReportMs != new.ReportMs {
		s.SetReportMs(new.ReportMs)
	}
	if old.Sampling != new.Sampling {
		s.SetSampling(toSampling(new.Sampling))
	}
}

func setKind(s *lop.Stream, kind string, enabled bool) {
	switch kind {
	case "min":
		s.SetKindMin(enabled)
	case "max":
		s.SetKindMax(enabled)
	case "avg":
		s.SetKindAvg(enabled)
	case "last":
		s.SetKindLast(enabled)
	case "num_pkts":
		s.SetKindNumPkts(enabled)
	}
}

func toSampling(policy string) lop.Sampling {
	if policy == "merge" {
		return lop.SamplingMerge
	}
	return lop.SamplingSeparate
}

func toSet(vals []string) map[string]bool {
	m := make(map[string]bool, len(vals))
	for _, v := range vals {
		m[v] = true
	}
	return m
}
