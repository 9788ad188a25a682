// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package configstore translates internal/config row changes into calls
// against internal/mde, internal/tcl, and internal/lop. A Store keeps the
// previously-applied snapshot of each watched table (map_rule,
// thermal_table, latency_stream) and diffs it against every new
// *config.Config it sees, producing typed row updates — New, Modify(Old,
// New), or Delete — the same way an OVSDB monitor callback would, and
// calling the minimum number of component setters implied by each diff
// rather than tearing the whole component down and rebuilding it. The
// exception is thermal_table: a modified row stops its loop and starts a
// new one from the new row.
//
// A Store's Apply takes a *config.Config directly, so it can be driven
// by a file watcher or any other config-reload source without an
// intermediate RPC layer.
package configstore

import (
	"sync"

	"grimm.is/flywall/internal/config"
	"grimm.is/flywall/internal/logging"
	"grimm.is/flywall/internal/lop"
	"grimm.is/flywall/internal/tcl"
)

// UpdateKind classifies a row change between two config snapshots.
type UpdateKind int

const (
	RowNew UpdateKind = iota
	RowModify
	RowDelete
)

func (k UpdateKind) String() string {
	switch k {
	case RowNew:
		return "new"
	case RowModify:
		return "modify"
	case RowDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// RowStatus is the status written back for one named row, surfaced
// through Store.Status for callers (the API/TUI layer) to display.
type RowStatus struct {
	Name    string `json:"name"`
	Applied bool   `json:"applied"`
	Error   string `json:"error,omitempty"`
}

// Store holds the live component instances derived from config rows and
// the last snapshot applied, so the next Apply call only needs to act on
// what changed.
type Store struct {
	mu sync.Mutex

	logger *logging.Logger

	prevMapRules []config.MapRule
	prevThermal  []config.ThermalTable
	prevLatency  []config.LatencyStream

	mapStore     *mapStore
	thermalStore *thermalStore
	latencyStore *latencyStore

	status map[string]RowStatus
}

// NewStore builds a Store. mapIfName is the interface the single MAP
// instance this store manages is bound to (MAP rules do not carry their
// own interface — one set of rules applies to one uplink MAP
// configuration, per original_source's osn_map.h). thermalFactory builds
// the hardware actuators a thermal_table row needs; core is the
// lop.Core latency_stream rows attach streams to.
func NewStore(mapIfName string, thermalFactory ThermalActuatorFactory, core *lop.Core, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.WithComponent("configstore")
	}
	return &Store{
		logger:       logger,
		mapStore:     newMapStore(mapIfName, logger),
		thermalStore: newThermalStore(thermalFactory, logger),
		latencyStore: newLatencyStore(core, logger),
		status:       make(map[string]RowStatus),
	}
}

// Apply diffs the incoming config's watched tables against the
// last-applied snapshot and pushes the resulting row updates into each
// component.
func (s *Store) Apply(cfg *config.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mapUpdates := diffMapRules(s.prevMapRules, cfg.MapRules)
	thermalUpdates := diffThermalTables(s.prevThermal, cfg.ThermalTables)
	latencyUpdates := diffLatencyStreams(s.prevLatency, cfg.LatencyStreams)

	if len(mapUpdates) > 0 {
		if err := s.mapStore.apply(cfg.MapRules); err != nil {
			s.setStatusLocked("map", false, err)
		} else {
			s.setStatusLocked("map", true, nil)
		}
	}

	for _, u := range thermalUpdates {
		err := s.thermalStore.apply(u)
		s.setStatusLocked("thermal_table."+u.Name, err == nil, err)
	}

	for _, u := range latencyUpdates {
		err := s.latencyStore.apply(u)
		s.setStatusLocked("latency_stream."+u.Name, err == nil, err)
	}

	s.prevMapRules = append([]config.MapRule(nil), cfg.MapRules...)
	s.prevThermal = append([]config.ThermalTable(nil), cfg.ThermalTables...)
	s.prevLatency = append([]config.LatencyStream(nil), cfg.LatencyStreams...)

	return nil
}

func (s *Store) setStatusLocked(name string, applied bool, err error) {
	st := RowStatus{Name: name, Applied: applied}
	if err != nil {
		st.Error = err.Error()
	}
	s.status[name] = st
}

// SetMetrics attaches a tcl.Metrics sink applied to every thermal loop
// this store starts from here on (existing loops are unaffected; they
// get it on their next RowModify).
func (s *Store) SetMetrics(m tcl.Metrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.thermalStore.metrics = m
}

// SetReportSink attaches fn as the report callback for every latency
// stream this store creates from here on (existing streams are
// unaffected; they keep whatever sink they were created with).
func (s *Store) SetReportSink(fn lop.ReportFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latencyStore.reportFn = fn
}

// Status returns the last-written-back status for a named row.
func (s *Store) Status(name string) (RowStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.status[name]
	return st, ok
}

// SetEndUserPrefix sets (or updates) the end-user IPv6 prefix the MAP
// instance derives its mapped address and port set from, then
// re-applies the current rule set against it. Called either directly by
// an operator-configured prefix or by a PrefixWatcher observing DHCPv6
// IA_PD leases.
func (s *Store) SetEndUserPrefix(addr [16]byte, prefixLen int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.mapStore.setEndUserPrefix(addr, prefixLen)
	s.setStatusLocked("map", err == nil, err)
	return err
}

// Close stops every thermal loop and closes every latency stream this
// store manages.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.thermalStore.closeAll()
	s.latencyStore.closeAll()
	return nil
}
