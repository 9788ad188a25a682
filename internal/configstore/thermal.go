// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package configstore

import (
	"context"
	"fmt"
	"time"

	"grimm.is/flywall/internal/clock"
	"grimm.is/flywall/internal/config"
	"grimm.is/flywall/internal/logging"
	"grimm.is/flywall/internal/tcl"
)

// ThermalTableUpdate is one diffed thermal_table row.
type ThermalTableUpdate struct {
	Kind UpdateKind
	Name string
	Old  *config.ThermalTable
	New  *config.ThermalTable
}

func diffThermalTables(oldRows, newRows []config.ThermalTable) []ThermalTableUpdate {
	oldByName := make(map[string]*config.ThermalTable, len(oldRows))
	for i := range oldRows {
		oldByName[oldRows[i].Name] = &oldRows[i]
	}
	newByName := make(map[string]*config.ThermalTable, len(newRows))
	for i := range newRows {
		newByName[newRows[i].Name] = &newRows[i]
	}

	var updates []ThermalTableUpdate
	for name, n := range newByName {
		if o, ok := oldByName[name]; ok {
			if !thermalTableEqual(*o, *n) {
				updates = append(updates, ThermalTableUpdate{Kind: RowModify, Name: name, Old: o, New: n})
			}
			continue
		}
		updates = append(updates, ThermalTableUpdate{Kind: RowNew, Name: name, New: n})
	}
	for name, o := range oldByName {
		if _, ok := newByName[name]; !ok {
			updates = append(updates, ThermalTableUpdate{Kind: RowDelete, Name: name, Old: o})
		}
	}
	return updates
}

func thermalTableEqual(a, b config.ThermalTable) bool {
	if a.Name != b.Name || !strSliceEqual(a.Sources, b.Sources) ||
		a.Hysteresis != b.Hysteresis || a.FanRPMTolerance != b.FanRPMTolerance ||
		a.FanErrorPeriodTolerance != b.FanErrorPeriodTolerance ||
		a.CriticalTempPeriodTolerance != b.CriticalTempPeriodTolerance ||
		a.AvgWindow != b.AvgWindow || a.Period != b.Period ||
		len(a.ThermalStates) != len(b.ThermalStates) {
		return false
	}
	for i := range a.ThermalStates {
		if a.ThermalStates[i].FanRPM != b.ThermalStates[i].FanRPM ||
			!intSliceEqual(a.ThermalStates[i].Thresholds, b.ThermalStates[i].Thresholds) ||
			!intSliceEqual(a.ThermalStates[i].TxChainmasks, b.ThermalStates[i].TxChainmasks) {
			return false
		}
	}
	return true
}

func strSliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func intSliceEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ThermalActuatorFactory builds the hardware-facing capabilities a
// thermal_table row needs. The production implementation binds to
// /sys/class/thermal sysfs paths, reads radio temperatures through
// ethtool driver statistics and sets chainmasks with iw(8); a
// simulation implementation (used in tests) returns in-memory fakes.
type ThermalActuatorFactory interface {
	BuildSources(table config.ThermalTable) ([]tcl.TempSource, error)
	BuildFan(table config.ThermalTable) (tcl.FanController, error)
	BuildRadio(table config.ThermalTable) (tcl.RadioController, error)
	BuildLED(table config.ThermalTable) (tcl.LEDController, error)
	BuildRebooter(table config.ThermalTable) (tcl.Rebooter, error)
}

type thermalInstance struct {
	cancel context.CancelFunc
	done   chan struct{}
}

type thermalStore struct {
	factory ThermalActuatorFactory
	logger  *logging.Logger
	metrics tcl.Metrics

	loops map[string]*thermalInstance
}

func newThermalStore(factory ThermalActuatorFactory, logger *logging.Logger) *thermalStore {
	return &thermalStore{
		factory: factory,
		logger:  logger,
		loops:   make(map[string]*thermalInstance),
	}
}

func (ts *thermalStore) apply(u ThermalTableUpdate) error {
	switch u.Kind {
	case RowDelete:
		ts.stop(u.Name)
		return nil
	case RowNew, RowModify:
		ts.stop(u.Name)
		return ts.start(*u.New)
	default:
		return fmt.Errorf("configstore: unknown thermal_table update kind %v", u.Kind)
	}
}

func (ts *thermalStore) start(table config.ThermalTable) error {
	sources, err := ts.factory.BuildSources(table)
	if err != nil {
		return fmt.Errorf("configstore: thermal_table %s: building sources: %w", table.Name, err)
	}
	fan, err := ts.factory.BuildFan(table)
	if err != nil {
		return fmt.Errorf("configstore: thermal_table %s: building fan: %w", table.Name, err)
	}
	radio, err := ts.factory.BuildRadio(table)
	if err != nil {
		return fmt.Errorf("configstore: thermal_table %s: building radio: %w", table.Name, err)
	}
	led, err := ts.factory.BuildLED(table)
	if err != nil {
		return fmt.Errorf("configstore: thermal_table %s: building led: %w", table.Name, err)
	}
	reboot, err := ts.factory.BuildRebooter(table)
	if err != nil {
		return fmt.Errorf("configstore: thermal_table %s: building rebooter: %w", table.Name, err)
	}

	cfg, err := toTCLConfig(table)
	if err != nil {
		return err
	}

	loop, err := tcl.NewLoop(cfg, sources, fan, radio, led, reboot, clock.Real{}, ts.logger.With("thermal_table:"+table.Name))
	if err != nil {
		return fmt.Errorf("configstore: thermal_table %s: %w", table.Name, err)
	}
	if ts.metrics != nil {
		loop.SetMetrics(ts.metrics)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	ts.loops[table.Name] = &thermalInstance{cancel: cancel, done: done}

	go func() {
		defer close(done)
		if err := loop.Run(ctx); err != nil && ctx.Err() == nil {
			ts.logger.Warn("configstore: thermal loop exited", "name", table.Name, "err", err)
		}
	}()

	return nil
}

func (ts *thermalStore) stop(name string) {
	inst, ok := ts.loops[name]
	if !ok {
		return
	}
	inst.cancel()
	<-inst.done
	delete(ts.loops, name)
}

func (ts *thermalStore) closeAll() {
	for name := range ts.loops {
		ts.stop(name)
	}
}

func toTCLConfig(table config.ThermalTable) (tcl.Config, error) {
	period, err := time.ParseDuration(table.Period)
	if err != nil {
		return tcl.Config{}, fmt.Errorf("configstore: thermal_table %s: invalid period %q: %w", table.Name, table.Period, err)
	}

	numStates := len(table.ThermalStates)
	thresholds := make([][]int, numStates)
	chainmasks := make([][]int, numStates)
	fanRPM := make([]int, numStates)
	for i, state := range table.ThermalStates {
		thresholds[i] = state.Thresholds
		chainmasks[i] = state.TxChainmasks
		fanRPM[i] = state.FanRPM
	}

	return tcl.Config{
		NumStates:                   numStates,
		NumSources:                  len(table.Sources),
		TempThresholds:              thresholds,
		TxChainmasks:                chainmasks,
		FanRPMTable:                 fanRPM,
		Hysteresis:                  table.Hysteresis,
		FanRPMTolerance:             table.FanRPMTolerance,
		FanErrorPeriodTolerance:     table.FanErrorPeriodTolerance,
		CriticalTempPeriodTolerance: table.CriticalTempPeriodTolerance,
		AvgWindow:                   table.AvgWindow,
		Period:                      period,
	}, nil
}
