// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package configstore

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"grimm.is/flywall/internal/config"
	"grimm.is/flywall/internal/logging"
	"grimm.is/flywall/internal/tcl"
)

// fakeThermalFactory builds in-memory fakes instead of touching sysfs,
// the same substitution tcl_test.go makes for tcl.NewLoop's own tests.
type fakeThermalFactory struct {
	buildErr error
}

func (f *fakeThermalFactory) BuildSources(table config.ThermalTable) ([]tcl.TempSource, error) {
	if f.buildErr != nil {
		return nil, f.buildErr
	}
	sources := make([]tcl.TempSource, len(table.Sources))
	for i, name := range table.Sources {
		sources[i] = &fakeTempSource{name: name}
	}
	return sources, nil
}

func (f *fakeThermalFactory) BuildFan(table config.ThermalTable) (tcl.FanController, error) {
	return &fakeFanController{}, nil
}

func (f *fakeThermalFactory) BuildRadio(table config.ThermalTable) (tcl.RadioController, error) {
	return &fakeRadioController{}, nil
}

func (f *fakeThermalFactory) BuildLED(table config.ThermalTable) (tcl.LEDController, error) {
	return &fakeLEDController{}, nil
}

func (f *fakeThermalFactory) BuildRebooter(table config.ThermalTable) (tcl.Rebooter, error) {
	return &fakeRebooterController{}, nil
}

type fakeTempSource struct{ name string }

func (s *fakeTempSource) Name() string                  { return s.name }
func (s *fakeTempSource) Enabled() bool                 { return true }
func (s *fakeTempSource) ReadTemperature() (int, error) { return 30, nil }

type fakeFanController struct{}

func (f *fakeFanController) GetFanRPM() (int, error) { return 1000, nil }
func (f *fakeFanController) SetFanRPM(rpm int) error { return nil }

type fakeRadioController struct{}

func (r *fakeRadioController) SetTxChainmask(srcIdx, mask int) error { return nil }

type fakeLEDController struct{}

func (l *fakeLEDController) SetHWError(asserted bool) error { return nil }
func (l *fakeLEDController) SetThermal(asserted bool) error { return nil }

type fakeRebooterController struct{}

func (r *fakeRebooterController) Reboot(reason string) error { return nil }

func testThermalTable(name string) config.ThermalTable {
	return config.ThermalTable{
		Name:                        name,
		Sources:                     []string{"cpu"},
		ThermalStates:               []config.ThermalState{{Thresholds: []int{30}, TxChainmasks: []int{7}, FanRPM: 1000}, {Thresholds: []int{60}, TxChainmasks: []int{3}, FanRPM: 2000}},
		Hysteresis:                  2,
		FanRPMTolerance:             500,
		FanErrorPeriodTolerance:     3,
		CriticalTempPeriodTolerance: 3,
		AvgWindow:                   1,
		Period:                      "15s",
	}
}

func TestDiffThermalTables(t *testing.T) {
	a := testThermalTable("t1")
	b := a
	b.Hysteresis = 5

	require.Len(t, diffThermalTables(nil, []config.ThermalTable{a}), 1)
	require.Len(t, diffThermalTables([]config.ThermalTable{a}, []config.ThermalTable{a}), 0)

	updates := diffThermalTables([]config.ThermalTable{a}, []config.ThermalTable{b})
	require.Len(t, updates, 1)
	require.Equal(t, RowModify, updates[0].Kind)

	updates = diffThermalTables([]config.ThermalTable{a}, nil)
	require.Len(t, updates, 1)
	require.Equal(t, RowDelete, updates[0].Kind)
}

func TestThermalStoreStartStop(t *testing.T) {
	ts := newThermalStore(&fakeThermalFactory{}, logging.WithComponent("test"))
	table := testThermalTable("t1")

	require.NoError(t, ts.apply(ThermalTableUpdate{Kind: RowNew, Name: "t1", New: &table}))
	require.Len(t, ts.loops, 1)

	require.NoError(t, ts.apply(ThermalTableUpdate{Kind: RowModify, Name: "t1", Old: &table, New: &table}))
	require.Len(t, ts.loops, 1, "modify restarts in place, not a second loop")

	require.NoError(t, ts.apply(ThermalTableUpdate{Kind: RowDelete, Name: "t1", Old: &table}))
	require.Len(t, ts.loops, 0)
}

func TestThermalStoreStartPropagatesFactoryError(t *testing.T) {
	ts := newThermalStore(&fakeThermalFactory{buildErr: errors.New("sysfs read failed")}, logging.WithComponent("test"))
	table := testThermalTable("t1")
	err := ts.apply(ThermalTableUpdate{Kind: RowNew, Name: "t1", New: &table})
	require.Error(t, err)
	require.Len(t, ts.loops, 0)
}

func TestThermalStoreCloseAll(t *testing.T) {
	ts := newThermalStore(&fakeThermalFactory{}, logging.WithComponent("test"))
	table := testThermalTable("t1")
	require.NoError(t, ts.apply(ThermalTableUpdate{Kind: RowNew, Name: "t1", New: &table}))
	ts.closeAll()
	require.Len(t, ts.loops, 0)
}

func TestToTCLConfigInvalidPeriod(t *testing.T) {
	table := testThermalTable("t1")
	table.Period = "not-a-duration"
	_, err := toTCLConfig(table)
	require.Error(t, err)
}
