// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package tcl

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	name    string
	enabled bool
	temp    int
	err     error
}

func (f *fakeSource) Name() string                 { return f.name }
func (f *fakeSource) Enabled() bool                 { return f.enabled }
func (f *fakeSource) ReadTemperature() (int, error) { return f.temp, f.err }

// fakeFan models a fan whose actual reported RPM (actual) is independent
// of what was last commanded (commanded), so tests can simulate a fan
// that never reaches its target.
type fakeFan struct {
	actual    int
	commanded []int
}

func (f *fakeFan) GetFanRPM() (int, error) { return f.actual, nil }
func (f *fakeFan) SetFanRPM(rpm int) error {
	f.commanded = append(f.commanded, rpm)
	return nil
}

type fakeRadio struct {
	calls []int
}

func (f *fakeRadio) SetTxChainmask(srcIdx, mask int) error {
	f.calls = append(f.calls, mask)
	return nil
}

type fakeLED struct {
	hwError, thermal bool
}

func (f *fakeLED) SetHWError(asserted bool) error { f.hwError = asserted; return nil }
func (f *fakeLED) SetThermal(asserted bool) error { f.thermal = asserted; return nil }

type fakeRebooter struct {
	called bool
	reason string
}

func (f *fakeRebooter) Reboot(reason string) error {
	f.called = true
	f.reason = reason
	return nil
}

func hysteresisConfig() Config {
	return Config{
		NumStates:                   3,
		NumSources:                  1,
		TempThresholds:              [][]int{{30}, {50}, {70}},
		TxChainmasks:                [][]int{{7}, {3}, {1}},
		FanRPMTable:                 []int{1000, 2000, 3000},
		Hysteresis:                  5,
		FanRPMTolerance:             1000, // wide: fan failure not under test here
		FanErrorPeriodTolerance:     2,
		CriticalTempPeriodTolerance: 2,
		AvgWindow:                   1,
		Period:                      time.Second,
	}
}

func newTestLoop(t *testing.T, cfg Config, src *fakeSource) (*Loop, *fakeFan, *fakeRadio, *fakeLED, *fakeRebooter) {
	t.Helper()
	fan := &fakeFan{actual: 1000}
	radio := &fakeRadio{}
	led := &fakeLED{}
	reboot := &fakeRebooter{}
	l, err := NewLoop(cfg, []TempSource{src}, fan, radio, led, reboot, nil, nil)
	require.NoError(t, err)
	return l, fan, radio, led, reboot
}

// TestHysteresisTrace mirrors spec.md's scenario 4: a state rises as soon
// as the temperature reaches the next threshold, but only falls once the
// temperature drops hysteresis degrees below the current state's
// threshold, not merely below the raw threshold.
func TestHysteresisTrace(t *testing.T) {
	src := &fakeSource{name: "radio0", enabled: true}
	l, _, _, _, _ := newTestLoop(t, hysteresisConfig(), src)

	src.temp = 55
	l.Step()
	require.Equal(t, 1, l.State(), "temp 55 should rise into state 1")

	src.temp = 47 // below raw threshold 50, but within the 45 hysteresis floor
	l.Step()
	require.Equal(t, 1, l.State(), "temp 47 should stay in state 1 due to hysteresis")

	src.temp = 44 // below the 45 hysteresis floor
	l.Step()
	require.Equal(t, 0, l.State(), "temp 44 should finally fall back to state 0")
}

// TestSingleStepRateLimit verifies state transitions never skip a state
// even when the temperature jumps straight to critical.
func TestSingleStepRateLimit(t *testing.T) {
	src := &fakeSource{name: "radio0", enabled: true, temp: 200}
	l, _, _, _, _ := newTestLoop(t, hysteresisConfig(), src)

	l.Step()
	require.Equal(t, 1, l.State())
	l.Step()
	require.Equal(t, 2, l.State())
}

// TestCriticalTemperatureReboot mirrors spec.md's scenario 5: the unit
// reboots only after the critical state has persisted beyond
// CriticalTempPeriodTolerance consecutive periods.
func TestCriticalTemperatureReboot(t *testing.T) {
	cfg := Config{
		NumStates:                   2,
		NumSources:                  1,
		TempThresholds:              [][]int{{30}, {70}},
		TxChainmasks:                [][]int{{7}, {1}},
		FanRPMTable:                 []int{1000, 3000},
		Hysteresis:                  0,
		FanRPMTolerance:             1000,
		FanErrorPeriodTolerance:     100,
		CriticalTempPeriodTolerance: 2,
		AvgWindow:                   1,
		Period:                      time.Second,
	}
	src := &fakeSource{name: "radio0", enabled: true, temp: 100}
	l, _, _, led, reboot := newTestLoop(t, cfg, src)

	l.Step() // enters critical state 1, critTempPeriods -> 1
	require.Equal(t, 1, l.State())
	require.True(t, led.thermal)
	require.False(t, reboot.called)

	l.Step() // critTempPeriods -> 2, still within tolerance
	require.False(t, reboot.called)

	l.Step() // critTempPeriods -> 3, exceeds tolerance of 2
	require.True(t, reboot.called)
	require.Equal(t, "thermal", reboot.reason)
}

// TestFanFailureEscalatesAfterTolerance verifies the fan error LED is
// only asserted once the fan has been out of tolerance for more periods
// than FanErrorPeriodTolerance allows, and clears on recovery.
func TestFanFailureEscalatesAfterTolerance(t *testing.T) {
	cfg := hysteresisConfig()
	cfg.FanRPMTolerance = 50
	cfg.FanErrorPeriodTolerance = 2
	src := &fakeSource{name: "radio0", enabled: true, temp: 10} // stays in state 0, target RPM 1000
	fan := &fakeFan{actual: 0}                                  // stuck: never reaches the commanded 1000
	radio := &fakeRadio{}
	led := &fakeLED{}
	reboot := &fakeRebooter{}
	l, err := NewLoop(cfg, []TempSource{src}, fan, radio, led, reboot, nil, nil)
	require.NoError(t, err)

	l.Step() // first period compares against the zero-value prevFanRPM: in tolerance
	require.False(t, led.hwError)
	l.Step() // fanFailure -> 1
	require.False(t, led.hwError)
	l.Step() // fanFailure -> 2, still within tolerance
	require.False(t, led.hwError)
	l.Step() // fanFailure -> 3, exceeds FanErrorPeriodTolerance of 2
	require.True(t, led.hwError, "should assert after exceeding FanErrorPeriodTolerance")

	fan.actual = 1000 // recovers to the state-0 target
	l.Step()
	require.False(t, led.hwError, "should clear once back in tolerance")
}

// TestDisabledSourceIsSkipped verifies disabled sources don't contribute
// to the candidate state and don't error the loop.
func TestDisabledSourceIsSkipped(t *testing.T) {
	src := &fakeSource{name: "radio0", enabled: false, temp: 999}
	l, _, _, _, _ := newTestLoop(t, hysteresisConfig(), src)
	l.Step()
	require.Equal(t, 0, l.State())
}

func TestNewLoopRejectsMismatchedTables(t *testing.T) {
	cfg := hysteresisConfig()
	cfg.NumSources = 2 // only one TempSource is given below
	src := &fakeSource{name: "radio0", enabled: true}
	_, err := NewLoop(cfg, []TempSource{src}, &fakeFan{}, &fakeRadio{}, &fakeLED{}, &fakeRebooter{}, nil, nil)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestApplyStateSetsChainmaskOnlyWhenChanged(t *testing.T) {
	src := &fakeSource{name: "radio0", enabled: true, temp: 55}
	l, _, radio, _, _ := newTestLoop(t, hysteresisConfig(), src)
	l.Step() // 0 -> 1, chainmask 7 -> 3, should fire
	require.Equal(t, []int{3}, radio.calls)
}
