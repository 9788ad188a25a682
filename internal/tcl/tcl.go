// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package tcl implements the thermal control loop: a periodic state
// machine that reads one or more temperature sources, computes a moving
// average per source, derives a thermal state via per-state/per-source
// thresholds with asymmetric hysteresis, rate-limits state transitions
// to a single step per period, drives fan RPM and radio tx-chainmask
// tables, detects fan and over-temperature failures, and escalates to a
// reboot when the critical state persists. The algorithm mirrors
// pm_therm_cb from the reference thermal manager step for step.
package tcl

import (
	"context"
	"fmt"
	"sync"
	"time"

	"grimm.is/flywall/internal/clock"
	"grimm.is/flywall/internal/errors"
	"grimm.is/flywall/internal/logging"
)

// Config holds the static thermal table and tunables. No defaults are
// applied: zero-valued tolerances and Hysteresis are used as zero, and
// AvgWindow and Period must be set explicitly (NewLoop rejects values
// <= 0).
type Config struct {
	// NumStates is the number of thermal states (rows), ordered from
	// coolest (0) to most critical (NumStates-1).
	NumStates int
	// NumSources is the number of temperature sources (columns).
	NumSources int
	// TempThresholds[state][src] is the temperature at or above which
	// src is considered to be in state (or higher).
	TempThresholds [][]int
	// TxChainmasks[state][src] is the radio tx-chainmask to apply to
	// src's radio when the loop is in state.
	TxChainmasks [][]int
	// FanRPMTable[state] is the target fan RPM for state.
	FanRPMTable []int

	// Hysteresis is subtracted from the threshold of every state at or
	// below the loop's current state (falling hysteresis only; states
	// above the current one use the threshold as-is).
	Hysteresis int
	// FanRPMTolerance is the +/- band around a state's target RPM
	// within which the fan is considered healthy.
	FanRPMTolerance int
	// FanErrorPeriodTolerance is the number of consecutive failed
	// periods allowed before a fan failure is asserted.
	FanErrorPeriodTolerance int
	// CriticalTempPeriodTolerance is the number of consecutive periods
	// the loop may remain in the critical (highest) state before a
	// reboot is triggered.
	CriticalTempPeriodTolerance int
	// AvgWindow is the number of samples in the moving-average ring
	// buffer per source.
	AvgWindow int
	// Period is the tick interval.
	Period time.Duration
}

// ErrInvalidConfig is returned by NewLoop when the table dimensions are
// inconsistent with NumStates/NumSources.
var ErrInvalidConfig = errors.New(errors.KindValidation, "tcl: invalid thermal table configuration")

func (c Config) validate(numSources int) error {
	if c.NumStates <= 0 {
		return errors.Wrap(ErrInvalidConfig, errors.KindValidation, "tcl: num_states must be > 0")
	}
	if c.NumSources != numSources {
		return errors.Wrap(ErrInvalidConfig, errors.KindValidation,
			fmt.Sprintf("tcl: config declares %d sources but %d TempSource were given", c.NumSources, numSources))
	}
	if len(c.TempThresholds) != c.NumStates || len(c.TxChainmasks) != c.NumStates {
		return errors.Wrap(ErrInvalidConfig, errors.KindValidation, "tcl: threshold/chainmask table row count must equal num_states")
	}
	for state := 0; state < c.NumStates; state++ {
		if len(c.TempThresholds[state]) != c.NumSources || len(c.TxChainmasks[state]) != c.NumSources {
			return errors.Wrap(ErrInvalidConfig, errors.KindValidation, "tcl: threshold/chainmask table column count must equal num_sources")
		}
	}
	if len(c.FanRPMTable) != c.NumStates {
		return errors.Wrap(ErrInvalidConfig, errors.KindValidation, "tcl: fan RPM table length must equal num_states")
	}
	if c.AvgWindow <= 0 {
		return errors.Wrap(ErrInvalidConfig, errors.KindValidation, "tcl: avg_window must be > 0")
	}
	if c.Period <= 0 {
		return errors.Wrap(ErrInvalidConfig, errors.KindValidation, "tcl: period must be > 0")
	}
	return nil
}

// TempSource is a single temperature input (typically one per radio).
type TempSource interface {
	Name() string
	Enabled() bool
	ReadTemperature() (int, error)
}

// FanController reads and drives the cooling fan.
type FanController interface {
	GetFanRPM() (int, error)
	SetFanRPM(rpm int) error
}

// RadioController applies a tx-chainmask to a source's radio.
type RadioController interface {
	SetTxChainmask(srcIdx int, mask int) error
}

// LEDController surfaces hardware and thermal error indications.
type LEDController interface {
	SetHWError(asserted bool) error
	SetThermal(asserted bool) error
}

// Rebooter performs (or simulates) a unit reboot.
type Rebooter interface {
	Reboot(reason string) error
}

// Metrics receives thermal state/fan observations for external exposure
// (e.g. Prometheus gauges). Optional: a Loop with no Metrics set simply
// skips the calls.
type Metrics interface {
	ObserveThermalState(state int)
	ObserveFanRPM(rpm int)
}

// Loop is a running thermal control loop bound to a fixed set of
// temperature sources and actuators.
type Loop struct {
	cfg     Config
	sources []TempSource
	fan     FanController
	radio   RadioController
	led     LEDController
	reboot  Rebooter
	clk     clock.Clock
	logger  *logging.Logger
	metrics Metrics

	mu              sync.Mutex
	prevState       int
	prevFanRPM      int
	fanFailure      int
	critTempPeriods int
	avgSum          []int
	avgMeas         [][]int
	avgIdx          int
}

// NewLoop validates cfg against the number of sources and constructs a
// Loop. The table-dimension/source-count consistency check happens here
// (not lazily in Run) so misconfiguration surfaces immediately.
func NewLoop(cfg Config, sources []TempSource, fan FanController, radio RadioController,
	led LEDController, reboot Rebooter, clk clock.Clock, logger *logging.Logger) (*Loop, error) {
	if err := cfg.validate(len(sources)); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.WithComponent("tcl")
	}
	if clk == nil {
		clk = clock.Real{}
	}

	avgSum := make([]int, cfg.NumSources)
	avgMeas := make([][]int, cfg.NumSources)
	for i := range avgMeas {
		avgMeas[i] = make([]int, cfg.AvgWindow)
	}

	return &Loop{
		cfg:     cfg,
		sources: sources,
		fan:     fan,
		radio:   radio,
		led:     led,
		reboot:  reboot,
		clk:     clk,
		logger:  logger,
		avgSum:  avgSum,
		avgMeas: avgMeas,
	}, nil
}

// SetMetrics attaches a Metrics sink. Nil clears it.
func (l *Loop) SetMetrics(m Metrics) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.metrics = m
}

// State returns the current thermal state.
func (l *Loop) State() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.prevState
}

// Run ticks Step every cfg.Period until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	ticker := l.clk.NewTicker(l.cfg.Period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			l.Step()
		}
	}
}

// Step runs a single iteration of the control loop: sample, derive
// state, rate-limit, detect failures, actuate. Exported so tests can
// drive it deterministically without a real or simulated ticker.
func (l *Loop) Step() {
	l.mu.Lock()
	defer l.mu.Unlock()

	candidate := 0
	for idx, src := range l.sources {
		if !src.Enabled() {
			continue
		}
		temp, err := src.ReadTemperature()
		if err != nil {
			l.logger.Warn("tcl: failed to read temperature", "source", src.Name(), "err", err)
			continue
		}
		avg := l.movingAverage(idx, temp)
		state := l.highestState(idx, avg)
		if state > candidate {
			candidate = state
		}
	}

	// Rate-limit: move at most one state per period.
	switch {
	case candidate > l.prevState:
		candidate = l.prevState + 1
	case candidate < l.prevState:
		candidate = l.prevState - 1
	}

	fanRPM, err := l.fan.GetFanRPM()
	if err != nil {
		l.logger.Warn("tcl: failed to read fan RPM", "err", err)
	}

	l.detectFanFailure(l.prevFanRPM, fanRPM)
	l.detectOverTemperature(candidate)

	targetFanRPM := l.cfg.FanRPMTable[candidate]
	if candidate != l.prevState {
		l.applyState(candidate)
	}
	if err := l.fan.SetFanRPM(targetFanRPM); err != nil {
		l.logger.Warn("tcl: failed to set fan RPM", "rpm", targetFanRPM, "err", err)
	}

	l.prevFanRPM = targetFanRPM
	l.prevState = candidate
	l.avgIdx = (l.avgIdx + 1) % l.cfg.AvgWindow

	if l.metrics != nil {
		l.metrics.ObserveThermalState(candidate)
		l.metrics.ObserveFanRPM(targetFanRPM)
	}
}

// movingAverage implements pm_calc_temp_moving_avg's ring buffer with
// manual round-half-up (since integer division floors).
func (l *Loop) movingAverage(srcIdx, temperature int) int {
	cur := &l.avgMeas[srcIdx][l.avgIdx]
	if *cur != 0 {
		l.avgSum[srcIdx] -= *cur
	}
	l.avgSum[srcIdx] += temperature
	*cur = temperature

	count := 0
	for _, v := range l.avgMeas[srcIdx] {
		if v != 0 {
			count++
		}
	}
	if count == 0 {
		return 0
	}
	avg := l.avgSum[srcIdx] / count
	if 2*(l.avgSum[srcIdx]%count) >= count {
		avg++
	}
	return avg
}

// highestState implements pm_get_highest_state: the highest state whose
// threshold (minus hysteresis, for states at or below the previous
// state) the temperature still clears.
func (l *Loop) highestState(srcIdx, temp int) int {
	highest := 0
	for state := 0; state < l.cfg.NumStates; state++ {
		hysteresis := 0
		if state <= l.prevState {
			hysteresis = l.cfg.Hysteresis
		}
		if temp < (l.cfg.TempThresholds[state][srcIdx] - hysteresis) {
			break
		}
		highest = state
	}
	return highest
}

func (l *Loop) detectFanFailure(desiredRPM, actualRPM int) {
	low := desiredRPM - l.cfg.FanRPMTolerance
	high := desiredRPM + l.cfg.FanRPMTolerance
	if actualRPM < low || actualRPM > high {
		l.logger.Error("tcl: fan cannot reach desired RPM", "actual", actualRPM, "desired", desiredRPM)
		l.fanFailure++
		if l.fanFailure > l.cfg.FanErrorPeriodTolerance {
			if err := l.led.SetHWError(true); err != nil {
				l.logger.Warn("tcl: failed to assert hw error LED", "err", err)
			}
		}
	} else if l.fanFailure != 0 {
		l.fanFailure = 0
		if err := l.led.SetHWError(false); err != nil {
			l.logger.Warn("tcl: failed to clear hw error LED", "err", err)
		}
	}
}

func (l *Loop) detectOverTemperature(state int) {
	if state >= l.cfg.NumStates-1 {
		if l.critTempPeriods == 0 {
			if err := l.led.SetThermal(true); err != nil {
				l.logger.Warn("tcl: failed to assert thermal LED", "err", err)
			}
		}
		l.critTempPeriods++
		if l.critTempPeriods > l.cfg.CriticalTempPeriodTolerance {
			l.logger.Error("tcl: critical temperature period tolerance exceeded, rebooting")
			if err := l.reboot.Reboot("thermal"); err != nil {
				l.logger.Error("tcl: reboot failed", "err", err)
			}
		}
	} else if l.critTempPeriods > 0 {
		l.critTempPeriods = 0
		if err := l.led.SetThermal(false); err != nil {
			l.logger.Warn("tcl: failed to clear thermal LED", "err", err)
		}
	}
}

func (l *Loop) applyState(newState int) {
	for idx := range l.sources {
		oldMask := l.cfg.TxChainmasks[l.prevState][idx]
		newMask := l.cfg.TxChainmasks[newState][idx]
		if newMask != oldMask {
			if err := l.radio.SetTxChainmask(idx, newMask); err != nil {
				l.logger.Error("tcl: failed to set radio tx chainmask", "source", l.sources[idx].Name(), "mask", newMask, "err", err)
			}
		}
	}
	l.logger.Info("tcl: thermal state changed", "from", l.prevState, "to", newState)
}
