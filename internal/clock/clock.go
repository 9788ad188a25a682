// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package clock provides the monotonic/realtime clock and timer
// substrate shared by the thermal loop (tcl) and latency core (lop).
// A Clock is injected wherever a component would otherwise call
// time.Now/time.NewTicker directly, so tests can drive periodic and
// one-shot timers deterministically instead of sleeping on wall time.
package clock

import "time"

// Clock abstracts time so components are testable without real sleeps.
type Clock interface {
	// NowMs returns the current realtime clock value, in milliseconds
	// since the Unix epoch (matches spec.md's timestamp_ms fields).
	NowMs() uint64

	// NewTicker returns a Ticker that fires every period until Stop.
	NewTicker(period time.Duration) Ticker

	// NewTimer returns a Timer that fires once after d, unless Stop is
	// called first.
	NewTimer(d time.Duration) Timer
}

// Ticker is a cancellable periodic timer.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Timer is a cancellable one-shot timer.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
	Reset(d time.Duration) bool
}

// Real is the production Clock backed by the standard library.
type Real struct{}

func (Real) NowMs() uint64 {
	return uint64(time.Now().UnixMilli())
}

func (Real) NewTicker(period time.Duration) Ticker {
	return &realTicker{t: time.NewTicker(period)}
}

func (Real) NewTimer(d time.Duration) Timer {
	return &realTimer{t: time.NewTimer(d)}
}

type realTicker struct{ t *time.Ticker }

func (r *realTicker) C() <-chan time.Time { return r.t.C }
func (r *realTicker) Stop()               { r.t.Stop() }

type realTimer struct{ t *time.Timer }

func (r *realTimer) C() <-chan time.Time       { return r.t.C }
func (r *realTimer) Stop() bool                { return r.t.Stop() }
func (r *realTimer) Reset(d time.Duration) bool { return r.t.Reset(d) }

// Wake is a coalescing async-wake signal: any number of pending Signal
// calls collapse into a single pending wake, mirroring the ev_async
// coalescing semantics the latency core relies on (spec.md §4.1's
// "core-wide async wakeup").
type Wake struct {
	ch chan struct{}
}

// NewWake returns a ready-to-use Wake signal.
func NewWake() *Wake {
	return &Wake{ch: make(chan struct{}, 1)}
}

// Signal latches a pending wake. It never blocks.
func (w *Wake) Signal() {
	select {
	case w.ch <- struct{}{}:
	default:
	}
}

// C returns the channel to select on; receiving clears the pending wake.
func (w *Wake) C() <-chan struct{} {
	return w.ch
}
