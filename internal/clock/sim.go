// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package clock

import (
	"sync"
	"time"
)

// Sim is a manually-advanced virtual clock, the test-only counterpart to
// Real. It mirrors the real/sim provider split used elsewhere in this
// repo (internal/kernel's provider_linux.go / provider_sim.go) so the
// thermal loop and latency core can be driven tick-by-tick in tests
// instead of sleeping on wall time.
type Sim struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*simTicker
	timers  []*simTimer
}

// NewSim creates a Sim clock starting at the given time.
func NewSim(start time.Time) *Sim {
	return &Sim{now: start}
}

func (s *Sim) NowMs() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint64(s.now.UnixMilli())
}

// Advance moves virtual time forward by d, firing any tickers/timers
// whose deadline has passed, in deadline order.
func (s *Sim) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now.Add(d)
	s.mu.Unlock()

	for {
		s.mu.Lock()
		var next *time.Time
		for _, t := range s.tickers {
			if t.stopped {
				continue
			}
			if next == nil || t.next.Before(*next) {
				d := t.next
				next = &d
			}
		}
		for _, t := range s.timers {
			if t.stopped || t.fired {
				continue
			}
			if next == nil || t.next.Before(*next) {
				d := t.next
				next = &d
			}
		}
		if next == nil || next.After(target) {
			s.now = target
			s.mu.Unlock()
			return
		}
		fireAt := *next
		s.now = fireAt
		for _, t := range s.tickers {
			if !t.stopped && !t.next.After(fireAt) {
				select {
				case t.ch <- fireAt:
				default:
				}
				t.next = fireAt.Add(t.period)
			}
		}
		for _, t := range s.timers {
			if !t.stopped && !t.fired && !t.next.After(fireAt) {
				select {
				case t.ch <- fireAt:
				default:
				}
				t.fired = true
			}
		}
		s.mu.Unlock()
	}
}

func (s *Sim) NewTicker(period time.Duration) Ticker {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &simTicker{ch: make(chan time.Time, 1), period: period, next: s.now.Add(period)}
	s.tickers = append(s.tickers, t)
	return t
}

func (s *Sim) NewTimer(d time.Duration) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &simTimer{ch: make(chan time.Time, 1), next: s.now.Add(d), d: d}
	s.timers = append(s.timers, t)
	return t
}

type simTicker struct {
	ch      chan time.Time
	period  time.Duration
	next    time.Time
	stopped bool
}

func (t *simTicker) C() <-chan time.Time { return t.ch }
func (t *simTicker) Stop()               { t.stopped = true }

type simTimer struct {
	ch      chan time.Time
	next    time.Time
	d       time.Duration
	stopped bool
	fired   bool
}

func (t *simTimer) C() <-chan time.Time { return t.ch }

func (t *simTimer) Stop() bool {
	wasPending := !t.stopped && !t.fired
	t.stopped = true
	return wasPending
}

func (t *simTimer) Reset(d time.Duration) bool {
	wasPending := !t.stopped && !t.fired
	t.stopped = false
	t.fired = false
	t.d = d
	return wasPending
}
