// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSimTickerFires(t *testing.T) {
	sim := NewSim(time.Unix(0, 0))
	ticker := sim.NewTicker(time.Second)

	sim.Advance(2500 * time.Millisecond)

	count := 0
drain:
	for {
		select {
		case <-ticker.C():
			count++
		default:
			break drain
		}
	}
	require.GreaterOrEqual(t, count, 1)
}

func TestSimTimerFiresOnce(t *testing.T) {
	sim := NewSim(time.Unix(0, 0))
	timer := sim.NewTimer(time.Second)

	sim.Advance(3 * time.Second)

	select {
	case <-timer.C():
	default:
		t.Fatal("expected timer to fire")
	}
	select {
	case <-timer.C():
		t.Fatal("timer should only fire once")
	default:
	}
}

func TestWakeCoalesces(t *testing.T) {
	w := NewWake()
	w.Signal()
	w.Signal()
	w.Signal()

	select {
	case <-w.C():
	default:
		t.Fatal("expected a pending wake")
	}
	select {
	case <-w.C():
		t.Fatal("wake should have coalesced to a single pending signal")
	default:
	}
}
