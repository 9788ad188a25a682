// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package lopnetif adapts internal/netif interface-existence events onto
// an internal/lop Core, so MLD membership re-resolution (spec.md §4.1's
// netdev-set diff) is driven automatically whenever a vif appears or
// disappears, rather than requiring callers to wire the two components
// together by hand.
package lopnetif

import (
	"grimm.is/flywall/internal/lop"
	"grimm.is/flywall/internal/netif"
)

// Bridge forwards netif.Observer existence events to a lop.Core. It
// implements netif.Listener so it can be registered via
// netif.Observer.Subscribe.
type Bridge struct {
	core *lop.Core
}

// NewBridge returns a Bridge that drives core's SetVifExists from
// whatever Observer it is subscribed to.
func NewBridge(core *lop.Core) *Bridge {
	return &Bridge{core: core}
}

// OnNetifEvent implements netif.Listener.
func (b *Bridge) OnNetifEvent(e netif.Event) {
	b.core.SetVifExists(e.IfName, e.Exists)
}

// Attach subscribes a fresh Bridge to obs and returns it, for callers
// that don't need the Bridge beyond wiring it up once.
func Attach(obs *netif.Observer, core *lop.Core) *Bridge {
	b := NewBridge(core)
	obs.Subscribe(b)
	return b
}
