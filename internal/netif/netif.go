// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package netif observes per-interface up/down/exists transitions over
// netlink and fans them out to interested components — principally
// internal/lop's MLD membership re-resolution (SetVifExists), which
// must re-diff a logical interface's netdev set whenever one of its
// constituent vifs appears or disappears.
package netif

import (
	"context"
	"sync"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	"grimm.is/flywall/internal/errors"
	"grimm.is/flywall/internal/logging"
)

// Event describes a single interface state transition.
type Event struct {
	IfName string
	Exists bool
	Up     bool
}

// Listener receives interface events. Implementations must return
// quickly; Observer invokes listeners synchronously on its own
// goroutine.
type Listener interface {
	OnNetifEvent(Event)
}

// ListenerFunc adapts a plain function to Listener.
type ListenerFunc func(Event)

func (f ListenerFunc) OnNetifEvent(e Event) { f(e) }

// linkSource abstracts the netlink calls Observer needs, so tests can
// inject a fake instead of opening a real netlink socket.
type linkSource interface {
	LinkList() ([]netlink.Link, error)
	Subscribe(ch chan<- netlink.LinkUpdate, done <-chan struct{}) error
}

type realLinkSource struct{}

func (realLinkSource) LinkList() ([]netlink.Link, error) { return netlink.LinkList() }
func (realLinkSource) Subscribe(ch chan<- netlink.LinkUpdate, done <-chan struct{}) error {
	return netlink.LinkSubscribe(ch, done)
}

// Observer tracks interface existence/up-down state and notifies
// registered listeners on every transition.
type Observer struct {
	mu        sync.Mutex
	source    linkSource
	logger    *logging.Logger
	listeners []Listener
	state     map[string]Event
}

// NewObserver returns a production Observer backed by the real
// netlink socket.
func NewObserver(logger *logging.Logger) *Observer {
	return NewObserverWithSource(realLinkSource{}, logger)
}

// NewObserverWithSource injects a linkSource explicitly, for tests.
func NewObserverWithSource(source linkSource, logger *logging.Logger) *Observer {
	if logger == nil {
		logger = logging.WithComponent("netif")
	}
	return &Observer{
		source: source,
		logger: logger,
		state:  make(map[string]Event),
	}
}

// Subscribe registers l to receive future events. It does not replay
// current state; call Snapshot first if the caller needs the current
// state of every known interface.
func (o *Observer) Subscribe(l Listener) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.listeners = append(o.listeners, l)
}

// Snapshot returns the last-known Event for every interface the
// Observer has seen, from its initial enumeration or subsequent
// updates.
func (o *Observer) Snapshot() map[string]Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]Event, len(o.state))
	for k, v := range o.state {
		out[k] = v
	}
	return out
}

// Run enumerates current links, notifies listeners of the initial
// state, then subscribes to netlink link updates until ctx is
// cancelled. It blocks until ctx.Done() or an unrecoverable netlink
// error.
func (o *Observer) Run(ctx context.Context) error {
	links, err := o.source.LinkList()
	if err != nil {
		return errors.Wrap(err, errors.KindUnavailable, "netif: failed to list links")
	}
	for _, link := range links {
		attrs := link.Attrs()
		o.applyAndNotify(Event{
			IfName: attrs.Name,
			Exists: true,
			Up:     attrs.RawFlags&unix.IFF_UP != 0,
		})
	}

	updates := make(chan netlink.LinkUpdate)
	done := make(chan struct{})
	if err := o.source.Subscribe(updates, done); err != nil {
		return errors.Wrap(err, errors.KindUnavailable, "netif: failed to subscribe to link updates")
	}
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			o.handleUpdate(u)
		}
	}
}

func (o *Observer) handleUpdate(u netlink.LinkUpdate) {
	attrs := u.Link.Attrs()
	exists := u.Header.Type != unix.RTM_DELLINK
	o.applyAndNotify(Event{
		IfName: attrs.Name,
		Exists: exists,
		Up:     exists && attrs.RawFlags&unix.IFF_UP != 0,
	})
}

func (o *Observer) applyAndNotify(e Event) {
	o.mu.Lock()
	prev, had := o.state[e.IfName]
	unchanged := had && prev == e
	if e.Exists {
		o.state[e.IfName] = e
	} else {
		delete(o.state, e.IfName)
	}
	listeners := make([]Listener, len(o.listeners))
	copy(listeners, o.listeners)
	o.mu.Unlock()

	if unchanged {
		return
	}
	for _, l := range listeners {
		l.OnNetifEvent(e)
	}
}
