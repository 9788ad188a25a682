// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package netif

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

type fakeLink struct {
	attrs netlink.LinkAttrs
}

func (f *fakeLink) Attrs() *netlink.LinkAttrs { return &f.attrs }
func (f *fakeLink) Type() string              { return "fake" }

func newFakeLink(name string, up bool) netlink.Link {
	attrs := netlink.NewLinkAttrs()
	attrs.Name = name
	if up {
		attrs.RawFlags |= unix.IFF_UP
	}
	return &fakeLink{attrs: attrs}
}

type fakeSource struct {
	initial []netlink.Link
	updates chan netlink.LinkUpdate
}

func (f *fakeSource) LinkList() ([]netlink.Link, error) { return f.initial, nil }
func (f *fakeSource) Subscribe(ch chan<- netlink.LinkUpdate, done <-chan struct{}) error {
	go func() {
		for {
			select {
			case <-done:
				return
			case u, ok := <-f.updates:
				if !ok {
					return
				}
				ch <- u
			}
		}
	}()
	return nil
}

func collectEvents(o *Observer) (*[]Event, Listener) {
	events := &[]Event{}
	return events, ListenerFunc(func(e Event) { *events = append(*events, e) })
}

func TestRunEmitsInitialState(t *testing.T) {
	src := &fakeSource{
		initial: []netlink.Link{newFakeLink("wlan0-24", true)},
		updates: make(chan netlink.LinkUpdate),
	}
	o := NewObserverWithSource(src, nil)
	events, l := collectEvents(o)
	o.Subscribe(l)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { o.Run(ctx); close(done) }()

	time.Sleep(10 * time.Millisecond)
	cancel()
	<-done

	require.Len(t, *events, 1)
	require.Equal(t, Event{IfName: "wlan0-24", Exists: true, Up: true}, (*events)[0])
}

func TestRunEmitsUpDownTransitions(t *testing.T) {
	src := &fakeSource{updates: make(chan netlink.LinkUpdate)}
	o := NewObserverWithSource(src, nil)
	events, l := collectEvents(o)
	o.Subscribe(l)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { o.Run(ctx); close(done) }()
	time.Sleep(5 * time.Millisecond)

	src.updates <- netlink.LinkUpdate{
		Header: unix.NlMsghdr{Type: unix.RTM_NEWLINK},
		Link:   newFakeLink("wlan0-5", true),
	}
	time.Sleep(5 * time.Millisecond)

	src.updates <- netlink.LinkUpdate{
		Header: unix.NlMsghdr{Type: unix.RTM_DELLINK},
		Link:   newFakeLink("wlan0-5", false),
	}
	time.Sleep(5 * time.Millisecond)

	cancel()
	<-done

	require.Len(t, *events, 2)
	require.True(t, (*events)[0].Exists)
	require.True(t, (*events)[0].Up)
	require.False(t, (*events)[1].Exists)
}

func TestSnapshotReflectsLastKnownState(t *testing.T) {
	src := &fakeSource{
		initial: []netlink.Link{newFakeLink("eth0", true)},
		updates: make(chan netlink.LinkUpdate),
	}
	o := NewObserverWithSource(src, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { o.Run(ctx); close(done) }()
	time.Sleep(10 * time.Millisecond)
	cancel()
	<-done

	snap := o.Snapshot()
	require.Contains(t, snap, "eth0")
	require.True(t, snap["eth0"].Up)
}
