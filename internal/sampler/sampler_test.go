// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package sampler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"grimm.is/flywall/internal/lop"
)

type fakeSampler struct {
	ifnameEnabled map[string]bool
}

func (f *fakeSampler) SetKindEnabled(kind lop.Kind, enabled bool) error { return nil }
func (f *fakeSampler) SetDSCPEnabled(enabled bool) error                { return nil }
func (f *fakeSampler) SetIfnameEnabled(ifname string, enabled bool) error {
	f.ifnameEnabled[ifname] = enabled
	return nil
}
func (f *fakeSampler) Poll(done func()) error { done(); return nil }

func TestNewCoreHandlerForwardsToCore(t *testing.T) {
	fs := &fakeSampler{ifnameEnabled: map[string]bool{}}
	core := lop.NewCore(context.Background(), fs, nil, nil)
	s := core.NewStream()
	s.SetIfname("wlan0", true, "")
	s.SetKindMin(true)

	var gotHosts []*lop.Host
	s.SetReportFn(func(hosts []*lop.Host, userdata any) {
		gotHosts = append(gotHosts, hosts...)
	}, nil)

	handler := NewCoreHandler(core)
	handler(lop.RawSample{IfName: "wlan0", MAC: [6]byte{1}, MinMs: 5})
	s.ReportTick()

	require.Len(t, gotHosts, 1)
	require.Equal(t, "wlan0", gotHosts[0].Key.IfName)
}

func TestNewEBPFCoreHandlerResolvesIfnameAndForwards(t *testing.T) {
	fs := &fakeSampler{ifnameEnabled: map[string]bool{}}
	core := lop.NewCore(context.Background(), fs, nil, nil)
	s := core.NewStream()
	s.SetIfname("eth2", true, "")
	s.SetKindMax(true)

	var gotHosts []*lop.Host
	s.SetReportFn(func(hosts []*lop.Host, userdata any) {
		gotHosts = append(gotHosts, hosts...)
	}, nil)

	resolve := func(ifindex int) (string, error) {
		if ifindex == 7 {
			return "eth2", nil
		}
		return "", errors.New("no such interface")
	}
	handler := NewEBPFCoreHandler(core, resolve)
	handler(7, lop.RawSample{MAC: [6]byte{2}, MaxMs: 9})
	s.ReportTick()

	require.Len(t, gotHosts, 1)
	require.Equal(t, "eth2", gotHosts[0].Key.IfName)

	gotHosts = nil
	handler(99, lop.RawSample{MAC: [6]byte{3}, MaxMs: 9})
	s.ReportTick()
	require.Empty(t, gotHosts)
}
