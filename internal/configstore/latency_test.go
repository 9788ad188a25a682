// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package configstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"grimm.is/flywall/internal/config"
	"grimm.is/flywall/internal/logging"
	"grimm.is/flywall/internal/lop"
)

// fakeSampler is a synchronous, no-op lop.Sampler: tests here exercise
// configstore's row-to-stream wiring, not lop's own sampling behavior
// (already covered in internal/lop's own tests).
type fakeSampler struct{}

func (fakeSampler) SetKindEnabled(kind lop.Kind, enabled bool) error   { return nil }
func (fakeSampler) SetDSCPEnabled(enabled bool) error                  { return nil }
func (fakeSampler) SetIfnameEnabled(ifname string, enabled bool) error { return nil }
func (fakeSampler) Poll(done func()) error                             { done(); return nil }

func newTestCore() *lop.Core {
	return lop.NewCore(context.Background(), fakeSampler{}, nil, logging.WithComponent("test"))
}

func TestDiffLatencyStreams(t *testing.T) {
	a := config.LatencyStream{Name: "s1", Ifnames: []string{"wan0"}, Kinds: []string{"min", "max"}, PollMs: 1000, ReportMs: 10000}
	b := a
	b.PollMs = 500

	require.Len(t, diffLatencyStreams(nil, []config.LatencyStream{a}), 1)
	require.Len(t, diffLatencyStreams([]config.LatencyStream{a}, []config.LatencyStream{a}), 0)

	updates := diffLatencyStreams([]config.LatencyStream{a}, []config.LatencyStream{b})
	require.Len(t, updates, 1)
	require.Equal(t, RowModify, updates[0].Kind)

	updates = diffLatencyStreams([]config.LatencyStream{a}, nil)
	require.Len(t, updates, 1)
	require.Equal(t, RowDelete, updates[0].Kind)
}

func TestLatencyStreamEqualDetectsSamplingChange(t *testing.T) {
	a := config.LatencyStream{Name: "s1", Sampling: "separate"}
	b := a
	require.True(t, latencyStreamEqual(a, b))

	b.Sampling = "merge"
	require.False(t, latencyStreamEqual(a, b))
}

func TestToSampling(t *testing.T) {
	require.Equal(t, lop.SamplingMerge, toSampling("merge"))
	require.Equal(t, lop.SamplingSeparate, toSampling("separate"))
	require.Equal(t, lop.SamplingSeparate, toSampling(""), "empty policy defaults to separate")
}

func TestLatencyStoreNewModifyDelete(t *testing.T) {
	ls := newLatencyStore(newTestCore(), logging.WithComponent("test"))

	row := config.LatencyStream{Name: "s1", Ifnames: []string{"wan0"}, Kinds: []string{"min"}, PollMs: 1000, ReportMs: 10000, Sampling: "separate"}
	require.NoError(t, ls.apply(LatencyStreamUpdate{Kind: RowNew, Name: "s1", New: &row}))
	require.Len(t, ls.streams, 1)

	modified := row
	modified.PollMs = 2000
	require.NoError(t, ls.apply(LatencyStreamUpdate{Kind: RowModify, Name: "s1", Old: &row, New: &modified}))
	require.Len(t, ls.streams, 1, "modify reuses the existing stream rather than creating a second one")

	require.NoError(t, ls.apply(LatencyStreamUpdate{Kind: RowDelete, Name: "s1", Old: &modified}))
	require.Len(t, ls.streams, 0)
}

func TestLatencyStoreCloseAll(t *testing.T) {
	ls := newLatencyStore(newTestCore(), logging.WithComponent("test"))
	row := config.LatencyStream{Name: "s1"}
	require.NoError(t, ls.apply(LatencyStreamUpdate{Kind: RowNew, Name: "s1", New: &row}))
	ls.closeAll()
	require.Len(t, ls.streams, 0)
}
