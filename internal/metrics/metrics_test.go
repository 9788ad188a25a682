// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestCollectorObserveThermalAndFan(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.ObserveThermalState(2)
	c.ObserveFanRPM(4200)

	require.Equal(t, float64(2), gaugeValue(t, c.thermalState))
	require.Equal(t, float64(4200), gaugeValue(t, c.fanRPM))
}

func TestCollectorLopCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.ObservePoll()
	c.ObservePoll()
	c.ObserveReport()
	c.SetOpenStreams(3)

	require.Equal(t, float64(2), counterValue(t, c.lopPolls))
	require.Equal(t, float64(1), counterValue(t, c.lopReports))
	require.Equal(t, float64(3), gaugeValue(t, c.lopStreams))
}

func TestCollectorMapDerivation(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.ObserveMapDerivation()
	c.ObserveMapDerivation()

	require.Equal(t, float64(2), counterValue(t, c.mapDerivation))
}
