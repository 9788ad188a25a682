// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package metrics exposes the thermal loop and latency observation core
// as a small set of Prometheus gauges and counters: thermal state, fan
// RPM, and lop poll/report activity. Components hold metrics behind
// their own narrow interfaces and only call into it when it is set, so
// neither tcl nor lop depends on this package to function.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collector registers and updates the node's Prometheus metrics.
type Collector struct {
	thermalState  prometheus.Gauge
	fanRPM        prometheus.Gauge
	lopPolls      prometheus.Counter
	lopReports    prometheus.Counter
	lopStreams    prometheus.Gauge
	mapDerivation prometheus.Counter
}

// NewCollector builds a Collector and registers its metrics with reg.
// Passing prometheus.NewRegistry() keeps registration test-local; the
// default registry works for a real process.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		thermalState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "flywall",
			Subsystem: "tcl",
			Name:      "thermal_state",
			Help:      "Current thermal control loop state (0 = coolest).",
		}),
		fanRPM: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "flywall",
			Subsystem: "tcl",
			Name:      "fan_rpm",
			Help:      "Last commanded fan RPM.",
		}),
		lopPolls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flywall",
			Subsystem: "lop",
			Name:      "polls_total",
			Help:      "Sampler polls issued by the latency observation core.",
		}),
		lopReports: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flywall",
			Subsystem: "lop",
			Name:      "reports_total",
			Help:      "Reports flushed by the latency observation core.",
		}),
		lopStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "flywall",
			Subsystem: "lop",
			Name:      "open_streams",
			Help:      "Number of live lop streams.",
		}),
		mapDerivation: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flywall",
			Subsystem: "mde",
			Name:      "derivations_total",
			Help:      "Successful MAP rule derivations applied.",
		}),
	}
	reg.MustRegister(c.thermalState, c.fanRPM, c.lopPolls, c.lopReports, c.lopStreams, c.mapDerivation)
	return c
}

// ObserveThermalState implements tcl.Metrics.
func (c *Collector) ObserveThermalState(state int) { c.thermalState.Set(float64(state)) }

// ObserveFanRPM implements tcl.Metrics.
func (c *Collector) ObserveFanRPM(rpm int) { c.fanRPM.Set(float64(rpm)) }

// ObservePoll implements lop.Metrics.
func (c *Collector) ObservePoll() { c.lopPolls.Inc() }

// ObserveReport implements lop.Metrics.
func (c *Collector) ObserveReport() { c.lopReports.Inc() }

// SetOpenStreams implements lop.Metrics.
func (c *Collector) SetOpenStreams(n int) { c.lopStreams.Set(float64(n)) }

// ObserveMapDerivation counts one MAP rule derivation.
func (c *Collector) ObserveMapDerivation() { c.mapDerivation.Inc() }
