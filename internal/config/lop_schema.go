// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

// MapRule is a named MAP-E/MAP-T Basic Mapping Rule (BMR), translated by
// internal/configstore into an internal/mde.Rule for longest-prefix match
// against an end-user IPv6 prefix.
type MapRule struct {
	// Rule name, used as the longest-prefix-match table key.
	Name string `hcl:"name,label" json:"name"`

	// MAP flavor this rule derives: "map-t" (IPv4-in-IPv6 translation) or
	// "map-e" (IPv4-in-IPv6 tunneling). Rules that share a table must all
	// use the same flavor.
	// @enum: map-t, map-e
	Type string `hcl:"type,optional" json:"type,omitempty"`

	// Rule Mapping IPv6 prefix (the BMR's ipv6_prefix).
	// @example: "2001:db8:1::/40"
	IPv6Prefix string `hcl:"ipv6_prefix,optional" json:"ipv6_prefix,omitempty"`

	// Rule IPv4 prefix shared by all end users matching this rule.
	// @example: "192.0.2.0/24"
	IPv4Prefix string `hcl:"ipv4_prefix,optional" json:"ipv4_prefix,omitempty"`

	// Embedded Address (EA) bit length.
	// @default: 0
	EALen int `hcl:"ea_len,optional" json:"ea_len,omitempty"`

	// PSID offset in bits. Omitted means "derive from ea_len"; an
	// explicit 0 is valid and distinct from omission, so this is a
	// pointer rather than a plain int (an HCL optional int field cannot
	// otherwise distinguish "not set" from "set to zero").
	// @default: unset
	PSIDOffset *int `hcl:"psid_offset,optional" json:"psid_offset,omitempty"`

	// Whether this rule is a Forwarding Mapping Rule (FMR) rather than a
	// plain BMR; FMRs additionally permit peer-to-peer mapped traffic.
	// @default: false
	IsFMR bool `hcl:"is_fmr,optional" json:"is_fmr,omitempty"`

	// Default Mapping Rule (DMR) prefix, used for MAP-T traffic to
	// destinations outside any FMR's IPv4 range.
	// @example: "2001:db8:ffff::/96"
	DMR string `hcl:"dmr,optional" json:"dmr,omitempty"`

	// Explicit PSID value override. Leave psid_len at 0 to derive the
	// PSID from ea_len instead.
	// @default: 0
	PSID int `hcl:"psid,optional" json:"psid,omitempty"`

	// Explicit PSID length in bits, paired with psid.
	// @default: 0
	PSIDLen int `hcl:"psid_len,optional" json:"psid_len,omitempty"`
}

// ThermalTable is a named thermal control loop configuration: the
// per-state/per-source temperature thresholds, radio tx-chainmask table,
// and fan RPM table a internal/tcl.Loop validates and runs against.
type ThermalTable struct {
	// Table name, referenced by a tcl.Loop instance at startup.
	Name string `hcl:"name,label" json:"name"`

	// Temperature sources, in column order. Each source name is resolved
	// to a concrete internal/tcl.TempSource by internal/configstore (a
	// sysfs path for hardware sensors, a radio interface name for
	// driver-reported temperatures).
	// @example: ["cpu", "radio0", "radio1"]
	Sources []string `hcl:"sources,optional" json:"sources,omitempty"`

	// Per-state rows of per-source temperature thresholds (degrees C),
	// ordered from coolest (index 0) to most critical (last index).
	// Row count must equal len(sources)-wide rows, one per state.
	ThermalStates []ThermalState `hcl:"state,block" json:"state,omitempty"`

	// Subtracted from a threshold when evaluating whether a source has
	// fallen below a state (falling-hysteresis only).
	// @default: 0
	Hysteresis int `hcl:"hysteresis,optional" json:"hysteresis,omitempty"`

	// +/- band around a state's target fan RPM considered healthy.
	// @default: 0
	FanRPMTolerance int `hcl:"fan_rpm_tolerance,optional" json:"fan_rpm_tolerance,omitempty"`

	// Consecutive failed periods allowed before a fan failure is
	// asserted.
	// @default: 3
	FanErrorPeriodTolerance int `hcl:"fan_error_period_tolerance,optional" json:"fan_error_period_tolerance,omitempty"`

	// Consecutive periods the loop may remain in the critical state
	// before triggering a reboot.
	// @default: 3
	CriticalTempPeriodTolerance int `hcl:"critical_temp_period_tolerance,optional" json:"critical_temp_period_tolerance,omitempty"`

	// Sample count in the moving-average ring buffer per source.
	// @default: 3
	AvgWindow int `hcl:"avg_window,optional" json:"avg_window,omitempty"`

	// Tick interval, as a duration string (e.g. "15s").
	// @default: "15s"
	Period string `hcl:"period,optional" json:"period,omitempty"`
}

// ThermalState is one row of a ThermalTable: the temperature threshold,
// radio tx-chainmask, and fan RPM target for a single thermal state,
// across every temperature source in the table.
type ThermalState struct {
	// Temperature threshold per source (degrees C), same order as
	// ThermalTable.Sources.
	Thresholds []int `hcl:"thresholds,optional" json:"thresholds,omitempty"`

	// Radio tx-chainmask to apply per source when the loop enters this
	// state.
	TxChainmasks []int `hcl:"tx_chainmasks,optional" json:"tx_chainmasks,omitempty"`

	// Target fan RPM for this state.
	// @default: 0
	FanRPM int `hcl:"fan_rpm,optional" json:"fan_rpm,omitempty"`
}

// LatencyStream is a named internal/lop stream configuration: which
// netdevs, sample kinds, and DSCP values to observe, and how often to
// poll and report. internal/configstore translates each row into the
// corresponding lop.Stream Set* calls.
type LatencyStream struct {
	// Stream name, used as the report bus's stream identifier.
	Name string `hcl:"name,label" json:"name"`

	// Netdevs this stream observes. An entry of the form "mld:<ifname>"
	// binds the stream to an MLD-resolved netdev set instead of a single
	// interface (per internal/lop's MLD binding).
	// @example: ["wlan0", "mld:mld0"]
	Ifnames []string `hcl:"ifnames,optional" json:"ifnames,omitempty"`

	// Sample kinds to collect: any combination of "min", "max", "avg",
	// "last", "num_pkts".
	// @enum: min, max, avg, last, num_pkts
	Kinds []string `hcl:"kinds,optional" json:"kinds,omitempty"`

	// Whether to additionally key samples by DSCP.
	// @default: false
	DSCPEnabled bool `hcl:"dscp_enabled,optional" json:"dscp_enabled,omitempty"`

	// Poll interval in milliseconds.
	// @default: 1000
	PollMs int `hcl:"poll_ms,optional" json:"poll_ms,omitempty"`

	// Report interval in milliseconds.
	// @default: 10000
	ReportMs int `hcl:"report_ms,optional" json:"report_ms,omitempty"`

	// Aggregation policy across a report period: "separate" starts a
	// fresh sample at every poll close (a report carries one sample per
	// poll that observed the host), "merge" accumulates a single sample
	// across the whole report period.
	// @default: "separate"
	// @enum: separate, merge
	Sampling string `hcl:"sampling,optional" json:"sampling,omitempty"`
}
