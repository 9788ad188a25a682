// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

// QoSPolicy defines a per-interface traffic-shaping policy: a root
// bandwidth cap plus optional HTB classes and classification rules,
// applied by internal/qos.Manager.
type QoSPolicy struct {
	// Policy name, also used as the qos_policy block label.
	Name string `hcl:"name,label" json:"name"`

	// Interface this policy shapes traffic on.
	Interface string `hcl:"interface,optional" json:"interface,omitempty"`

	// @default: false
	Enabled bool `hcl:"enabled,optional" json:"enabled,omitempty"`

	// Upload (egress) bandwidth cap in Mbps. 0 means unlimited.
	// @default: 0
	UploadMbps int `hcl:"upload_mbps,optional" json:"upload_mbps,omitempty"`

	// Download (ingress) bandwidth cap in Mbps. 0 means unlimited.
	// @default: 0
	DownloadMbps int `hcl:"download_mbps,optional" json:"download_mbps,omitempty"`

	// HTB traffic classes under the root qdisc.
	Classes []QoSClass `hcl:"class,block" json:"classes,omitempty"`

	// Classification rules assigning flows to a class.
	Rules []QoSRule `hcl:"rule,block" json:"rules,omitempty"`
}

// QoSClass is one HTB class within a QoSPolicy.
type QoSClass struct {
	// Class name, also used as the class block label.
	Name string `hcl:"name,label" json:"name"`

	// Guaranteed rate, tc rate syntax (e.g. "10mbit").
	Rate string `hcl:"rate,optional" json:"rate,omitempty"`

	// Ceiling (burst) rate, tc rate syntax (e.g. "50mbit").
	Ceil string `hcl:"ceil,optional" json:"ceil,omitempty"`

	// Scheduling priority; lower values are served first.
	// @default: 0
	Priority int `hcl:"priority,optional" json:"priority,omitempty"`
}

// QoSRule assigns matching traffic to a QoSClass by name.
type QoSRule struct {
	// Rule name, also used as the rule block label.
	Name string `hcl:"name,label" json:"name"`

	// Name of the QoSClass this rule's matching traffic is assigned to.
	Class string `hcl:"class,optional" json:"class,omitempty"`

	// IP protocol to match (e.g. "tcp", "udp"). Empty matches any.
	Protocol string `hcl:"proto,optional" json:"protocol,omitempty"`

	// Destination port to match. 0 matches any port.
	// @default: 0
	DestPort int `hcl:"dest_port,optional" json:"dest_port,omitempty"`

	// Source IP or CIDR to match. Empty matches any source.
	SrcIP string `hcl:"src_ip,optional" json:"src_ip,omitempty"`
}
