// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Command lopd wires the latency observation core (C6), MAP derivation
// (C4) and thermal control loop (C5) to config-driven row storage (C7),
// a report sender (C8) and the firewall rule registry (C9) into a single
// long-running daemon, replacing the teacher's RPC-driven control plane
// with a direct in-process pipeline: there is no client/server split
// here for lopd to expose, so config changes are applied straight into
// internal/configstore rather than routed through an RPC handler.
package main

import (
	"flag"
	"fmt"
	"os"
)

func main() {
	var (
		configFile = flag.String("config", "", "path to the HCL/JSON configuration file")
		mapIfName  = flag.String("map-interface", "", "uplink interface the MAP-T/MAP-E instance binds to")
		uplinkIf   = flag.String("prefix-watch-interface", "", "uplink interface to snoop DHCPv6 IA_PD on (empty disables prefix watching)")
		ebpf       = flag.Bool("ebpf", false, "use the kernel eBPF sampler instead of the pcap simulation sampler")
		ebpfObj    = flag.String("ebpf-object", "", "path to the compiled eBPF sampler object (required with -ebpf)")
		reportAddr = flag.String("report-addr", "", "UDP address reports are sent to (empty disables the report sender)")
		metricAddr = flag.String("metrics-addr", ":9108", "address to serve Prometheus metrics on (empty disables it)")
		verbose    = flag.Bool("verbose", false, "enable debug logging")
	)
	flag.Parse()

	if *configFile == "" {
		fmt.Fprintln(os.Stderr, "lopd: -config is required")
		os.Exit(2)
	}
	if *ebpf && *ebpfObj == "" {
		fmt.Fprintln(os.Stderr, "lopd: -ebpf requires -ebpf-object")
		os.Exit(2)
	}

	opts := daemonOpts{
		configFile: *configFile,
		mapIfName:  *mapIfName,
		uplinkIf:   *uplinkIf,
		useEBPF:    *ebpf,
		ebpfObject: *ebpfObj,
		reportAddr: *reportAddr,
		metricAddr: *metricAddr,
		verbose:    *verbose,
	}

	if err := runDaemon(opts); err != nil {
		fmt.Fprintln(os.Stderr, "lopd:", err)
		os.Exit(1)
	}
}
