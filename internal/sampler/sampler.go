// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package sampler documents the two internal/lop.Sampler backends this
// module provides and the one piece of glue both need: translating a
// backend-specific observation into a call to lop.Core.HandleSample.
// internal/sampler/ebpfsampler is the real kernel-backed adapter;
// internal/sampler/pcapsampler is the simulation/lab adapter. Neither
// depends on the other; callers pick one per deployment.
package sampler

import "grimm.is/flywall/internal/lop"

// NewCoreHandler returns a callback suitable for pcapsampler.New's
// onSample parameter (RawSample.IfName already populated) that
// forwards every observation directly into core.
func NewCoreHandler(core *lop.Core) func(raw lop.RawSample) {
	return core.HandleSample
}

// IfindexResolver resolves a kernel interface index to its current
// name; net.InterfaceByIndex satisfies the shape callers need.
type IfindexResolver func(ifindex int) (ifname string, err error)

// NewEBPFCoreHandler returns a callback suitable for ebpfsampler.New's
// onSample parameter: it resolves the kernel ifindex to a name via
// resolve and forwards the result into core. Samples for an ifindex
// that no longer resolves (interface removed between observation and
// drain) are dropped.
func NewEBPFCoreHandler(core *lop.Core, resolve IfindexResolver) func(ifindex uint32, raw lop.RawSample) {
	return func(ifindex uint32, raw lop.RawSample) {
		name, err := resolve(int(ifindex))
		if err != nil {
			return
		}
		raw.IfName = name
		core.HandleSample(raw)
	}
}
