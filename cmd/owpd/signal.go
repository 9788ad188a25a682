// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package main

import "syscall"

// The four control signals, matching wpd.c's WPD_SIG_* mapping exactly so
// that a -daemon instance and a signal-sending invocation of this same
// binary agree on the wire.
const (
	sigSetAuto   = syscall.SIGUSR1
	sigSetNoAuto = syscall.SIGUSR2
	sigPing      = syscall.SIGHUP
	sigKill      = syscall.SIGINT
)
