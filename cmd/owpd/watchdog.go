// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package main

import (
	"fmt"

	"golang.org/x/sys/unix"
)

const watchdogDevice = "/dev/watchdog"

// WDIOC_SETTIMEOUT, from linux/watchdog.h: _IOWR('W', 6, int). x/sys/unix
// doesn't export the watchdog ioctl family, so the request code is spelled
// out here the same way it's spelled out in the kernel header.
const wdiocSetTimeout = 0xC0045706

// watchdogDev holds /dev/watchdog open for the life of the daemon. The
// device itself arms a reboot on close unless explicitly disarmed, so it's
// intentionally never closed during normal daemon operation.
type watchdogDev struct {
	fd int
}

func openWatchdog() (*watchdogDev, error) {
	fd, err := unix.Open(watchdogDevice, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", watchdogDevice, err)
	}
	return &watchdogDev{fd: fd}, nil
}

// setTimeout sets the hardware watchdog's bite timeout in seconds.
func (w *watchdogDev) setTimeout(seconds int) error {
	return unix.IoctlSetInt(w.fd, wdiocSetTimeout, seconds)
}

// ping writes a single byte to the device, the same keepalive mechanism
// wpd.c uses instead of the WDIOC_KEEPALIVE ioctl.
func (w *watchdogDev) ping() error {
	_, err := unix.Write(w.fd, []byte{'w'})
	return err
}

func (w *watchdogDev) close() {
	unix.Close(w.fd)
}
