// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package main

import (
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"sync"
	"time"

	"grimm.is/flywall/internal/install"
	"grimm.is/flywall/internal/logging"
)

const (
	wdPingPeriod           = 5 * time.Second
	extPingTimeoutInitial  = 80 * time.Second
	extPingTimeoutSteady   = 60 * time.Second
	watchdogTimeoutSeconds = 30
	escalationTimeoutSecs  = 3
)

type mode int

const (
	modeNonAuto mode = iota
	modeAuto
)

type daemonOpts struct {
	verbose     bool
	procs       []string
	autoAtStart bool
}

// daemon owns the watchdog device and tracks whether external managers are
// still pinging it. In auto mode, a missed external ping escalates: it
// stamps a reboot reason, signals the configured processes, shortens the
// hardware watchdog timeout, and stops servicing it so the hardware bites.
type daemon struct {
	opts   daemonOpts
	log    *logging.Logger
	wd     *watchdogDev
	mu     sync.Mutex
	mode   mode
	extDue time.Time
}

func runDaemon(opts daemonOpts) error {
	level := logging.LevelNotice
	if opts.verbose {
		level = logging.LevelDebug
	}
	log := logging.New(logging.Config{Level: level}).With("owpd")

	log.Notice("starting watchdog proxy daemon")

	if err := os.MkdirAll(install.GetRunDir(), 0755); err != nil {
		return fmt.Errorf("create run dir: %w", err)
	}
	if err := writePIDFile(); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer removePIDFile()

	wd, err := openWatchdog()
	if err != nil {
		return err
	}
	defer wd.close()

	if err := wd.setTimeout(watchdogTimeoutSeconds); err != nil {
		return fmt.Errorf("set watchdog timeout: %w", err)
	}
	log.Notice("watchdog timeout set", "seconds", watchdogTimeoutSeconds)

	d := &daemon{opts: opts, log: log, wd: wd, mode: modeNonAuto}
	if opts.autoAtStart {
		d.mode = modeAuto
	}
	d.extDue = time.Now().Add(extPingTimeoutInitial)

	d.run()
	log.Notice("stopping owpd")
	return nil
}

func (d *daemon) run() {
	sigCh := make(chan os.Signal, 4)
	signal.Notify(sigCh, sigSetAuto, sigSetNoAuto, sigPing, sigKill)

	wdTicker := time.NewTicker(wdPingPeriod)
	defer wdTicker.Stop()

	extCheck := time.NewTicker(time.Second)
	defer extCheck.Stop()

	for {
		select {
		case sig := <-sigCh:
			if d.handleSignal(sig) {
				return
			}

		case <-wdTicker.C:
			d.pingWatchdog()

		case <-extCheck.C:
			d.checkExternalPing()
		}
	}
}

func (d *daemon) handleSignal(sig os.Signal) (stop bool) {
	switch sig {
	case sigSetAuto:
		d.log.Notice("mode switched to AUTONOMOUS")
		d.mu.Lock()
		d.mode = modeAuto
		d.mu.Unlock()

	case sigSetNoAuto:
		d.log.Notice("mode switched to NON-AUTONOMOUS")
		d.mu.Lock()
		d.mode = modeNonAuto
		d.mu.Unlock()

	case sigPing:
		d.log.Debug("got ping signal")
		d.mu.Lock()
		d.extDue = time.Now().Add(extPingTimeoutSteady)
		d.mu.Unlock()

	case sigKill:
		d.log.Notice("got kill signal")
		return true
	}
	return false
}

func (d *daemon) pingWatchdog() {
	d.mu.Lock()
	auto := d.mode == modeAuto
	d.mu.Unlock()

	if !auto {
		d.mu.Lock()
		d.extDue = time.Now().Add(extPingTimeoutSteady)
		d.mu.Unlock()
	}

	if err := d.wd.ping(); err != nil {
		d.log.Error("failed to ping the watchdog", "err", err)
	}
}

// checkExternalPing escalates when mode is autonomous and the manager
// ping deadline has passed: it's the Go equivalent of wpd.c's
// cb_timeout_mgr, triggered by a deadline check instead of a re-armed
// libev timer.
func (d *daemon) checkExternalPing() {
	d.mu.Lock()
	auto := d.mode == modeAuto
	due := d.extDue
	d.mu.Unlock()

	if !auto || time.Now().Before(due) {
		return
	}

	d.log.Error("no ping from managers, watchdog will soon bite")
	stampRebootReason("watchdog ping timeout")
	killProcessList(d.opts.procs, d.log)

	if err := d.wd.setTimeout(escalationTimeoutSecs); err != nil {
		d.log.Error("failed to shorten watchdog timeout", "err", err)
	} else {
		d.log.Notice("watchdog timeout shortened", "seconds", escalationTimeoutSecs)
	}

	for {
		time.Sleep(time.Second)
	}
}

// stampRebootReason records why the hardware watchdog is about to fire,
// the Go stand-in for osp_unit_reboot_ex's crash-reason persistence.
func stampRebootReason(reason string) {
	path := filepath.Join(install.GetStateDir(), "owpd-reboot-reason")
	_ = os.WriteFile(path, []byte(reason+"\n"), 0644)
}

// killProcessList sends SIGSEGV to each named process, matching wpd.c's
// wpd_handle_proc_list: a way to force a core dump out of a hung manager
// before the hardware watchdog resets the whole board.
func killProcessList(procs []string, log *logging.Logger) {
	for _, name := range procs {
		out, err := exec.Command("pidof", name).Output()
		if err != nil {
			continue
		}
		pid := string(out)
		log.Notice("sending SIGSEGV", "process", name)
		if err := exec.Command("kill", "-SIGSEGV", pid).Run(); err != nil {
			log.Notice("killing process failed", "process", name, "err", err)
		}
	}
}
