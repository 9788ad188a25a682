// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"grimm.is/flywall/internal/logging"
)

func newTestDaemon() *daemon {
	return &daemon{
		log:  logging.WithComponent("test"),
		mode: modeNonAuto,
	}
}

func TestHandleSignalSetAutoSetNoAuto(t *testing.T) {
	d := newTestDaemon()

	require.False(t, d.handleSignal(sigSetAuto))
	require.Equal(t, modeAuto, d.mode)

	require.False(t, d.handleSignal(sigSetNoAuto))
	require.Equal(t, modeNonAuto, d.mode)
}

func TestHandleSignalPingExtendsDeadline(t *testing.T) {
	d := newTestDaemon()
	d.extDue = time.Now()

	before := d.extDue
	require.False(t, d.handleSignal(sigPing))
	require.True(t, d.extDue.After(before))
}

func TestHandleSignalKillRequestsStop(t *testing.T) {
	d := newTestDaemon()
	require.True(t, d.handleSignal(sigKill))
}

func TestCheckExternalPingIgnoresNonAutoMode(t *testing.T) {
	d := newTestDaemon()
	d.mode = modeNonAuto
	d.extDue = time.Now().Add(-time.Hour)

	done := make(chan struct{})
	go func() {
		d.checkExternalPing()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("checkExternalPing blocked despite non-auto mode")
	}
}

func TestProcListSetAppends(t *testing.T) {
	var p procList
	require.NoError(t, p.Set("hostapd"))
	require.NoError(t, p.Set("wm"))
	require.Equal(t, procList{"hostapd", "wm"}, p)
}
