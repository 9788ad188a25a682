// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package main

import "net"

// udpSender is the production reportbus.Sender: reports are fired at a
// configured collector over a connected UDP socket. Send never blocks
// beyond the kernel's own write buffering, matching reportbus's
// best-effort delivery contract.
type udpSender struct {
	conn net.Conn
}

func newUDPSender(addr string) (*udpSender, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, err
	}
	return &udpSender{conn: conn}, nil
}

func (u *udpSender) Send(frame []byte) error {
	_, err := u.conn.Write(frame)
	return err
}
