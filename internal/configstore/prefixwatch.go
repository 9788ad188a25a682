// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package configstore

import (
	"net"

	"github.com/insomniacslk/dhcp/dhcpv6"
	"golang.org/x/net/ipv6"
	"grimm.is/flywall/internal/logging"
)

// PrefixWatcher snoops DHCPv6 traffic on an uplink interface for IA_PD
// replies and pushes the delegated prefix into a Store, the same way
// original_source's nm2_ipv6_relay.c keeps the relay's notion of the
// upstream prefix current without the MAP rules needing an operator-set
// end-user prefix.
type PrefixWatcher struct {
	store  *Store
	conn   net.PacketConn
	logger *logging.Logger

	done chan struct{}
}

// NewPrefixWatcher opens a UDP listener on port 547 (the DHCPv6 server/relay
// port) on all addresses, joins the ff02::1:2 group on ifName, and starts
// snooping for IA_PD leases in the background. Call Close to stop.
func NewPrefixWatcher(ifName string, store *Store, logger *logging.Logger) (*PrefixWatcher, error) {
	if logger == nil {
		logger = logging.WithComponent("configstore-prefixwatch")
	}

	iface, err := net.InterfaceByName(ifName)
	if err != nil {
		return nil, err
	}

	conn, err := net.ListenPacket("udp6", "[::]:547")
	if err != nil {
		return nil, err
	}
	pc := ipv6.NewPacketConn(conn)
	if err := pc.JoinGroup(iface, &net.UDPAddr{IP: net.ParseIP("ff02::1:2")}); err != nil {
		conn.Close()
		return nil, err
	}

	pw := &PrefixWatcher{
		store:  store,
		conn:   conn,
		logger: logger,
		done:   make(chan struct{}),
	}
	go pw.run()
	return pw, nil
}

func (pw *PrefixWatcher) run() {
	defer close(pw.done)
	buf := make([]byte, 1500)
	for {
		n, _, err := pw.conn.ReadFrom(buf)
		if err != nil {
			return
		}
		pw.handlePacket(buf[:n])
	}
}

func (pw *PrefixWatcher) handlePacket(data []byte) {
	msg, err := dhcpv6.FromBytes(data)
	if err != nil {
		pw.logger.Debug("configstore: failed to parse DHCPv6 packet", "err", err)
		return
	}

	m, err := msg.GetInnerMessage()
	if err != nil {
		return
	}
	if m.MessageType != dhcpv6.MessageTypeReply {
		return
	}

	iapd := m.Options.OneIAPD()
	if iapd == nil {
		return
	}
	prefix := iapd.Options.OneIAPrefix()
	if prefix == nil || prefix.Prefix == nil {
		return
	}

	ones, _ := prefix.Prefix.Mask.Size()
	var addr [16]byte
	copy(addr[:], prefix.Prefix.IP.To16())

	if err := pw.store.SetEndUserPrefix(addr, ones); err != nil {
		pw.logger.Warn("configstore: failed to apply delegated prefix", "prefix", prefix.Prefix.String(), "err", err)
		return
	}
	pw.logger.Notice("configstore: end-user prefix updated from DHCPv6 IA_PD", "prefix", prefix.Prefix.String())
}

// Close stops the watcher and closes its socket.
func (pw *PrefixWatcher) Close() error {
	err := pw.conn.Close()
	<-pw.done
	return err
}
