// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package platform applies a derived mde.Map to the Linux network stack:
// it enables NDP proxying on the uplink and installs a proxy neighbor
// entry for the MAP IPv6 address, mirroring lnx_map_ndp_proxy_configure
// from the reference MAP implementation ("sysctl -w
// net.ipv6.conf.<uplink>.proxy_ndp=1" followed by "ip -6 neigh
// {add|del} proxy <addr> dev <uplink>").
package platform

import (
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/mdlayher/ndp"
	"github.com/vishvananda/netlink"

	"grimm.is/flywall/internal/errors"
	"grimm.is/flywall/internal/logging"
	"grimm.is/flywall/internal/mde"
)

// NeighProxySetter installs and removes IPv6 proxy neighbor entries. It
// is a small capability interface so tests can inject a fake instead of
// touching the real kernel neighbor table.
type NeighProxySetter interface {
	AddProxyNeigh(ifaceName string, addr net.IP) error
	DelProxyNeigh(ifaceName string, addr net.IP) error
}

// netlinkNeighProxy is the production NeighProxySetter, backed by
// vishvananda/netlink.
type netlinkNeighProxy struct{}

// NewNetlinkNeighProxy returns the real, netlink-backed NeighProxySetter.
func NewNetlinkNeighProxy() NeighProxySetter { return netlinkNeighProxy{} }

func (netlinkNeighProxy) AddProxyNeigh(ifaceName string, addr net.IP) error {
	link, err := netlink.LinkByName(ifaceName)
	if err != nil {
		return errors.Wrap(err, errors.KindUnavailable, fmt.Sprintf("mde/platform: link %q not found", ifaceName))
	}
	neigh := &netlink.Neigh{
		LinkIndex: link.Attrs().Index,
		Family:    netlink.FAMILY_V6,
		Flags:     netlink.NTF_PROXY,
		IP:        addr,
	}
	if err := netlink.NeighAdd(neigh); err != nil && !os.IsExist(err) {
		return errors.Wrap(err, errors.KindInternal, "mde/platform: failed to add proxy neighbor entry")
	}
	return nil
}

func (netlinkNeighProxy) DelProxyNeigh(ifaceName string, addr net.IP) error {
	link, err := netlink.LinkByName(ifaceName)
	if err != nil {
		return errors.Wrap(err, errors.KindUnavailable, fmt.Sprintf("mde/platform: link %q not found", ifaceName))
	}
	neigh := &netlink.Neigh{
		LinkIndex: link.Attrs().Index,
		Family:    netlink.FAMILY_V6,
		Flags:     netlink.NTF_PROXY,
		IP:        addr,
	}
	if err := netlink.NeighDel(neigh); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, errors.KindInternal, "mde/platform: failed to remove proxy neighbor entry")
	}
	return nil
}

// enableProxyNDP writes net.ipv6.conf.<iface>.proxy_ndp=1 (or 0),
// mirroring "sysctl -w" in the reference implementation.
func enableProxyNDP(ifaceName string, enable bool) error {
	path := fmt.Sprintf("/proc/sys/net/ipv6/conf/%s/proxy_ndp", ifaceName)
	value := "0"
	if enable {
		value = "1"
	}
	current, err := os.ReadFile(path)
	if err == nil && strings.TrimSpace(string(current)) == value {
		return nil
	}
	if err := os.WriteFile(path, []byte(value), 0644); err != nil {
		return errors.Wrap(err, errors.KindInternal, fmt.Sprintf("mde/platform: failed to set proxy_ndp on %s", ifaceName))
	}
	return nil
}

// Configurator applies (and tears down) the NDP-proxy side effects of a
// derived mde.Map against the uplink interface.
type Configurator struct {
	neigh  NeighProxySetter
	logger *logging.Logger
}

// NewConfigurator returns a Configurator using the real netlink-backed
// NeighProxySetter. Pass a custom setter (e.g. a fake) via
// NewConfiguratorWithSetter for tests.
func NewConfigurator(logger *logging.Logger) *Configurator {
	return NewConfiguratorWithSetter(NewNetlinkNeighProxy(), logger)
}

// NewConfiguratorWithSetter injects a NeighProxySetter explicitly.
func NewConfiguratorWithSetter(neigh NeighProxySetter, logger *logging.Logger) *Configurator {
	if logger == nil {
		logger = logging.New(logging.DefaultConfig())
	}
	return &Configurator{neigh: neigh, logger: logger}
}

// Apply enables NDP proxying on m's uplink and installs a proxy neighbor
// entry for m's derived MAP IPv6 address. m must have been Applied
// successfully and have a non-empty uplink interface configured.
func (c *Configurator) Apply(m *mde.Map) error {
	uplink := m.Uplink()
	if uplink == "" {
		return errors.New(errors.KindValidation, "mde/platform: uplink interface not configured")
	}
	addrBytes, err := m.IPv6()
	if err != nil {
		return err
	}
	addr := net.IP(addrBytes[:])

	if err := enableProxyNDP(uplink, true); err != nil {
		return err
	}
	if err := c.neigh.AddProxyNeigh(uplink, addr); err != nil {
		return err
	}
	c.logger.Info("mde: ndp proxy configured", "uplink", uplink, "map_ipv6", addr.String())
	return nil
}

// Teardown removes the proxy neighbor entry installed by Apply. It does
// not disable proxy_ndp on the uplink, since other MAP objects may share
// the same uplink.
func (c *Configurator) Teardown(m *mde.Map) error {
	uplink := m.Uplink()
	if uplink == "" {
		return nil
	}
	addrBytes, err := m.IPv6()
	if err != nil {
		return nil
	}
	addr := net.IP(addrBytes[:])
	if err := c.neigh.DelProxyNeigh(uplink, addr); err != nil {
		return err
	}
	c.logger.Info("mde: ndp proxy removed", "uplink", uplink, "map_ipv6", addr.String())
	return nil
}

// Responder answers Neighbor Solicitations for the MAP IPv6 address with
// solicited Neighbor Advertisements, for lab/sim setups where kernel
// proxy_ndp isn't available (e.g. inside a network namespace without
// CAP_NET_ADMIN on /proc/sys). Production uplinks use Configurator.
type Responder struct {
	conn   *ndp.Conn
	iface  *net.Interface
	target net.IP
}

// NewResponder opens an NDP connection on ifaceName and prepares to
// answer solicitations for target.
func NewResponder(ifaceName string, target net.IP) (*Responder, error) {
	iface, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindUnavailable, fmt.Sprintf("mde/platform: interface %q not found", ifaceName))
	}
	conn, _, err := ndp.Listen(iface, ndp.LinkLocal)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindUnavailable, "mde/platform: failed to open NDP listener")
	}
	return &Responder{conn: conn, iface: iface, target: target}, nil
}

// Close releases the underlying NDP connection.
func (r *Responder) Close() error {
	if r.conn == nil {
		return nil
	}
	return r.conn.Close()
}

// ServeOne reads a single ICMPv6 message and, if it is a Neighbor
// Solicitation for r.target, replies with a Neighbor Advertisement.
// Callers typically loop calling ServeOne from a dedicated goroutine.
func (r *Responder) ServeOne() error {
	msg, _, from, err := r.conn.ReadFrom()
	if err != nil {
		return err
	}
	ns, ok := msg.(*ndp.NeighborSolicitation)
	if !ok || !ns.TargetAddress.Equal(r.target) {
		return nil
	}
	na := &ndp.NeighborAdvertisement{
		Solicited:     true,
		Override:      true,
		TargetAddress: r.target,
		Options: []ndp.Option{
			&ndp.LinkLayerAddress{
				Direction: ndp.Target,
				Addr:      r.iface.HardwareAddr,
			},
		},
	}
	return r.conn.WriteTo(na, nil, from)
}
