package conn

import (
	"net"

	"github.com/athena-dhcpd/dhcp4conn/pkg/dhcpv4"
)

// Discover sends a DHCPDISCOVER (RFC 2131 §4.4.1): the client broadcasts to
// locate available servers. xid identifies the transaction; secs must be
// non-zero.
func (c *Connection) Discover(xid uint32, secs uint16) error {
	return c.send("discover", dhcpv4.MessageTypeDiscover, &xid, &secs, nil, egressRawBroadcast)
}

// Select sends the SELECTING form of DHCPREQUEST (RFC 2131 §4.3.2): the
// client has chosen a server's offer and asks for it by requested-ip and
// server-id.
func (c *Connection) Select(clientIP, serverIP net.IP, xid uint32, secs uint16) error {
	extra := []optionSpec{
		{dhcpv4.OptionRequestedIP, dhcpv4.IPToBytes(clientIP)},
		{dhcpv4.OptionServerIdentifier, dhcpv4.IPToBytes(serverIP)},
	}
	return c.send("select", dhcpv4.MessageTypeRequest, &xid, &secs, extra, egressRawBroadcast)
}

// Reboot sends the INIT-REBOOT form of DHCPREQUEST (RFC 2131 §4.3.2): the
// client remembers a previous lease and asks for it back without a
// server-id, since it hasn't heard from a server yet this attempt.
func (c *Connection) Reboot(clientIP net.IP, xid uint32, secs uint16) error {
	extra := []optionSpec{{dhcpv4.OptionRequestedIP, dhcpv4.IPToBytes(clientIP)}}
	return c.send("reboot", dhcpv4.MessageTypeRequest, &xid, &secs, extra, egressRawBroadcast)
}

// Renew sends the RENEWING form of DHCPREQUEST (RFC 2131 §4.3.2): unicast to
// the bound server over the UDP endpoint.
func (c *Connection) Renew(xid uint32, secs uint16) error {
	return c.send("renew", dhcpv4.MessageTypeRequest, &xid, &secs, nil, egressUDPUnicast)
}

// Rebind sends the REBINDING form of DHCPREQUEST (RFC 2131 §4.3.2):
// broadcast over the UDP endpoint after the RENEWING server stops
// responding.
func (c *Connection) Rebind(xid uint32, secs uint16) error {
	return c.send("rebind", dhcpv4.MessageTypeRequest, &xid, &secs, nil, egressUDPBroadcast)
}

// Decline sends a DHCPDECLINE (RFC 2131 §4.4.4): the client has detected
// that the offered address is already in use. No reply is expected, so no
// xid/secs are set. errMsg, if non-empty, is carried as an error-message
// option.
func (c *Connection) Decline(clientIP, serverIP net.IP, errMsg string) error {
	extra := []optionSpec{
		{dhcpv4.OptionRequestedIP, dhcpv4.IPToBytes(clientIP)},
		{dhcpv4.OptionServerIdentifier, dhcpv4.IPToBytes(serverIP)},
	}
	if errMsg != "" {
		extra = append(extra, optionSpec{dhcpv4.OptionMessage, []byte(errMsg)})
	}
	return c.send("decline", dhcpv4.MessageTypeDecline, nil, nil, extra, egressRawBroadcast)
}

// Inform sends a DHCPINFORM (RFC 2131 §4.4.3): the client already has an
// address (e.g. manually configured) and only wants other configuration
// parameters.
func (c *Connection) Inform(xid uint32, secs uint16) error {
	return c.send("inform", dhcpv4.MessageTypeInform, &xid, &secs, nil, egressUDPBroadcast)
}

// Release sends a DHCPRELEASE (RFC 2131 §4.4.4): the client gives up its
// lease. No reply is expected, so no xid/secs are set. errMsg, if
// non-empty, is carried as an error-message option.
func (c *Connection) Release(errMsg string) error {
	extra := []optionSpec{{dhcpv4.OptionServerIdentifier, dhcpv4.IPToBytes(c.siaddr)}}
	if errMsg != "" {
		extra = append(extra, optionSpec{dhcpv4.OptionMessage, []byte(errMsg)})
	}
	return c.send("release", dhcpv4.MessageTypeRelease, nil, nil, extra, egressUDPUnicast)
}
