package conn

import (
	"github.com/athena-dhcpd/dhcp4conn/internal/wire"
	"github.com/athena-dhcpd/dhcp4conn/pkg/dhcpv4"
)

// takesMaxMessageSize reports whether msgType is one of the three actions
// that advertise a maximum-message-size option (RFC 2132 §9.10).
func takesMaxMessageSize(msgType dhcpv4.MessageType) bool {
	switch msgType {
	case dhcpv4.MessageTypeDiscover, dhcpv4.MessageTypeRequest, dhcpv4.MessageTypeInform:
		return true
	default:
		return false
	}
}

// buildMessage produces an Outgoing for msgType: fixed header from
// connection identity, file/sname overload permitted unconditionally,
// message-type option, client identifier when present, and a conditional
// maximum-message-size option.
func (c *Connection) buildMessage(msgType dhcpv4.MessageType) (*wire.Outgoing, error) {
	out := wire.NewOutgoing(0, dhcpv4.OverloadFile|dhcpv4.OverloadSName)

	h := out.Header()
	h.Op = dhcpv4.OpCodeBootRequest
	h.HType = c.id.HType
	h.SetCIAddr(c.ciaddr)
	if c.id.requestBroadcast {
		h.Flags |= dhcpv4.MessageFlagBroadcast
	}
	if c.id.sendCHAddr {
		h.HLen = c.id.hlen
		h.SetCHAddr(c.id.CHAddr)
	}

	if err := out.Append(dhcpv4.OptionDHCPMessageType, []byte{byte(msgType)}); err != nil {
		return nil, err
	}
	if len(c.id.ClientID) > 0 {
		if err := out.Append(dhcpv4.OptionClientIdentifier, c.id.ClientID); err != nil {
			return nil, err
		}
	}

	if takesMaxMessageSize(msgType) {
		// While on the raw path the client can carry larger frames than
		// the server's default 576-byte ceiling, so it advertises its
		// real MTU; once routed through the kernel IP stack it
		// advertises the implementation's UDP maximum instead.
		var size uint16
		haveSize := true
		if c.state <= StatePacket {
			if c.id.MTU == 0 {
				haveSize = false
			} else {
				size = c.id.MTU
			}
		} else {
			size = dhcpv4.UDPMaxMessageSize
		}
		if haveSize {
			if err := out.Append(dhcpv4.OptionMaxDHCPMessageSize, dhcpv4.Uint16ToBytes(size)); err != nil {
				return nil, err
			}
		}
	}

	return out, nil
}

// setXID writes xid/secs onto an already-built header. secs must be
// non-zero: some servers reject DISCOVER/REQUEST with secs == 0. This is a
// documented precondition, not a recoverable error.
func setXID(h *wire.Header, xid uint32, secs uint16) {
	if secs == 0 {
		panic("conn: secs must be non-zero (RFC 2131 servers may reject secs == 0)")
	}
	h.Xid = xid
	h.Secs = secs
}
