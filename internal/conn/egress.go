package conn

import (
	"fmt"

	"github.com/athena-dhcpd/dhcp4conn/internal/metrics"
	"github.com/athena-dhcpd/dhcp4conn/internal/wire"
	"github.com/athena-dhcpd/dhcp4conn/pkg/dhcpv4"
)

// egress names the three outbound paths a sender can choose.
type egress int

const (
	egressRawBroadcast egress = iota
	egressUDPBroadcast
	egressUDPUnicast
)

func (e egress) String() string {
	switch e {
	case egressRawBroadcast:
		return "raw-broadcast"
	case egressUDPBroadcast:
		return "udp-broadcast"
	case egressUDPUnicast:
		return "udp-unicast"
	default:
		return "unknown"
	}
}

// optionSpec is one action-specific option a sender appends beyond what
// buildMessage already added.
type optionSpec struct {
	code dhcpv4.OptionCode
	data []byte
}

func (c *Connection) send(action string, msgType dhcpv4.MessageType, xid *uint32, secs *uint16, extra []optionSpec, how egress) error {
	err := c.sendInner(msgType, xid, secs, extra, how)
	if err != nil {
		metrics.SendErrors.WithLabelValues(action).Inc()
		return err
	}
	metrics.PacketsSent.WithLabelValues(action, how.String()).Inc()
	return nil
}

func (c *Connection) sendInner(msgType dhcpv4.MessageType, xid *uint32, secs *uint16, extra []optionSpec, how egress) error {
	out, err := c.buildMessage(msgType)
	if err != nil {
		return fmt.Errorf("%w: building message: %v", ErrCodec, err)
	}
	if xid != nil && secs != nil {
		setXID(out.Header(), *xid, *secs)
	}
	for _, opt := range extra {
		if err := out.Append(opt.code, opt.data); err != nil {
			return fmt.Errorf("%w: appending option %d: %v", ErrCodec, opt.code, err)
		}
	}

	switch how {
	case egressRawBroadcast:
		return c.sendRawBroadcast(out)
	case egressUDPBroadcast:
		return c.sendUDPBroadcast(out)
	case egressUDPUnicast:
		return c.sendUDPUnicast(out)
	default:
		return fmt.Errorf("conn: unknown egress %d", how)
	}
}

func (c *Connection) sendRawBroadcast(out *wire.Outgoing) error {
	if c.state != StatePacket {
		return fmt.Errorf("%w: raw-broadcast requires PACKET, have %s", ErrWrongState, c.state)
	}
	raw, err := out.Raw()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCodec, err)
	}
	if err := c.raw.SendBroadcast(raw); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return nil
}

func (c *Connection) sendUDPBroadcast(out *wire.Outgoing) error {
	if c.state <= StatePacket {
		return fmt.Errorf("%w: udp-broadcast requires state > PACKET, have %s", ErrWrongState, c.state)
	}
	raw, err := out.Raw()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCodec, err)
	}
	if err := c.udp.SendBroadcast(raw); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return nil
}

func (c *Connection) sendUDPUnicast(out *wire.Outgoing) error {
	if c.state <= StatePacket {
		return fmt.Errorf("%w: udp-unicast requires state > PACKET, have %s", ErrWrongState, c.state)
	}
	raw, err := out.Raw()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCodec, err)
	}
	if err := c.udp.SendUnicast(raw); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return nil
}
