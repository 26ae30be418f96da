package conn

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/athena-dhcpd/dhcp4conn/internal/metrics"
	"github.com/athena-dhcpd/dhcp4conn/internal/socket"
	"github.com/athena-dhcpd/dhcp4conn/internal/wire"
	"github.com/athena-dhcpd/dhcp4conn/pkg/dhcpv4"
)

// recvBufSize is sized for the worst case: a UDP message up to the
// implementation's advertised maximum.
const recvBufSize = dhcpv4.UDPMaxMessageSize

// Dispatch reads and verifies one inbound message. It returns (nil, nil)
// for "no message this cycle": nothing was available, the datagram was
// malformed (non-Strict mode), or identity verification failed.
func (c *Connection) Dispatch() (*wire.Incoming, error) {
	switch c.state {
	case StateInit:
		return nil, fmt.Errorf("%w: Dispatch requires a listening transport, have INIT", ErrWrongState)

	case StatePacket:
		return noBlock(c.readAndVerify(c.raw))

	case StateDraining:
		in, err := c.readAndVerify(c.raw)
		if !errors.Is(err, socket.ErrWouldBlock) {
			// The raw endpoint still had a datagram (delivered, dropped,
			// or errored). Residual raw datagrams must all be consumed
			// before the first UDP read, so don't touch the UDP endpoint
			// this cycle.
			return in, err
		}
		// Raw endpoint drained: promote, then fall through to UDP.
		c.promoteToUDP()
		return noBlock(c.readAndVerify(c.udp))

	case StateUDP:
		return noBlock(c.readAndVerify(c.udp))

	default:
		return nil, fmt.Errorf("%w: unknown state %v", ErrWrongState, c.state)
	}
}

// noBlock turns the "nothing available right now" signal from readAndVerify
// into Dispatch's documented (nil, nil) return, leaving every other error
// (and every successful read) untouched.
func noBlock(in *wire.Incoming, err error) (*wire.Incoming, error) {
	if errors.Is(err, socket.ErrWouldBlock) {
		return nil, nil
	}
	return in, err
}

// endpoint is the minimal receive surface both socket.RawEndpoint and
// socket.UDPEndpoint satisfy.
type endpoint interface {
	Recv(buf []byte) (int, error)
}

func (c *Connection) readAndVerify(ep endpoint) (*wire.Incoming, error) {
	buf := make([]byte, recvBufSize)
	n, err := ep.Recv(buf)
	if err != nil {
		if errors.Is(err, socket.ErrWouldBlock) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if n == 0 {
		return nil, nil
	}

	in, err := wire.NewIncoming(buf[:n])
	if err != nil {
		metrics.PacketsDropped.WithLabelValues("malformed").Inc()
		if c.Strict {
			return nil, fmt.Errorf("conn: malformed inbound datagram: %w", err)
		}
		c.log.Debug("dropping malformed inbound datagram", "error", err)
		return nil, nil
	}

	if !c.verify(in) {
		metrics.PacketsDropped.WithLabelValues("identity-mismatch").Inc()
		c.log.Debug("dropping inbound datagram failing identity verification")
		return nil, nil
	}

	metrics.PacketsReceived.WithLabelValues(c.state.String()).Inc()
	return in, nil
}

// verify checks the Incoming's chaddr and client-identifier against this
// connection's identity. An absent identifier on both sides is a
// match.
func (c *Connection) verify(in *wire.Incoming) bool {
	// The header field holds at most 16 bytes; longer hardware addresses
	// (InfiniBand) are compared over the header-visible prefix.
	h := in.Header()
	n := int(c.id.hlen)
	if n > len(h.CHAddr) {
		n = len(h.CHAddr)
	}
	if !bytes.Equal(h.CHAddr[:n], []byte(c.id.CHAddr)[:n]) {
		return false
	}

	wantID := c.id.ClientID
	gotID, err := in.Query(dhcpv4.OptionClientIdentifier)
	if err != nil {
		gotID = nil
	}
	return bytes.Equal(wantID, gotID)
}
