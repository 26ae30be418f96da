// Package socket provides the two endpoint kinds a DHCPv4 client transport
// needs: a raw link-layer datagram endpoint (used before the client has an
// IP address) and a UDP endpoint (used once one is bound). Only the Linux
// implementation is built; the interfaces here are platform-independent so
// the rest of the module type-checks everywhere.
package socket

import "errors"

// ErrWouldBlock is returned by Recv when a non-blocking read found nothing
// available. It is the raw-endpoint analogue of "drain complete": the caller
// (internal/conn's dispatcher) uses it to decide when to promote the
// transport state from DRAINING to UDP.
var ErrWouldBlock = errors.New("socket: would block")

// RawEndpoint is a non-blocking link-layer datagram endpoint bound to one
// interface. It sends and receives complete DHCP datagrams, synthesising (or
// stripping) the IPv4/UDP/Ethernet framing the raw path requires.
type RawEndpoint interface {
	// Fd returns the file descriptor for readiness registration.
	Fd() uintptr

	// Recv reads one DHCP datagram's payload into buf, returning its
	// length. It returns (0, nil) for a genuine zero-length datagram and
	// (0, ErrWouldBlock) when nothing is available right now.
	Recv(buf []byte) (int, error)

	// SendBroadcast sends payload as a single L2 broadcast frame to
	// bhaddr.
	SendBroadcast(payload []byte) error

	// ShutdownSend shuts down the send side of the endpoint. Best-effort:
	// AF_PACKET sockets only partially support half-close, so an
	// ENOTCONN-class failure from the underlying shutdown(2) is not an
	// error from the caller's point of view.
	ShutdownSend() error

	// Close releases the endpoint.
	Close() error
}

// UDPEndpoint is a non-blocking UDP endpoint bound to a local client IP and
// connected to a server IP (RFC 2131 §4.1's "destination address" rules
// apply to the caller, not this endpoint).
type UDPEndpoint interface {
	// Fd returns the file descriptor for readiness registration.
	Fd() uintptr

	// Recv reads one UDP datagram into buf, returning its length. It
	// returns (0, nil) for a genuine zero-length datagram and
	// (0, ErrWouldBlock) when nothing is available right now.
	Recv(buf []byte) (int, error)

	// SendUnicast sends payload to the connected server address.
	SendUnicast(payload []byte) error

	// SendBroadcast sends payload to 255.255.255.255:67.
	SendBroadcast(payload []byte) error

	// Close releases the endpoint.
	Close() error
}
