package conn

import (
	"net"

	"github.com/athena-dhcpd/dhcp4conn/internal/socket"
)

// Sockets is the capability record the Connection consumes to open
// endpoints. A host supplies a concrete implementation backed by
// internal/socket's Linux factories; tests supply an in-memory fake.
type Sockets interface {
	// OpenRaw opens the raw link-layer endpoint for this connection's
	// interface and broadcast hardware address.
	OpenRaw() (socket.RawEndpoint, error)

	// OpenUDP opens a UDP endpoint bound to localIP and default-destined
	// to serverIP.
	OpenUDP(localIP, serverIP net.IP) (socket.UDPEndpoint, error)
}
