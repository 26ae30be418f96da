package conn

import (
	"net"

	"github.com/athena-dhcpd/dhcp4conn/internal/socket"
)

// fakeRaw is an in-memory socket.RawEndpoint used to drive the transport
// state machine and dispatcher without real sockets.
type fakeRaw struct {
	fdVal     uintptr
	inbound   [][]byte
	broadcast [][]byte
	sendShut  bool
	closed    bool
}

func (f *fakeRaw) Fd() uintptr { return f.fdVal }

func (f *fakeRaw) Recv(buf []byte) (int, error) {
	if len(f.inbound) == 0 {
		return 0, socket.ErrWouldBlock
	}
	next := f.inbound[0]
	f.inbound = f.inbound[1:]
	return copy(buf, next), nil
}

func (f *fakeRaw) SendBroadcast(payload []byte) error {
	if f.sendShut {
		return errSendShutdown
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	f.broadcast = append(f.broadcast, cp)
	return nil
}

func (f *fakeRaw) ShutdownSend() error {
	f.sendShut = true
	return nil
}

func (f *fakeRaw) Close() error {
	f.closed = true
	return nil
}

// fakeUDP is an in-memory socket.UDPEndpoint.
type fakeUDP struct {
	fdVal     uintptr
	inbound   [][]byte
	unicast   [][]byte
	broadcast [][]byte
	closed    bool

	localIP  net.IP
	serverIP net.IP
}

func (f *fakeUDP) Fd() uintptr { return f.fdVal }

func (f *fakeUDP) Recv(buf []byte) (int, error) {
	if len(f.inbound) == 0 {
		return 0, socket.ErrWouldBlock
	}
	next := f.inbound[0]
	f.inbound = f.inbound[1:]
	return copy(buf, next), nil
}

func (f *fakeUDP) SendUnicast(payload []byte) error {
	cp := make([]byte, len(payload))
	copy(cp, payload)
	f.unicast = append(f.unicast, cp)
	return nil
}

func (f *fakeUDP) SendBroadcast(payload []byte) error {
	cp := make([]byte, len(payload))
	copy(cp, payload)
	f.broadcast = append(f.broadcast, cp)
	return nil
}

func (f *fakeUDP) Close() error {
	f.closed = true
	return nil
}

var errSendShutdown = &sendShutdownError{}

type sendShutdownError struct{}

func (*sendShutdownError) Error() string { return "fake: send side is shut down" }

// fakeSockets hands out pre-built fakeRaw/fakeUDP so a test can inspect them
// after the Connection opens them.
type fakeSockets struct {
	raw *fakeRaw
	udp *fakeUDP
}

func (s *fakeSockets) OpenRaw() (socket.RawEndpoint, error) {
	return s.raw, nil
}

func (s *fakeSockets) OpenUDP(localIP, serverIP net.IP) (socket.UDPEndpoint, error) {
	s.udp.localIP = localIP
	s.udp.serverIP = serverIP
	return s.udp, nil
}

// fakeRegistry records every Register/Deregister call so tests can check
// which fd was registered at Connect time.
type fakeRegistry struct {
	registered   []uintptr
	deregistered []uintptr
}

func (r *fakeRegistry) Register(fd uintptr, token uint64) error {
	r.registered = append(r.registered, fd)
	return nil
}

func (r *fakeRegistry) Deregister(fd uintptr) error {
	r.deregistered = append(r.deregistered, fd)
	return nil
}
