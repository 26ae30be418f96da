//go:build linux

package socket

import (
	"context"
	"fmt"
	"net"
	"syscall"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/mdlayher/ethernet"
	"github.com/mdlayher/packet"
	"golang.org/x/net/bpf"
	"golang.org/x/sys/unix"

	"github.com/athena-dhcpd/dhcp4conn/pkg/dhcpv4"
)

// rawEndpoint is the Linux raw link-layer endpoint: an AF_PACKET SOCK_DGRAM
// socket (mdlayher/packet's packet.Datagram mode) that hands the kernel the
// Ethernet framing and leaves IPv4/UDP synthesis to us.
type rawEndpoint struct {
	conn   *packet.Conn
	fd     uintptr
	bhaddr net.HardwareAddr
	srcIP  net.IP // 0.0.0.0 until bound; the raw path always sends from INADDR_ANY
}

// OpenRawEndpoint opens a raw link-layer endpoint on ifi, filtered with a
// classic BPF program to IPv4/UDP/dst-port-68 traffic (RFC 2131's client
// port) the way dhclient and udhcpc filter their packet sockets, and attaches
// bhaddr as the destination for raw broadcast sends.
func OpenRawEndpoint(ifi *net.Interface, bhaddr net.HardwareAddr) (*rawEndpoint, error) {
	conn, err := packet.Listen(ifi, packet.Datagram, int(ethernet.EtherTypeIPv4), nil)
	if err != nil {
		return nil, fmt.Errorf("socket: opening raw endpoint on %s: %w", ifi.Name, err)
	}

	filter, err := bpf.Assemble(dhcpClientFilter())
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("socket: assembling bpf filter: %w", err)
	}
	if err := conn.SetBPF(filter); err != nil {
		conn.Close()
		return nil, fmt.Errorf("socket: attaching bpf filter: %w", err)
	}

	fd, err := fdOf(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("socket: obtaining raw endpoint fd: %w", err)
	}

	return &rawEndpoint{conn: conn, fd: fd, bhaddr: bhaddr, srcIP: net.IPv4zero}, nil
}

// dhcpClientFilter builds "ip proto udp and udp dst port 68" as a classic
// BPF program over a datagram packet socket's payload (the Ethernet header
// has already been stripped by the kernel, so offset 0 is the IPv4 header).
func dhcpClientFilter() []bpf.Instruction {
	return []bpf.Instruction{
		bpf.LoadAbsolute{Off: 9, Size: 1},                                     // IPv4 protocol field
		bpf.JumpIf{Cond: bpf.JumpNotEqual, Val: unix.IPPROTO_UDP, SkipTrue: 4}, // not UDP, reject
		bpf.LoadMemShift{Off: 0},                                              // X = IHL*4
		bpf.LoadIndirect{Off: 2, Size: 2},                                     // UDP dst port
		bpf.JumpIf{Cond: bpf.JumpNotEqual, Val: dhcpv4.ClientPort, SkipTrue: 1},
		bpf.RetConstant{Val: 262144},
		bpf.RetConstant{Val: 0},
	}
}

func (r *rawEndpoint) Fd() uintptr { return r.fd }

func (r *rawEndpoint) Recv(buf []byte) (int, error) {
	frame := make([]byte, dhcpv4.MaxPacketSize)
	n, _, err := recvNonblocking(r.fd, frame)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	payload, err := stripIPv4UDP(frame[:n])
	if err != nil {
		return 0, fmt.Errorf("socket: stripping ipv4/udp framing: %w", err)
	}
	return copy(buf, payload), nil
}

func (r *rawEndpoint) SendBroadcast(payload []byte) error {
	frame, err := buildIPv4UDP(dhcpv4.ZeroIP, dhcpv4.BroadcastIP, dhcpv4.ClientPort, dhcpv4.ServerPort, payload)
	if err != nil {
		return fmt.Errorf("socket: building raw broadcast frame: %w", err)
	}
	_, err = r.conn.WriteTo(frame, &packet.Addr{HardwareAddr: r.bhaddr})
	if err != nil {
		return fmt.Errorf("socket: raw broadcast send: %w", err)
	}
	return nil
}

func (r *rawEndpoint) ShutdownSend() error {
	if err := unix.Shutdown(int(r.fd), unix.SHUT_WR); err != nil && err != unix.ENOTCONN {
		return fmt.Errorf("socket: shutting down raw endpoint send side: %w", err)
	}
	return nil
}

func (r *rawEndpoint) Close() error {
	return r.conn.Close()
}

// udpEndpoint is the Linux UDP endpoint: a conventional SOCK_DGRAM socket
// bound to the client's lease IP, used once ciaddr/siaddr are known.
type udpEndpoint struct {
	conn     *net.UDPConn
	fd       uintptr
	serverIP net.IP
}

// OpenUDPEndpoint opens a UDP endpoint bound to localIP:68 on ifaceName,
// with SO_REUSEADDR, SO_BROADCAST, and SO_BINDTODEVICE set.
func OpenUDPEndpoint(ifaceName string, localIP, serverIP net.IP) (*udpEndpoint, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
				_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
				sockErr = unix.SetsockoptString(int(fd), unix.SOL_SOCKET, unix.SO_BINDTODEVICE, ifaceName)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}

	pc, err := lc.ListenPacket(context.Background(), "udp4", fmt.Sprintf("%s:%d", localIP.String(), dhcpv4.ClientPort))
	if err != nil {
		return nil, fmt.Errorf("socket: opening udp endpoint on %s: %w", localIP, err)
	}
	conn := pc.(*net.UDPConn)

	fd, err := fdOf(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("socket: obtaining udp endpoint fd: %w", err)
	}

	return &udpEndpoint{conn: conn, fd: fd, serverIP: serverIP}, nil
}

func (u *udpEndpoint) Fd() uintptr { return u.fd }

func (u *udpEndpoint) Recv(buf []byte) (int, error) {
	n, _, err := recvNonblocking(u.fd, buf)
	return n, err
}

func (u *udpEndpoint) SendUnicast(payload []byte) error {
	_, err := u.conn.WriteToUDP(payload, &net.UDPAddr{IP: u.serverIP, Port: dhcpv4.ServerPort})
	if err != nil {
		return fmt.Errorf("socket: udp unicast send: %w", err)
	}
	return nil
}

func (u *udpEndpoint) SendBroadcast(payload []byte) error {
	_, err := u.conn.WriteToUDP(payload, &net.UDPAddr{IP: dhcpv4.BroadcastIP, Port: dhcpv4.ServerPort})
	if err != nil {
		return fmt.Errorf("socket: udp broadcast send: %w", err)
	}
	return nil
}

func (u *udpEndpoint) Close() error {
	return u.conn.Close()
}

// fdOf extracts the underlying file descriptor from a net/mdlayher
// connection that implements syscall.Conn, for readiness registration and
// single-attempt non-blocking reads.
func fdOf(sc syscall.Conn) (uintptr, error) {
	rc, err := sc.SyscallConn()
	if err != nil {
		return 0, err
	}
	var fd uintptr
	if err := rc.Control(func(f uintptr) { fd = f }); err != nil {
		return 0, err
	}
	return fd, nil
}

// recvNonblocking performs exactly one recvfrom attempt on fd. Go already
// sets its socket fds non-blocking at the OS level; a plain unix.Recvfrom
// either returns data immediately or EAGAIN, which we translate to
// ErrWouldBlock instead of letting the runtime netpoller park the goroutine.
func recvNonblocking(fd uintptr, buf []byte) (int, unix.Sockaddr, error) {
	n, from, err := unix.Recvfrom(int(fd), buf, unix.MSG_DONTWAIT)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, nil, ErrWouldBlock
		}
		return 0, nil, fmt.Errorf("socket: recv: %w", err)
	}
	return n, from, nil
}

// buildIPv4UDP synthesises an IPv4/UDP frame around payload, the framing the
// raw link-layer path must supply itself (RFC 2131 §4.1 discusses source
// 0.0.0.0/destination 255.255.255.255 before a lease exists).
func buildIPv4UDP(srcIP, dstIP net.IP, srcPort, dstPort uint16, payload []byte) ([]byte, error) {
	udpLayer := &layers.UDP{SrcPort: layers.UDPPort(srcPort), DstPort: layers.UDPPort(dstPort)}
	ipLayer := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    srcIP.To4(),
		DstIP:    dstIP.To4(),
		Flags:    layers.IPv4DontFragment,
	}
	if err := udpLayer.SetNetworkLayerForChecksum(ipLayer); err != nil {
		return nil, err
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, ipLayer, udpLayer, gopacket.Payload(payload)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// stripIPv4UDP parses an IPv4/UDP frame (as delivered by the datagram-mode
// packet socket, Ethernet header already removed by the kernel) and returns
// the UDP payload.
func stripIPv4UDP(frame []byte) ([]byte, error) {
	pkt := gopacket.NewPacket(frame, layers.LayerTypeIPv4, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	udpLayer := pkt.Layer(layers.LayerTypeUDP)
	if udpLayer == nil {
		return nil, fmt.Errorf("socket: no udp layer in received frame")
	}
	udp, ok := udpLayer.(*layers.UDP)
	if !ok {
		return nil, fmt.Errorf("socket: unexpected udp layer type %T", udpLayer)
	}
	return udp.Payload, nil
}
