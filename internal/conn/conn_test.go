package conn

import (
	"bytes"
	"errors"
	"log/slog"
	"net"
	"testing"

	"github.com/athena-dhcpd/dhcp4conn/internal/readiness"
	"github.com/athena-dhcpd/dhcp4conn/internal/socket"
	"github.com/athena-dhcpd/dhcp4conn/internal/wire"
	"github.com/athena-dhcpd/dhcp4conn/pkg/dhcpv4"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(bytesDiscard{}, nil))
}

type bytesDiscard struct{}

func (bytesDiscard) Write(p []byte) (int, error) { return len(p), nil }

func ethernetIdentity() Identity {
	return Identity{
		IfIndex: 2,
		HType:   dhcpv4.HardwareTypeEthernet,
		CHAddr:  net.HardwareAddr{0x52, 0x54, 0x00, 0x12, 0x34, 0x56},
		BHAddr:  dhcpv4.BroadcastMAC,
		MTU:     1500,
	}
}

func newHarness(t *testing.T, id Identity) (*Connection, *fakeSockets, *fakeRegistry) {
	t.Helper()
	sockets := &fakeSockets{raw: &fakeRaw{fdVal: 10}, udp: &fakeUDP{fdVal: 20}}
	registry := &fakeRegistry{}
	c, err := NewConnection(id, sockets, registry, 1, discardLogger())
	if err != nil {
		t.Fatalf("NewConnection: %v", err)
	}
	return c, sockets, registry
}

// --- Identity validation ---

func TestNewConnectionRejectsOversizedCHAddr(t *testing.T) {
	id := ethernetIdentity()
	id.CHAddr = make(net.HardwareAddr, 17)
	if _, err := newValidated(id); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
}

func newHarness2(t *testing.T, id Identity) (*Connection, *fakeSockets, error) {
	t.Helper()
	sockets := &fakeSockets{raw: &fakeRaw{fdVal: 10}, udp: &fakeUDP{fdVal: 20}}
	c, err := NewConnection(id, sockets, &fakeRegistry{}, 1, discardLogger())
	return c, sockets, err
}

func TestNewConnectionRejectsEmptyCHAddr(t *testing.T) {
	id := ethernetIdentity()
	id.CHAddr = nil
	if _, err := newValidated(id); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestNewConnectionAcceptsInfiniBandCHAddr(t *testing.T) {
	// A 20-byte InfiniBand address exceeds the header's 16-byte chaddr
	// field, but InfiniBand never carries chaddr in the header.
	id := Identity{
		HType:    dhcpv4.HardwareTypeInfiniBand,
		CHAddr:   make(net.HardwareAddr, 20),
		BHAddr:   make(net.HardwareAddr, 20),
		ClientID: []byte("ib-client"),
	}
	if _, err := newValidated(id); err != nil {
		t.Fatalf("newValidated: %v", err)
	}

	id.CHAddr = make(net.HardwareAddr, 33)
	if _, err := newValidated(id); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument for a 33-byte address", err)
	}
}

func TestNewConnectionRejectsLengthOneClientID(t *testing.T) {
	id := ethernetIdentity()
	id.ClientID = []byte{0x01}
	_, _, err := newHarness2(t, id)
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestNewConnectionAcceptsZeroLengthClientID(t *testing.T) {
	id := ethernetIdentity()
	id.ClientID = nil
	if _, _, err := newHarness2(t, id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// --- InfiniBand vs Ethernet identity derivation ---

func TestInfiniBandForcesBroadcastAndSuppressesCHAddr(t *testing.T) {
	id := Identity{
		HType:    dhcpv4.HardwareTypeInfiniBand,
		CHAddr:   make(net.HardwareAddr, 20),
		BHAddr:   make(net.HardwareAddr, 20),
		ClientID: []byte("ib-client"),
	}
	c, _, _ := newHarness(t, id)
	if err := c.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	out, err := c.buildMessage(dhcpv4.MessageTypeDiscover)
	if err != nil {
		t.Fatalf("buildMessage: %v", err)
	}
	h := out.Header()
	if h.Flags&dhcpv4.MessageFlagBroadcast == 0 {
		t.Error("expected BROADCAST flag set for InfiniBand")
	}
	if h.HLen != 0 {
		t.Errorf("HLen = %d, want 0 for InfiniBand", h.HLen)
	}
	var zero [16]byte
	if h.CHAddr != zero {
		t.Errorf("CHAddr = %v, want zeroed for InfiniBand", h.CHAddr)
	}
	// No max-size option: MTU is 0 (unknown) while in PACKET state.
	raw, err := out.Raw()
	if err != nil {
		t.Fatalf("Raw: %v", err)
	}
	in, err := wire.NewIncoming(raw)
	if err != nil {
		t.Fatalf("NewIncoming: %v", err)
	}
	if _, err := in.Query(dhcpv4.OptionMaxDHCPMessageSize); !errors.Is(err, wire.ErrNoData) {
		t.Errorf("expected no max-size option when MTU hint is 0, got err=%v", err)
	}
}

func TestEthernetKeepsCHAddrAndClearsBroadcast(t *testing.T) {
	id := ethernetIdentity()
	c, _, _ := newHarness(t, id)
	if err := c.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	out, err := c.buildMessage(dhcpv4.MessageTypeDiscover)
	if err != nil {
		t.Fatalf("buildMessage: %v", err)
	}
	h := out.Header()
	if h.Flags&dhcpv4.MessageFlagBroadcast != 0 {
		t.Error("expected BROADCAST flag clear for Ethernet")
	}
	if h.HLen != byte(len(id.CHAddr)) {
		t.Errorf("HLen = %d, want %d", h.HLen, len(id.CHAddr))
	}
	if !bytes.Equal(h.CHAddr[:h.HLen], id.CHAddr) {
		t.Errorf("CHAddr = %v, want %v", h.CHAddr[:h.HLen], id.CHAddr)
	}
}

func TestForceBroadcastSetsFlagOnEthernet(t *testing.T) {
	id := ethernetIdentity()
	id.ForceBroadcast = true
	c, _, _ := newHarness(t, id)
	if err := c.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	out, err := c.buildMessage(dhcpv4.MessageTypeDiscover)
	if err != nil {
		t.Fatalf("buildMessage: %v", err)
	}
	h := out.Header()
	if h.Flags&dhcpv4.MessageFlagBroadcast == 0 {
		t.Error("expected BROADCAST flag set when ForceBroadcast is true")
	}
	// ForceBroadcast doesn't affect chaddr population on a non-InfiniBand link.
	if h.HLen != byte(len(id.CHAddr)) {
		t.Errorf("HLen = %d, want %d", h.HLen, len(id.CHAddr))
	}
}

// --- Transport state machine ---

func TestStateAdvancesInitPacketDrainingUDP(t *testing.T) {
	c, _, registry := newHarness(t, ethernetIdentity())
	if c.State() != StateInit {
		t.Fatalf("initial state = %v, want INIT", c.State())
	}

	if err := c.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if c.State() != StatePacket {
		t.Fatalf("state after Listen = %v, want PACKET", c.State())
	}
	if len(registry.registered) != 1 || registry.registered[0] != 10 {
		t.Errorf("registered = %v, want [10]", registry.registered)
	}

	if err := c.Connect(net.IPv4(192, 0, 2, 5), net.IPv4(192, 0, 2, 1)); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if c.State() != StateDraining {
		t.Fatalf("state after Connect = %v, want DRAINING", c.State())
	}
	// Open question 2: Connect registers the UDP fd, not the raw fd again.
	if len(registry.registered) != 2 || registry.registered[1] != 20 {
		t.Errorf("registered = %v, want [10 20]", registry.registered)
	}

	c.promoteToUDP()
	if c.State() != StateUDP {
		t.Fatalf("state after promote = %v, want UDP", c.State())
	}
}

func TestListenRequiresInit(t *testing.T) {
	c, _, _ := newHarness(t, ethernetIdentity())
	if err := c.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if err := c.Listen(); !errors.Is(err, ErrWrongState) {
		t.Errorf("second Listen err = %v, want ErrWrongState", err)
	}
}

func TestConnectRequiresPacket(t *testing.T) {
	c, _, _ := newHarness(t, ethernetIdentity())
	err := c.Connect(net.IPv4(192, 0, 2, 5), net.IPv4(192, 0, 2, 1))
	if !errors.Is(err, ErrWrongState) {
		t.Errorf("Connect from INIT err = %v, want ErrWrongState", err)
	}
}

func TestDeinitResetsToInit(t *testing.T) {
	c, _, registry := newHarness(t, ethernetIdentity())
	if err := c.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if err := c.Connect(net.IPv4(192, 0, 2, 5), net.IPv4(192, 0, 2, 1)); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := c.Deinit(); err != nil {
		t.Fatalf("Deinit: %v", err)
	}
	if c.State() != StateInit {
		t.Errorf("state after Deinit = %v, want INIT", c.State())
	}
	if len(registry.deregistered) != 2 {
		t.Errorf("deregistered = %v, want 2 entries", registry.deregistered)
	}
}

// --- Egress gating ---

func TestRawBroadcastRequiresPacket(t *testing.T) {
	c, _, _ := newHarness(t, ethernetIdentity())
	if err := c.Discover(1, 1); !errors.Is(err, ErrWrongState) {
		t.Errorf("Discover from INIT err = %v, want ErrWrongState", err)
	}
}

func TestUDPSenderRejectedInPacketState(t *testing.T) {
	c, _, _ := newHarness(t, ethernetIdentity())
	if err := c.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if err := c.Renew(1, 1); !errors.Is(err, ErrWrongState) {
		t.Errorf("Renew in PACKET err = %v, want ErrWrongState", err)
	}
	if err := c.Rebind(1, 1); !errors.Is(err, ErrWrongState) {
		t.Errorf("Rebind in PACKET err = %v, want ErrWrongState", err)
	}
}

func TestDiscoverSendsRawBroadcastInPacket(t *testing.T) {
	c, sockets, _ := newHarness(t, ethernetIdentity())
	if err := c.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if err := c.Discover(0xDEADBEEF, 1); err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(sockets.raw.broadcast) != 1 {
		t.Fatalf("raw broadcasts = %d, want 1", len(sockets.raw.broadcast))
	}

	in, err := wire.NewIncoming(sockets.raw.broadcast[0])
	if err != nil {
		t.Fatalf("NewIncoming: %v", err)
	}
	if in.Header().Op != dhcpv4.OpCodeBootRequest {
		t.Errorf("op = %v, want BOOTREQUEST", in.Header().Op)
	}
	if in.Header().Xid != 0xDEADBEEF {
		t.Errorf("xid = %#x, want 0xDEADBEEF", in.Header().Xid)
	}
	if in.Header().Secs != 1 {
		t.Errorf("secs = %d, want 1", in.Header().Secs)
	}
	mt, err := in.Query(dhcpv4.OptionDHCPMessageType)
	if err != nil || dhcpv4.MessageType(mt[0]) != dhcpv4.MessageTypeDiscover {
		t.Errorf("message type query = (%v, %v), want DISCOVER", mt, err)
	}
	if size, err := in.Query(dhcpv4.OptionMaxDHCPMessageSize); err != nil {
		t.Errorf("expected max-size option, got err=%v", err)
	} else if got, _ := dhcpv4.BytesToUint16(size); got != 1500 {
		t.Errorf("max-size = %d, want 1500", got)
	}
}

// --- SELECT ---

func TestSelectAppendsRequestedIPAndServerID(t *testing.T) {
	c, sockets, _ := newHarness(t, ethernetIdentity())
	if err := c.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	client := net.IPv4(192, 0, 2, 5)
	server := net.IPv4(192, 0, 2, 1)
	if err := c.Select(client, server, 1, 2); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(sockets.raw.broadcast) != 1 {
		t.Fatalf("raw broadcasts = %d, want 1", len(sockets.raw.broadcast))
	}
	in, err := wire.NewIncoming(sockets.raw.broadcast[0])
	if err != nil {
		t.Fatalf("NewIncoming: %v", err)
	}
	mt, _ := in.Query(dhcpv4.OptionDHCPMessageType)
	if dhcpv4.MessageType(mt[0]) != dhcpv4.MessageTypeRequest {
		t.Errorf("message type = %v, want REQUEST", mt)
	}
	if req, err := in.Query(dhcpv4.OptionRequestedIP); err != nil || !bytes.Equal(req, dhcpv4.IPToBytes(client)) {
		t.Errorf("requested-ip = %v, err=%v, want %v", req, err, dhcpv4.IPToBytes(client))
	}
	if sid, err := in.Query(dhcpv4.OptionServerIdentifier); err != nil || !bytes.Equal(sid, dhcpv4.IPToBytes(server)) {
		t.Errorf("server-id = %v, err=%v, want %v", sid, err, dhcpv4.IPToBytes(server))
	}
}

// --- RENEW after Connect ---

func TestRenewAfterConnectUsesUDPUnicastWithCIAddr(t *testing.T) {
	c, sockets, _ := newHarness(t, ethernetIdentity())
	if err := c.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	client := net.IPv4(192, 0, 2, 5)
	server := net.IPv4(192, 0, 2, 1)
	if err := c.Connect(client, server); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := c.Renew(7, 3); err != nil {
		t.Fatalf("Renew: %v", err)
	}
	if len(sockets.udp.unicast) != 1 {
		t.Fatalf("udp unicasts = %d, want 1", len(sockets.udp.unicast))
	}
	in, err := wire.NewIncoming(sockets.udp.unicast[0])
	if err != nil {
		t.Fatalf("NewIncoming: %v", err)
	}
	if !bytes.Equal(in.Header().CIAddr[:], dhcpv4.IPToBytes(client)) {
		t.Errorf("ciaddr = %v, want %v", in.Header().CIAddr, dhcpv4.IPToBytes(client))
	}
}

// --- Scenario E: REBIND from UDP state, no server-id option ---

func TestRebindFromUDPBroadcastsWithoutServerID(t *testing.T) {
	c, sockets, _ := newHarness(t, ethernetIdentity())
	if err := c.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	client := net.IPv4(192, 0, 2, 5)
	server := net.IPv4(192, 0, 2, 1)
	if err := c.Connect(client, server); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	c.promoteToUDP()

	if err := c.Rebind(9, 4); err != nil {
		t.Fatalf("Rebind: %v", err)
	}
	if len(sockets.udp.broadcast) != 1 {
		t.Fatalf("udp broadcasts = %d, want 1", len(sockets.udp.broadcast))
	}
	in, err := wire.NewIncoming(sockets.udp.broadcast[0])
	if err != nil {
		t.Fatalf("NewIncoming: %v", err)
	}
	if !bytes.Equal(in.Header().CIAddr[:], dhcpv4.IPToBytes(client)) {
		t.Errorf("ciaddr = %v, want non-zero %v", in.Header().CIAddr, dhcpv4.IPToBytes(client))
	}
	if _, err := in.Query(dhcpv4.OptionServerIdentifier); !errors.Is(err, wire.ErrNoData) {
		t.Errorf("expected no server-id option on REBIND, got err=%v", err)
	}
}

// --- DECLINE / RELEASE: no xid/secs, error-message optional ---

func TestDeclineCarriesErrorMessageWhenPresent(t *testing.T) {
	c, sockets, _ := newHarness(t, ethernetIdentity())
	if err := c.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	client := net.IPv4(192, 0, 2, 5)
	server := net.IPv4(192, 0, 2, 1)
	if err := c.Decline(client, server, "address in use"); err != nil {
		t.Fatalf("Decline: %v", err)
	}
	in, err := wire.NewIncoming(sockets.raw.broadcast[0])
	if err != nil {
		t.Fatalf("NewIncoming: %v", err)
	}
	if in.Header().Xid != 0 || in.Header().Secs != 0 {
		t.Errorf("xid/secs = %d/%d, want 0/0 for DECLINE", in.Header().Xid, in.Header().Secs)
	}
	if msg, err := in.Query(dhcpv4.OptionMessage); err != nil || string(msg) != "address in use" {
		t.Errorf("message = %q, err=%v, want %q", msg, err, "address in use")
	}
}

func TestReleaseUsesConnectionSIAddrAsServerID(t *testing.T) {
	c, sockets, _ := newHarness(t, ethernetIdentity())
	if err := c.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	server := net.IPv4(192, 0, 2, 1)
	if err := c.Connect(net.IPv4(192, 0, 2, 5), server); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := c.Release(""); err != nil {
		t.Fatalf("Release: %v", err)
	}
	in, err := wire.NewIncoming(sockets.udp.unicast[0])
	if err != nil {
		t.Fatalf("NewIncoming: %v", err)
	}
	if sid, err := in.Query(dhcpv4.OptionServerIdentifier); err != nil || !bytes.Equal(sid, dhcpv4.IPToBytes(server)) {
		t.Errorf("server-id = %v, err=%v, want %v", sid, err, dhcpv4.IPToBytes(server))
	}
	if _, err := in.Query(dhcpv4.OptionMessage); !errors.Is(err, wire.ErrNoData) {
		t.Errorf("expected no error-message option when errMsg is empty, got err=%v", err)
	}
}

// --- Max-message-size option gating ---

func TestMaxMessageSizeOnlyOnDiscoverRequestInform(t *testing.T) {
	c, sockets, _ := newHarness(t, ethernetIdentity())
	if err := c.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	if err := c.Decline(net.IPv4(192, 0, 2, 5), net.IPv4(192, 0, 2, 1), ""); err != nil {
		t.Fatalf("Decline: %v", err)
	}
	in, err := wire.NewIncoming(sockets.raw.broadcast[0])
	if err != nil {
		t.Fatalf("NewIncoming: %v", err)
	}
	if _, err := in.Query(dhcpv4.OptionMaxDHCPMessageSize); !errors.Is(err, wire.ErrNoData) {
		t.Errorf("DECLINE should not carry max-size option, got err=%v", err)
	}
}

// --- Inbound dispatcher: identity verification ---

func buildIncomingFrom(t *testing.T, chaddr net.HardwareAddr, clientID []byte) []byte {
	t.Helper()
	out := wire.NewOutgoing(1, 0)
	h := out.Header()
	h.Op = dhcpv4.OpCodeBootReply
	h.HLen = byte(len(chaddr))
	h.SetCHAddr(chaddr)
	if err := out.Append(dhcpv4.OptionDHCPMessageType, []byte{byte(dhcpv4.MessageTypeOffer)}); err != nil {
		t.Fatalf("append message type: %v", err)
	}
	if len(clientID) > 0 {
		if err := out.Append(dhcpv4.OptionClientIdentifier, clientID); err != nil {
			t.Fatalf("append client id: %v", err)
		}
	}
	raw, err := out.Raw()
	if err != nil {
		t.Fatalf("Raw: %v", err)
	}
	return raw
}

func TestDispatchDropsCHAddrMismatch(t *testing.T) {
	id := ethernetIdentity()
	c, sockets, _ := newHarness(t, id)
	if err := c.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	other := net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	sockets.raw.inbound = append(sockets.raw.inbound, buildIncomingFrom(t, other, nil))

	in, err := c.Dispatch()
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if in != nil {
		t.Error("expected message with mismatched chaddr to be dropped")
	}
}

func TestDispatchDropsClientIDMismatch(t *testing.T) {
	id := ethernetIdentity()
	id.ClientID = []byte("wanted")
	c, sockets, _ := newHarness(t, id)
	if err := c.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	sockets.raw.inbound = append(sockets.raw.inbound, buildIncomingFrom(t, id.CHAddr, []byte("other")))

	in, err := c.Dispatch()
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if in != nil {
		t.Error("expected message with mismatched client identifier to be dropped")
	}
}

func TestDispatchReturnsMatchingMessage(t *testing.T) {
	id := ethernetIdentity()
	id.ClientID = []byte("wanted")
	c, sockets, _ := newHarness(t, id)
	if err := c.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	sockets.raw.inbound = append(sockets.raw.inbound, buildIncomingFrom(t, id.CHAddr, []byte("wanted")))

	in, err := c.Dispatch()
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if in == nil {
		t.Fatal("expected a matching message to be returned")
	}
}

func TestDispatchUndefinedInInit(t *testing.T) {
	c, _, _ := newHarness(t, ethernetIdentity())
	if _, err := c.Dispatch(); !errors.Is(err, ErrWrongState) {
		t.Errorf("Dispatch in INIT err = %v, want ErrWrongState", err)
	}
}

// --- Draining promotion ordering ---

func TestDrainingDeliversQueuedRawThenUDPAndPromotes(t *testing.T) {
	id := ethernetIdentity()
	c, sockets, _ := newHarness(t, id)
	if err := c.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if err := c.Connect(net.IPv4(192, 0, 2, 5), net.IPv4(192, 0, 2, 1)); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	sockets.raw.inbound = append(sockets.raw.inbound, buildIncomingFrom(t, id.CHAddr, nil))
	sockets.udp.inbound = append(sockets.udp.inbound, buildIncomingFrom(t, id.CHAddr, nil))

	in1, err := c.Dispatch()
	if err != nil {
		t.Fatalf("Dispatch #1: %v", err)
	}
	if in1 == nil {
		t.Fatal("Dispatch #1: expected the queued raw datagram")
	}
	if c.State() != StateDraining {
		t.Fatalf("state after first dispatch = %v, want DRAINING (raw endpoint not yet empty)", c.State())
	}

	in2, err := c.Dispatch()
	if err != nil {
		t.Fatalf("Dispatch #2: %v", err)
	}
	if in2 == nil {
		t.Fatal("Dispatch #2: expected the queued UDP datagram")
	}
	if c.State() != StateUDP {
		t.Fatalf("state after second dispatch = %v, want UDP", c.State())
	}
	if !sockets.raw.closed {
		t.Error("expected raw endpoint to be closed once drained")
	}
}

func TestDrainingDroppedRawDatagramDoesNotReadUDP(t *testing.T) {
	id := ethernetIdentity()
	c, sockets, _ := newHarness(t, id)
	if err := c.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if err := c.Connect(net.IPv4(192, 0, 2, 5), net.IPv4(192, 0, 2, 1)); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	// A raw datagram that fails identity verification still counts as "the
	// raw endpoint had a datagram": the UDP endpoint must not be read until
	// the raw endpoint reports drain-complete.
	other := net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	sockets.raw.inbound = append(sockets.raw.inbound, buildIncomingFrom(t, other, nil))
	sockets.udp.inbound = append(sockets.udp.inbound, buildIncomingFrom(t, id.CHAddr, nil))

	in, err := c.Dispatch()
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if in != nil {
		t.Error("expected the mismatched raw datagram to be dropped")
	}
	if c.State() != StateDraining {
		t.Fatalf("state = %v, want DRAINING while the raw endpoint may hold more", c.State())
	}
	if len(sockets.udp.inbound) != 1 {
		t.Error("UDP endpoint was read before the raw endpoint drained")
	}

	in, err = c.Dispatch()
	if err != nil {
		t.Fatalf("Dispatch #2: %v", err)
	}
	if in == nil {
		t.Fatal("expected the queued UDP datagram after drain-complete")
	}
	if c.State() != StateUDP {
		t.Fatalf("state = %v, want UDP", c.State())
	}
}

func TestDrainingPromotesOnEmptyRawEvenWithoutUDPData(t *testing.T) {
	c, _, registry := newHarness(t, ethernetIdentity())
	if err := c.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if err := c.Connect(net.IPv4(192, 0, 2, 5), net.IPv4(192, 0, 2, 1)); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	in, err := c.Dispatch()
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if in != nil {
		t.Error("expected no message available")
	}
	if c.State() != StateUDP {
		t.Fatalf("state = %v, want UDP after drain-complete promotion", c.State())
	}
	if len(registry.deregistered) != 1 || registry.deregistered[0] != 10 {
		t.Errorf("deregistered = %v, want [10] (raw fd)", registry.deregistered)
	}
}

// --- Readiness registrar ---

var _ readiness.Registrar = (*fakeRegistry)(nil)
var _ socket.RawEndpoint = (*fakeRaw)(nil)
var _ socket.UDPEndpoint = (*fakeUDP)(nil)
