package conn

import (
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/athena-dhcpd/dhcp4conn/internal/metrics"
	"github.com/athena-dhcpd/dhcp4conn/internal/readiness"
	"github.com/athena-dhcpd/dhcp4conn/internal/socket"
)

// ErrWrongState is returned when an operation's transport-state
// precondition isn't met.
var ErrWrongState = errors.New("conn: wrong transport state")

// ErrTransport wraps endpoint open, registration, send, and
// non-would-block receive failures.
var ErrTransport = errors.New("conn: transport error")

// ErrCodec wraps an option-append or message-build failure on the outbound
// path.
var ErrCodec = errors.New("conn: codec error")

// State is the Connection's transport state. It only ever advances:
// INIT -> PACKET -> DRAINING -> UDP, until Deinit resets it to INIT.
type State int

const (
	StateInit State = iota
	StatePacket
	StateDraining
	StateUDP
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StatePacket:
		return "PACKET"
	case StateDraining:
		return "DRAINING"
	case StateUDP:
		return "UDP"
	default:
		return "UNKNOWN"
	}
}

// Connection is the client-side DHCPv4 transport and outbound message
// construction core. Exactly one goroutine may call its methods; it
// performs no internal locking.
type Connection struct {
	id *validated

	sockets  Sockets
	registry readiness.Registrar
	token    uint64
	log      *slog.Logger

	// Strict switches Dispatch's behavior on a malformed inbound datagram
	// from "log and drop" to returning the wrapped codec error.
	Strict bool

	state State

	raw socket.RawEndpoint
	udp socket.UDPEndpoint

	ciaddr net.IP
	siaddr net.IP
}

// NewConnection validates identity and returns a Connection in state INIT.
func NewConnection(identity Identity, sockets Sockets, registry readiness.Registrar, token uint64, log *slog.Logger) (*Connection, error) {
	v, err := newValidated(identity)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Connection{
		id:       v,
		sockets:  sockets,
		registry: registry,
		token:    token,
		log:      log,
		state:    StateInit,
		ciaddr:   net.IPv4zero,
		siaddr:   net.IPv4zero,
	}, nil
}

// State returns the current transport state.
func (c *Connection) State() State { return c.state }

// Listen opens the raw link-layer endpoint and registers it for
// read-readiness, advancing INIT -> PACKET.
func (c *Connection) Listen() error {
	if c.state != StateInit {
		return fmt.Errorf("%w: Listen requires INIT, have %s", ErrWrongState, c.state)
	}

	raw, err := c.sockets.OpenRaw()
	if err != nil {
		return fmt.Errorf("%w: opening raw endpoint: %v", ErrTransport, err)
	}
	if err := c.registry.Register(raw.Fd(), c.token); err != nil {
		raw.Close()
		return fmt.Errorf("%w: registering raw endpoint: %v", ErrTransport, err)
	}

	c.raw = raw
	c.state = StatePacket
	c.log.Debug("transport state advanced", "state", c.state.String())
	metrics.TransportPromotions.WithLabelValues(c.state.String()).Inc()
	setTransportStateGauge(c.state)
	return nil
}

// Connect opens a UDP endpoint bound to clientIP and peered with serverIP,
// registers it, shuts down the raw endpoint's send side, and advances
// PACKET -> DRAINING. Replies to requests broadcast before the bind may
// still be queued on the raw endpoint; Dispatch drains them before the
// raw endpoint is torn down.
func (c *Connection) Connect(clientIP, serverIP net.IP) error {
	if c.state != StatePacket {
		return fmt.Errorf("%w: Connect requires PACKET, have %s", ErrWrongState, c.state)
	}

	udp, err := c.sockets.OpenUDP(clientIP, serverIP)
	if err != nil {
		return fmt.Errorf("%w: opening udp endpoint: %v", ErrTransport, err)
	}
	if err := c.registry.Register(udp.Fd(), c.token); err != nil {
		udp.Close()
		return fmt.Errorf("%w: registering udp endpoint: %v", ErrTransport, err)
	}
	if err := c.raw.ShutdownSend(); err != nil {
		_ = c.registry.Deregister(udp.Fd())
		udp.Close()
		return fmt.Errorf("%w: shutting down raw endpoint send side: %v", ErrTransport, err)
	}

	c.udp = udp
	c.ciaddr = clientIP
	c.siaddr = serverIP
	c.state = StateDraining
	c.log.Debug("transport state advanced", "state", c.state.String())
	metrics.TransportPromotions.WithLabelValues(c.state.String()).Inc()
	setTransportStateGauge(c.state)
	return nil
}

// promoteToUDP closes the raw endpoint and moves DRAINING -> UDP. Only the
// dispatcher calls this, once the raw endpoint reports drain-complete.
func (c *Connection) promoteToUDP() {
	_ = c.registry.Deregister(c.raw.Fd())
	_ = c.raw.Close()
	c.raw = nil
	c.state = StateUDP
	c.log.Debug("transport state advanced", "state", c.state.String())
	metrics.TransportPromotions.WithLabelValues(c.state.String()).Inc()
	setTransportStateGauge(c.state)
}

// setTransportStateGauge sets cur's gauge value to 1 and every other known
// state's to 0, so the TransportState gauge reflects exactly one current
// state at a time.
func setTransportStateGauge(cur State) {
	for _, s := range []State{StateInit, StatePacket, StateDraining, StateUDP} {
		v := 0.0
		if s == cur {
			v = 1
		}
		metrics.TransportState.WithLabelValues(s.String()).Set(v)
	}
}

// Deinit deregisters and closes whichever endpoints are open and resets the
// Connection to INIT. Safe to call from any state.
func (c *Connection) Deinit() error {
	var errs []error
	if c.raw != nil {
		if err := c.registry.Deregister(c.raw.Fd()); err != nil {
			errs = append(errs, err)
		}
		if err := c.raw.Close(); err != nil {
			errs = append(errs, err)
		}
		c.raw = nil
	}
	if c.udp != nil {
		if err := c.registry.Deregister(c.udp.Fd()); err != nil {
			errs = append(errs, err)
		}
		if err := c.udp.Close(); err != nil {
			errs = append(errs, err)
		}
		c.udp = nil
	}
	c.state = StateInit
	c.ciaddr = net.IPv4zero
	c.siaddr = net.IPv4zero
	setTransportStateGauge(c.state)
	return errors.Join(errs...)
}
