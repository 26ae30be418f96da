package conn

import (
	"errors"
	"fmt"
	"net"

	"github.com/athena-dhcpd/dhcp4conn/pkg/dhcpv4"
)

// ErrInvalidArgument is returned when an Identity fails validation.
var ErrInvalidArgument = errors.New("conn: invalid argument")

// maxHeaderCHAddrLen is the size of the chaddr field in the DHCP header
// (RFC 2131 §2): 16 bytes, regardless of the address family in use. It
// bounds hlen only for link layers whose header carries chaddr; InfiniBand
// suppresses the header field and is bounded by maxHWAddrLen instead.
const maxHeaderCHAddrLen = 16

// maxHWAddrLen bounds the hardware address a Connection stores for inbound
// filtering and raw L2 sends. Linux's MAX_ADDR_LEN; InfiniBand's 20-byte
// addresses fit under it.
const maxHWAddrLen = 32

// Identity is the per-attempt client identity a Connection is constructed
// from.
type Identity struct {
	// IfIndex is an opaque system interface identifier, carried through for
	// the host's socket factories; this core never interprets it itself.
	IfIndex int

	// HType is the link-layer address family tag (RFC 1700).
	HType dhcpv4.HardwareType

	// CHAddr is the client hardware address. Its length becomes hlen; it
	// must fit the header's 16-byte chaddr field on link layers that carry
	// chaddr in the header (InfiniBand doesn't, so its 20-byte addresses
	// are accepted).
	CHAddr net.HardwareAddr

	// BHAddr is the link-layer broadcast address used as the L2
	// destination when sending via the raw endpoint.
	BHAddr net.HardwareAddr

	// ClientID is the DHCP client identifier (option 61). nil or
	// zero-length means "no identifier". A length of exactly 1 is
	// rejected by NewConnection (RFC 2132 §9.14 forbids length-1
	// identifiers).
	ClientID []byte

	// MTU is the MTU hint advertised as maximum-message-size while on the
	// raw endpoint. 0 means unknown, in which case no max-size option is
	// sent while in PACKET state.
	MTU uint16

	// ForceBroadcast overrides the htype-derived broadcast default,
	// setting the header's BROADCAST flag even on an interface
	// that isn't InfiniBand. It never turns the flag off for InfiniBand,
	// which always requires it regardless of this field.
	ForceBroadcast bool
}

// validated is the immutable, derived form of Identity a Connection keeps:
// hlen, requestBroadcast and sendCHAddr are computed once at construction
// time.
type validated struct {
	Identity
	hlen             byte
	requestBroadcast bool
	sendCHAddr       bool
}

// newValidated validates id and derives the InfiniBand-sensitive fields.
// Fails with ErrInvalidArgument on an empty hardware address, hlen overflow,
// or a length-1 client identifier.
func newValidated(id Identity) (*validated, error) {
	if len(id.CHAddr) == 0 {
		return nil, fmt.Errorf("%w: empty client hardware address", ErrInvalidArgument)
	}
	if len(id.CHAddr) > maxHWAddrLen {
		return nil, fmt.Errorf("%w: hlen %d exceeds %d bytes", ErrInvalidArgument, len(id.CHAddr), maxHWAddrLen)
	}
	if len(id.ClientID) == 1 {
		return nil, fmt.Errorf("%w: client identifier length must not be 1", ErrInvalidArgument)
	}

	v := &validated{Identity: id, hlen: byte(len(id.CHAddr))}

	// InfiniBand cannot accept a unicast reply before the address is
	// plumbed: force broadcast and suppress chaddr, relying on the client
	// identifier instead. Its 20-byte addresses never enter the header, so
	// the 16-byte field only bounds hlen for everything else.
	if id.HType == dhcpv4.HardwareTypeInfiniBand {
		v.requestBroadcast = true
		v.sendCHAddr = false
	} else {
		if len(id.CHAddr) > maxHeaderCHAddrLen {
			return nil, fmt.Errorf("%w: hlen %d exceeds %d-byte chaddr field", ErrInvalidArgument, len(id.CHAddr), maxHeaderCHAddrLen)
		}
		v.requestBroadcast = id.ForceBroadcast
		v.sendCHAddr = true
	}

	return v, nil
}
