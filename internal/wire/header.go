// Package wire implements the Outgoing/Incoming DHCPv4 message codec: the
// fixed 236-byte header, magic cookie, TLV option area, and the RFC 3396/2132
// file/sname option-overload mechanism. It has no notion of transport state
// or client identity; those live in internal/conn.
package wire

import (
	"encoding/binary"
	"net"

	"github.com/athena-dhcpd/dhcp4conn/pkg/dhcpv4"
)

// headerSize is the fixed portion of a DHCP message, up to but excluding the
// magic cookie (RFC 2131 §2).
const headerSize = 236

// Header is the fixed-format portion of a DHCP message (RFC 2131 §2).
type Header struct {
	Op     dhcpv4.OpCode
	HType  dhcpv4.HardwareType
	HLen   byte
	Hops   byte
	Xid    uint32
	Secs   uint16
	Flags  uint16
	CIAddr [4]byte
	YIAddr [4]byte
	SIAddr [4]byte
	GIAddr [4]byte
	CHAddr [16]byte
	SName  [64]byte
	File   [128]byte
}

// SetCIAddr copies an IPv4 address into the header's ciaddr field.
func (h *Header) SetCIAddr(ip net.IP) {
	copy(h.CIAddr[:], ip.To4())
}

// SetSIAddr copies an IPv4 address into the header's siaddr field.
func (h *Header) SetSIAddr(ip net.IP) {
	copy(h.SIAddr[:], ip.To4())
}

// SetGIAddr copies an IPv4 address into the header's giaddr field.
func (h *Header) SetGIAddr(ip net.IP) {
	copy(h.GIAddr[:], ip.To4())
}

// SetCHAddr copies a hardware address into the header's chaddr field. addr
// must not be longer than 16 bytes; the caller (internal/conn) enforces hlen.
func (h *Header) SetCHAddr(addr net.HardwareAddr) {
	h.CHAddr = [16]byte{}
	copy(h.CHAddr[:], addr)
}

func (h *Header) encode(buf []byte) {
	buf[0] = byte(h.Op)
	buf[1] = byte(h.HType)
	buf[2] = h.HLen
	buf[3] = h.Hops
	binary.BigEndian.PutUint32(buf[4:8], h.Xid)
	binary.BigEndian.PutUint16(buf[8:10], h.Secs)
	binary.BigEndian.PutUint16(buf[10:12], h.Flags)
	copy(buf[12:16], h.CIAddr[:])
	copy(buf[16:20], h.YIAddr[:])
	copy(buf[20:24], h.SIAddr[:])
	copy(buf[24:28], h.GIAddr[:])
	copy(buf[28:44], h.CHAddr[:])
	copy(buf[44:108], h.SName[:])
	copy(buf[108:236], h.File[:])
}

func decodeHeader(data []byte) *Header {
	h := &Header{}
	h.Op = dhcpv4.OpCode(data[0])
	h.HType = dhcpv4.HardwareType(data[1])
	h.HLen = data[2]
	h.Hops = data[3]
	h.Xid = binary.BigEndian.Uint32(data[4:8])
	h.Secs = binary.BigEndian.Uint16(data[8:10])
	h.Flags = binary.BigEndian.Uint16(data[10:12])
	copy(h.CIAddr[:], data[12:16])
	copy(h.YIAddr[:], data[16:20])
	copy(h.SIAddr[:], data[20:24])
	copy(h.GIAddr[:], data[24:28])
	copy(h.CHAddr[:], data[28:44])
	copy(h.SName[:], data[44:108])
	copy(h.File[:], data[108:236])
	return h
}
