package wire

import (
	"bytes"
	"fmt"

	"github.com/athena-dhcpd/dhcp4conn/pkg/dhcpv4"
)

// Incoming is an immutable parsed view of a received DHCP datagram.
type Incoming struct {
	header  *Header
	options map[dhcpv4.OptionCode][]byte
}

// NewIncoming parses a raw datagram into a fixed header and an option table,
// resolving file/sname overload (RFC 3396/2132 §9.3) if option 52 is present.
func NewIncoming(data []byte) (*Incoming, error) {
	if len(data) < headerSize+4 {
		return nil, ErrTruncated
	}
	h := decodeHeader(data[:headerSize])
	if !bytes.Equal(data[headerSize:headerSize+4], dhcpv4.MagicCookie) {
		return nil, ErrBadMagicCookie
	}

	opts := make(map[dhcpv4.OptionCode][]byte)
	if err := decodeOptionsInto(opts, data[headerSize+4:]); err != nil {
		return nil, fmt.Errorf("wire: decoding options: %w", err)
	}

	if overload, ok := opts[dhcpv4.OptionOverload]; ok && len(overload) == 1 {
		mask := overload[0]
		if mask&dhcpv4.OverloadFile != 0 {
			if err := decodeOptionsInto(opts, h.File[:]); err != nil {
				return nil, fmt.Errorf("wire: decoding overloaded file options: %w", err)
			}
		}
		if mask&dhcpv4.OverloadSName != 0 {
			if err := decodeOptionsInto(opts, h.SName[:]); err != nil {
				return nil, fmt.Errorf("wire: decoding overloaded sname options: %w", err)
			}
		}
	}

	return &Incoming{header: h, options: opts}, nil
}

// Header returns the message's fixed header.
func (in *Incoming) Header() *Header {
	return in.header
}

// Query returns the raw value of an option, or ErrNoData if absent. Repeated
// occurrences of the same code (RFC 3396 value fragmentation) are
// concatenated in wire order.
func (in *Incoming) Query(code dhcpv4.OptionCode) ([]byte, error) {
	v, ok := in.options[code]
	if !ok {
		return nil, ErrNoData
	}
	return v, nil
}

// decodeOptionsInto parses a TLV option stream (RFC 2132 §3) and merges it
// into dst, concatenating values for option codes that repeat (RFC 3396).
// A Pad byte is skipped; an End byte stops parsing early, which is normal
// when a region is larger than the options it carries.
func decodeOptionsInto(dst map[dhcpv4.OptionCode][]byte, data []byte) error {
	i := 0
	for i < len(data) {
		code := dhcpv4.OptionCode(data[i])
		i++
		if code == dhcpv4.OptionPad {
			continue
		}
		if code == dhcpv4.OptionEnd {
			return nil
		}
		if i >= len(data) {
			return fmt.Errorf("truncated option %d: no length byte", code)
		}
		length := int(data[i])
		i++
		if i+length > len(data) {
			return fmt.Errorf("truncated option %d: need %d bytes, have %d", code, length, len(data)-i)
		}
		value := data[i : i+length]
		i += length

		if existing, ok := dst[code]; ok {
			merged := make([]byte, 0, len(existing)+len(value))
			merged = append(merged, existing...)
			merged = append(merged, value...)
			dst[code] = merged
		} else {
			v := make([]byte, length)
			copy(v, value)
			dst[code] = v
		}
	}
	return nil
}
