package wire

import (
	"fmt"

	"github.com/athena-dhcpd/dhcp4conn/pkg/dhcpv4"
)

// mainOptionAreaCap bounds the option bytes written directly after the magic
// cookie so that a message with few enough options stays within the
// historical 576-byte minimum-supported DHCP datagram size (RFC 2131 §2)
// without ever touching file/sname. Messages with more options than this
// spill into file, then sname, per RFC 3396/2132 §9.3.
const mainOptionAreaCap = dhcpv4.DefaultPacketSize - headerSize - 4 /* magic cookie */ - 1 /* end marker */

const overloadOptionSize = 3 // code + length + 1-byte bitmask

// fileRegionSize and snameRegionSize mirror Header.File/Header.SName.
const (
	fileRegionSize  = 128
	snameRegionSize = 64
)

type tlv struct {
	code dhcpv4.OptionCode
	data []byte
}

// Outgoing is a mutable DHCP message builder. It owns a fixed Header and an
// ordered sequence of options appended via Append; Raw lays both out into
// wire bytes, spilling into the file/sname header regions when requested and
// needed.
type Outgoing struct {
	header       Header
	options      []tlv
	overloadMask byte
}

// NewOutgoing creates a builder with secs pre-set to secsInit and permission
// to spill options into the header regions named by overloadMask
// (dhcpv4.OverloadFile, dhcpv4.OverloadSName, bitwise-or'd).
func NewOutgoing(secsInit uint16, overloadMask byte) *Outgoing {
	o := &Outgoing{overloadMask: overloadMask}
	o.header.Secs = secsInit
	return o
}

// Header returns the mutable fixed header for the caller to populate.
func (o *Outgoing) Header() *Header {
	return &o.header
}

// Append adds an option to the message. Options are encoded in append order
// within whichever region they land in.
func (o *Outgoing) Append(code dhcpv4.OptionCode, data []byte) error {
	if len(data) > 255 {
		return fmt.Errorf("wire: option %d value too long for a single TLV (%d bytes)", code, len(data))
	}
	o.options = append(o.options, tlv{code: code, data: data})
	return nil
}

// Raw serialises the message: fixed header, magic cookie, then options
// (spilling into file/sname as needed).
func (o *Outgoing) Raw() ([]byte, error) {
	main, file, sname, usedFile, usedSName, ok := o.layout(0)
	if !ok {
		return nil, ErrOptionOverflow
	}

	if usedFile || usedSName {
		main, file, sname, usedFile, usedSName, ok = o.layout(overloadOptionSize)
		if !ok {
			return nil, ErrOptionOverflow
		}
		var mask byte
		if usedFile {
			mask |= dhcpv4.OverloadFile
		}
		if usedSName {
			mask |= dhcpv4.OverloadSName
		}
		main[0] = byte(dhcpv4.OptionOverload)
		main[1] = 1
		main[2] = mask
	}

	h := o.header
	if usedFile {
		copy(h.File[:], file)
	}
	if usedSName {
		copy(h.SName[:], sname)
	}

	buf := make([]byte, headerSize+4+len(main))
	h.encode(buf[:headerSize])
	copy(buf[headerSize:headerSize+4], dhcpv4.MagicCookie)
	copy(buf[headerSize+4:], main)
	return buf, nil
}

// layout packs o.options into main/file/sname in append order, spilling from
// one region into the next as each fills. reserve bytes are held back at the
// front of main for a subsequent option-overload TLV.
func (o *Outgoing) layout(reserve int) (main, file, sname []byte, usedFile, usedSName bool, ok bool) {
	type region struct {
		buf    *[]byte
		cap    int
		permit bool
		used   *bool
	}
	regions := []region{
		{&main, mainOptionAreaCap - reserve, true, nil},
		{&file, fileRegionSize, o.overloadMask&dhcpv4.OverloadFile != 0, &usedFile},
		{&sname, snameRegionSize, o.overloadMask&dhcpv4.OverloadSName != 0, &usedSName},
	}

	ri := 0
	for _, t := range o.options {
		size := 2 + len(t.data)
		for ri < len(regions) && (!regions[ri].permit || len(*regions[ri].buf)+size > regions[ri].cap) {
			ri++
		}
		if ri >= len(regions) {
			return nil, nil, nil, false, false, false
		}
		*regions[ri].buf = append(*regions[ri].buf, byte(t.code), byte(len(t.data)))
		*regions[ri].buf = append(*regions[ri].buf, t.data...)
		if regions[ri].used != nil {
			*regions[ri].used = true
		}
	}

	if len(main)+1 > regions[0].cap {
		return nil, nil, nil, false, false, false
	}
	main = append(main, byte(dhcpv4.OptionEnd))
	if reserve > 0 {
		head := make([]byte, reserve, reserve+len(main))
		main = append(head, main...)
	}
	return main, file, sname, usedFile, usedSName, true
}
