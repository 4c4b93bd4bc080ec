package dns

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// MaxPointerDepth is the number of compression pointer indirections
// DecodeName follows before giving up.
const MaxPointerDepth = 10

// EncodeName encodes a domain name to DNS wire format (RFC 1035 Section 3.1).
//
// Example: "www.example.com" encodes as:
//
//	[3]www[7]example[3]com[0]
//
// Names are never compressed on output.
func EncodeName(n Name) []byte {
	return n.AppendWire(make([]byte, 0, n.WireLength()))
}

// AppendWire appends the wire encoding of n to b.
func (n Name) AppendWire(b []byte) []byte {
	s := n.name
	for s != "" {
		label, rest, _ := strings.Cut(s, ".")
		b = append(b, byte(len(label)))
		b = append(b, label...)
		s = rest
	}
	return append(b, 0)
}

// DecodeName decodes a possibly-compressed name starting at buf[0].
//
// A length byte with both high bits set is a 14-bit pointer (RFC 1035
// Section 4.1.4) into context, the whole message buf was sliced from.
// At most MaxPointerDepth pointers are followed. A nil context rejects
// any pointer.
//
// The returned count covers the bytes consumed from buf: up to and
// including the terminating zero, or up to and including the first pointer.
func DecodeName(buf, context []byte) (Name, int, error) {
	d := nameDecoder{context: context, labels: make([]string, 0, 6)}
	n, err := d.decode(buf, 0)
	if err != nil {
		return Name{}, 0, err
	}
	name, err := d.name()
	if err != nil {
		return Name{}, 0, err
	}
	return name, n, nil
}

type nameDecoder struct {
	context []byte
	labels  []string
	wireLen int
}

// decode reads labels from buf and returns the bytes consumed from buf.
// depth is the number of pointers already followed.
func (d *nameDecoder) decode(buf []byte, depth int) (int, error) {
	off := 0
	for {
		if off >= len(buf) {
			return 0, fmt.Errorf("%w: unexpected EOF while decoding DNS name", ErrMalformedName)
		}
		labelLen := buf[off]

		switch {
		case labelLen == 0:
			return off + 1, nil

		case isCompressionPointer(labelLen):
			if d.context == nil {
				return 0, fmt.Errorf("%w: compression pointer without message context", ErrMalformedName)
			}
			if off+1 >= len(buf) {
				return 0, fmt.Errorf("%w: unexpected EOF while decoding compression pointer", ErrMalformedName)
			}
			if depth >= MaxPointerDepth {
				return 0, fmt.Errorf("%w: more than %d compression pointer indirections", ErrMalformedName, MaxPointerDepth)
			}
			ptr := int(binary.BigEndian.Uint16(buf[off:off+2]) & 0x3FFF)
			if ptr >= len(d.context) {
				return 0, fmt.Errorf("%w: compression pointer %d out of bounds", ErrMalformedName, ptr)
			}
			if _, err := d.decode(d.context[ptr:], depth+1); err != nil {
				return 0, err
			}
			return off + 2, nil

		case hasReservedBits(labelLen):
			return 0, fmt.Errorf("%w: invalid DNS label length (reserved high bits set)", ErrMalformedName)

		default:
			end := off + 1 + int(labelLen)
			if end > len(buf) {
				return 0, fmt.Errorf("%w: unexpected EOF while reading DNS label", ErrMalformedName)
			}
			d.wireLen += 1 + int(labelLen)
			if d.wireLen+1 > MaxNameLength {
				return 0, fmt.Errorf("%w: decoded name exceeds %d bytes", ErrMalformedName, MaxNameLength)
			}
			d.labels = append(d.labels, string(buf[off+1:end]))
			off = end
		}
	}
}

func (d *nameDecoder) name() (Name, error) {
	if len(d.labels) == 0 {
		return Root, nil
	}
	for i, label := range d.labels {
		lower := strings.ToLower(label)
		if err := validateLabel(lower); err != nil {
			return Name{}, err
		}
		d.labels[i] = lower
	}
	return Name{name: strings.Join(d.labels, ".")}, nil
}

// isCompressionPointer checks if the label length byte indicates a compression pointer.
func isCompressionPointer(b byte) bool {
	return (b & 0xC0) == 0xC0
}

// hasReservedBits checks if the label uses reserved encoding (01xxxxxx or 10xxxxxx).
func hasReservedBits(b byte) bool {
	return (b & 0xC0) != 0
}
