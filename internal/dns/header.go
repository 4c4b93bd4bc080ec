package dns

import (
	"encoding/binary"
	"fmt"
)

// Header represents a DNS message header (RFC 1035 Section 4.1.1).
//
// The header is always 12 bytes and contains:
//   - ID: 16-bit identifier for matching requests to responses
//   - Flags: 16-bit field containing QR, Opcode, AA, TC, RD, RA, Z, RCODE
//   - QDCount: Number of questions
//   - ANCount: Number of answer resource records
//   - NSCount: Number of authority resource records
//   - ARCount: Number of additional resource records
type Header struct {
	ID      uint16 // Transaction ID
	Flags   uint16 // See enums.go for flag definitions
	QDCount uint16 // Question count
	ANCount uint16 // Answer count
	NSCount uint16 // Authority (nameserver) count
	ARCount uint16 // Additional records count
}

// HeaderSize is the fixed size of a DNS header in bytes.
const HeaderSize = 12

// Flags is the unpacked form of the header flags word.
type Flags struct {
	Response           bool
	Opcode             uint8
	Authoritative      bool
	Truncated          bool
	RecursionDesired   bool
	RecursionAvailable bool
	RCode              RCode
}

// Pack returns the 16-bit wire representation. Z bits are always zero.
func (f Flags) Pack() uint16 {
	var v uint16
	if f.Response {
		v |= QRFlag
	}
	v |= (uint16(f.Opcode) << opcodeShift) & OpcodeMask
	if f.Authoritative {
		v |= AAFlag
	}
	if f.Truncated {
		v |= TCFlag
	}
	if f.RecursionDesired {
		v |= RDFlag
	}
	if f.RecursionAvailable {
		v |= RAFlag
	}
	v |= uint16(f.RCode) & RCodeMask
	return v
}

// UnpackFlags splits a flags word into its fields.
func UnpackFlags(v uint16) Flags {
	return Flags{
		Response:           v&QRFlag != 0,
		Opcode:             uint8((v & OpcodeMask) >> opcodeShift),
		Authoritative:      v&AAFlag != 0,
		Truncated:          v&TCFlag != 0,
		RecursionDesired:   v&RDFlag != 0,
		RecursionAvailable: v&RAFlag != 0,
		RCode:              RCodeFromFlags(v),
	}
}

// Marshal serializes the header to wire format (big-endian, 12 bytes).
func (h Header) Marshal() []byte {
	return h.appendTo(make([]byte, 0, HeaderSize))
}

func (h Header) appendTo(b []byte) []byte {
	b = binary.BigEndian.AppendUint16(b, h.ID)
	b = binary.BigEndian.AppendUint16(b, h.Flags)
	b = binary.BigEndian.AppendUint16(b, h.QDCount)
	b = binary.BigEndian.AppendUint16(b, h.ANCount)
	b = binary.BigEndian.AppendUint16(b, h.NSCount)
	return binary.BigEndian.AppendUint16(b, h.ARCount)
}

// ParseHeader parses a DNS header from the message at the given offset.
// It advances *off by 12 bytes (the header size) on success.
func ParseHeader(msg []byte, off *int) (Header, error) {
	if *off < 0 || *off+HeaderSize > len(msg) {
		return Header{}, fmt.Errorf("%w: unexpected EOF while reading DNS header", ErrMalformedMessage)
	}
	h := Header{
		ID:      binary.BigEndian.Uint16(msg[*off : *off+2]),
		Flags:   binary.BigEndian.Uint16(msg[*off+2 : *off+4]),
		QDCount: binary.BigEndian.Uint16(msg[*off+4 : *off+6]),
		ANCount: binary.BigEndian.Uint16(msg[*off+6 : *off+8]),
		NSCount: binary.BigEndian.Uint16(msg[*off+8 : *off+10]),
		ARCount: binary.BigEndian.Uint16(msg[*off+10 : *off+12]),
	}
	*off += HeaderSize
	return h, nil
}

// Opcode returns the 4-bit operation code.
func (h Header) Opcode() uint8 {
	return uint8((h.Flags & OpcodeMask) >> opcodeShift)
}

// RCode returns the 4-bit response code.
func (h Header) RCode() RCode {
	return RCodeFromFlags(h.Flags)
}

// RecursionDesired returns true if the RD (Recursion Desired) flag is set.
func (h Header) RecursionDesired() bool {
	return h.Flags&RDFlag != 0
}

// RecursionAvailable returns true if the RA (Recursion Available) flag is set.
func (h Header) RecursionAvailable() bool {
	return h.Flags&RAFlag != 0
}

// Authoritative returns true if the AA (Authoritative Answer) flag is set.
func (h Header) Authoritative() bool {
	return h.Flags&AAFlag != 0
}

// Truncated returns true if the TC (Truncated) flag is set.
func (h Header) Truncated() bool {
	return h.Flags&TCFlag != 0
}

// IsQuery returns true if this is a query (QR=0), false if it's a response (QR=1).
func (h Header) IsQuery() bool {
	return h.Flags&QRFlag == 0
}

// IsResponse returns true if this is a response (QR=1), false if it's a query (QR=0).
func (h Header) IsResponse() bool {
	return h.Flags&QRFlag != 0
}

// SetTruncated sets or clears the TC flag.
func (h *Header) SetTruncated(enabled bool) {
	if enabled {
		h.Flags |= TCFlag
	} else {
		h.Flags &^= TCFlag
	}
}
