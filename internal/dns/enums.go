package dns

import (
	"fmt"
	"strconv"
	"strings"
)

// DNS header flags and masks (RFC 1035 Section 4.1.1)
//
// The DNS header contains a 16-bit flags field with the following layout:
//
//	+--+--+--+--+--+--+--+--+--+--+--+--+--+--+--+--+
//	|QR|   Opcode  |AA|TC|RD|RA|   Z    |   RCODE   |
//	+--+--+--+--+--+--+--+--+--+--+--+--+--+--+--+--+
//	 15 14 13 12 11 10  9  8  7  6  5  4  3  2  1  0
const (
	QRFlag      uint16 = 0x8000 // Query/Response: 1 = response, 0 = query
	OpcodeMask  uint16 = 0x7800 // Bits 14-11: operation type
	opcodeShift        = 11
	AAFlag      uint16 = 0x0400 // Authoritative Answer
	TCFlag      uint16 = 0x0200 // Truncation: message was truncated
	RDFlag      uint16 = 0x0100 // Recursion Desired
	RAFlag      uint16 = 0x0080 // Recursion Available
	ZMask       uint16 = 0x0070 // Reserved
	RCodeMask   uint16 = 0x000F // Bits 3-0: response code
)

// Opcode values (RFC 1035).
const (
	OpcodeQuery  uint8 = 0
	OpcodeIQuery uint8 = 1
	OpcodeStatus uint8 = 2
)

// RecordType represents DNS resource record types (RFC 1035, RFC 3596, RFC 6891).
type RecordType uint16

const (
	TypeA     RecordType = 1  // IPv4 address
	TypeNS    RecordType = 2  // Authoritative name server
	TypeCNAME RecordType = 5  // Canonical name (alias)
	TypeAAAA  RecordType = 28 // IPv6 address (RFC 3596)
	TypeOPT   RecordType = 41 // EDNS pseudo-record (RFC 6891)
)

var recordTypeNames = map[RecordType]string{
	TypeA:     "A",
	TypeNS:    "NS",
	TypeCNAME: "CNAME",
	TypeAAAA:  "AAAA",
	TypeOPT:   "OPT",
}

// Known reports whether t belongs to the supported type set.
func (t RecordType) Known() bool {
	_, ok := recordTypeNames[t]
	return ok
}

func (t RecordType) String() string {
	if s, ok := recordTypeNames[t]; ok {
		return s
	}
	return "TYPE" + strconv.Itoa(int(t))
}

// ParseRecordType parses a mnemonic such as "AAAA" (case-insensitive).
func ParseRecordType(s string) (RecordType, error) {
	u := strings.ToUpper(strings.TrimSpace(s))
	for t, name := range recordTypeNames {
		if name == u {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownRecordType, s)
}

// RecordClass represents DNS resource record classes (RFC 1035).
type RecordClass uint16

const (
	ClassIN RecordClass = 1 // Internet class
)

// RCode represents DNS response codes (RFC 1035).
type RCode uint16

const (
	RCodeNoError  RCode = 0 // No error
	RCodeFormErr  RCode = 1 // Format error: query malformed
	RCodeServFail RCode = 2 // Server failure: internal error
	RCodeNXDomain RCode = 3 // Non-existent domain
	RCodeNotImp   RCode = 4 // Not implemented
	RCodeRefused  RCode = 5 // Query refused by policy
)

func (r RCode) String() string {
	switch r {
	case RCodeNoError:
		return "NOERROR"
	case RCodeFormErr:
		return "FORMERR"
	case RCodeServFail:
		return "SERVFAIL"
	case RCodeNXDomain:
		return "NXDOMAIN"
	case RCodeNotImp:
		return "NOTIMP"
	case RCodeRefused:
		return "REFUSED"
	default:
		return "RCODE" + strconv.Itoa(int(r))
	}
}

// RCodeFromFlags extracts the response code from the DNS header flags.
func RCodeFromFlags(flags uint16) RCode {
	return RCode(flags & RCodeMask)
}
