package dns

import (
	"encoding/binary"
	"fmt"
)

// EDNS (Extension Mechanisms for DNS) constants per RFC 6891.
const (
	DefaultUDPPayloadSize = 512 // Traditional DNS UDP limit (RFC 1035)
	EDNSMaxUDPPayloadSize = 4096
)

// EDNSOption represents an EDNS option in the OPT record's RDATA.
type EDNSOption struct {
	Code uint16 // Option code
	Data []byte // Option data
}

const ednsOptionHeaderLen = 4

// OPTRecord represents an EDNS OPT pseudo-record (RFC 6891).
//
// The OPT record uses a non-standard encoding:
//   - NAME: Must be root (0x00)
//   - TYPE: 41 (OPT)
//   - CLASS: Sender's UDP payload size (not a class!)
//   - TTL: Extended RCODE, version, and flags (packed into 32 bits)
//   - RDATA: Zero or more EDNS options
//
// TTL field layout (32 bits):
//
//	+---+---+---+---+---+---+---+---+---+---+---+---+---+---+---+---+
//	|         EXTENDED-RCODE        |            VERSION            |
//	+---+---+---+---+---+---+---+---+---+---+---+---+---+---+---+---+
//	| DO|                    Z (reserved)                           |
//	+---+---+---+---+---+---+---+---+---+---+---+---+---+---+---+---+
type OPTRecord struct {
	UDPPayloadSize uint16       // Sender's maximum UDP payload size
	ExtendedRCode  uint8        // Upper 8 bits of RCODE
	Version        uint8        // EDNS version
	DNSSECOk       bool         // DO flag
	Options        []EDNSOption // EDNS options
}

func (o OPTRecord) Type() RecordType { return TypeOPT }

// Header returns the root owner and the packed TTL word.
func (o OPTRecord) Header() RRHeader {
	return RRHeader{Name: Root, TTL: int32(packOPTTTL(o.ExtendedRCode, o.Version, o.DNSSECOk))}
}

// Class returns the advertised UDP payload size.
func (o OPTRecord) Class() uint16 { return o.UDPPayloadSize }

func (o OPTRecord) DataLength() int {
	n := 0
	for _, opt := range o.Options {
		n += ednsOptionHeaderLen + len(opt.Data)
	}
	return n
}

// EncodeData writes each option as code, length, data.
func (o OPTRecord) EncodeData(buf []byte) error {
	if err := checkDataLength(buf, o.DataLength(), TypeOPT); err != nil {
		return err
	}
	off := 0
	for _, opt := range o.Options {
		if len(opt.Data) > 0xFFFF {
			return fmt.Errorf("%w: EDNS option %d too large", ErrMalformedMessage, opt.Code)
		}
		binary.BigEndian.PutUint16(buf[off:], opt.Code)
		binary.BigEndian.PutUint16(buf[off+2:], uint16(len(opt.Data)))
		off += ednsOptionHeaderLen
		off += copy(buf[off:], opt.Data)
	}
	return nil
}

// packOPTTTL constructs the 32-bit TTL field for an OPT record.
func packOPTTTL(extRCode, version uint8, dnssecOk bool) uint32 {
	ttl := uint32(extRCode)<<24 | uint32(version)<<16
	if dnssecOk {
		ttl |= 1 << 15
	}
	return ttl
}

func parseOPTRData(name Name, class uint16, ttl int32, rdata []byte) (OPTRecord, error) {
	if !name.IsRoot() {
		return OPTRecord{}, fmt.Errorf("%w: OPT record owner must be root, got %s", ErrMalformedMessage, name)
	}
	u := uint32(ttl)
	o := OPTRecord{
		UDPPayloadSize: class,
		ExtendedRCode:  uint8(u >> 24),
		Version:        uint8(u >> 16),
		DNSSECOk:       u&(1<<15) != 0,
	}
	for i := 0; i < len(rdata); {
		if len(rdata)-i < ednsOptionHeaderLen {
			return OPTRecord{}, fmt.Errorf("%w: truncated EDNS option header", ErrMalformedMessage)
		}
		code := binary.BigEndian.Uint16(rdata[i : i+2])
		ln := int(binary.BigEndian.Uint16(rdata[i+2 : i+4]))
		i += ednsOptionHeaderLen
		if i+ln > len(rdata) {
			return OPTRecord{}, fmt.Errorf("%w: truncated EDNS option %d", ErrMalformedMessage, code)
		}
		data := make([]byte, ln)
		copy(data, rdata[i:i+ln])
		o.Options = append(o.Options, EDNSOption{Code: code, Data: data})
		i += ln
	}
	return o, nil
}

// ExtractOPT returns the first OPT record among additionals, if any.
func ExtractOPT(additionals []Record) (OPTRecord, bool) {
	for _, r := range additionals {
		if o, ok := r.(OPTRecord); ok {
			return o, true
		}
	}
	return OPTRecord{}, false
}

// IsTruncated checks if an encoded DNS message has the TC flag set.
func IsTruncated(responseBytes []byte) bool {
	if len(responseBytes) < 4 {
		return false
	}
	flags := binary.BigEndian.Uint16(responseBytes[2:4])
	return (flags & TCFlag) != 0
}
