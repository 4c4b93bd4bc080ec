package dns

import (
	"encoding/binary"
	"fmt"
	"slices"
)

// RRHeader contains the owner name and TTL shared by every resource record.
// This is distinct from Header which is the DNS message header.
type RRHeader struct {
	Name Name
	TTL  int32
}

// Record is a decoded resource record.
//
// The implementations in this package are the complete set: ARecord,
// AAAARecord, NSRecord, CNAMERecord and OPTRecord.
type Record interface {
	// Type returns the DNS record type.
	Type() RecordType

	// Header returns the owner name and TTL as they appear on the wire.
	Header() RRHeader

	// Class returns the class field as it appears on the wire.
	Class() uint16

	// DataLength returns the RDATA size in bytes.
	DataLength() int

	// EncodeData writes RDATA into buf, which is exactly DataLength() bytes.
	EncodeData(buf []byte) error
}

// fixed RR fields after the owner name: type, class, ttl, rdlength
const rrFixedLen = 10

// RecordWireLength returns the encoded size of r.
func RecordWireLength(r Record) int {
	return r.Header().Name.WireLength() + rrFixedLen + r.DataLength()
}

// MarshalRecord converts a Record to wire-format bytes.
func MarshalRecord(r Record) ([]byte, error) {
	return AppendRecord(make([]byte, 0, RecordWireLength(r)), r)
}

// AppendRecord appends the wire encoding of r to b.
func AppendRecord(b []byte, r Record) ([]byte, error) {
	h := r.Header()
	n := r.DataLength()
	if n > 0xFFFF {
		return nil, fmt.Errorf("%w: rdata too large: %d bytes (max 65535)", ErrMalformedMessage, n)
	}
	b = h.Name.AppendWire(b)
	b = binary.BigEndian.AppendUint16(b, uint16(r.Type()))
	b = binary.BigEndian.AppendUint16(b, r.Class())
	b = binary.BigEndian.AppendUint32(b, uint32(h.TTL))
	b = binary.BigEndian.AppendUint16(b, uint16(n))

	start := len(b)
	b = slices.Grow(b, n)[:start+n]
	if err := r.EncodeData(b[start:]); err != nil {
		return nil, err
	}
	return b, nil
}

// ParseRecord parses a resource record from wire format.
// It advances *off past the parsed record on success.
func ParseRecord(msg []byte, off *int) (Record, error) {
	if *off < 0 || *off > len(msg) {
		return nil, fmt.Errorf("%w: record offset out of range", ErrMalformedMessage)
	}
	name, n, err := DecodeName(msg[*off:], msg)
	if err != nil {
		return nil, err
	}
	pos := *off + n
	if pos+rrFixedLen > len(msg) {
		return nil, fmt.Errorf("%w: unexpected EOF while reading DNS record", ErrMalformedMessage)
	}
	rrType := RecordType(binary.BigEndian.Uint16(msg[pos : pos+2]))
	rrClass := binary.BigEndian.Uint16(msg[pos+2 : pos+4])
	ttl := int32(binary.BigEndian.Uint32(msg[pos+4 : pos+8]))
	rdlen := int(binary.BigEndian.Uint16(msg[pos+8 : pos+10]))
	pos += rrFixedLen
	if pos+rdlen > len(msg) {
		return nil, fmt.Errorf("%w: unexpected EOF while reading DNS record rdata", ErrMalformedMessage)
	}

	r, err := DecodeRecordData(name, rrType, rrClass, ttl, msg[pos:pos+rdlen], msg)
	if err != nil {
		return nil, err
	}
	*off = pos + rdlen
	return r, nil
}

// DecodeRecordData builds a Record from its envelope fields and RDATA,
// dispatching on the type code. context is the enclosing message, used to
// resolve compression pointers inside NS and CNAME targets; it may be nil.
func DecodeRecordData(name Name, rt RecordType, class uint16, ttl int32, rdata, context []byte) (Record, error) {
	if rt != TypeOPT && class != uint16(ClassIN) {
		return nil, fmt.Errorf("%w: unsupported class %d for %s record", ErrMalformedMessage, class, rt)
	}
	h := RRHeader{Name: name, TTL: ttl}
	switch rt {
	case TypeA:
		return parseARData(h, rdata)
	case TypeAAAA:
		return parseAAAARData(h, rdata)
	case TypeNS:
		target, err := parseNameRData(rdata, context)
		if err != nil {
			return nil, err
		}
		return NSRecord{RRHeader: h, Target: target}, nil
	case TypeCNAME:
		target, err := parseNameRData(rdata, context)
		if err != nil {
			return nil, err
		}
		return CNAMERecord{RRHeader: h, Target: target}, nil
	case TypeOPT:
		return parseOPTRData(name, class, ttl, rdata)
	default:
		return nil, fmt.Errorf("%w: type code %d", ErrUnknownRecordType, uint16(rt))
	}
}

// EncodeRecordData returns the RDATA bytes of r.
func EncodeRecordData(r Record) ([]byte, error) {
	buf := make([]byte, r.DataLength())
	if err := r.EncodeData(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func checkDataLength(buf []byte, want int, rt RecordType) error {
	if len(buf) != want {
		return fmt.Errorf("%w: %s rdata buffer is %d bytes, want %d", ErrMalformedMessage, rt, len(buf), want)
	}
	return nil
}
