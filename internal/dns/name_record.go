package dns

import "fmt"

// NSRecord names an authoritative name server for its owner.
type NSRecord struct {
	RRHeader
	Target Name
}

// NewNSRecord creates a new NS record.
func NewNSRecord(name Name, ttl int32, target Name) NSRecord {
	return NSRecord{RRHeader: RRHeader{Name: name, TTL: ttl}, Target: target}
}

func (r NSRecord) Type() RecordType { return TypeNS }
func (r NSRecord) Header() RRHeader { return r.RRHeader }
func (r NSRecord) Class() uint16 { return uint16(ClassIN) }
func (r NSRecord) DataLength() int { return r.Target.WireLength() }

// EncodeData writes the uncompressed target name.
func (r NSRecord) EncodeData(buf []byte) error {
	return encodeNameRData(buf, r.Target, TypeNS)
}

// CNAMERecord declares its owner an alias of Target.
type CNAMERecord struct {
	RRHeader
	Target Name
}

// NewCNAMERecord creates a new CNAME record.
func NewCNAMERecord(name Name, ttl int32, target Name) CNAMERecord {
	return CNAMERecord{RRHeader: RRHeader{Name: name, TTL: ttl}, Target: target}
}

func (r CNAMERecord) Type() RecordType { return TypeCNAME }
func (r CNAMERecord) Header() RRHeader { return r.RRHeader }
func (r CNAMERecord) Class() uint16 { return uint16(ClassIN) }
func (r CNAMERecord) DataLength() int { return r.Target.WireLength() }

// EncodeData writes the uncompressed target name.
func (r CNAMERecord) EncodeData(buf []byte) error {
	return encodeNameRData(buf, r.Target, TypeCNAME)
}

func encodeNameRData(buf []byte, target Name, rt RecordType) error {
	if err := checkDataLength(buf, target.WireLength(), rt); err != nil {
		return err
	}
	target.AppendWire(buf[:0])
	return nil
}

// parseNameRData decodes a target name that must fill the RDATA exactly
// (RFC 1035 §3.3).
func parseNameRData(rdata, context []byte) (Name, error) {
	n, consumed, err := DecodeName(rdata, context)
	if err != nil {
		return Name{}, err
	}
	if consumed != len(rdata) {
		return Name{}, fmt.Errorf("%w: name RDATA length mismatch (%d of %d bytes used)", ErrMalformedMessage, consumed, len(rdata))
	}
	return n, nil
}
