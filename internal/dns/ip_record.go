package dns

import (
	"fmt"
	"net/netip"
)

// ARecord maps a name to an IPv4 address.
type ARecord struct {
	RRHeader
	Addr netip.Addr
}

// NewARecord validates that addr is IPv4 and builds an A record.
func NewARecord(name Name, ttl int32, addr netip.Addr) (ARecord, error) {
	if !addr.Is4() {
		return ARecord{}, fmt.Errorf("%w: A record needs an IPv4 address, got %s", ErrMalformedMessage, addr)
	}
	return ARecord{RRHeader: RRHeader{Name: name, TTL: ttl}, Addr: addr}, nil
}

func (r ARecord) Type() RecordType { return TypeA }
func (r ARecord) Header() RRHeader { return r.RRHeader }
func (r ARecord) Class() uint16 { return uint16(ClassIN) }
func (r ARecord) DataLength() int { return 4 }

// EncodeData writes the four address octets.
func (r ARecord) EncodeData(buf []byte) error {
	if err := checkDataLength(buf, 4, TypeA); err != nil {
		return err
	}
	if !r.Addr.Is4() {
		return fmt.Errorf("%w: A record holds non-IPv4 address %s", ErrMalformedMessage, r.Addr)
	}
	a := r.Addr.As4()
	copy(buf, a[:])
	return nil
}

// AAAARecord maps a name to an IPv6 address (RFC 3596).
type AAAARecord struct {
	RRHeader
	Addr netip.Addr
}

// NewAAAARecord validates that addr is IPv6 and builds an AAAA record.
func NewAAAARecord(name Name, ttl int32, addr netip.Addr) (AAAARecord, error) {
	if !addr.Is6() || addr.Is4In6() {
		return AAAARecord{}, fmt.Errorf("%w: AAAA record needs an IPv6 address, got %s", ErrMalformedMessage, addr)
	}
	return AAAARecord{RRHeader: RRHeader{Name: name, TTL: ttl}, Addr: addr.WithZone("")}, nil
}

func (r AAAARecord) Type() RecordType { return TypeAAAA }
func (r AAAARecord) Header() RRHeader { return r.RRHeader }
func (r AAAARecord) Class() uint16 { return uint16(ClassIN) }
func (r AAAARecord) DataLength() int { return 16 }

// EncodeData writes the sixteen address octets.
func (r AAAARecord) EncodeData(buf []byte) error {
	if err := checkDataLength(buf, 16, TypeAAAA); err != nil {
		return err
	}
	if !r.Addr.IsValid() {
		return fmt.Errorf("%w: AAAA record holds no address", ErrMalformedMessage)
	}
	a := r.Addr.As16()
	copy(buf, a[:])
	return nil
}

func parseARData(h RRHeader, rdata []byte) (ARecord, error) {
	if len(rdata) != 4 {
		return ARecord{}, fmt.Errorf("%w: A record must be 4 bytes (RFC 1035 §3.4.1), got %d", ErrMalformedMessage, len(rdata))
	}
	return ARecord{RRHeader: h, Addr: netip.AddrFrom4([4]byte(rdata))}, nil
}

func parseAAAARData(h RRHeader, rdata []byte) (AAAARecord, error) {
	if len(rdata) != 16 {
		return AAAARecord{}, fmt.Errorf("%w: AAAA record must be 16 bytes (RFC 3596), got %d", ErrMalformedMessage, len(rdata))
	}
	return AAAARecord{RRHeader: h, Addr: netip.AddrFrom16([16]byte(rdata))}, nil
}
