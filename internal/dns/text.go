package dns

import (
	"fmt"
	"net/netip"
	"strings"
)

// NewRecordFromText builds a storable record from presentation-format
// fields, e.g. ("www.example.org", TypeCNAME, 300, "example.org").
// OPT records have no presentation form and are rejected.
func NewRecordFromText(owner string, rt RecordType, ttl int32, value string) (Record, error) {
	name, err := NewName(owner)
	if err != nil {
		return nil, fmt.Errorf("owner %q: %w", owner, err)
	}
	if ttl < 0 {
		return nil, fmt.Errorf("%w: negative TTL %d", ErrMalformedMessage, ttl)
	}
	value = strings.TrimSpace(value)

	switch rt {
	case TypeA, TypeAAAA:
		addr, err := netip.ParseAddr(value)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid address %q: %v", ErrMalformedMessage, value, err)
		}
		if rt == TypeA {
			return NewARecord(name, ttl, addr)
		}
		return NewAAAARecord(name, ttl, addr)
	case TypeNS, TypeCNAME:
		target, err := NewName(value)
		if err != nil {
			return nil, fmt.Errorf("target %q: %w", value, err)
		}
		if rt == TypeNS {
			return NewNSRecord(name, ttl, target), nil
		}
		return NewCNAMERecord(name, ttl, target), nil
	default:
		return nil, fmt.Errorf("%w: %s records cannot be written as text", ErrUnknownRecordType, rt)
	}
}

// RDataText renders the RDATA of r in presentation format.
func RDataText(r Record) string {
	switch v := r.(type) {
	case ARecord:
		return v.Addr.String()
	case AAAARecord:
		return v.Addr.String()
	case NSRecord:
		return v.Target.FQDN()
	case CNAMERecord:
		return v.Target.FQDN()
	case OPTRecord:
		return fmt.Sprintf("udp=%d version=%d do=%t options=%d", v.UDPPayloadSize, v.Version, v.DNSSECOk, len(v.Options))
	default:
		return ""
	}
}

// RecordText renders r as a zone-file style line.
func RecordText(r Record) string {
	h := r.Header()
	if r.Type() == TypeOPT {
		return fmt.Sprintf(". OPT %s", RDataText(r))
	}
	return fmt.Sprintf("%s\t%d\tIN\t%s\t%s", h.Name.FQDN(), h.TTL, r.Type(), RDataText(r))
}
