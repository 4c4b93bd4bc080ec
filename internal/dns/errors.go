// Package dns provides DNS wire-format encoding and decoding for an
// authoritative responder.
//
// Standards Compliance:
//
//   - RFC 1035: Domain Names - Implementation and Specification (core DNS protocol)
//   - RFC 3596: DNS Extensions to Support IPv6 (AAAA records)
//   - RFC 6891: Extension Mechanisms for DNS (EDNS, OPT records)
//
// Type-Oriented Design:
//
// The supported record types form a closed set (ARecord, AAAARecord, NSRecord,
// CNAMERecord, OPTRecord). Decoding dispatches on the numeric type code and
// rejects anything else with ErrUnknownRecordType.
//
// Error Handling:
//
// All errors are wrapped with context using fmt.Errorf("...: %w", err) around
// one of the sentinels below, so callers can classify failures with errors.Is.
package dns

import "errors"

var (
	// ErrDNSError is the parent of every wire-format error in this package.
	ErrDNSError = errors.New("dns wire error")

	// ErrMalformedName reports an invalid label, an oversized name, a bad
	// compression pointer, or too many pointer indirections.
	ErrMalformedName = wireError("malformed domain name")

	// ErrMalformedMessage reports a truncated buffer or a header whose
	// section counts disagree with its sections.
	ErrMalformedMessage = wireError("malformed message")

	// ErrUnknownRecordType reports a type code outside the supported set.
	ErrUnknownRecordType = wireError("unknown record type")
)

type kindError struct {
	msg string
}

func wireError(msg string) error { return &kindError{msg: msg} }

func (e *kindError) Error() string { return e.msg }

// Unwrap lets errors.Is(err, ErrDNSError) match every kind.
func (e *kindError) Unwrap() error { return ErrDNSError }
