package dns

import (
	"fmt"
)

// Limits for incoming DNS messages to prevent resource exhaustion attacks.
const (
	MaxIncomingDNSMessageSize = 4096 // Maximum size of incoming DNS message
	MaxQuestions              = 4    // Maximum questions per query
	MaxRRPerSection           = 100  // Maximum resource records per section
	MaxTotalRR                = 200  // Maximum total resource records
)

// ParseRequest parses a DNS request with bounds checking.
//
// Returns an error if:
//   - Message exceeds MaxIncomingDNSMessageSize
//   - QR flag is set (packet is a response, not a query)
//   - Opcode is not QUERY
//   - Question or RR counts exceed limits
//   - Any section fails to parse
//
// The returned header is valid whenever the message was at least
// HeaderSize bytes long, so callers can still answer with an error
// response. ok is false when not even the header could be read.
func ParseRequest(msg []byte) (req Message, h Header, ok bool, err error) {
	off := 0
	h, err = ParseHeader(msg, &off)
	if err != nil {
		return Message{}, Header{}, false, err
	}
	if len(msg) > MaxIncomingDNSMessageSize {
		return Message{}, h, true, fmt.Errorf("%w: message of %d bytes exceeds %d", ErrMalformedMessage, len(msg), MaxIncomingDNSMessageSize)
	}
	if h.IsResponse() {
		return Message{}, h, true, fmt.Errorf("%w: QR flag set (response packet received)", ErrMalformedMessage)
	}
	if opcode := h.Opcode(); opcode != OpcodeQuery {
		return Message{}, h, true, fmt.Errorf("%w: unsupported opcode %d", ErrMalformedMessage, opcode)
	}
	if err := validateSectionCounts(h); err != nil {
		return Message{}, h, true, err
	}
	req, err = ParseMessage(msg)
	if err != nil {
		return Message{}, h, true, err
	}
	return req, h, true, nil
}

// validateSectionCounts checks that section counts don't exceed limits.
func validateSectionCounts(h Header) error {
	qd := int(h.QDCount)
	an := int(h.ANCount)
	ns := int(h.NSCount)
	ar := int(h.ARCount)

	if qd == 0 {
		return fmt.Errorf("%w: no questions", ErrMalformedMessage)
	}
	if qd > MaxQuestions {
		return fmt.Errorf("%w: too many questions (%d)", ErrMalformedMessage, qd)
	}
	if an > MaxRRPerSection || ns > MaxRRPerSection || ar > MaxRRPerSection {
		return fmt.Errorf("%w: too many resource records", ErrMalformedMessage)
	}
	if an+ns+ar > MaxTotalRR {
		return fmt.Errorf("%w: too many total resource records", ErrMalformedMessage)
	}
	return nil
}
