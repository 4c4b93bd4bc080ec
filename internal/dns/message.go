package dns

import (
	"encoding/binary"
	"fmt"
	"slices"

	"github.com/xzax/axdns/internal/helpers"
)

// MaxUDPMessageSize is the largest response sent over plain UDP (RFC 1035 §4.2.1).
const MaxUDPMessageSize = 512

// Message is a complete DNS message (RFC 1035 Section 4.1).
//
// Messages are immutable once built: NewMessage and ParseMessage copy their
// inputs and every accessor returns a copy. The header section counts always
// equal the lengths of the sections.
type Message struct {
	header      Header
	questions   []Question
	answers     []Record
	authorities []Record
	additionals []Record
}

// NewMessage builds a message, rejecting a header whose counts disagree
// with the given sections.
func NewMessage(h Header, questions []Question, answers, authorities, additionals []Record) (Message, error) {
	switch {
	case int(h.QDCount) != len(questions):
		return Message{}, fmt.Errorf("%w: QDCOUNT %d but %d questions", ErrMalformedMessage, h.QDCount, len(questions))
	case int(h.ANCount) != len(answers):
		return Message{}, fmt.Errorf("%w: ANCOUNT %d but %d answers", ErrMalformedMessage, h.ANCount, len(answers))
	case int(h.NSCount) != len(authorities):
		return Message{}, fmt.Errorf("%w: NSCOUNT %d but %d authorities", ErrMalformedMessage, h.NSCount, len(authorities))
	case int(h.ARCount) != len(additionals):
		return Message{}, fmt.Errorf("%w: ARCOUNT %d but %d additionals", ErrMalformedMessage, h.ARCount, len(additionals))
	}
	return Message{
		header:      h,
		questions:   slices.Clone(questions),
		answers:     slices.Clone(answers),
		authorities: slices.Clone(authorities),
		additionals: slices.Clone(additionals),
	}, nil
}

// Header returns the message header.
func (m Message) Header() Header { return m.header }

// Questions returns a copy of the question section.
func (m Message) Questions() []Question { return slices.Clone(m.questions) }

// Answers returns a copy of the answer section.
func (m Message) Answers() []Record { return slices.Clone(m.answers) }

// Authorities returns a copy of the authority section.
func (m Message) Authorities() []Record { return slices.Clone(m.authorities) }

// Additionals returns a copy of the additional section.
func (m Message) Additionals() []Record { return slices.Clone(m.additionals) }

// WireLength returns the size of the uncompressed encoding.
func (m Message) WireLength() int {
	n := HeaderSize
	for _, q := range m.questions {
		n += q.WireLength()
	}
	for _, section := range [][]Record{m.answers, m.authorities, m.additionals} {
		for _, r := range section {
			n += RecordWireLength(r)
		}
	}
	return n
}

// Marshal encodes the header followed by each section in order.
func (m Message) Marshal() ([]byte, error) {
	b := m.header.appendTo(make([]byte, 0, m.WireLength()))
	for _, q := range m.questions {
		b = q.appendTo(b)
	}
	var err error
	for _, section := range [][]Record{m.answers, m.authorities, m.additionals} {
		for _, r := range section {
			if b, err = AppendRecord(b, r); err != nil {
				return nil, err
			}
		}
	}
	return b, nil
}

// NeedsTruncation reports whether the encoding exceeds MaxUDPMessageSize.
func (m Message) NeedsTruncation() bool {
	return m.WireLength() > MaxUDPMessageSize
}

// MarshalTruncated encodes m for plain UDP. An encoding longer than
// MaxUDPMessageSize gets the TC flag set and is cut to exactly that many
// bytes, which may split a record. Shorter encodings are returned as is.
func (m Message) MarshalTruncated() ([]byte, error) {
	b, err := m.Marshal()
	if err != nil {
		return nil, err
	}
	if len(b) <= MaxUDPMessageSize {
		return b, nil
	}
	flags := binary.BigEndian.Uint16(b[2:4]) | TCFlag
	binary.BigEndian.PutUint16(b[2:4], flags)
	return b[:MaxUDPMessageSize], nil
}

// ParseMessage decodes a complete message. Every section is parsed and the
// buffer must hold at least as many entries as the header announces.
func ParseMessage(msg []byte) (Message, error) {
	off := 0
	h, err := ParseHeader(msg, &off)
	if err != nil {
		return Message{}, err
	}

	questions := make([]Question, 0, min(int(h.QDCount), len(msg)/5))
	for range h.QDCount {
		q, err := ParseQuestion(msg, &off)
		if err != nil {
			return Message{}, fmt.Errorf("parse question: %w", err)
		}
		questions = append(questions, q)
	}

	answers, err := parseSection(msg, &off, h.ANCount)
	if err != nil {
		return Message{}, fmt.Errorf("parse answers: %w", err)
	}
	authorities, err := parseSection(msg, &off, h.NSCount)
	if err != nil {
		return Message{}, fmt.Errorf("parse authorities: %w", err)
	}
	additionals, err := parseSection(msg, &off, h.ARCount)
	if err != nil {
		return Message{}, fmt.Errorf("parse additionals: %w", err)
	}

	return Message{
		header:      h,
		questions:   questions,
		answers:     answers,
		authorities: authorities,
		additionals: additionals,
	}, nil
}

func parseSection(msg []byte, off *int, count uint16) ([]Record, error) {
	if count == 0 {
		return nil, nil
	}
	out := make([]Record, 0, min(int(count), len(msg)/11))
	for range count {
		r, err := ParseRecord(msg, off)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// MinimalAnswer builds an authoritative response to req: ID, opcode and
// questions are echoed, AA is set, TC/RD/RA are clear and RCODE is NOERROR.
func MinimalAnswer(req Message, answers, authorities, additionals []Record) (Message, error) {
	h := Header{
		ID: req.header.ID,
		Flags: Flags{
			Response:      true,
			Opcode:        req.header.Opcode(),
			Authoritative: true,
		}.Pack(),
		QDCount: helpers.ClampIntToUint16(len(req.questions)),
		ANCount: helpers.ClampIntToUint16(len(answers)),
		NSCount: helpers.ClampIntToUint16(len(authorities)),
		ARCount: helpers.ClampIntToUint16(len(additionals)),
	}
	return NewMessage(h, req.questions, answers, authorities, additionals)
}

// ServerFailure builds a SERVFAIL response to req that echoes its ID,
// opcode and questions and carries no records.
func ServerFailure(req Message) Message {
	return errorResponse(req.header, req.questions, RCodeServFail)
}

// ErrorResponseFromHeader answers a request whose body could not be parsed.
// Only the header survives, so the response has no question section.
func ErrorResponseFromHeader(reqHeader Header, rcode RCode) Message {
	return errorResponse(reqHeader, nil, rcode)
}

func errorResponse(reqHeader Header, questions []Question, rcode RCode) Message {
	return Message{
		header: Header{
			ID: reqHeader.ID,
			Flags: Flags{
				Response:      true,
				Opcode:        reqHeader.Opcode(),
				Authoritative: true,
				RCode:         rcode,
			}.Pack(),
			QDCount: uint16(len(questions)),
		},
		questions: slices.Clone(questions),
	}
}
