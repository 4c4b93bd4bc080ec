package dns

import (
	"encoding/binary"
	"fmt"
)

// Question represents a DNS question section entry (RFC 1035 Section 4.1.2).
//
// Each question specifies what the client is asking for:
//   - Name: The domain name being queried
//   - Type: The record type requested
//   - Class: Usually ClassIN (Internet)
type Question struct {
	Name  Name
	Type  RecordType
	Class uint16
}

// NewQuestion returns an IN-class question.
func NewQuestion(name Name, rt RecordType) Question {
	return Question{Name: name, Type: rt, Class: uint16(ClassIN)}
}

// WireLength returns the encoded size of q.
func (q Question) WireLength() int {
	return q.Name.WireLength() + 4
}

// Marshal serializes the question to DNS wire format.
func (q Question) Marshal() []byte {
	return q.appendTo(make([]byte, 0, q.WireLength()))
}

func (q Question) appendTo(b []byte) []byte {
	b = q.Name.AppendWire(b)
	b = binary.BigEndian.AppendUint16(b, uint16(q.Type))
	return binary.BigEndian.AppendUint16(b, q.Class)
}

// ParseQuestion parses a question from the message at the given offset.
// It advances *off past the parsed question on success. Type codes outside
// the supported set fail with ErrUnknownRecordType.
func ParseQuestion(msg []byte, off *int) (Question, error) {
	if *off < 0 || *off > len(msg) {
		return Question{}, fmt.Errorf("%w: question offset out of range", ErrMalformedMessage)
	}
	name, n, err := DecodeName(msg[*off:], msg)
	if err != nil {
		return Question{}, err
	}
	pos := *off + n
	if pos+4 > len(msg) {
		return Question{}, fmt.Errorf("%w: unexpected EOF while reading DNS question", ErrMalformedMessage)
	}
	q := Question{
		Name:  name,
		Type:  RecordType(binary.BigEndian.Uint16(msg[pos : pos+2])),
		Class: binary.BigEndian.Uint16(msg[pos+2 : pos+4]),
	}
	if !q.Type.Known() {
		return Question{}, fmt.Errorf("%w: question type %d", ErrUnknownRecordType, uint16(q.Type))
	}
	*off = pos + 4
	return q, nil
}
