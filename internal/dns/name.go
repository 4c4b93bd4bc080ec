package dns

import (
	"fmt"
	"strings"
)

// Name limits (RFC 1035 Section 2.3.4).
const (
	MaxLabelLength = 63
	MaxNameLength  = 255 // encoded, including length bytes and the terminator
)

// Name is a validated, lowercase domain name.
//
// The zero value is the root name. Names are comparable and can be used as
// map keys; two names are equal exactly when their label sequences are.
type Name struct {
	name string // dot-separated labels, no trailing dot; "" is the root
}

// Root is the root domain name.
var Root = Name{}

// NewName validates and normalizes a presentation-format domain name.
//
// Input is lowercased and a single leading and trailing dot are removed.
// "", "." and "@" denote the root. Every label must be 1-63 characters of
// [a-z0-9-] that neither starts nor ends with a hyphen, and the encoded
// name must fit in 255 bytes.
func NewName(s string) (Name, error) {
	s = strings.ToLower(s)
	if s == "@" || s == "." || s == "" {
		return Root, nil
	}
	s = strings.TrimSuffix(s, ".")
	s = strings.TrimPrefix(s, ".")
	if s == "" {
		return Name{}, fmt.Errorf("%w: empty name", ErrMalformedName)
	}
	if len(s)+2 > MaxNameLength {
		return Name{}, fmt.Errorf("%w: name too long (%d > %d bytes encoded)", ErrMalformedName, len(s)+2, MaxNameLength)
	}
	for label := range strings.SplitSeq(s, ".") {
		if err := validateLabel(label); err != nil {
			return Name{}, err
		}
	}
	return Name{name: s}, nil
}

// MustName is like NewName but panics on invalid input.
func MustName(s string) Name {
	n, err := NewName(s)
	if err != nil {
		panic(err)
	}
	return n
}

func validateLabel(label string) error {
	if label == "" {
		return fmt.Errorf("%w: empty label", ErrMalformedName)
	}
	if len(label) > MaxLabelLength {
		return fmt.Errorf("%w: label too long (%d > %d): %q", ErrMalformedName, len(label), MaxLabelLength, label)
	}
	if label[0] == '-' || label[len(label)-1] == '-' {
		return fmt.Errorf("%w: label %q starts or ends with a hyphen", ErrMalformedName, label)
	}
	for i := range len(label) {
		c := label[i]
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') && c != '-' {
			return fmt.Errorf("%w: invalid character %q in label %q", ErrMalformedName, c, label)
		}
	}
	return nil
}

// IsRoot reports whether n is the root name.
func (n Name) IsRoot() bool { return n.name == "" }

// String returns the presentation form without a trailing dot, or "." for root.
func (n Name) String() string {
	if n.name == "" {
		return "."
	}
	return n.name
}

// FQDN returns the presentation form with a trailing dot.
func (n Name) FQDN() string {
	if n.name == "" {
		return "."
	}
	return n.name + "."
}

// Labels returns the label sequence, most specific first.
func (n Name) Labels() []string {
	if n.name == "" {
		return nil
	}
	return strings.Split(n.name, ".")
}

// WireLength returns the uncompressed encoded size in bytes.
func (n Name) WireLength() int {
	if n.name == "" {
		return 1
	}
	return len(n.name) + 2
}

// MarshalText implements encoding.TextMarshaler.
func (n Name) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (n *Name) UnmarshalText(b []byte) error {
	parsed, err := NewName(string(b))
	if err != nil {
		return err
	}
	*n = parsed
	return nil
}
