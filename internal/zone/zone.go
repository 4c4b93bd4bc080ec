// Package zone reads RFC 1035 master files into records for seeding the
// store. Only the types the server answers for (A, AAAA, NS, CNAME) are
// kept; other types are counted and skipped.
package zone

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/xzax/axdns/internal/dns"
)

// DefaultTTL applies until a $TTL directive is seen.
const DefaultTTL int32 = 3600

// ErrSyntax is returned for any malformed line.
var ErrSyntax = errors.New("zone syntax error")

type Zone struct {
	Origin  dns.Name
	Records []dns.Record
	// Skipped counts records of types the server does not store.
	Skipped int
}

func LoadFile(path string) (*Zone, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	z, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return z, nil
}

// Files expands path to the zone files it names: the path itself for a
// file, or every regular file in it (sorted) for a directory.
func Files(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			files = append(files, filepath.Join(path, e.Name()))
		}
	}
	slices.Sort(files)
	return files, nil
}

// parser holds directive state while reading a file.
type parser struct {
	origin    dns.Name
	hasOrigin bool
	ttl       int32
	lastOwner dns.Name
	hasOwner  bool
}

func Parse(r io.Reader) (*Zone, error) {
	lines, err := logicalLines(r)
	if err != nil {
		return nil, err
	}
	p := &parser{ttl: DefaultTTL}
	z := &Zone{}
	for _, l := range lines {
		rec, skipped, err := p.line(l.text)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrSyntax, l.num, err)
		}
		switch {
		case skipped:
			z.Skipped++
		case rec != nil:
			z.Records = append(z.Records, rec)
		}
	}
	z.Origin = p.origin
	return z, nil
}

// line handles one logical line: a directive, a record or a record of an
// unsupported type (skipped).
func (p *parser) line(text string) (dns.Record, bool, error) {
	fields := strings.Fields(text)
	switch strings.ToUpper(fields[0]) {
	case "$ORIGIN":
		if len(fields) != 2 {
			return nil, false, errors.New("$ORIGIN takes one name")
		}
		origin, err := dns.NewName(fields[1])
		if err != nil {
			return nil, false, err
		}
		p.origin, p.hasOrigin = origin, true
		return nil, false, nil
	case "$TTL":
		if len(fields) != 2 {
			return nil, false, errors.New("$TTL takes one value")
		}
		ttl, err := parseTTL(fields[1])
		if err != nil {
			return nil, false, err
		}
		p.ttl = ttl
		return nil, false, nil
	case "$INCLUDE", "$GENERATE":
		return nil, false, fmt.Errorf("%s is not supported", fields[0])
	}

	owner, rest, err := p.owner(text, fields)
	if err != nil {
		return nil, false, err
	}
	ttl, typ, rdata, err := p.rrFields(rest)
	if err != nil {
		return nil, false, err
	}
	rt, err := dns.ParseRecordType(typ)
	if err != nil {
		return nil, true, nil
	}

	switch rt {
	case dns.TypeA, dns.TypeAAAA:
		if len(rdata) != 1 {
			return nil, false, fmt.Errorf("%s takes one address", rt)
		}
		rec, err := dns.NewRecordFromText(owner.String(), rt, ttl, rdata[0])
		return rec, false, err
	case dns.TypeNS, dns.TypeCNAME:
		if len(rdata) != 1 {
			return nil, false, fmt.Errorf("%s takes one target name", rt)
		}
		target, err := p.name(rdata[0])
		if err != nil {
			return nil, false, err
		}
		if rt == dns.TypeNS {
			return dns.NewNSRecord(owner, ttl, target), false, nil
		}
		return dns.NewCNAMERecord(owner, ttl, target), false, nil
	default:
		return nil, true, nil
	}
}

// owner resolves the owner field. A line starting with whitespace reuses
// the previous owner.
func (p *parser) owner(text string, fields []string) (dns.Name, []string, error) {
	if text[0] == ' ' || text[0] == '\t' {
		if !p.hasOwner {
			return dns.Name{}, nil, errors.New("owner name omitted on first record")
		}
		return p.lastOwner, fields, nil
	}
	owner, err := p.name(fields[0])
	if err != nil {
		return dns.Name{}, nil, err
	}
	p.lastOwner, p.hasOwner = owner, true
	return owner, fields[1:], nil
}

// name makes s absolute: "@" is the origin, a trailing dot marks an
// absolute name, anything else is relative to the origin.
func (p *parser) name(s string) (dns.Name, error) {
	switch {
	case s == "@":
		if !p.hasOrigin {
			return dns.Name{}, errors.New("@ used before $ORIGIN")
		}
		return p.origin, nil
	case strings.HasSuffix(s, "."):
		return dns.NewName(s)
	case !p.hasOrigin || p.origin.IsRoot():
		return dns.NewName(s)
	default:
		return dns.NewName(s + "." + p.origin.String())
	}
}

// rrFields splits "[ttl] [class] type rdata..." in either order of ttl
// and class.
func (p *parser) rrFields(rest []string) (int32, string, []string, error) {
	ttl := p.ttl
	var haveTTL, haveClass bool
	i := 0
	for ; i < len(rest); i++ {
		tok := rest[i]
		if !haveTTL && looksLikeTTL(tok) {
			v, err := parseTTL(tok)
			if err != nil {
				return 0, "", nil, err
			}
			ttl, haveTTL = v, true
			continue
		}
		if !haveClass && strings.EqualFold(tok, "IN") {
			haveClass = true
			continue
		}
		if !haveClass && isOtherClass(tok) {
			return 0, "", nil, fmt.Errorf("class %s is not supported", tok)
		}
		break
	}
	if i >= len(rest) {
		return 0, "", nil, errors.New("missing record type")
	}
	if i+1 >= len(rest) {
		return 0, "", nil, errors.New("missing record data")
	}
	return ttl, strings.ToUpper(rest[i]), rest[i+1:], nil
}

func isOtherClass(tok string) bool {
	switch strings.ToUpper(tok) {
	case "CH", "CS", "HS":
		return true
	}
	return false
}

func looksLikeTTL(tok string) bool {
	return tok != "" && tok[0] >= '0' && tok[0] <= '9'
}

var ttlUnits = map[byte]int64{'s': 1, 'm': 60, 'h': 3600, 'd': 86400, 'w': 604800}

// parseTTL accepts plain seconds or BIND-style unit groups such as 1h30m.
func parseTTL(tok string) (int32, error) {
	if n, err := strconv.ParseInt(tok, 10, 32); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("negative TTL %q", tok)
		}
		return int32(n), nil
	}

	var total int64
	num := ""
	for i := range len(tok) {
		c := tok[i]
		if c >= '0' && c <= '9' {
			num += string(c)
			continue
		}
		mul, ok := ttlUnits[c|0x20]
		if !ok || num == "" {
			return 0, fmt.Errorf("invalid TTL %q", tok)
		}
		n, err := strconv.ParseInt(num, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid TTL %q", tok)
		}
		total += n * mul
		if total > 1<<31-1 {
			return 0, fmt.Errorf("TTL %q too large", tok)
		}
		num = ""
	}
	if num != "" {
		return 0, fmt.Errorf("invalid TTL %q: trailing number without unit", tok)
	}
	return int32(total), nil
}

type logicalLine struct {
	num  int
	text string
}

// logicalLines strips ';' comments and joins parenthesised continuations.
// Leading whitespace is kept on the first physical line since it marks an
// omitted owner.
func logicalLines(r io.Reader) ([]logicalLine, error) {
	var (
		out   []logicalLine
		buf   strings.Builder
		depth int
		start int
		num   int
	)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		num++
		line := sc.Text()
		if i := strings.IndexByte(line, ';'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimRight(line, " \t\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if depth == 0 {
			start = num
			buf.Reset()
		} else {
			buf.WriteByte(' ')
		}
		depth += strings.Count(line, "(") - strings.Count(line, ")")
		buf.WriteString(strings.NewReplacer("(", " ", ")", " ").Replace(line))
		if depth < 0 {
			return nil, fmt.Errorf("%w: line %d: unbalanced ')'", ErrSyntax, num)
		}
		if depth == 0 {
			out = append(out, logicalLine{num: start, text: buf.String()})
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if depth > 0 {
		return nil, fmt.Errorf("%w: line %d: unterminated '('", ErrSyntax, start)
	}
	return out, nil
}
