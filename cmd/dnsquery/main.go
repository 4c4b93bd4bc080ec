// Command dnsquery sends a single query to a DNS server and prints the
// answer, retrying over TCP when the UDP reply is truncated.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"os"
	"time"

	"github.com/xzax/axdns/internal/dns"
)

func main() {
	var (
		server   = flag.String("server", "127.0.0.1:1053", "DNS server HOST:PORT")
		name     = flag.String("name", "testing.xz.ax", "Query name")
		qtype    = flag.String("type", "A", "Query type (A, AAAA, NS, CNAME)")
		timeout  = flag.Duration("timeout", 2*time.Second, "Timeout")
		useTCP   = flag.Bool("tcp", false, "Query over TCP only")
		noRetry  = flag.Bool("no-tcp-retry", false, "Do not retry truncated UDP answers over TCP")
		recvSize = flag.Int("recv-size", 2048, "UDP receive buffer size")
		quiet    = flag.Bool("quiet", false, "Suppress output (exit status indicates success)")
	)
	flag.Parse()

	fail := func(err error) {
		if !*quiet {
			fmt.Fprintf(os.Stderr, "dnsquery error: %v\n", err)
		}
		os.Exit(1)
	}

	query, err := buildQuery(*name, *qtype)
	if err != nil {
		fail(err)
	}

	var resp []byte
	if *useTCP {
		resp, err = queryTCP(*server, query, *timeout)
	} else {
		resp, err = queryUDP(*server, query, *timeout, *recvSize)
		if err == nil && dns.IsTruncated(resp) && !*noRetry {
			resp, err = queryTCP(*server, query, *timeout)
		}
	}
	if err != nil {
		fail(err)
	}
	if *quiet {
		return
	}

	m, err := dns.ParseMessage(resp)
	if err != nil {
		fmt.Printf("received %d bytes (unparseable: %v)\n", len(resp), err)
		return
	}
	h := m.Header()
	fmt.Printf("id=%d rcode=%s aa=%t tc=%t answers=%d authorities=%d additionals=%d size=%d\n",
		h.ID, h.RCode(), h.Authoritative(), dns.IsTruncated(resp),
		len(m.Answers()), len(m.Authorities()), len(m.Additionals()), len(resp))
	for _, rr := range m.Answers() {
		fmt.Println(dns.RecordText(rr))
	}
}

func buildQuery(name, qtype string) ([]byte, error) {
	qname, err := dns.NewName(name)
	if err != nil {
		return nil, err
	}
	rt, err := dns.ParseRecordType(qtype)
	if err != nil {
		return nil, err
	}
	h := dns.Header{
		ID:      uint16(rand.N(1 << 16)), //nolint:gosec // transaction IDs need not be secret
		Flags:   dns.Flags{RecursionDesired: true}.Pack(),
		QDCount: 1,
	}
	m, err := dns.NewMessage(h, []dns.Question{dns.NewQuestion(qname, rt)}, nil, nil, nil)
	if err != nil {
		return nil, err
	}
	return m.Marshal()
}

func queryUDP(server string, query []byte, timeout time.Duration, recvSize int) ([]byte, error) {
	c, err := net.DialTimeout("udp", server, timeout)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	_ = c.SetDeadline(time.Now().Add(timeout))
	if _, err := c.Write(query); err != nil {
		return nil, err
	}
	buf := make([]byte, recvSize)
	n, err := c.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func queryTCP(server string, query []byte, timeout time.Duration) ([]byte, error) {
	c, err := net.DialTimeout("tcp", server, timeout)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	_ = c.SetDeadline(time.Now().Add(timeout))
	frame := binary.BigEndian.AppendUint16(make([]byte, 0, 2+len(query)), uint16(len(query))) //nolint:gosec // queries are small
	if _, err := c.Write(append(frame, query...)); err != nil {
		return nil, err
	}
	var lenBuf [2]byte
	if _, err := io.ReadFull(c, lenBuf[:]); err != nil {
		return nil, err
	}
	resp := make([]byte, binary.BigEndian.Uint16(lenBuf[:]))
	if _, err := io.ReadFull(c, resp); err != nil {
		return nil, err
	}
	return resp, nil
}
