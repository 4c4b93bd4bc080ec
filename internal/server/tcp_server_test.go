package server

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xzax/axdns/internal/dns"
)

func TestTCPServer_remoteIPString(t *testing.T) {
	tests := []struct {
		name     string
		addr     net.Addr
		expected string
	}{
		{
			name:     "TCP address",
			addr:     &net.TCPAddr{IP: net.ParseIP("192.168.1.1"), Port: 12345},
			expected: "192.168.1.1",
		},
		{
			name:     "IPv6 TCP address",
			addr:     &net.TCPAddr{IP: net.ParseIP("::1"), Port: 12345},
			expected: "::1",
		},
		{
			name:     "nil address",
			addr:     nil,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, remoteIPString(tt.addr))
		})
	}
}

func TestTCPServer_trackEnforcesPerIPLimit(t *testing.T) {
	s := &TCPServer{MaxConnsPerIP: 2, conns: map[net.Conn]struct{}{}, connPerIP: map[string]int{}}
	ip := "192.168.1.1"

	c1, p1 := net.Pipe()
	c2, p2 := net.Pipe()
	c3, p3 := net.Pipe()
	for _, c := range []net.Conn{c1, p1, c2, p2, c3, p3} {
		t.Cleanup(func() { _ = c.Close() })
	}

	assert.True(t, s.track(c1, ip))
	assert.True(t, s.track(c2, ip))
	assert.False(t, s.track(c3, ip), "should not exceed max connections per IP")
	assert.True(t, s.track(c3, "192.168.1.2"), "other IPs have their own budget")

	s.untrack(c1, ip)
	assert.True(t, s.track(c1, ip), "released slot can be reused")

	s.untrack(c1, ip)
	s.untrack(c2, ip)
	assert.NotContains(t, s.connPerIP, ip, "zero counts are removed")
	assert.Len(t, s.conns, 1)
}

func TestReadWriteMessage(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	payload := []byte{0x12, 0x34, 0x01, 0x00, 0x00, 0x01}
	go func() { assert.True(t, writeMessage(client, payload)) }()

	got, ok := readMessage(server, time.Second)
	require.True(t, ok)
	assert.Equal(t, payload, got)
}

func TestReadMessage_ZeroLengthFrame(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() { _, _ = client.Write([]byte{0, 0}) }()

	got, ok := readMessage(server, time.Second)
	assert.True(t, ok)
	assert.Empty(t, got)
}

func TestReadMessage_ShortBody(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	go func() {
		_, _ = client.Write([]byte{0, 10, 1, 2, 3})
		_ = client.Close()
	}()

	_, ok := readMessage(server, time.Second)
	assert.False(t, ok)
}

func TestReadMessage_IdleTimeout(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	start := time.Now()
	_, ok := readMessage(server, 20*time.Millisecond)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), time.Second)
}

func TestWriteMessage_RejectsOversized(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	assert.False(t, writeMessage(client, make([]byte, maxTCPMessageSize+1)))
}

// startTCP serves srv on an ephemeral loopback port until the test ends.
func startTCP(t *testing.T, srv *TCPServer) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-errCh:
			assert.NoError(t, err)
		case <-time.After(3 * time.Second):
			t.Error("tcp server did not stop")
		}
	})
	return ln.Addr().String()
}

// sendFrame writes a length-prefixed query and reads the framed reply.
func sendFrame(t *testing.T, conn net.Conn, query []byte) ([]byte, error) {
	t.Helper()
	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))
	frame := binary.BigEndian.AppendUint16(nil, uint16(len(query)))
	if _, err := conn.Write(append(frame, query...)); err != nil {
		return nil, err
	}

	var lenBuf [2]byte
	if _, err := io.ReadFull(conn, lenBuf[:]); err != nil {
		return nil, err
	}
	resp := make([]byte, binary.BigEndian.Uint16(lenBuf[:]))
	if _, err := io.ReadFull(conn, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func TestTCPServer_AnswersSequentialQueries(t *testing.T) {
	stats := NewDNSStats()
	h := &QueryHandler{Resolver: answering(manyA(t, "www.test.local", 1)...), Stats: stats}
	addr := startTCP(t, &TCPServer{Handler: h})

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	for _, id := range []uint16{10, 11, 12} {
		b, err := sendFrame(t, conn, buildQuery(t, id, "www.test.local", dns.TypeA))
		require.NoError(t, err)
		resp := parseResponse(t, b)
		assert.Equal(t, id, resp.Header().ID)
		assert.Len(t, resp.Answers(), 1)
	}
	assert.Equal(t, uint64(3), stats.Snapshot().QueriesTCP)
}

func TestTCPServer_DoesNotTruncate(t *testing.T) {
	h := &QueryHandler{Resolver: answering(manyA(t, "big.test.local", 40)...)}
	addr := startTCP(t, &TCPServer{Handler: h})

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	b, err := sendFrame(t, conn, buildQuery(t, 1, "big.test.local", dns.TypeA))
	require.NoError(t, err)
	assert.Greater(t, len(b), 512)
	assert.False(t, dns.IsTruncated(b))
	assert.Len(t, parseResponse(t, b).Answers(), 40)
}

func TestTCPServer_ClosesAfterQueryLimit(t *testing.T) {
	h := &QueryHandler{Resolver: answering()}
	addr := startTCP(t, &TCPServer{Handler: h, MaxQueriesPerConn: 1})

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = sendFrame(t, conn, buildQuery(t, 1, "example.org", dns.TypeA))
	require.NoError(t, err)

	_, err = sendFrame(t, conn, buildQuery(t, 2, "example.org", dns.TypeA))
	assert.Error(t, err, "connection should be closed after the query limit")
}

// flakyListener fails its first Accept with a non-timeout error.
type flakyListener struct {
	net.Listener
	failed atomic.Bool
}

func (l *flakyListener) Accept() (net.Conn, error) {
	if l.failed.CompareAndSwap(false, true) {
		return nil, errors.New("accept: too many open files")
	}
	return l.Listener.Accept()
}

func TestTCPServer_KeepsAcceptingAfterTransientError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	flaky := &flakyListener{Listener: ln}

	srv := &TCPServer{Handler: &QueryHandler{Resolver: answering(manyA(t, "www.test.local", 1)...)}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx, flaky) }()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	b, err := sendFrame(t, conn, buildQuery(t, 7, "www.test.local", dns.TypeA))
	require.NoError(t, err)
	assert.True(t, flaky.failed.Load())
	assert.Equal(t, uint16(7), parseResponse(t, b).Header().ID)

	select {
	case err := <-errCh:
		t.Fatalf("Serve returned while running: %v", err)
	default:
	}

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestTCPServer_ShutdownClosesConnections(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := &TCPServer{Handler: &QueryHandler{Resolver: answering()}, IdleTimeout: time.Minute}
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx, ln) }()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	_, err = sendFrame(t, conn, buildQuery(t, 1, "example.org", dns.TypeA))
	require.NoError(t, err)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, err = conn.Read(make([]byte, 1))
	assert.Error(t, err, "idle connection should be closed on shutdown")
}
