package server

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"net"
	"runtime"
	"sync"
	"time"

	"github.com/xzax/axdns/internal/pool"
)

// lenBufPool holds the 2-byte length prefixes of DNS-over-TCP frames.
var lenBufPool = pool.New(func() *[]byte {
	buf := make([]byte, 2)
	return &buf
})

// TCP server defaults.
const (
	maxTCPMessageSize        = 65535
	tcpIOTimeout             = 10 * time.Second // per frame read or write
	defaultTCPIdleTimeout    = 30 * time.Second
	defaultMaxTCPConnsPerIP  = 10
	defaultMaxQueriesPerConn = 100
	minAcceptBackoff         = 5 * time.Millisecond
	maxAcceptBackoff         = time.Second
)

// TCPServer handles DNS queries over TCP (RFC 1035 §4.2.2): every message
// is preceded by its length as a 2-byte big-endian integer.
//
// Run opens one SO_REUSEPORT listener per CPU, each with its own accept
// loop. Every connection gets a goroutine that answers its queries in
// order. Connections are capped per source address, closed after
// IdleTimeout without a query and after MaxQueriesPerConn queries.
// Responses are never truncated.
//
// Cancelling the context closes the listeners and every open connection,
// then waits (bounded) for the connection goroutines.
type TCPServer struct {
	Logger            *slog.Logger  // Optional logger
	Handler           *QueryHandler // Query processor
	IdleTimeout       time.Duration // default 30s
	MaxConnsPerIP     int           // default 10
	MaxQueriesPerConn int           // default 100
	Listeners         int           // listener sockets; default runtime.NumCPU()
	ShutdownTimeout   time.Duration // default 5s

	wg sync.WaitGroup

	mu        sync.Mutex
	listeners []net.Listener
	conns     map[net.Conn]struct{}
	connPerIP map[string]int
}

// Run listens on addr and serves until ctx is cancelled.
func (s *TCPServer) Run(ctx context.Context, addr string) error {
	count := s.Listeners
	if count <= 0 {
		count = runtime.NumCPU()
	}

	lns := make([]net.Listener, 0, count)
	for range count {
		ln, err := listenTCPReusePort(ctx, addr)
		if err != nil {
			for _, l := range lns {
				_ = l.Close()
			}
			return err
		}
		lns = append(lns, ln)
		// Siblings bind the port the first listener actually got.
		addr = ln.Addr().String()
	}
	return s.Serve(ctx, lns...)
}

// Serve accepts connections on lns until ctx is cancelled.
func (s *TCPServer) Serve(ctx context.Context, lns ...net.Listener) error {
	s.mu.Lock()
	s.listeners = append(s.listeners, lns...)
	if s.conns == nil {
		s.conns = map[net.Conn]struct{}{}
	}
	if s.connPerIP == nil {
		s.connPerIP = map[string]int{}
	}
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, s.closeAll)
	defer stop()

	var accepting sync.WaitGroup
	for _, ln := range lns {
		accepting.Go(func() { s.acceptLoop(ctx, ln) })
	}
	accepting.Wait()

	s.closeAll()
	if !waitTimeout(&s.wg, s.shutdownTimeout()) {
		return errors.New("tcp server: timeout waiting for connections")
	}
	return nil
}

// acceptLoop accepts until ctx is cancelled or ln is closed. Other accept
// errors, such as running out of file descriptors, are retried with a
// backoff doubling from 5ms to 1s.
func (s *TCPServer) acceptLoop(ctx context.Context, ln net.Listener) {
	var backoff time.Duration
	for {
		c, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			if backoff == 0 {
				backoff = minAcceptBackoff
			} else {
				backoff = min(2*backoff, maxAcceptBackoff)
			}
			if s.Logger != nil {
				s.Logger.Warn("tcp accept failed; retrying", "err", err, "backoff", backoff)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			continue
		}
		backoff = 0

		ip := remoteIPString(c.RemoteAddr())
		if !s.track(c, ip) {
			if s.Logger != nil {
				s.Logger.WarnContext(ctx, "tcp connection limit exceeded", "ip", ip)
			}
			_ = c.Close()
			continue
		}
		s.wg.Go(func() { s.handleConnection(ctx, c, ip) })
	}
}

// handleConnection answers queries on one connection until the peer
// closes it, it idles out, it reaches the query cap or ctx is cancelled.
func (s *TCPServer) handleConnection(ctx context.Context, conn net.Conn, ip string) {
	defer s.untrack(conn, ip)
	defer conn.Close()

	idle := s.IdleTimeout
	if idle <= 0 {
		idle = defaultTCPIdleTimeout
	}
	limit := s.MaxQueriesPerConn
	if limit <= 0 {
		limit = defaultMaxQueriesPerConn
	}

	for range limit {
		if ctx.Err() != nil || s.Handler == nil {
			return
		}
		msg, ok := readMessage(conn, idle)
		if !ok {
			return
		}
		if len(msg) == 0 {
			continue
		}

		res := s.Handler.Handle(ctx, TransportTCP, conn.RemoteAddr().String(), msg)
		if len(res.ResponseBytes) == 0 {
			continue
		}
		if !writeMessage(conn, res.ResponseBytes) {
			return
		}
	}
}

// readMessage reads one length-prefixed frame. The wait for the length
// prefix is bounded by idle; the body by tcpIOTimeout. A zero-length frame
// returns an empty message and ok.
func readMessage(conn net.Conn, idle time.Duration) ([]byte, bool) {
	_ = conn.SetReadDeadline(time.Now().Add(idle))
	lenBufPtr := lenBufPool.Get()
	defer lenBufPool.Put(lenBufPtr)
	if _, err := io.ReadFull(conn, *lenBufPtr); err != nil {
		return nil, false
	}
	msgLen := int(binary.BigEndian.Uint16(*lenBufPtr))
	if msgLen == 0 {
		return nil, true
	}

	_ = conn.SetReadDeadline(time.Now().Add(tcpIOTimeout))
	msg := make([]byte, msgLen)
	if _, err := io.ReadFull(conn, msg); err != nil {
		return nil, false
	}
	return msg, true
}

// writeMessage writes response with its length prefix in a single writev.
func writeMessage(conn net.Conn, response []byte) bool {
	if len(response) > maxTCPMessageSize {
		return false
	}
	_ = conn.SetWriteDeadline(time.Now().Add(tcpIOTimeout))

	lenBufPtr := lenBufPool.Get()
	defer lenBufPool.Put(lenBufPtr)
	binary.BigEndian.PutUint16(*lenBufPtr, uint16(len(response)))

	bufs := net.Buffers{*lenBufPtr, response}
	_, err := bufs.WriteTo(conn)
	return err == nil
}

// Addrs returns the addresses of the open listeners.
func (s *TCPServer) Addrs() []net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]net.Addr, 0, len(s.listeners))
	for _, ln := range s.listeners {
		out = append(out, ln.Addr())
	}
	return out
}

// Stop closes the listeners and connections and waits up to timeout for
// connection goroutines to exit.
func (s *TCPServer) Stop(timeout time.Duration) error {
	s.closeAll()
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}
	if !waitTimeout(&s.wg, timeout) {
		return errors.New("tcp server: timeout waiting for connections")
	}
	return nil
}

func (s *TCPServer) shutdownTimeout() time.Duration {
	if s.ShutdownTimeout > 0 {
		return s.ShutdownTimeout
	}
	return DefaultShutdownTimeout
}

func (s *TCPServer) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ln := range s.listeners {
		_ = ln.Close()
	}
	for c := range s.conns {
		_ = c.Close()
	}
}

// track registers conn unless ip already holds MaxConnsPerIP connections.
func (s *TCPServer) track(conn net.Conn, ip string) bool {
	limit := s.MaxConnsPerIP
	if limit <= 0 {
		limit = defaultMaxTCPConnsPerIP
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connPerIP[ip] >= limit {
		return false
	}
	s.connPerIP[ip]++
	s.conns[conn] = struct{}{}
	return true
}

func (s *TCPServer) untrack(conn net.Conn, ip string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
	if s.connPerIP[ip] <= 1 {
		delete(s.connPerIP, ip)
		return
	}
	s.connPerIP[ip]--
}

// listenTCPReusePort creates a TCP listener with SO_REUSEPORT so the kernel
// spreads connections across sibling listeners.
func listenTCPReusePort(ctx context.Context, addr string) (net.Listener, error) {
	lc := net.ListenConfig{Control: reusePort}
	return lc.Listen(ctx, "tcp", addr)
}

// remoteIPString extracts the host part of addr for per-IP accounting.
func remoteIPString(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err == nil {
		return host
	}
	return addr.String()
}
