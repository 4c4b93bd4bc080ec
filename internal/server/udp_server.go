package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/xzax/axdns/internal/dns"
	"github.com/xzax/axdns/internal/pool"
)

// DefaultShutdownTimeout bounds how long a server waits for in-flight
// handlers once its context is cancelled.
const DefaultShutdownTimeout = 5 * time.Second

// datagramPool holds receive buffers one byte larger than the largest
// accepted request, so oversized datagrams are seen as such rather than
// silently cut.
var datagramPool = pool.New(func() *[]byte {
	buf := make([]byte, dns.MaxIncomingDNSMessageSize+1)
	return &buf
})

// UDPServer handles DNS queries over UDP.
//
// One goroutine reads the socket. Each datagram is handed to its own
// handler goroutine; when MaxConcurrency handlers are already running the
// datagram is dropped so the read loop never blocks. Responses longer than
// 512 bytes are cut and flagged TC.
type UDPServer struct {
	Logger          *slog.Logger  // Optional logger
	Handler         *QueryHandler // Query processor
	Limiter         *RateLimiter  // Optional per-source rate limiter
	MaxConcurrency  int           // Maximum concurrent handlers (default 1024)
	ShutdownTimeout time.Duration // Wait for in-flight handlers (default 5s)

	mu   sync.Mutex
	conn *net.UDPConn
	wg   sync.WaitGroup
	sem  chan struct{}
}

// Run listens on addr and serves until ctx is cancelled.
func (s *UDPServer) Run(ctx context.Context, addr string) error {
	conn, err := listenUDPReusePort(ctx, addr)
	if err != nil {
		return err
	}
	return s.RunOnConn(ctx, conn)
}

// RunOnConn serves on an existing socket until ctx is cancelled, then
// closes the socket and waits for in-flight handlers.
func (s *UDPServer) RunOnConn(ctx context.Context, conn *net.UDPConn) error {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	maxConc := s.MaxConcurrency
	if maxConc <= 0 {
		maxConc = 1024
	}
	s.sem = make(chan struct{}, maxConc)

	// Closing the socket is what unblocks ReadFromUDPAddrPort on shutdown.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		bufPtr := datagramPool.Get()
		n, peer, err := conn.ReadFromUDPAddrPort(*bufPtr)
		if err != nil {
			datagramPool.Put(bufPtr)
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			if s.Logger != nil {
				s.Logger.Warn("udp read failed", "err", err)
			}
			continue
		}

		if !s.admit(peer.Addr()) {
			datagramPool.Put(bufPtr)
			continue
		}

		s.wg.Go(func() {
			defer func() { <-s.sem }()
			defer datagramPool.Put(bufPtr)
			s.handlePacket(ctx, conn, (*bufPtr)[:n], peer)
		})
	}

	_ = conn.Close()
	return s.wait(s.ShutdownTimeout)
}

// admit applies rate limiting and takes a concurrency slot. It never blocks.
func (s *UDPServer) admit(src netip.Addr) bool {
	if s.Limiter != nil && !s.Limiter.AllowAddr(src) {
		s.dropped("rate_limit")
		return false
	}
	select {
	case s.sem <- struct{}{}:
		return true
	default:
		s.dropped("concurrency")
		return false
	}
}

func (s *UDPServer) dropped(reason string) {
	if s.Handler == nil {
		return
	}
	s.Handler.Stats.RecordDropped()
	s.Handler.Metrics.observeDropped(reason)
}

// handlePacket answers a single datagram.
func (s *UDPServer) handlePacket(ctx context.Context, conn *net.UDPConn, payload []byte, peer netip.AddrPort) {
	if s.Handler == nil {
		return
	}
	res := s.Handler.Handle(ctx, TransportUDP, peer.String(), payload)
	if len(res.ResponseBytes) == 0 {
		return
	}
	if _, err := conn.WriteToUDPAddrPort(res.ResponseBytes, peer); err != nil && s.Logger != nil && ctx.Err() == nil {
		s.Logger.Debug("udp write failed", "peer", peer.String(), "err", err)
	}
}

// LocalAddr returns the bound socket address, or nil before Run.
func (s *UDPServer) LocalAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Stop closes the socket and waits up to timeout for in-flight handlers.
func (s *UDPServer) Stop(timeout time.Duration) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	return s.wait(timeout)
}

func (s *UDPServer) wait(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}
	if !waitTimeout(&s.wg, timeout) {
		return errors.New("udp server: timeout waiting for in-flight requests")
	}
	return nil
}

// waitTimeout waits for wg and reports whether it finished within timeout.
func waitTimeout(wg *sync.WaitGroup, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// listenUDPReusePort binds a UDP socket with SO_REUSEPORT so several
// processes or sockets can share addr.
func listenUDPReusePort(ctx context.Context, addr string) (*net.UDPConn, error) {
	lc := net.ListenConfig{Control: reusePort}
	pc, err := lc.ListenPacket(ctx, "udp", addr)
	if err != nil {
		return nil, err
	}
	return pc.(*net.UDPConn), nil
}

func reusePort(_, _ string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
