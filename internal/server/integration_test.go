package server_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	mdns "github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xzax/axdns/internal/config"
	"github.com/xzax/axdns/internal/dns"
	"github.com/xzax/axdns/internal/repository"
	"github.com/xzax/axdns/internal/resolvers"
	"github.com/xzax/axdns/internal/server"
)

// testingZone is the record set the server is usually seeded with.
var testingZone = []config.RecordConfig{
	{Name: "testing.xz.ax", Type: "A", TTL: 10, Value: "65.108.126.123"},
	{Name: "testing.xz.ax", Type: "AAAA", TTL: 10, Value: "2a01:4f9:6b:15ce::2"},
	{Name: "www.testing.xz.ax", Type: "CNAME", TTL: 10, Value: "testing.xz.ax"},
	{Name: "testing.xz.ax", Type: "NS", TTL: 10, Value: "ns.xz.ax"},
	{Name: "ns.xz.ax", Type: "A", TTL: 10, Value: "65.108.126.123"},
	{Name: "ns.xz.ax", Type: "AAAA", TTL: 10, Value: "2a01:4f9:6b:15ce::2"},
}

func seededStore(t *testing.T, extra ...dns.Record) *repository.Layered {
	t.Helper()
	ctx := context.Background()
	store, err := repository.NewLayered(ctx, repository.NewMemory(), repository.Options{CacheSize: 100})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := &config.Config{Records: testingZone}
	recs, err := cfg.SeedRecords()
	require.NoError(t, err)
	for _, r := range append(recs, extra...) {
		require.NoError(t, store.Insert(ctx, r))
	}
	return store
}

// serve runs UDP and TCP servers for store on loopback and returns their
// addresses.
func serve(t *testing.T, store repository.Reader) (udpAddr, tcpAddr string) {
	t.Helper()
	h := &server.QueryHandler{
		Resolver: resolvers.NewAuthoritative(store, nil),
		Timeout:  2 * time.Second,
		Stats:    server.NewDNSStats(),
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	udp := &server.UDPServer{Handler: h}
	tcp := &server.TCPServer{Handler: h}
	done := make(chan struct{}, 2)
	go func() { _ = udp.RunOnConn(ctx, conn); done <- struct{}{} }()
	go func() { _ = tcp.Serve(ctx, ln); done <- struct{}{} }()
	t.Cleanup(func() {
		cancel()
		<-done
		<-done
	})
	return conn.LocalAddr().String(), ln.Addr().String()
}

func rawUDP(t *testing.T, addr string, m *mdns.Msg) []byte {
	t.Helper()
	q, err := m.Pack()
	require.NoError(t, err)

	c, err := net.Dial("udp", addr)
	require.NoError(t, err)
	defer c.Close()
	_ = c.SetDeadline(time.Now().Add(2 * time.Second))
	_, err = c.Write(q)
	require.NoError(t, err)

	buf := make([]byte, 65535)
	n, err := c.Read(buf)
	require.NoError(t, err)
	return buf[:n]
}

func TestEndToEnd_UDPAliasAnswer(t *testing.T) {
	udpAddr, _ := serve(t, seededStore(t))

	q := new(mdns.Msg)
	q.SetQuestion("www.testing.xz.ax.", mdns.TypeA)
	b := rawUDP(t, udpAddr, q)
	assert.LessOrEqual(t, len(b), 512)

	var r mdns.Msg
	require.NoError(t, r.Unpack(b))
	assert.Equal(t, q.Id, r.Id)
	assert.True(t, r.Response)
	assert.True(t, r.Authoritative)
	assert.False(t, r.Truncated)
	assert.False(t, r.RecursionAvailable)
	assert.Equal(t, mdns.RcodeSuccess, r.Rcode)
	require.Len(t, r.Question, 1)
	assert.Equal(t, "www.testing.xz.ax.", r.Question[0].Name)

	require.Len(t, r.Answer, 2)
	cname, ok := r.Answer[0].(*mdns.CNAME)
	require.True(t, ok, "first answer should be the alias, got %T", r.Answer[0])
	assert.Equal(t, "www.testing.xz.ax.", cname.Hdr.Name)
	assert.Equal(t, "testing.xz.ax.", cname.Target)
	a, ok := r.Answer[1].(*mdns.A)
	require.True(t, ok, "second answer should be the address, got %T", r.Answer[1])
	assert.Equal(t, "testing.xz.ax.", a.Hdr.Name)
	assert.Equal(t, "65.108.126.123", a.A.String())
	assert.Equal(t, uint32(10), a.Hdr.Ttl)
}

func TestEndToEnd_TCPClient(t *testing.T) {
	_, tcpAddr := serve(t, seededStore(t))
	c := &mdns.Client{Net: "tcp", Timeout: 2 * time.Second}

	tests := []struct {
		qname string
		qtype uint16
		check func(t *testing.T, r *mdns.Msg)
	}{
		{"testing.xz.ax.", mdns.TypeAAAA, func(t *testing.T, r *mdns.Msg) {
			require.Len(t, r.Answer, 1)
			assert.Equal(t, "2a01:4f9:6b:15ce::2", r.Answer[0].(*mdns.AAAA).AAAA.String())
		}},
		{"testing.xz.ax.", mdns.TypeNS, func(t *testing.T, r *mdns.Msg) {
			require.Len(t, r.Answer, 1)
			assert.Equal(t, "ns.xz.ax.", r.Answer[0].(*mdns.NS).Ns)
			assert.Empty(t, r.Extra, "no glue records are added")
		}},
		{"www.testing.xz.ax.", mdns.TypeCNAME, func(t *testing.T, r *mdns.Msg) {
			require.Len(t, r.Answer, 1, "a CNAME question is answered without following the alias")
		}},
		{"missing.xz.ax.", mdns.TypeA, func(t *testing.T, r *mdns.Msg) {
			assert.Equal(t, mdns.RcodeSuccess, r.Rcode)
			assert.Empty(t, r.Answer)
		}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%s", tt.qname, mdns.TypeToString[tt.qtype]), func(t *testing.T) {
			q := new(mdns.Msg)
			q.SetQuestion(tt.qname, tt.qtype)
			r, _, err := c.Exchange(q, tcpAddr)
			require.NoError(t, err)
			assert.True(t, r.Authoritative)
			tt.check(t, r)
		})
	}
}

func TestEndToEnd_UDPTruncationThenTCP(t *testing.T) {
	var extra []dns.Record
	for i := range 40 {
		r, err := dns.NewARecord(dns.MustName("many.xz.ax"), 60, netip.AddrFrom4([4]byte{192, 0, 2, byte(i + 1)}))
		require.NoError(t, err)
		extra = append(extra, r)
	}
	udpAddr, tcpAddr := serve(t, seededStore(t, extra...))

	q := new(mdns.Msg)
	q.SetQuestion("many.xz.ax.", mdns.TypeA)
	b := rawUDP(t, udpAddr, q)
	assert.Len(t, b, 512)
	assert.True(t, dns.IsTruncated(b), "expected TC=1")

	c := &mdns.Client{Net: "tcp", Timeout: 2 * time.Second}
	r, _, err := c.Exchange(q, tcpAddr)
	require.NoError(t, err)
	assert.False(t, r.Truncated)
	assert.Len(t, r.Answer, 40)
}

func TestEndToEnd_StoreFailureIsServfail(t *testing.T) {
	store := seededStore(t)
	udpAddr, _ := serve(t, store)
	require.NoError(t, store.Close())

	q := new(mdns.Msg)
	q.SetQuestion("testing.xz.ax.", mdns.TypeA)
	var r mdns.Msg
	require.NoError(t, r.Unpack(rawUDP(t, udpAddr, q)))
	assert.Equal(t, mdns.RcodeServerFailure, r.Rcode)
	assert.Equal(t, q.Id, r.Id)
	assert.Empty(t, r.Answer)
}

var errProbeDone = errors.New("probe done")

func TestRunner_ServesSeededRecords(t *testing.T) {
	port := freePort(t)
	cfg := config.Default()
	cfg.Server.Addresses = []string{net.JoinHostPort("127.0.0.1", port)}
	cfg.Database.Driver = config.DriverMemory
	cfg.Records = testingZone
	require.NoError(t, cfg.Validate())

	r := server.NewRunner(nil)
	r.AddService("probe", func(ctx context.Context, env *server.Env) error {
		names, err := env.Records.GetAllNames(ctx)
		if err != nil {
			return err
		}
		assert.Len(t, names, 3)
		assert.NoError(t, env.Health(ctx))

		q := new(mdns.Msg)
		q.SetQuestion("www.testing.xz.ax.", mdns.TypeA)
		for _, network := range []string{"udp", "tcp"} {
			c := &mdns.Client{Net: network, Timeout: time.Second}
			var resp *mdns.Msg
			// Listeners start concurrently with services.
			ok := assert.Eventually(t, func() bool {
				resp, _, err = c.ExchangeContext(ctx, q, cfg.Server.Addresses[0])
				return err == nil
			}, 3*time.Second, 50*time.Millisecond, network)
			if !ok {
				return fmt.Errorf("%s exchange: %w", network, err)
			}
			assert.Len(t, resp.Answer, 2, network)
		}

		assert.GreaterOrEqual(t, env.Stats.Snapshot().ResponsesOK, uint64(2))
		mfs, err := env.Registry.Gather()
		if err != nil {
			return err
		}
		var families []string
		for _, mf := range mfs {
			families = append(families, mf.GetName())
		}
		assert.Contains(t, families, "axdns_queries_total")
		assert.Contains(t, families, "axdns_cache_hits_total")
		return errProbeDone
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := r.RunWithContext(ctx, cfg)
	require.ErrorIs(t, err, errProbeDone)
}

func TestRunner_LoadsZoneFiles(t *testing.T) {
	dir := t.TempDir()
	zoneText := "$ORIGIN example.test.\n$TTL 60\n@ A 192.0.2.10\nwww CNAME @\n@ MX 10 mail\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "example.test.zone"), []byte(zoneText), 0o600))

	cfg := config.Default()
	cfg.Server.Addresses = []string{net.JoinHostPort("127.0.0.1", freePort(t))}
	cfg.Server.EnableTCP = false
	cfg.Database.Driver = config.DriverMemory
	cfg.ZoneFiles = []string{dir}
	require.NoError(t, cfg.Validate())

	r := server.NewRunner(nil)
	r.AddService("probe", func(ctx context.Context, env *server.Env) error {
		recs, err := env.Records.GetAll(ctx)
		if err != nil {
			return err
		}
		assert.Len(t, recs, 2)
		chains, err := env.Records.GetAllChainsByNameAndType(ctx, dns.MustName("www.example.test"), dns.TypeA)
		if err != nil {
			return err
		}
		assert.Len(t, chains, 1)
		return errProbeDone
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.ErrorIs(t, r.RunWithContext(ctx, cfg), errProbeDone)
}

func TestRunner_StopsOnCancel(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Addresses = []string{net.JoinHostPort("127.0.0.1", freePort(t))}
	cfg.Database.Driver = config.DriverMemory
	require.NoError(t, cfg.Validate())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- server.NewRunner(nil).RunWithContext(ctx, cfg) }()

	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop")
	}
}

// freePort returns a port that was free for UDP and TCP on loopback a
// moment ago.
func freePort(t *testing.T) string {
	t.Helper()
	for range 10 {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		_, port, _ := net.SplitHostPort(ln.Addr().String())
		pc, err := net.ListenPacket("udp", net.JoinHostPort("127.0.0.1", port))
		_ = ln.Close()
		if err == nil {
			_ = pc.Close()
			return port
		}
	}
	t.Fatal("no free port")
	return ""
}
