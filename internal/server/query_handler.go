// Package server implements DNS protocol servers for UDP and TCP.
package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/xzax/axdns/internal/dns"
	"github.com/xzax/axdns/internal/resolvers"
)

// DefaultQueryTimeout bounds a single resolution when QueryHandler.Timeout
// is not set.
const DefaultQueryTimeout = 2 * time.Second

// Response sources reported in HandleResult.Source besides the resolver's own.
const (
	SourceParseError = "parse-error" // header unreadable, nothing sent
	SourceMalformed  = "malformed"   // body rejected, SERVFAIL sent
	SourceServfail   = "servfail"    // resolver or encoder failed
	SourceTimeout    = "timeout"
	SourceShutdown   = "shutdown"
)

// QueryHandler turns raw request bytes into raw response bytes for one
// transport.
type QueryHandler struct {
	Logger   *slog.Logger       // Optional logger for debug output
	Resolver resolvers.Resolver // Answers parsed queries
	Timeout  time.Duration      // Maximum time for one resolution
	Stats    *DNSStats          // Optional counters for the stats endpoint
	Metrics  *Metrics           // Optional Prometheus metrics
}

// HandleResult contains the outcome of query processing.
type HandleResult struct {
	ResponseBytes []byte    // Serialized response; nil means send nothing
	Source        string    // Origin of the response
	RCode         dns.RCode // Response code that was sent
	Truncated     bool      // UDP response was cut to 512 bytes
}

// Handle processes one request received over transport from src.
//
// A request whose header cannot be read is dropped. Any other failure,
// including a malformed body, a resolver error or a timeout, produces a
// SERVFAIL that echoes the request ID. UDP responses are cut to 512 bytes
// with TC set; TCP responses are sent whole.
func (h *QueryHandler) Handle(ctx context.Context, transport string, src string, reqBytes []byte) HandleResult {
	start := time.Now()
	h.Stats.RecordQuery(transport)
	h.Metrics.observeQuery(transport)

	req, hdr, ok, err := dns.ParseRequest(reqBytes)
	if !ok {
		h.Stats.RecordMalformed()
		h.Metrics.observeMalformed(transport)
		h.logDebug(ctx, "dropping unreadable request", "transport", transport, "src", src, "bytes", len(reqBytes), "err", err)
		return HandleResult{Source: SourceParseError}
	}

	var (
		resp   dns.Message
		source string
	)
	if err != nil {
		resp = dns.ErrorResponseFromHeader(hdr, dns.RCodeServFail)
		source = SourceMalformed
		h.logDebug(ctx, "rejecting malformed request", "transport", transport, "src", src, "id", int(hdr.ID), "err", err)
	} else {
		resp, source = h.resolveWithTimeout(ctx, req)
	}

	out, truncated := h.encode(ctx, transport, req, hdr, resp)
	if out == nil {
		return HandleResult{Source: SourceServfail}
	}
	rcode := dns.RCodeFromFlags(uint16(out[2])<<8 | uint16(out[3]))
	if rcode != resp.Header().RCode() {
		source = SourceServfail
	}

	took := time.Since(start)
	h.Stats.RecordResponse(rcode, truncated, took)
	h.Metrics.observeResponse(transport, rcode, truncated, took)
	h.logRequest(ctx, transport, src, hdr, req, len(reqBytes), len(out), source, rcode)

	return HandleResult{ResponseBytes: out, Source: source, RCode: rcode, Truncated: truncated}
}

// resolveWithTimeout runs the resolver in a goroutine and waits for it,
// the timeout, or cancellation. Everything but a successful result becomes
// SERVFAIL.
func (h *QueryHandler) resolveWithTimeout(ctx context.Context, req dns.Message) (dns.Message, string) {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		res resolvers.Result
		err error
	}
	resCh := make(chan outcome, 1)
	go func() {
		res, err := h.Resolver.Resolve(rctx, req)
		resCh <- outcome{res: res, err: err}
	}()

	select {
	case <-ctx.Done():
		return dns.ServerFailure(req), SourceShutdown
	case <-rctx.Done():
		return dns.ServerFailure(req), SourceTimeout
	case o := <-resCh:
		if o.err != nil {
			if h.Logger != nil {
				h.Logger.WarnContext(ctx, "resolution failed", "id", int(req.Header().ID), "err", o.err)
			}
			return dns.ServerFailure(req), SourceServfail
		}
		return o.res.Response, o.res.Source
	}
}

// encode serializes resp for transport. If resp cannot be encoded the
// request is answered with SERVFAIL instead.
func (h *QueryHandler) encode(ctx context.Context, transport string, req dns.Message, hdr dns.Header, resp dns.Message) ([]byte, bool) {
	b, truncated, err := marshalFor(transport, resp)
	if err == nil {
		return b, truncated
	}
	if h.Logger != nil {
		h.Logger.WarnContext(ctx, "failed to encode response", "id", int(hdr.ID), "err", err)
	}
	fallback := dns.ServerFailure(req)
	if len(req.Questions()) == 0 {
		fallback = dns.ErrorResponseFromHeader(hdr, dns.RCodeServFail)
	}
	b, truncated, err = marshalFor(transport, fallback)
	if err != nil {
		return nil, false
	}
	return b, truncated
}

func marshalFor(transport string, m dns.Message) ([]byte, bool, error) {
	if transport == TransportUDP {
		b, err := m.MarshalTruncated()
		return b, err == nil && m.NeedsTruncation(), err
	}
	b, err := m.Marshal()
	return b, false, err
}

func (h *QueryHandler) logDebug(ctx context.Context, msg string, args ...any) {
	if h.Logger == nil || !h.Logger.Enabled(ctx, slog.LevelDebug) {
		return
	}
	h.Logger.DebugContext(ctx, msg, args...)
}

// logRequest logs DNS request details at debug level.
func (h *QueryHandler) logRequest(
	ctx context.Context,
	transport, src string,
	hdr dns.Header,
	req dns.Message,
	reqLen, respLen int,
	source string,
	rcode dns.RCode,
) {
	if h.Logger == nil || !h.Logger.Enabled(ctx, slog.LevelDebug) {
		return
	}
	qname, qtype := "<no-question>", ""
	if qs := req.Questions(); len(qs) > 0 {
		qname, qtype = qs[0].Name.String(), qs[0].Type.String()
	}
	h.Logger.DebugContext(ctx,
		"dns request",
		"transport", transport,
		"src", src,
		"id", int(hdr.ID),
		"qname", qname,
		"qtype", qtype,
		"bytes", reqLen,
		"resp_bytes", respLen,
		"source", source,
		"rcode", rcode.String(),
	)
}
