// Package resolvers turns parsed DNS queries into responses.
//
// The only strategy is Authoritative, which answers from a record
// repository. Names it does not hold get an empty NOERROR answer; lookup
// failures surface as errors so the server can answer SERVFAIL.
package resolvers

import (
	"context"

	"github.com/xzax/axdns/internal/dns"
)

// Result holds the outcome of a DNS resolution.
type Result struct {
	Response dns.Message
	Source   string // where the answer came from, e.g. "authoritative"
}

// Resolver is the interface for DNS resolution strategies.
type Resolver interface {
	// Resolve answers every question in req or fails as a whole.
	Resolve(ctx context.Context, req dns.Message) (Result, error)

	// Close releases any resources held by the resolver.
	Close() error
}
