package resolvers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xzax/axdns/internal/dns"
	"github.com/xzax/axdns/internal/repository"
)

// SourceAuthoritative labels results produced from the record repository.
const SourceAuthoritative = "authoritative"

// Authoritative answers queries from a record repository.
//
// For each question the direct matches are returned first. When there are
// none and the question is not itself for a CNAME, every alias owned by the
// name is followed one hop: the CNAME goes into the answer section followed
// by the target's records of the queried type. Longer chains are not
// followed and no glue is added.
//
// Responses are authoritative, never recursive, and always NOERROR; a name
// with no data yields an empty answer section.
type Authoritative struct {
	records repository.Reader
	logger  *slog.Logger
}

// NewAuthoritative creates a resolver over records. A nil logger discards.
func NewAuthoritative(records repository.Reader, logger *slog.Logger) *Authoritative {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Authoritative{records: records, logger: logger}
}

// Close is a no-op; the repository is owned by the caller.
func (a *Authoritative) Close() error {
	return nil
}

// Resolve answers every question in req. Any lookup error fails the whole
// message.
func (a *Authoritative) Resolve(ctx context.Context, req dns.Message) (Result, error) {
	var answers []dns.Record
	for _, q := range req.Questions() {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		recs, err := a.answer(ctx, q)
		if err != nil {
			return Result{}, fmt.Errorf("resolve %s %s: %w", q.Name, q.Type, err)
		}
		answers = append(answers, recs...)
	}

	resp, err := dns.MinimalAnswer(req, answers, nil, nil)
	if err != nil {
		return Result{}, err
	}
	return Result{Response: resp, Source: SourceAuthoritative}, nil
}

func (a *Authoritative) answer(ctx context.Context, q dns.Question) ([]dns.Record, error) {
	direct, err := a.records.GetAllByNameAndType(ctx, q.Name, q.Type)
	if err != nil {
		return nil, err
	}
	if len(direct) > 0 || q.Type == dns.TypeCNAME {
		a.logger.Debug("direct answer", "name", q.Name.String(), "type", q.Type.String(), "count", len(direct))
		return direct, nil
	}

	chains, err := a.records.GetAllChainsByNameAndType(ctx, q.Name, q.Type)
	if err != nil {
		return nil, err
	}
	out := make([]dns.Record, 0, 2*len(chains))
	for _, ch := range chains {
		out = append(out, ch.Alias, ch.Record)
	}
	a.logger.Debug("alias answer", "name", q.Name.String(), "type", q.Type.String(), "chains", len(chains))
	return out, nil
}
