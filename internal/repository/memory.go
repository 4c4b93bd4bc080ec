package repository

import (
	"bytes"
	"context"
	"slices"
	"sync"

	"github.com/xzax/axdns/internal/dns"
)

// Memory is a Repository held entirely in process memory, in insertion
// order. Inserting a record whose owner, type and RDATA match a stored one
// replaces it, so only the TTL changes.
type Memory struct {
	mu      sync.RWMutex
	records []dns.Record
	closed  bool
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{}
}

func sameData(a, b dns.Record) bool {
	if a.Type() != b.Type() || a.Header().Name != b.Header().Name {
		return false
	}
	ad, errA := dns.EncodeRecordData(a)
	bd, errB := dns.EncodeRecordData(b)
	return errA == nil && errB == nil && bytes.Equal(ad, bd)
}

func (m *Memory) read(match func(dns.Record) bool) ([]dns.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	var out []dns.Record
	for _, r := range m.records {
		if match(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *Memory) remove(match func(dns.Record) bool) ([]dns.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	var removed []dns.Record
	m.records = slices.DeleteFunc(m.records, func(r dns.Record) bool {
		if match(r) {
			removed = append(removed, r)
			return true
		}
		return false
	})
	return removed, nil
}

func (m *Memory) Insert(_ context.Context, r dns.Record) error {
	if err := Storable(r); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	for i, existing := range m.records {
		if sameData(existing, r) {
			m.records[i] = r
			return nil
		}
	}
	m.records = append(m.records, r)
	return nil
}

func (m *Memory) Delete(_ context.Context, r dns.Record) ([]dns.Record, error) {
	return m.remove(func(x dns.Record) bool {
		return x.Header().TTL == r.Header().TTL && sameData(x, r)
	})
}

func (m *Memory) DeleteAllByType(_ context.Context, rt dns.RecordType) ([]dns.Record, error) {
	return m.remove(func(x dns.Record) bool { return x.Type() == rt })
}

func (m *Memory) DeleteAllByName(_ context.Context, name dns.Name) ([]dns.Record, error) {
	return m.remove(func(x dns.Record) bool { return x.Header().Name == name })
}

func (m *Memory) DeleteAllByNameAndType(_ context.Context, name dns.Name, rt dns.RecordType) ([]dns.Record, error) {
	return m.remove(func(x dns.Record) bool { return x.Header().Name == name && x.Type() == rt })
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.records = nil
	return nil
}

func (m *Memory) GetAll(_ context.Context) ([]dns.Record, error) {
	return m.read(func(dns.Record) bool { return true })
}

func (m *Memory) GetAllNames(_ context.Context) ([]dns.Name, error) {
	recs, err := m.read(func(dns.Record) bool { return true })
	if err != nil {
		return nil, err
	}
	seen := make(map[dns.Name]struct{}, len(recs))
	var names []dns.Name
	for _, r := range recs {
		n := r.Header().Name
		if _, ok := seen[n]; !ok {
			seen[n] = struct{}{}
			names = append(names, n)
		}
	}
	return names, nil
}

func (m *Memory) GetAllByName(_ context.Context, name dns.Name) ([]dns.Record, error) {
	return m.read(func(x dns.Record) bool { return x.Header().Name == name })
}

func (m *Memory) GetAllByNameAndType(_ context.Context, name dns.Name, rt dns.RecordType) ([]dns.Record, error) {
	return m.read(func(x dns.Record) bool { return x.Header().Name == name && x.Type() == rt })
}

func (m *Memory) GetAllByType(_ context.Context, rt dns.RecordType) ([]dns.Record, error) {
	return m.read(func(x dns.Record) bool { return x.Type() == rt })
}

func (m *Memory) GetAllChainsByNameAndType(ctx context.Context, name dns.Name, rt dns.RecordType) ([]AliasChain, error) {
	aliases, err := m.GetAllByNameAndType(ctx, name, dns.TypeCNAME)
	if err != nil {
		return nil, err
	}
	var chains []AliasChain
	for _, a := range aliases {
		alias := a.(dns.CNAMERecord)
		targets, err := m.GetAllByNameAndType(ctx, alias.Target, rt)
		if err != nil {
			return nil, err
		}
		for _, t := range targets {
			ch, err := NewAliasChain(alias, t)
			if err != nil {
				return nil, err
			}
			chains = append(chains, ch)
		}
	}
	return chains, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
