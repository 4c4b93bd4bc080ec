package repository

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/xzax/axdns/internal/bloom"
	"github.com/xzax/axdns/internal/dns"
)

// minFilterCapacity keeps small stores from rebuilding on every insert.
const minFilterCapacity = 1024

// Filtered consults a Bloom filter of owner names before reading from its
// delegate, answering lookups for provably absent names with no records.
//
// Reads hold the shared lock for their whole duration; writes hold the
// exclusive lock, so readers never see the filter and the store disagree.
// Inserts add the owner name to the filter, deletes rebuild it from the
// store's remaining names, and clear empties it.
type Filtered struct {
	mu       sync.RWMutex
	delegate Repository
	filter   *bloom.Filter
	rate     float64
	closed   bool
	logger   *slog.Logger

	rejected atomic.Uint64
	passed   atomic.Uint64
}

// NewFiltered wraps delegate and builds the initial filter from its names.
// rate is the target false-positive rate (see bloom.Optimal).
func NewFiltered(ctx context.Context, delegate Repository, rate float64, logger *slog.Logger) (*Filtered, error) {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Filtered{delegate: delegate, rate: rate, logger: logger}
	if err := f.resetFilter(ctx); err != nil {
		return nil, err
	}
	return f, nil
}

// FilterStats is a point-in-time view of filter usage.
type FilterStats struct {
	Rejected          uint64
	Passed            uint64
	Names             int
	Capacity          int
	FalsePositiveRate float64
}

// Stats returns how many lookups the filter rejected or let through.
func (f *Filtered) Stats() FilterStats {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return FilterStats{
		Rejected:          f.rejected.Load(),
		Passed:            f.passed.Load(),
		Names:             f.filter.Count(),
		Capacity:          f.filter.Capacity(),
		FalsePositiveRate: f.filter.EstimatedFalsePositiveRate(),
	}
}

// ResetFilter rebuilds the filter from the delegate's current names.
func (f *Filtered) ResetFilter(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	return f.resetFilter(ctx)
}

// resetFilter swaps in a fresh filter; on failure the old one stays, which
// is still a superset of the stored names. Callers hold the write lock.
func (f *Filtered) resetFilter(ctx context.Context) error {
	names, err := f.delegate.GetAllNames(ctx)
	if err != nil {
		return fmt.Errorf("rebuild name filter: %w", err)
	}
	next := bloom.Optimal(max(2*len(names), minFilterCapacity), f.rate)
	for _, n := range names {
		next.Add(n.String())
	}
	f.filter = next
	f.logger.Debug("name filter rebuilt", "names", len(names), "bits", next.NumBits(), "hashes", next.NumHashes())
	return nil
}

// absent reports whether name is certainly not stored. Callers hold a lock.
func (f *Filtered) absent(name dns.Name) bool {
	if f.filter.NeverContains(name.String()) {
		f.rejected.Add(1)
		return true
	}
	f.passed.Add(1)
	return false
}

func (f *Filtered) GetAllByNameAndType(ctx context.Context, name dns.Name, rt dns.RecordType) ([]dns.Record, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return nil, ErrClosed
	}
	if f.absent(name) {
		return nil, nil
	}
	return f.delegate.GetAllByNameAndType(ctx, name, rt)
}

func (f *Filtered) GetAllChainsByNameAndType(ctx context.Context, name dns.Name, rt dns.RecordType) ([]AliasChain, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return nil, ErrClosed
	}
	if f.absent(name) {
		return nil, nil
	}
	return f.delegate.GetAllChainsByNameAndType(ctx, name, rt)
}

func (f *Filtered) GetAllByName(ctx context.Context, name dns.Name) ([]dns.Record, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return nil, ErrClosed
	}
	if f.absent(name) {
		return nil, nil
	}
	return f.delegate.GetAllByName(ctx, name)
}

func (f *Filtered) GetAll(ctx context.Context) ([]dns.Record, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return nil, ErrClosed
	}
	return f.delegate.GetAll(ctx)
}

func (f *Filtered) GetAllNames(ctx context.Context) ([]dns.Name, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return nil, ErrClosed
	}
	return f.delegate.GetAllNames(ctx)
}

func (f *Filtered) GetAllByType(ctx context.Context, rt dns.RecordType) ([]dns.Record, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return nil, ErrClosed
	}
	return f.delegate.GetAllByType(ctx, rt)
}

func (f *Filtered) Insert(ctx context.Context, r dns.Record) error {
	if err := Storable(r); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	// Add first: a bit set for a failed insert is harmless, a missing one is not.
	f.filter.Add(r.Header().Name.String())
	if err := f.delegate.Insert(ctx, r); err != nil {
		return err
	}
	if f.filter.Saturated() {
		// The record is stored; the old filter still covers it.
		if err := f.resetFilter(ctx); err != nil {
			f.logger.Warn("name filter rebuild after insert failed", "err", err)
		}
	}
	return nil
}

// deleteWith runs a delete under the write lock and rebuilds the filter.
func (f *Filtered) deleteWith(ctx context.Context, del func(context.Context) ([]dns.Record, error)) ([]dns.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrClosed
	}
	removed, err := del(ctx)
	if err != nil {
		return nil, err
	}
	if err := f.resetFilter(ctx); err != nil {
		return removed, err
	}
	return removed, nil
}

func (f *Filtered) Delete(ctx context.Context, r dns.Record) ([]dns.Record, error) {
	return f.deleteWith(ctx, func(ctx context.Context) ([]dns.Record, error) {
		return f.delegate.Delete(ctx, r)
	})
}

func (f *Filtered) DeleteAllByType(ctx context.Context, rt dns.RecordType) ([]dns.Record, error) {
	return f.deleteWith(ctx, func(ctx context.Context) ([]dns.Record, error) {
		return f.delegate.DeleteAllByType(ctx, rt)
	})
}

func (f *Filtered) DeleteAllByName(ctx context.Context, name dns.Name) ([]dns.Record, error) {
	return f.deleteWith(ctx, func(ctx context.Context) ([]dns.Record, error) {
		return f.delegate.DeleteAllByName(ctx, name)
	})
}

func (f *Filtered) DeleteAllByNameAndType(ctx context.Context, name dns.Name, rt dns.RecordType) ([]dns.Record, error) {
	return f.deleteWith(ctx, func(ctx context.Context) ([]dns.Record, error) {
		return f.delegate.DeleteAllByNameAndType(ctx, name, rt)
	})
}

func (f *Filtered) Clear(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	if err := f.delegate.Clear(ctx); err != nil {
		return err
	}
	f.filter.Clear()
	return nil
}

// Close marks the repository closed and closes the delegate. Further calls
// fail with ErrClosed.
func (f *Filtered) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	return f.delegate.Close()
}
