package repository

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/xzax/axdns/internal/cache"
	"github.com/xzax/axdns/internal/dns"
)

// loadTimeout bounds a shared store load. The load runs detached from any
// one caller, so a caller giving up does not fail the others.
const loadTimeout = 5 * time.Second

// Caching memoizes the two lookups on the query path, record sets and
// alias chains, in bounded FIFO caches. Every write flushes both caches
// after the delegate returns, whether or not it succeeded.
type Caching struct {
	delegate Repository
	logger   *slog.Logger

	records *cache.Limited[CacheKey, []dns.Record]
	chains  *cache.Limited[CacheKey, []AliasChain]

	// mu orders write-backs against flushes; generation changes on every
	// flush so a lookup that raced a write does not repopulate the cache.
	mu         sync.Mutex
	generation atomic.Uint64
	flights    singleflight.Group

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewCaching wraps delegate with caches of the given capacity each.
func NewCaching(delegate Repository, capacity int, logger *slog.Logger) *Caching {
	if logger == nil {
		logger = slog.Default()
	}
	return &Caching{
		delegate: delegate,
		logger:   logger,
		records:  cache.NewLimited[CacheKey, []dns.Record](capacity),
		chains:   cache.NewLimited[CacheKey, []AliasChain](capacity),
	}
}

// CacheStats is a point-in-time view of cache usage.
type CacheStats struct {
	Hits          uint64
	Misses        uint64
	RecordEntries int
	ChainEntries  int
	Capacity      int
}

// Stats returns hit/miss counters and current occupancy.
func (c *Caching) Stats() CacheStats {
	return CacheStats{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		RecordEntries: c.records.Len(),
		ChainEntries:  c.chains.Len(),
		Capacity:      c.records.Capacity(),
	}
}

func (c *Caching) GetAllByNameAndType(ctx context.Context, name dns.Name, rt dns.RecordType) ([]dns.Record, error) {
	key := CacheKey{Name: name, Type: rt}
	return lookup(ctx, c, "r", key, c.records, func(ctx context.Context) ([]dns.Record, error) {
		recs, err := c.delegate.GetAllByNameAndType(ctx, name, rt)
		if err != nil {
			return nil, err
		}
		for _, r := range recs {
			if r.Header().Name != name || r.Type() != rt {
				return nil, fmt.Errorf("%w: store returned %s %s for %s", ErrCacheInconsistency, r.Header().Name, r.Type(), key)
			}
		}
		return recs, nil
	})
}

func (c *Caching) GetAllChainsByNameAndType(ctx context.Context, name dns.Name, rt dns.RecordType) ([]AliasChain, error) {
	key := CacheKey{Name: name, Type: rt}
	return lookup(ctx, c, "c", key, c.chains, func(ctx context.Context) ([]AliasChain, error) {
		chains, err := c.delegate.GetAllChainsByNameAndType(ctx, name, rt)
		if err != nil {
			return nil, err
		}
		for _, ch := range chains {
			if ch.Alias.Name != name || ch.Record.Type() != rt {
				return nil, fmt.Errorf("%w: store returned chain %s -> %s %s for %s",
					ErrCacheInconsistency, ch.Alias.Name, ch.Record.Header().Name, ch.Record.Type(), key)
			}
		}
		return chains, nil
	})
}

// lookup serves key from store, or loads it once for all concurrent
// callers and writes it back unless a flush happened meanwhile.
func lookup[V any](
	ctx context.Context,
	c *Caching,
	kind string,
	key CacheKey,
	store *cache.Limited[CacheKey, []V],
	load func(context.Context) ([]V, error),
) ([]V, error) {
	if v, ok := store.Get(key); ok {
		c.hits.Add(1)
		return slices.Clone(v), nil
	}
	c.misses.Add(1)

	gen := c.generation.Load()
	flight := kind + "/" + strconv.FormatUint(gen, 10) + "/" + key.String()
	done := c.flights.DoChan(flight, func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		loaded, err := load(lctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.generation.Load() == gen {
			store.Put(key, loaded)
		}
		c.mu.Unlock()
		return loaded, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-done:
		if res.Err != nil {
			return nil, res.Err
		}
		return slices.Clone(res.Val.([]V)), nil
	}
}

// Flush empties both caches.
func (c *Caching) Flush() {
	c.mu.Lock()
	c.generation.Add(1)
	c.records.Purge()
	c.chains.Purge()
	c.mu.Unlock()
}

func (c *Caching) GetAll(ctx context.Context) ([]dns.Record, error) {
	return c.delegate.GetAll(ctx)
}

func (c *Caching) GetAllNames(ctx context.Context) ([]dns.Name, error) {
	return c.delegate.GetAllNames(ctx)
}

func (c *Caching) GetAllByName(ctx context.Context, name dns.Name) ([]dns.Record, error) {
	return c.delegate.GetAllByName(ctx, name)
}

func (c *Caching) GetAllByType(ctx context.Context, rt dns.RecordType) ([]dns.Record, error) {
	return c.delegate.GetAllByType(ctx, rt)
}

func (c *Caching) Insert(ctx context.Context, r dns.Record) error {
	defer c.Flush()
	return c.delegate.Insert(ctx, r)
}

func (c *Caching) Delete(ctx context.Context, r dns.Record) ([]dns.Record, error) {
	defer c.Flush()
	return c.delegate.Delete(ctx, r)
}

func (c *Caching) DeleteAllByType(ctx context.Context, rt dns.RecordType) ([]dns.Record, error) {
	defer c.Flush()
	return c.delegate.DeleteAllByType(ctx, rt)
}

func (c *Caching) DeleteAllByName(ctx context.Context, name dns.Name) ([]dns.Record, error) {
	defer c.Flush()
	return c.delegate.DeleteAllByName(ctx, name)
}

func (c *Caching) DeleteAllByNameAndType(ctx context.Context, name dns.Name, rt dns.RecordType) ([]dns.Record, error) {
	defer c.Flush()
	return c.delegate.DeleteAllByNameAndType(ctx, name, rt)
}

func (c *Caching) Clear(ctx context.Context) error {
	defer c.Flush()
	return c.delegate.Clear(ctx)
}

func (c *Caching) Close() error {
	c.Flush()
	c.logger.Debug("record cache closed", "hits", c.hits.Load(), "misses", c.misses.Load())
	return c.delegate.Close()
}
