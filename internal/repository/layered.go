package repository

import (
	"context"
	"log/slog"

	"github.com/xzax/axdns/internal/bloom"
	"github.com/xzax/axdns/internal/cache"
)

// Options configures the decorators NewLayered puts around a store.
type Options struct {
	CacheSize         int     // entries per cache; 0 selects cache.DefaultCapacity
	FalsePositiveRate float64 // filter target; 0 selects bloom.DefaultFalsePositiveRate
	Logger            *slog.Logger
}

// Layered is a store behind a cache and a name filter. It is the
// Repository the resolver and the management API share.
type Layered struct {
	*Filtered
	Cache *Caching
}

// NewLayered builds Filtered(Caching(store)).
func NewLayered(ctx context.Context, store Repository, opts Options) (*Layered, error) {
	if opts.CacheSize <= 0 {
		opts.CacheSize = cache.DefaultCapacity
	}
	if opts.FalsePositiveRate <= 0 {
		opts.FalsePositiveRate = bloom.DefaultFalsePositiveRate
	}
	caching := NewCaching(store, opts.CacheSize, opts.Logger)
	filtered, err := NewFiltered(ctx, caching, opts.FalsePositiveRate, opts.Logger)
	if err != nil {
		return nil, err
	}
	return &Layered{Filtered: filtered, Cache: caching}, nil
}
