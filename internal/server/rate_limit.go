package server

import (
	"fmt"
	"net/netip"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// Admission control runs before a datagram is parsed. A query must pass
// three token buckets in order:
//   - global: one bucket for the whole server
//   - prefix: one bucket per /24 (IPv4) or /64 (IPv6)
//   - ip: one bucket per source address
//
// Per-key buckets live in bounded LRU caches, so a flood of distinct
// sources evicts the least recently seen ones instead of growing memory.

// RateLimitSettings contains rate limiting configuration values.
// A level with a non-positive QPS or burst is disabled.
type RateLimitSettings struct {
	MaxIPEntries     int
	MaxPrefixEntries int
	GlobalQPS        float64
	GlobalBurst      int
	PrefixQPS        float64
	PrefixBurst      int
	IPQPS            float64
	IPBurst          int
}

// RateLimiter combines global, prefix, and per-IP limits. A nil RateLimiter
// allows everything.
type RateLimiter struct {
	global *rate.Limiter
	prefix *keyedLimiter
	ip     *keyedLimiter
}

// NewRateLimiter creates a RateLimiter from the provided settings.
func NewRateLimiter(s RateLimitSettings) *RateLimiter {
	r := &RateLimiter{
		prefix: newKeyedLimiter(s.PrefixQPS, s.PrefixBurst, s.MaxPrefixEntries),
		ip:     newKeyedLimiter(s.IPQPS, s.IPBurst, s.MaxIPEntries),
	}
	if s.GlobalQPS > 0 && s.GlobalBurst > 0 {
		r.global = rate.NewLimiter(rate.Limit(s.GlobalQPS), s.GlobalBurst)
	}
	return r
}

// Allow reports whether a query from srcIP is admitted. Unparseable
// addresses are only subject to the global limit.
func (r *RateLimiter) Allow(srcIP string) bool {
	addr, err := netip.ParseAddr(srcIP)
	if err != nil {
		return r == nil || r.global == nil || r.global.Allow()
	}
	return r.AllowAddr(addr)
}

// AllowAddr reports whether a query from ip is admitted, consuming a token
// from every enabled level it passes.
func (r *RateLimiter) AllowAddr(ip netip.Addr) bool {
	if r == nil {
		return true
	}
	ip = ip.Unmap()
	if r.global != nil && !r.global.Allow() {
		return false
	}
	if !r.prefix.allow(prefixKey(ip)) {
		return false
	}
	return r.ip.allow(ip.String())
}

// prefixKey returns the /24 (IPv4) or /64 (IPv6) network containing ip.
func prefixKey(ip netip.Addr) string {
	bits := 64
	if ip.Is4() {
		bits = 24
	}
	p, err := ip.Prefix(bits)
	if err != nil {
		return ip.String()
	}
	return p.String()
}

// FormatRateLimitsLog returns a human-readable summary of rate limit configuration.
func FormatRateLimitsLog(s RateLimitSettings) string {
	level := func(name string, qps float64, burst int) string {
		if qps <= 0 || burst <= 0 {
			return name + "=disabled"
		}
		return fmt.Sprintf("%s=%gqps/%d", name, qps, burst)
	}
	return fmt.Sprintf("%s %s %s max_ip=%d max_prefix=%d",
		level("global", s.GlobalQPS, s.GlobalBurst),
		level("prefix", s.PrefixQPS, s.PrefixBurst),
		level("ip", s.IPQPS, s.IPBurst),
		s.MaxIPEntries,
		s.MaxPrefixEntries,
	)
}

// keyedLimiter keeps one token bucket per key.
type keyedLimiter struct {
	limit   rate.Limit
	burst   int
	buckets *lru.Cache[string, *rate.Limiter]
}

// newKeyedLimiter returns nil, meaning disabled, when qps or burst is not
// positive.
func newKeyedLimiter(qps float64, burst, maxEntries int) *keyedLimiter {
	if qps <= 0 || burst <= 0 {
		return nil
	}
	buckets, err := lru.New[string, *rate.Limiter](max(maxEntries, 1))
	if err != nil {
		return nil
	}
	return &keyedLimiter{limit: rate.Limit(qps), burst: burst, buckets: buckets}
}

func (k *keyedLimiter) allow(key string) bool {
	if k == nil {
		return true
	}
	l, ok := k.buckets.Get(key)
	if !ok {
		fresh := rate.NewLimiter(k.limit, k.burst)
		if prev, found, _ := k.buckets.PeekOrAdd(key, fresh); found {
			l = prev
		} else {
			l = fresh
		}
	}
	return l.Allow()
}

// tracked returns the number of keys currently holding a bucket.
func (k *keyedLimiter) tracked() int {
	if k == nil {
		return 0
	}
	return k.buckets.Len()
}
