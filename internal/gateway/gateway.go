// Package gateway is the single choke point every market-data tool calls
// through: it enforces the admission ledger's sliding-window limits, serves
// from cache when possible, and falls back to a stale cached artifact when
// upstream is unavailable, rather than propagating the failure straight to
// the reasoning loop.
package gateway

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/sacahan/casualtrader-go/internal/apperr"
)

// Fetcher is the injected upstream collaborator. Implementations (e.g.
// internal/marketdata) know how to turn (symbol, kind) into a payload; the
// gateway is deliberately ignorant of HTTP, TWSE endpoints, or retries.
type Fetcher func(ctx context.Context, symbol string, k kind) (interface{}, error)

// Stats is an atomic snapshot of gateway activity, returned by Snapshot.
// No HTTP route serves it.
type Stats struct {
	Admitted       int64 `json:"admitted"`
	Denied         int64 `json:"denied"`
	CacheHitsFresh int64 `json:"cache_hits_fresh"`
	CacheHitsStale int64 `json:"cache_hits_stale"`
	CacheMisses    int64 `json:"cache_misses"`
	UpstreamErrors int64 `json:"upstream_errors"`
	FallbackServed int64 `json:"fallback_served"`
}

type counters struct {
	admitted       atomic.Int64
	denied         atomic.Int64
	cacheHitsFresh atomic.Int64
	cacheHitsStale atomic.Int64
	cacheMisses    atomic.Int64
	upstreamErrors atomic.Int64
	fallbackServed atomic.Int64
}

// Gateway is the rate-limit-and-cache boundary described in §4.1. All
// market-data tools depend on this, never on a Fetcher directly.
type Gateway struct {
	ledger  *admissionLedger
	cache   *cache
	fetch   Fetcher
	log     zerolog.Logger
	stats   counters
	nowFunc func() time.Time
}

// Option configures a Gateway at construction time.
type Option func(*Gateway)

// WithClock overrides the time source, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.nowFunc = now }
}

// New builds a Gateway. perSymbolInterval, globalPerMinute, and
// perSecondLimit parameterize the admission ledger; ttl/maxEntries/maxBytes
// parameterize the cache. fetch is the upstream collaborator.
func New(
	perSymbolInterval time.Duration,
	globalPerMinute, perSecondLimit int,
	ttl time.Duration, maxEntries int, maxBytes int64,
	fetch Fetcher,
	log zerolog.Logger,
	opts ...Option,
) *Gateway {
	g := &Gateway{
		ledger:  newAdmissionLedger(perSymbolInterval, globalPerMinute, perSecondLimit),
		cache:   newCache(ttl, maxEntries, maxBytes),
		fetch:   fetch,
		log:     log.With().Str("component", "gateway").Logger(),
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Result is what Fetch returns: the payload, how fresh it was, and whether
// it came from a degraded fallback path.
type Result struct {
	Payload   interface{}
	Freshness Freshness
	Fallback  bool
}

// Fetch is the Gateway's single entry point. Policy, in order:
//  1. forceRefresh=false and a non-expired cache entry exists -> serve it
//     with freshness cached_fresh, no admission check consumed.
//  2. Cache miss, stale, or forceRefresh=true -> check admission; if denied
//     and a stale entry exists, serve it as a fallback (KindRateLimited is
//     NOT returned in this case); if denied with nothing cached, return
//     KindRateLimited.
//  3. Admitted -> call Fetcher; on success, cache and return fresh; on
//     upstream error, serve a stale cache entry if one exists (fallback),
//     else return KindUpstreamUnavailable.
func (g *Gateway) Fetch(ctx context.Context, symbol string, k kind, forceRefresh bool) (Result, error) {
	now := g.nowFunc()
	key := cacheKey{symbol: symbol, kind: k}

	if !forceRefresh {
		if payload, freshness := g.cache.get(key, now); freshness == FreshnessCachedFresh {
			g.stats.cacheHitsFresh.Add(1)
			return Result{Payload: payload, Freshness: FreshnessCachedFresh}, nil
		}
	}

	admitted, reason, wait := g.ledger.admit(symbol, now)
	if !admitted {
		g.stats.denied.Add(1)
		if payload, freshness := g.cache.get(key, now); freshness == FreshnessStale {
			g.stats.cacheHitsStale.Add(1)
			g.stats.fallbackServed.Add(1)
			g.log.Warn().Str("symbol", symbol).Str("reason", string(reason)).
				Dur("retry_after", wait).Msg("serving stale cache after admission denial")
			return Result{Payload: payload, Freshness: FreshnessStale, Fallback: true}, nil
		}
		g.stats.cacheMisses.Add(1)
		return Result{}, apperr.New(apperr.KindRateLimited, string(reason)).
			WithDetails(map[string]interface{}{"retry_after_ms": wait.Milliseconds(), "symbol": symbol})
	}

	g.stats.admitted.Add(1)
	payload, err := g.fetch(ctx, symbol, k)
	if err != nil {
		g.stats.upstreamErrors.Add(1)
		if cached, freshness := g.cache.get(key, now); freshness == FreshnessStale {
			g.stats.cacheHitsStale.Add(1)
			g.stats.fallbackServed.Add(1)
			g.log.Warn().Err(err).Str("symbol", symbol).Msg("upstream failed, serving stale cache")
			return Result{Payload: cached, Freshness: FreshnessStale, Fallback: true}, nil
		}
		// Per §4.1: on upstream failure, admission is not recorded.
		return Result{}, apperr.Wrap(apperr.KindUpstreamUnavailable, "market data upstream unavailable", err).
			WithDetails(map[string]interface{}{"symbol": symbol})
	}

	g.ledger.record(symbol, now)
	g.cache.put(key, payload, estimateSize(payload), now)
	g.stats.cacheMisses.Add(1)
	return Result{Payload: payload, Freshness: FreshnessFresh}, nil
}

// Sweep evicts cache entries stale for longer than staleGrace. Intended to
// be scheduled by internal/scheduler rather than called inline.
func (g *Gateway) Sweep(staleGrace time.Duration) int {
	return g.cache.sweep(g.nowFunc(), staleGrace)
}

// Snapshot returns a point-in-time copy of the gateway's activity counters.
func (g *Gateway) Snapshot() Stats {
	return Stats{
		Admitted:       g.stats.admitted.Load(),
		Denied:         g.stats.denied.Load(),
		CacheHitsFresh: g.stats.cacheHitsFresh.Load(),
		CacheHitsStale: g.stats.cacheHitsStale.Load(),
		CacheMisses:    g.stats.cacheMisses.Load(),
		UpstreamErrors: g.stats.upstreamErrors.Load(),
		FallbackServed: g.stats.fallbackServed.Load(),
	}
}

// CacheSize reports current entry count and approximate byte usage, mostly
// for tests.
func (g *Gateway) CacheSize() (entries int, bytes int64) {
	return g.cache.len(), g.cache.bytes()
}

// ResetAdmission clears all admission-window state. Exposed for tests and
// for an operator-triggered recovery action; not used in normal operation.
func (g *Gateway) ResetAdmission() {
	g.ledger.reset()
}

// Invalidate removes a single (symbol, kind) cache entry. The next Fetch for
// that key behaves as a cache miss and is subject to admission control.
func (g *Gateway) Invalidate(symbol string, k Kind) {
	g.cache.invalidate(cacheKey{symbol: symbol, kind: k})
}

// Clear removes every cached entry, forcing every subsequent Fetch to
// consult admission control until the cache repopulates.
func (g *Gateway) Clear() {
	g.cache.clear()
}

// Kind is the public name for the cache artifact kind (KindQuote,
// KindCompanyProfile, ...) that callers pass to Fetch.
type Kind = kind
