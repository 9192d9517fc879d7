// Package walletage resolves how many days ago a wallet was first seen.
//
// Lookups go through an in-process LRU, an optional shared Redis tier and then
// an ordered list of sources. The first answer wins. Unknown results are never
// cached so a later scan can retry them.
package walletage

import (
	"context"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/polytracker/scanner/internal/logging"
	"github.com/polytracker/scanner/internal/metrics"
)

const (
	// DefaultCacheSize bounds the in-process cache
	DefaultCacheSize = 10000
	// DefaultLookupTimeout bounds one uncached resolution across all sources
	DefaultLookupTimeout = 2 * time.Minute
	// RedisKeyPrefix prefixes shared-tier keys
	RedisKeyPrefix = "walletage:first_seen:"

	sourceCache   = "cache"
	sourceRedis   = "redis"
	sourceUnknown = "unknown"
)

// SharedCache is the shared cache tier. storage.RedisCache implements it.
type SharedCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// Result is a resolved wallet age. Days is nil when the age is unknown.
type Result struct {
	Days      *int      `json:"days,omitempty"`
	FirstSeen time.Time `json:"firstSeen,omitempty"`
	Source    string    `json:"source"`
}

// Known reports whether an age was resolved
func (r Result) Known() bool {
	return r.Days != nil
}

// Resolver resolves wallet ages
type Resolver struct {
	sources       []Source
	local         *lru.Cache[string, time.Time]
	shared        SharedCache
	sharedTT      time.Duration
	group         singleflight.Group
	lookupTimeout time.Duration
	metrics       *metrics.Metrics
	logger        *logging.Logger
	now           func() time.Time
}

// Option configures a Resolver
type Option func(*Resolver)

// WithSharedCache enables the shared tier. A zero ttl keeps entries until evicted.
func WithSharedCache(c SharedCache, ttl time.Duration) Option {
	return func(r *Resolver) {
		r.shared = c
		r.sharedTT = ttl
	}
}

// WithMetrics records which source answered each lookup
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// WithLogger sets the logger
func WithLogger(l *logging.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// WithLookupTimeout bounds a coalesced lookup, which is detached from caller cancellation
func WithLookupTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.lookupTimeout = d
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// NewResolver creates a resolver that consults sources in order
func NewResolver(cacheSize int, sources []Source, opts ...Option) (*Resolver, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	local, err := lru.New[string, time.Time](cacheSize)
	if err != nil {
		return nil, err
	}
	r := &Resolver{
		sources:       sources,
		local:         local,
		now:           time.Now,
		lookupTimeout: DefaultLookupTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.OrGlobal(r.logger).WithField("component", "walletage")
	return r, nil
}

// Resolve returns the wallet's age in whole days. It never fails: when every
// source errors or has no record the result is unknown.
func (r *Resolver) Resolve(ctx context.Context, wallet string) Result {
	wallet = strings.ToLower(strings.TrimSpace(wallet))
	if wallet == "" {
		return Result{Source: sourceUnknown}
	}

	if first, ok := r.local.Get(wallet); ok {
		r.metrics.WalletAgeResolved(sourceCache)
		return r.result(first, sourceCache)
	}

	// The shared lookup is detached from caller cancellation; each caller
	// still stops waiting when its own ctx is done.
	ch := r.group.DoChan(wallet, func() (interface{}, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.lookupTimeout)
		defer cancel()
		return r.resolveUncached(lookupCtx, wallet), nil
	})
	select {
	case out := <-ch:
		res := out.Val.(Result)
		r.metrics.WalletAgeResolved(res.Source)
		return res
	case <-ctx.Done():
		return Result{Source: sourceUnknown}
	}
}

func (r *Resolver) resolveUncached(ctx context.Context, wallet string) Result {
	if first, ok := r.sharedGet(ctx, wallet); ok {
		r.local.Add(wallet, first)
		return r.result(first, sourceRedis)
	}

	log := r.logger.WithField("wallet", wallet)
	for _, src := range r.sources {
		if ctx.Err() != nil {
			break
		}
		first, found, err := src.FirstSeen(ctx, wallet)
		if err != nil {
			log.WithError(err).WithField("source", src.Name()).Warn("wallet age source failed")
			continue
		}
		if !found || first.IsZero() {
			continue
		}
		first = first.UTC()
		r.local.Add(wallet, first)
		r.sharedSet(ctx, wallet, first)
		res := r.result(first, src.Name())
		log.WithFields(map[string]interface{}{
			"source":  src.Name(),
			"ageDays": *res.Days,
		}).Debug("wallet age resolved")
		return res
	}

	log.Debug("wallet age unknown")
	return Result{Source: sourceUnknown}
}

func (r *Resolver) sharedGet(ctx context.Context, wallet string) (time.Time, bool) {
	if r.shared == nil {
		return time.Time{}, false
	}
	raw, found, err := r.shared.Get(ctx, RedisKeyPrefix+wallet)
	if err != nil {
		r.logger.WithError(err).WithField("wallet", wallet).Warn("shared wallet age cache read failed")
		return time.Time{}, false
	}
	if !found {
		return time.Time{}, false
	}
	first, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		r.logger.WithError(err).WithField("wallet", wallet).Warn("ignoring malformed shared cache entry")
		return time.Time{}, false
	}
	return first.UTC(), true
}

func (r *Resolver) sharedSet(ctx context.Context, wallet string, first time.Time) {
	if r.shared == nil {
		return
	}
	if err := r.shared.Set(ctx, RedisKeyPrefix+wallet, first.Format(time.RFC3339Nano), r.sharedTT); err != nil {
		r.logger.WithError(err).WithField("wallet", wallet).Warn("shared wallet age cache write failed")
	}
}

func (r *Resolver) result(first time.Time, source string) Result {
	days := AgeDays(first, r.now())
	return Result{Days: &days, FirstSeen: first, Source: source}
}

// AgeDays is the number of whole days between first and now, never negative
func AgeDays(first, now time.Time) int {
	d := now.Sub(first)
	if d <= 0 {
		return 0
	}
	return int(d / (24 * time.Hour))
}

// Len returns the number of wallets held in the in-process cache
func (r *Resolver) Len() int {
	return r.local.Len()
}
