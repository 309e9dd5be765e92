package pricing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/paywatch/evmpay/circuit"
	"github.com/paywatch/evmpay/logger"
	"github.com/paywatch/evmpay/ratelimit"
	"github.com/paywatch/evmpay/types"
)

// Cache lifetimes. Native coin prices move slowly enough for a long TTL;
// token quotes are shorter-lived because contracts get listed and delisted.
const (
	NativeTTL = 30 * time.Minute
	TokenTTL  = 10 * time.Minute
)

// maxAttempts bounds retries against a throttling index.
const maxAttempts = 3

// limiterKey is the shared sliding-window key for all index calls.
const limiterKey = "price-index"

// AssetKey identifies the asset to quote. Contract empty means a native
// coin quoted by NativeID; otherwise a token quoted by Platform+Contract.
type AssetKey struct {
	NativeID string
	Platform string
	Contract string
}

// IsNative reports whether the key refers to a chain's native coin.
func (k AssetKey) IsNative() bool { return k.Contract == "" }

// String returns the cache key.
func (k AssetKey) String() string {
	if k.IsNative() {
		return "native:" + k.NativeID
	}
	return "token:" + k.Platform + ":" + strings.ToLower(k.Contract)
}

// Oracle layers caching, request collapsing, rate limiting, a circuit
// breaker, and static fallbacks over a price Source. Safe for concurrent
// use.
type Oracle struct {
	source   Source
	limiter  *ratelimit.Limiter
	breaker  *circuit.Breaker
	log      logger.Logger
	fallback map[string]decimal.Decimal
	pegged   map[string]string

	now       func() time.Time
	retryBase time.Duration

	mu    sync.Mutex
	cache map[string]types.PriceQuote
	group singleflight.Group
}

// NewOracle wires an Oracle. limiter and breaker may not be nil; pass the
// price-index presets from ratelimit and circuit.
func NewOracle(source Source, limiter *ratelimit.Limiter, breaker *circuit.Breaker, log logger.Logger) *Oracle {
	if log == nil {
		log = logger.NoopLogger{}
	}
	return &Oracle{
		source:    source,
		limiter:   limiter,
		breaker:   breaker,
		log:       log,
		fallback:  DefaultFallbackPrices(),
		pegged:    DefaultPeggedTokens(),
		now:       time.Now,
		retryBase: 500 * time.Millisecond,
		cache:     make(map[string]types.PriceQuote),
	}
}

// SetClock overrides the oracle's time source for cache expiry. Call
// before serving traffic.
func (o *Oracle) SetClock(now func() time.Time) {
	o.now = now
}

// AddPegged registers a token contract whose price falls back to the
// static quote for assetID when the index cannot answer. Call before
// serving traffic.
func (o *Oracle) AddPegged(contract, assetID string) {
	o.pegged[strings.ToLower(contract)] = assetID
}

// Quote returns the USD price for key. Fresh cache entries are served
// without touching the network; concurrent misses for the same key share
// one upstream call. When the index cannot answer, a static fallback is
// used and the quote is flagged Degraded.
func (o *Oracle) Quote(ctx context.Context, key AssetKey) (types.PriceQuote, error) {
	ck := key.String()

	o.mu.Lock()
	if q, ok := o.cache[ck]; ok && !q.Expired(o.now()) {
		o.mu.Unlock()
		return q, nil
	}
	o.mu.Unlock()

	v, err, _ := o.group.Do(ck, func() (any, error) {
		return o.fetch(ctx, key, ck)
	})
	if err != nil {
		return types.PriceQuote{}, err
	}
	return v.(types.PriceQuote), nil
}

func (o *Oracle) fetch(ctx context.Context, key AssetKey, ck string) (types.PriceQuote, error) {
	price, err := o.fetchWithRetry(ctx, key)
	if err != nil {
		if fb, ok := o.fallbackFor(key); ok {
			o.log.Warn("price index unavailable, using fallback quote", map[string]any{
				"asset": ck,
				"error": err.Error(),
			})
			return types.PriceQuote{
				AssetKey:  ck,
				PriceUSD:  fb,
				FetchedAt: o.now(),
				Degraded:  true,
			}, nil
		}
		return types.PriceQuote{}, fmt.Errorf("quote %s: %w", ck, err)
	}

	quote := types.PriceQuote{
		AssetKey:  ck,
		PriceUSD:  price,
		FetchedAt: o.now(),
		TTL:       NativeTTL,
	}
	if !key.IsNative() {
		quote.TTL = TokenTTL
	}

	o.mu.Lock()
	o.cache[ck] = quote
	o.mu.Unlock()
	return quote, nil
}

// fetchWithRetry calls the index under the limiter and breaker, retrying
// with exponential backoff only when throttled. Everything else fails
// immediately.
func (o *Oracle) fetchWithRetry(ctx context.Context, key AssetKey) (decimal.Decimal, error) {
	var price decimal.Decimal

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = o.retryBase

	attempt := func() error {
		// The limiter guards our own quota; its rejections must not count
		// against the breaker.
		if err := o.limiter.Acquire(ctx, limiterKey); err != nil {
			if errors.Is(err, ratelimit.ErrLimited) {
				return err
			}
			return backoff.Permanent(err)
		}
		defer o.limiter.Release(limiterKey)

		var fetchErr error
		err := o.breaker.Do(ctx, func() error {
			price, fetchErr = o.fetchOnce(ctx, key)
			if errors.Is(fetchErr, ErrNoPrice) {
				// The index answered; the asset is just unlisted.
				return nil
			}
			return fetchErr
		})
		if err == nil {
			err = fetchErr
		}
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrThrottled) {
			return err
		}
		return backoff.Permanent(err)
	}

	err := backoff.Retry(attempt, backoff.WithContext(backoff.WithMaxRetries(bo, maxAttempts-1), ctx))
	return price, err
}

func (o *Oracle) fetchOnce(ctx context.Context, key AssetKey) (decimal.Decimal, error) {
	if key.IsNative() {
		return o.source.NativePrice(ctx, key.NativeID)
	}
	return o.source.TokenPrice(ctx, key.Platform, strings.ToLower(key.Contract))
}

// fallbackFor resolves a static quote. Tokens go through the pegged table
// first; unknown contracts have no fallback.
func (o *Oracle) fallbackFor(key AssetKey) (decimal.Decimal, bool) {
	id := key.NativeID
	if !key.IsNative() {
		var ok bool
		id, ok = o.pegged[strings.ToLower(key.Contract)]
		if !ok {
			return decimal.Zero, false
		}
	}
	v, ok := o.fallback[id]
	return v, ok
}

// CacheSize reports the number of cached quotes, expired included.
func (o *Oracle) CacheSize() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.cache)
}
