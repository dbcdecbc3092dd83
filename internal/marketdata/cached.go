package marketdata

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/wonny/seedrank/backend/internal/contracts"
	"github.com/wonny/seedrank/backend/pkg/logger"
	"github.com/wonny/seedrank/backend/pkg/redis"
)

// CachedProvider puts a Redis JSON cache in front of another provider.
// Cache failures are logged and fall through to the wrapped provider.
type CachedProvider struct {
	next   contracts.MarketDataProvider
	cache  *redis.Cache
	ttl    time.Duration
	logger *logger.Logger
}

// NewCachedProvider wraps next. A non-positive ttl uses redis.TTLShort.
func NewCachedProvider(next contracts.MarketDataProvider, cache *redis.Cache, ttl time.Duration, log *logger.Logger) *CachedProvider {
	if ttl <= 0 {
		ttl = redis.TTLShort
	}
	return &CachedProvider{
		next:   next,
		cache:  cache,
		ttl:    ttl,
		logger: log,
	}
}

// FetchUniverse serves the cached universe unless q.ForceRefresh is set
func (p *CachedProvider) FetchUniverse(ctx context.Context, q contracts.UniverseQuery) (*contracts.Universe, error) {
	key := redis.UniverseKey(q.CacheKey())

	if !q.ForceRefresh {
		var cached contracts.Universe
		hit, err := p.cache.Get(ctx, key, &cached)
		if err != nil {
			p.logger.WithError(err).WithField("key", key).Warn("Universe cache read failed")
		}
		if hit && cached.Len() > 0 {
			cached.Cached = true
			return &cached, nil
		}
	}

	u, err := p.next.FetchUniverse(ctx, q)
	if err != nil {
		return nil, err
	}

	if err := p.cache.Set(ctx, key, u, p.ttl); err != nil {
		p.logger.WithError(err).WithField("key", key).Warn("Universe cache write failed")
	}
	return u, nil
}

// FetchQuotes caches per symbol set; evaluation prices go stale after ttl
func (p *CachedProvider) FetchQuotes(ctx context.Context, symbols []string) (map[string]contracts.Quote, error) {
	key := redis.QuotesKey(symbolsHash(symbols))

	var cached map[string]contracts.Quote
	hit, err := p.cache.Get(ctx, key, &cached)
	if err != nil {
		p.logger.WithError(err).WithField("key", key).Warn("Quote cache read failed")
	}
	if hit && cached != nil {
		return cached, nil
	}

	quotes, err := p.next.FetchQuotes(ctx, symbols)
	if err != nil {
		return nil, err
	}

	if err := p.cache.Set(ctx, key, quotes, p.ttl); err != nil {
		p.logger.WithError(err).WithField("key", key).Warn("Quote cache write failed")
	}
	return quotes, nil
}

func symbolsHash(symbols []string) string {
	sorted := append([]string(nil), symbols...)
	sort.Strings(sorted)
	return strconv.FormatUint(xxhash.Sum64String(strings.Join(sorted, ",")), 16)
}
