package marketdata

import (
	"fmt"

	"github.com/wonny/seedrank/backend/internal/contracts"
	"github.com/wonny/seedrank/backend/pkg/config"
	"github.com/wonny/seedrank/backend/pkg/httputil"
	"github.com/wonny/seedrank/backend/pkg/logger"
	"github.com/wonny/seedrank/backend/pkg/redis"
)

// NewProvider builds the configured provider, cached when Redis is enabled
// ⭐ SSOT: 시장 데이터 제공자 선택은 여기서만
func NewProvider(cfg *config.Config, redisClient *redis.Client, log *logger.Logger) (contracts.MarketDataProvider, error) {
	var base contracts.MarketDataProvider

	switch cfg.Market.Source {
	case config.MarketSourceFile:
		p, err := NewFileProvider(cfg.Market.SnapshotFile)
		if err != nil {
			return nil, err
		}
		base = p
	case config.MarketSourceScreener:
		httpClient := httputil.New(cfg, log)
		if redisClient != nil {
			httpClient.WithRateLimiter(redis.NewRateLimiter(redisClient, "seedrank"), redis.ScreenerRateLimit)
		}
		base = NewScreenerClient(cfg.Market, httpClient, log.Component("screener"))
	default:
		return nil, fmt.Errorf("unknown market source %q", cfg.Market.Source)
	}

	if redisClient == nil || !redisClient.Enabled() {
		return base, nil
	}
	cache := redis.NewCache(redisClient, "seedrank")
	return NewCachedProvider(base, cache, cfg.Market.CacheTTL, log.Component("marketdata.cache")), nil
}
