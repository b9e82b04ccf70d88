package closing

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const configCacheTTL = 5 * time.Minute

// ConfigCache is a Redis read-through over a ConfigSource. The restriction
// enforcer sits on the posting hot path, so config reads should not hit
// Postgres on every write.
type ConfigCache struct {
	source ConfigSource
	rdb    *redis.Client
	ttl    time.Duration
	log    *slog.Logger
}

// NewConfigCache wraps the source with a Redis cache.
func NewConfigCache(source ConfigSource, rdb *redis.Client, log *slog.Logger) *ConfigCache {
	return &ConfigCache{source: source, rdb: rdb, ttl: configCacheTTL, log: log}
}

func configKey(company string) string {
	return "periodlock:config:" + company
}

func (c *ConfigCache) GetConfig(ctx context.Context, company string) (Config, error) {
	raw, err := c.rdb.Get(ctx, configKey(company)).Bytes()
	if err == nil {
		var cfg Config
		if err := json.Unmarshal(raw, &cfg); err == nil {
			return cfg, nil
		}
		// Corrupt cache entry: drop it and fall through to the source.
		c.rdb.Del(ctx, configKey(company))
	} else if !errors.Is(err, redis.Nil) {
		c.log.Warn("config cache read failed",
			slog.String("company", company), slog.Any("error", err))
	}

	cfg, err := c.source.GetConfig(ctx, company)
	if err != nil {
		return Config{}, err
	}
	if raw, err := json.Marshal(cfg); err == nil {
		if err := c.rdb.Set(ctx, configKey(company), raw, c.ttl).Err(); err != nil {
			c.log.Warn("config cache write failed",
				slog.String("company", company), slog.Any("error", err))
		}
	}
	return cfg, nil
}

// Invalidate drops the cached config after an update.
func (c *ConfigCache) Invalidate(ctx context.Context, company string) {
	if err := c.rdb.Del(ctx, configKey(company)).Err(); err != nil {
		c.log.Warn("config cache invalidate failed",
			slog.String("company", company), slog.Any("error", err))
	}
}

var _ ConfigSource = (*ConfigCache)(nil)
