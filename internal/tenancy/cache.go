package tenancy

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/motorsales/vsms/internal/models"
)

const (
	hostCachePrefix = "vsms:tenant:host:"
	hostGenPrefix   = "vsms:tenant:gen:"
	genTTL          = 24 * time.Hour
)

// Cache holds host resolutions. A miss or a cache failure falls through to the store.
//
// Every host has a generation that Invalidate bumps. Get reports the generation it saw and Set
// only stores when it is unchanged, so a lookup racing an invalidation cannot re-cache stale data.
type Cache interface {
	Get(ctx context.Context, host string) (t *models.Tenant, gen int64, ok bool)
	Set(ctx context.Context, host string, t *models.Tenant, gen int64)
	Invalidate(ctx context.Context, hosts ...string)
}

// RedisCache caches resolved tenants as JSON with a TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisCache creates a host cache.
func NewRedisCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCache{client: client, ttl: ttl, logger: logger}
}

// setIfGeneration stores ARGV[2] under KEYS[1] for ARGV[3] ms if KEYS[2] still holds ARGV[1].
var setIfGeneration = redis.NewScript(`
local gen = redis.call('GET', KEYS[2]) or '0'
if gen ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

func (c *RedisCache) Get(ctx context.Context, host string) (*models.Tenant, int64, bool) {
	vals, err := c.client.MGet(ctx, hostCachePrefix+host, hostGenPrefix+host).Result()
	if err != nil {
		c.logger.Warn("tenant cache get failed", zap.String("host", host), zap.Error(err))
		return nil, -1, false
	}
	var gen int64
	if s, ok := vals[1].(string); ok {
		if gen, err = strconv.ParseInt(s, 10, 64); err != nil {
			return nil, -1, false
		}
	}
	raw, ok := vals[0].(string)
	if !ok {
		return nil, gen, false
	}
	var t models.Tenant
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return nil, gen, false
	}
	return &t, gen, true
}

func (c *RedisCache) Set(ctx context.Context, host string, t *models.Tenant, gen int64) {
	if gen < 0 {
		return
	}
	raw, err := json.Marshal(t)
	if err != nil {
		return
	}
	keys := []string{hostCachePrefix + host, hostGenPrefix + host}
	err = setIfGeneration.Run(ctx, c.client, keys, strconv.FormatInt(gen, 10), raw, c.ttl.Milliseconds()).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		c.logger.Warn("tenant cache set failed", zap.String("host", host), zap.Error(err))
	}
}

func (c *RedisCache) Invalidate(ctx context.Context, hosts ...string) {
	if len(hosts) == 0 {
		return
	}
	_, err := c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, h := range hosts {
			p.Incr(ctx, hostGenPrefix+h)
			p.Expire(ctx, hostGenPrefix+h, genTTL)
			p.Del(ctx, hostCachePrefix+h)
		}
		return nil
	})
	if err != nil {
		c.logger.Warn("tenant cache invalidate failed", zap.Strings("hosts", hosts), zap.Error(err))
	}
}

// NopCache disables caching.
type NopCache struct{}

func (NopCache) Get(context.Context, string) (*models.Tenant, int64, bool) { return nil, -1, false }
func (NopCache) Set(context.Context, string, *models.Tenant, int64)        {}
func (NopCache) Invalidate(context.Context, ...string)                     {}
