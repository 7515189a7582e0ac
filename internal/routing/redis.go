package routing

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"shelter-api/internal/geo"
	"shelter-api/internal/logger"
	"shelter-api/internal/metrics"
)

// redisKV RedisCache 用到的最小命令集，*redis.Client 满足
type redisKV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// 文档注释：Redis 路线缓存（装饰器）
// 背景：多实例部署时共享热点路线结果；值为 RouteResult 的 JSON。
// 约束：Redis 异常仅记录日志并回源，不影响路线计算；只缓存成功结果；ttl<=0 时默认 1 小时。
type RedisCache struct {
	next Provider
	rc   redisKV
	ttl  time.Duration
}

func NewRedisCache(next Provider, rc redisKV, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisCache{next: next, rc: rc, ttl: ttl}
}

func (c *RedisCache) Name() string                        { return c.next.Name() }
func (c *RedisCache) Heartbeat(ctx context.Context) error { return c.next.Heartbeat(ctx) }

func (c *RedisCache) ComputeRoute(ctx context.Context, origin, dest geo.Coordinate) (RouteResult, error) {
	key := cacheKey(origin, dest)
	s, err := c.rc.Get(ctx, key).Result()
	switch {
	case err == nil:
		var out RouteResult
		if jerr := json.Unmarshal([]byte(s), &out); jerr == nil && out.Validate() == nil {
			metrics.CacheHitsTotal.WithLabelValues("redis").Inc()
			return out, nil
		}
		logger.L().Debug("route_cache_corrupt", "key", key)
	case errors.Is(err, redis.Nil):
	default:
		logger.L().Debug("route_cache_get_error", "key", key, "err", err)
	}
	metrics.CacheMissesTotal.WithLabelValues("redis").Inc()
	res, err := c.next.ComputeRoute(ctx, origin, dest)
	if err != nil {
		return res, err
	}
	b, _ := json.Marshal(res)
	if err := c.rc.Set(ctx, key, string(b), c.ttl).Err(); err != nil {
		logger.L().Debug("route_cache_set_error", "key", key, "err", err)
	}
	return res, nil
}
