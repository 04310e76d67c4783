package cache

import (
	"context"
	"encoding/json"
	"time"

	"ChipStake/internal/config"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Connect 连接 Redis（行情缓存用），Ping 失败即返回错误
func Connect(cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	return rdb, nil
}

// MarketCache 盘口详情的 read-through 缓存。缓存只服务公开行情查询，
// 余额与结算永远直读数据库，不经过这里。
type MarketCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *logrus.Logger
}

// NewMarketCache 创建行情缓存
func NewMarketCache(rdb *redis.Client, cfg config.RedisConfig, logger *logrus.Logger) *MarketCache {
	return &MarketCache{
		rdb:    rdb,
		ttl:    time.Duration(cfg.TTLSeconds) * time.Second,
		logger: logger,
	}
}

func keyMarket(eventUUID string) string { return "market:event:" + eventUUID }

// Get 读缓存，未命中返回 false（不视为错误）
func (c *MarketCache) Get(ctx context.Context, eventUUID string, dst any) bool {
	b, err := c.rdb.Get(ctx, keyMarket(eventUUID)).Bytes()
	if err == redis.Nil {
		return false
	}
	if err != nil {
		c.logger.WithError(err).Warn("行情缓存读取失败，回落数据库")
		return false
	}
	if err := json.Unmarshal(b, dst); err != nil {
		c.logger.WithError(err).Warn("行情缓存反序列化失败，回落数据库")
		return false
	}
	return true
}

// Set 写缓存，失败只记日志（缓存不是正确性来源）
func (c *MarketCache) Set(ctx context.Context, eventUUID string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, keyMarket(eventUUID), b, c.ttl).Err(); err != nil {
		c.logger.WithError(err).Warn("行情缓存写入失败")
	}
}

// Invalidate 下注/状态迁移后使对应盘口缓存失效
func (c *MarketCache) Invalidate(ctx context.Context, eventUUID string) {
	if err := c.rdb.Del(ctx, keyMarket(eventUUID)).Err(); err != nil {
		c.logger.WithError(err).WithField("event_uuid", eventUUID).Warn("行情缓存失效失败")
	}
}
