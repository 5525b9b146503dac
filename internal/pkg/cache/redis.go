package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"ragchat/internal/config"
)

// ErrMiss 缓存未命中
var ErrMiss = errors.New("cache miss")

// RedisCache Redis 缓存封装
type RedisCache struct {
	client *redis.Client
}

// NewRedisClient 创建并验证 Redis 连接（缓存、队列、心跳共用）
func NewRedisClient(cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return client, nil
}

// NewRedisCache 基于已有连接创建缓存
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Set 设置缓存
func (c *RedisCache) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, expiration).Err()
}

// Get 获取缓存，未命中返回 ErrMiss
func (c *RedisCache) Get(ctx context.Context, key string, dest any) error {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrMiss
		}
		return err
	}
	return json.Unmarshal(data, dest)
}

// Version 读取 key 的版本号，从未失效过时为 0
func (c *RedisCache) Version(ctx context.Context, key string) (int64, error) {
	v, err := c.client.Get(ctx, versionKey(key)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

// SetIfVersion 版本号仍为 version 时写入缓存，返回是否写入
// 读取数据期间 key 被失效过则放弃写入
func (c *RedisCache) SetIfVersion(ctx context.Context, key string, version int64, value any, expiration time.Duration) (bool, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return false, err
	}

	vkey := versionKey(key)
	written := false
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, vkey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != version {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, expiration)
			return nil
		})
		if err == nil {
			written = true
		}
		return err
	}, vkey)
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	return written, err
}

// Invalidate 递增版本号并删除缓存
func (c *RedisCache) Invalidate(ctx context.Context, key string) error {
	vkey := versionKey(key)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, vkey)
		pipe.Expire(ctx, vkey, versionTTL)
		pipe.Del(ctx, key)
		return nil
	})
	return err
}

// Ping 检查连接
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close 关闭连接
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Client 获取原始客户端
func (c *RedisCache) Client() *redis.Client {
	return c.client
}

// 常用 key 模式
const (
	ConversationCacheKeyPrefix = "ragchat:conv:"
	ConversationCacheTTL       = 30 * time.Second

	WorkerHeartbeatKeyPrefix = "ragchat:worker:heartbeat:"

	// versionTTL 版本号保留时长，远大于缓存 TTL
	versionTTL = 24 * time.Hour
)

func versionKey(key string) string {
	return key + ":ver"
}

// ConversationCacheKey 生成对话缓存 key
func ConversationCacheKey(id string) string {
	return ConversationCacheKeyPrefix + id
}

// WorkerHeartbeatKey 生成 worker 心跳 key
func WorkerHeartbeatKey(name string) string {
	return WorkerHeartbeatKeyPrefix + name
}

// LatestHeartbeat 所有 worker 中最近一次心跳时间，没有任何心跳时返回零值
func (c *RedisCache) LatestHeartbeat(ctx context.Context) (time.Time, error) {
	var latest int64
	iter := c.client.Scan(ctx, 0, WorkerHeartbeatKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		ts, err := c.client.Get(ctx, iter.Val()).Int64()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return time.Time{}, err
		}
		if ts > latest {
			latest = ts
		}
	}
	if err := iter.Err(); err != nil {
		return time.Time{}, err
	}
	if latest == 0 {
		return time.Time{}, nil
	}
	return time.Unix(latest, 0), nil
}
