package ratelimit

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// RedisLimiter 基于 Redis INCR 的固定窗口限流器，多个进程共享同一份配额。
// Redis 出错时退回到进程内限流器。
type RedisLimiter struct {
	client    *redis.Client
	cfg       Config
	keyPrefix string
	fallback  *MemoryLimiter
}

var _ Limiter = (*RedisLimiter)(nil)

// NewRedisLimiter 创建 Redis 限流器
func NewRedisLimiter(client *redis.Client, cfg Config, keyPrefix string) *RedisLimiter {
	if client == nil {
		panic("Redis client cannot be nil for RedisLimiter")
	}
	cfg.validate()
	if keyPrefix == "" {
		keyPrefix = "vm:"
	}
	return &RedisLimiter{
		client:    client,
		cfg:       cfg,
		keyPrefix: keyPrefix,
		fallback:  NewMemoryLimiter(cfg),
	}
}

func (l *RedisLimiter) countKey(key string) string {
	return fmt.Sprintf("%sratelimit:%s", l.keyPrefix, key)
}

func (l *RedisLimiter) blockKey(key string) string {
	return fmt.Sprintf("%sratelimit:block:%s", l.keyPrefix, key)
}

// Consume 消费一个点
func (l *RedisLimiter) Consume(ctx context.Context, key string) Result {
	res, err := l.consume(ctx, key)
	if err != nil {
		logrus.WithError(err).WithField("client_ip", key).Error("RateLimit: Redis failed, using in-process limiter")
		return l.fallback.Consume(ctx, key)
	}
	return res
}

func (l *RedisLimiter) consume(ctx context.Context, key string) (Result, error) {
	blocked, err := l.client.PTTL(ctx, l.blockKey(key)).Result()
	if err != nil {
		return Result{}, fmt.Errorf("redis pttl block key: %w", err)
	}
	if blocked > 0 {
		return reject(blocked), nil
	}

	countKey := l.countKey(key)
	pipe := l.client.TxPipeline()
	incrCmd := pipe.Incr(ctx, countKey)
	ttlCmd := pipe.PTTL(ctx, countKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, fmt.Errorf("redis pipeline: %w", err)
	}
	count := incrCmd.Val()
	ttl := ttlCmd.Val()

	// 窗口的第一次请求 (或 key 丢失了过期时间) 才设置过期，保证是固定窗口
	if count == 1 || ttl < 0 {
		if err := l.client.PExpire(ctx, countKey, l.cfg.Window).Err(); err != nil {
			return Result{}, fmt.Errorf("redis pexpire: %w", err)
		}
		ttl = l.cfg.Window
	}

	if count > int64(l.cfg.Points) {
		if l.cfg.Block > 0 {
			// 计数 key 和封禁一起替换，封禁结束后是一个新窗口
			block := l.client.TxPipeline()
			block.Set(ctx, l.blockKey(key), 1, l.cfg.Block)
			block.Del(ctx, countKey)
			if _, err := block.Exec(ctx); err != nil {
				return Result{}, fmt.Errorf("redis set block key: %w", err)
			}
			return reject(l.cfg.Block), nil
		}
		return reject(ttl), nil
	}
	return allow(l.cfg.Points - int(count)), nil
}
