package ratelimit

import (
	"context"
	"sync"
	"time"
)

// pruneEvery 每消费这么多次清理一次过期条目
const pruneEvery = 1024

type window struct {
	count        int
	resetAt      time.Time
	blockedUntil time.Time
}

// MemoryLimiter 进程内的固定窗口限流器，整个进程共享。
type MemoryLimiter struct {
	cfg Config
	now func() time.Time

	mu      sync.Mutex
	entries map[string]*window
	calls   int
}

var _ Limiter = (*MemoryLimiter)(nil)

// NewMemoryLimiter 创建进程内限流器
func NewMemoryLimiter(cfg Config) *MemoryLimiter {
	return NewMemoryLimiterWithClock(cfg, time.Now)
}

// NewMemoryLimiterWithClock 允许注入时钟，便于测试
func NewMemoryLimiterWithClock(cfg Config, now func() time.Time) *MemoryLimiter {
	cfg.validate()
	if now == nil {
		now = time.Now
	}
	return &MemoryLimiter{cfg: cfg, now: now, entries: make(map[string]*window)}
}

// Consume 消费一个点。封禁期间即使窗口已经重置也继续拒绝，封禁结束后配额重新开始。
func (l *MemoryLimiter) Consume(ctx context.Context, key string) Result {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.calls++
	if l.calls%pruneEvery == 0 {
		l.prune(now)
	}

	w, ok := l.entries[key]
	if ok && now.Before(w.blockedUntil) {
		return reject(w.blockedUntil.Sub(now))
	}
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(l.cfg.Window)}
		l.entries[key] = w
	}

	w.count++
	if w.count > l.cfg.Points {
		if l.cfg.Block > 0 {
			// 封禁结束后从新窗口开始计数
			w.blockedUntil = now.Add(l.cfg.Block)
			w.count = 0
			w.resetAt = w.blockedUntil.Add(l.cfg.Window)
			return reject(l.cfg.Block)
		}
		return reject(w.resetAt.Sub(now))
	}
	return allow(l.cfg.Points - w.count)
}

// prune 删除窗口和封禁都已过期的条目。调用方必须持有锁。
func (l *MemoryLimiter) prune(now time.Time) {
	for key, w := range l.entries {
		if !now.Before(w.resetAt) && !now.Before(w.blockedUntil) {
			delete(l.entries, key)
		}
	}
}
