package ratelimit

import (
	"context"
	"time"
)

// 默认配额：15 分钟 5000 次，超限后封禁 2 分钟
const (
	DefaultPoints = 5000
	DefaultWindow = 15 * time.Minute
	DefaultBlock  = 2 * time.Minute
)

// Config 固定窗口限流参数
type Config struct {
	Points int           // 每个窗口允许的次数
	Window time.Duration // 窗口长度
	Block  time.Duration // 超限后的封禁时长，0 表示只等到窗口结束
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{Points: DefaultPoints, Window: DefaultWindow, Block: DefaultBlock}
}

func (c Config) validate() {
	if c.Points <= 0 {
		panic("rate limit points must be positive")
	}
	if c.Window <= 0 {
		panic("rate limit window must be positive")
	}
	if c.Block < 0 {
		panic("rate limit block duration cannot be negative")
	}
}

// Result 一次消费的结果
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration // 仅在 Allowed == false 时有意义
}

func allow(remaining int) Result {
	if remaining < 0 {
		remaining = 0
	}
	return Result{Allowed: true, Remaining: remaining}
}

func reject(retryAfter time.Duration) Result {
	if retryAfter < 0 {
		retryAfter = 0
	}
	return Result{Allowed: false, RetryAfter: retryAfter}
}

// Limiter 按 key (客户端地址) 消费一个配额点。
// 被拒绝时调用方不能排队或重试原请求。
type Limiter interface {
	Consume(ctx context.Context, key string) Result
}
