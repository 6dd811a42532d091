package middleware

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"vibe-meeting/internal/ratelimit"
)

// RateLimit 返回一个 Gin 中间件，按客户端 IP 消费限流配额。
// 超限时返回 429 并带上 Retry-After (秒)。
func RateLimit(limiter ratelimit.Limiter) gin.HandlerFunc {
	if limiter == nil {
		panic("limiter cannot be nil for RateLimit middleware")
	}

	return func(c *gin.Context) {
		// 注意：服务在反向代理后面时需要配置 gin 的 TrustedProxies 才能拿到真实 IP
		clientIP := c.ClientIP()
		res := limiter.Consume(c.Request.Context(), clientIP)
		if !res.Allowed {
			retryAfter := int(math.Ceil(res.RetryAfter.Seconds()))
			logrus.WithFields(logrus.Fields{
				"client_ip":   clientIP,
				"path":        c.Request.URL.Path,
				"retry_after": retryAfter,
			}).Warn("RateLimit: HTTP request rejected")
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":        "Too many requests",
				"retryAfterMs": res.RetryAfter.Milliseconds(),
			})
			c.Abort()
			return
		}
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		c.Next()
	}
}
