package http

import (
	"context"
	"net/http"
	"time"

	"vibe-meeting/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

const (
	serviceName    = "vibe-meeting"
	serviceVersion = "1.0.0"
	pingTimeout    = 2 * time.Second
)

// HealthHandler 健康检查
type HealthHandler struct {
	durable     repository.DurableStore // 可以为 nil
	redis       *redis.Client           // 可以为 nil
	environment string
	startedAt   time.Time
}

// NewHealthHandler 创建 HealthHandler
func NewHealthHandler(durable repository.DurableStore, redisClient *redis.Client, environment string) *HealthHandler {
	return &HealthHandler{
		durable:     durable,
		redis:       redisClient,
		environment: environment,
		startedAt:   time.Now(),
	}
}

// RegisterRoutes 注册 /health 和 /api/health
func (h *HealthHandler) RegisterRoutes(r gin.IRoutes, api *gin.RouterGroup) {
	r.GET("/health", h.Liveness)
	api.GET("/health", h.Dependencies)
}

// Liveness 进程存活检查
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"service":     serviceName,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"uptime":      time.Since(h.startedAt).Seconds(),
		"environment": h.environment,
		"version":     serviceVersion,
	})
}

// Dependencies 报告持久化后端和 Redis 的连接状态。后端不可用时仍返回 200，服务会降级运行。
func (h *HealthHandler) Dependencies(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), pingTimeout)
	defer cancel()

	database := "disconnected"
	if h.durable != nil && h.durable.Ping(ctx) == nil {
		database = "connected"
	}
	body := gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"database":  database,
	}
	if h.redis != nil {
		body["redis"] = "disconnected"
		if h.redis.Ping(ctx).Err() == nil {
			body["redis"] = "connected"
		}
	}
	c.JSON(http.StatusOK, body)
}
