package middleware

import (
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
)

// OriginMatcher 判断 Origin 是否在白名单中。
// 白名单支持 * 通配符 (例如 https://*.example.com)，单独的 * 表示允许全部。
type OriginMatcher struct {
	allowAll bool
	patterns []string
}

// NewOriginMatcher 创建白名单匹配器。allowAll 为 true 时 (开发模式) 放行所有来源。
func NewOriginMatcher(patterns []string, allowAll bool) *OriginMatcher {
	m := &OriginMatcher{allowAll: allowAll}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if p == "*" {
			m.allowAll = true
		}
		m.patterns = append(m.patterns, p)
	}
	return m
}

// Allowed 判断 origin 是否允许
func (m *OriginMatcher) Allowed(origin string) bool {
	if m.allowAll || origin == "" {
		return true
	}
	for _, p := range m.patterns {
		if p == origin {
			return true
		}
		if strings.Contains(p, "*") {
			if ok, err := path.Match(p, origin); err == nil && ok {
				return true
			}
		}
	}
	return false
}

// CORS 返回跨域中间件
func CORS(matcher *OriginMatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" {
			if !matcher.Allowed(origin) {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Origin not allowed"})
				return
			}
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
