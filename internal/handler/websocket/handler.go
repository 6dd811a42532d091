package websocket

import (
	"net/http"

	"vibe-meeting/internal/hub"
	"vibe-meeting/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// WebSocketHandler 负责处理 WebSocket 升级请求和客户端注册
type WebSocketHandler struct {
	upgrader   websocket.Upgrader
	hub        *hub.Hub
	dispatcher *hub.Dispatcher
}

// NewWebSocketHandler 创建 WebSocketHandler 实例
func NewWebSocketHandler(h *hub.Hub, dispatcher *hub.Dispatcher, origins *middleware.OriginMatcher) *WebSocketHandler {
	if h == nil {
		panic("Hub cannot be nil for WebSocketHandler")
	}
	if dispatcher == nil {
		panic("Dispatcher cannot be nil for WebSocketHandler")
	}
	if origins == nil {
		panic("OriginMatcher cannot be nil for WebSocketHandler")
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			// 非浏览器客户端不带 Origin
			if origin == "" {
				return true
			}
			return origins.Allowed(origin)
		},
	}

	return &WebSocketHandler{upgrader: upgrader, hub: h, dispatcher: dispatcher}
}

// RegisterRoutes 注册 WebSocket 路由
func (h *WebSocketHandler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/socket", h.HandleConnection)
	r.GET("/ws", h.HandleConnection)
}

// HandleConnection 升级连接并启动客户端读写 goroutine。
// 连接本身不携带身份，身份在 joinRoom 事件中声明。
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	connID := uuid.NewString()
	logCtx := logrus.WithFields(logrus.Fields{
		"conn_id":   connID,
		"client_ip": c.ClientIP(),
	})

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 会自己写 HTTP 错误响应
		logCtx.WithError(err).Warn("WS Handler: Failed to upgrade connection")
		return
	}
	logCtx.Info("WS Handler: Connection upgraded to WebSocket")

	client := hub.NewClient(h.hub, h.dispatcher, conn, connID, c.ClientIP())
	client.Run()
}
