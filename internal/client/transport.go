package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"vibe-meeting/internal/dto"
)

// ErrRateLimited 服务端拒绝了连接或请求 (超出限流)
var ErrRateLimited = errors.New("rate limited by server")

// Conn 客户端看到的一条消息连接
type Conn interface {
	// ReadEnvelope 阻塞直到收到下一条消息或连接断开
	ReadEnvelope() (dto.Envelope, error)
	WriteEnvelope(env dto.Envelope) error
	Close() error
}

// Dialer 建立到服务端的连接
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

const (
	defaultHandshakeTimeout = 15 * time.Second
	clientWriteWait         = 10 * time.Second
)

// WebSocketDialer 基于 gorilla/websocket 的 Dialer
type WebSocketDialer struct {
	dialer *websocket.Dialer
}

// NewWebSocketDialer 创建 WebSocketDialer，handshakeTimeout <= 0 时使用默认值
func NewWebSocketDialer(handshakeTimeout time.Duration) *WebSocketDialer {
	if handshakeTimeout <= 0 {
		handshakeTimeout = defaultHandshakeTimeout
	}
	return &WebSocketDialer{dialer: &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
	}}
}

// Dial 实现 Dialer。握手被 429 拒绝时返回 ErrRateLimited。
func (d *WebSocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("dial %s: %w", url, ErrRateLimited)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &wsConn{conn: conn}, nil
}

// wsConn 串行化写操作，gorilla 连接不支持并发写
type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *wsConn) ReadEnvelope() (dto.Envelope, error) {
	var env dto.Envelope
	err := c.conn.ReadJSON(&env)
	return env, err
}

func (c *wsConn) WriteEnvelope(env dto.Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(clientWriteWait))
	return c.conn.WriteJSON(env)
}

func (c *wsConn) Close() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return c.conn.Close()
}
