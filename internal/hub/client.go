package hub

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Client 代表一个连接到 Hub 的 WebSocket 客户端。
type Client struct {
	hub        *Hub
	dispatcher *Dispatcher
	conn       *websocket.Conn
	connID     string
	clientIP   string
	send       chan []byte

	// 以下字段由 hub.mu 保护
	session Session
	closed  bool
}

// NewClient 创建一个新的 Client 实例
func NewClient(hub *Hub, dispatcher *Dispatcher, conn *websocket.Conn, connID, clientIP string) *Client {
	return &Client{
		hub:        hub,
		dispatcher: dispatcher,
		conn:       conn,
		connID:     connID,
		clientIP:   clientIP,
		send:       make(chan []byte, sendBufferSize),
		session:    Session{ConnID: connID, ClientIP: clientIP},
	}
}

// ConnID 连接标识
func (c *Client) ConnID() string { return c.connID }

// ClientIP 客户端地址，限流按它计算
func (c *Client) ClientIP() string { return c.clientIP }

// Run 注册到 Hub 并启动读写 goroutine
func (c *Client) Run() {
	c.hub.Register(c)
	go c.WritePump()
	go c.ReadPump()
}

// enqueue 非阻塞地放入发送队列。调用方必须持有 hub.mu (读锁即可)。
func (c *Client) enqueue(message []byte) bool {
	if c.closed {
		return false
	}
	select {
	case c.send <- message:
		return true
	default:
		logrus.WithField("conn_id", c.connID).Warn("Client send channel full, dropping message")
		return false
	}
}

func (c *Client) logFields() logrus.Fields {
	return logrus.Fields{"conn_id": c.connID, "client_ip": c.clientIP}
}

// ReadPump 从 WebSocket 读取事件并交给 Dispatcher，一个连接的事件按顺序处理。
// 退出时注销连接并执行断线逻辑。
func (c *Client) ReadPump() {
	defer func() {
		// 关闭 send 通道，WritePump 发完剩余消息后会关闭连接
		c.hub.Unregister(c)
		c.dispatcher.Disconnect(context.Background(), c)
		logrus.WithFields(c.logFields()).Info("readPump exited, unregistered client")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logrus.WithFields(c.logFields()).WithError(err).Warn("WebSocket read error (unexpected close)")
			} else {
				logrus.WithFields(c.logFields()).Debug("WebSocket connection closed normally or read error")
			}
			return
		}
		if messageType != websocket.TextMessage {
			logrus.WithFields(c.logFields()).Debugf("Received non-text message type: %d", messageType)
			continue
		}
		// 收到任何消息都说明对端还活着
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		if keepOpen := c.dispatcher.Dispatch(context.Background(), c, message); !keepOpen {
			logrus.WithFields(c.logFields()).Warn("Closing connection on dispatcher request")
			return
		}
	}
}

// WritePump 将消息从 send 通道写到 WebSocket 连接。
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		logrus.WithFields(c.logFields()).Debug("writePump exited")
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// send 通道被 Hub 关闭了
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logrus.WithFields(c.logFields()).WithError(err).Warn("Failed to write message to websocket")
				return
			}
			_ = c.conn.SetWriteDeadline(time.Time{})

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logrus.WithFields(c.logFields()).WithError(err).Warn("Failed to send ping message")
				return
			}
			_ = c.conn.SetWriteDeadline(time.Time{})
		}
	}
}
