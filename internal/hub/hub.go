package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"vibe-meeting/internal/dto"
)

// 包级别的 WebSocket 常量，供 hub 和 client 使用
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. SDP offer 可能有几 KB。
	maxMessageSize = 64 * 1024

	// 每个连接的发送缓冲
	sendBufferSize = 256
)

// Hub 维护所有活跃连接、房间频道以及 userID -> connID 索引。
// 所有方法都不阻塞：发送是非阻塞的，缓冲满时丢弃。
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client          // connID -> client
	rooms   map[string]map[*Client]bool // roomID -> clients
	users   map[string]string           // userID -> 当前绑定的 connID
}

// NewHub 创建 Hub
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[*Client]bool),
		users:   make(map[string]string),
	}
}

// Register 注册新连接
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.connID] = c
	total := len(h.clients)
	h.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"conn_id":     c.connID,
		"client_ip":   c.clientIP,
		"connections": total,
	}).Info("Client registered to Hub")
}

// Unregister 注销连接：移出房间频道和用户索引，关闭发送通道。可以重复调用。
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c.connID]; !ok {
		return
	}
	delete(h.clients, c.connID)
	h.removeFromRoomLocked(c, c.session.RoomID)
	if c.session.UserID != "" && h.users[c.session.UserID] == c.connID {
		delete(h.users, c.session.UserID)
	}
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	logrus.WithFields(logrus.Fields{
		"conn_id": c.connID,
		"user_id": c.session.UserID,
		"room_id": c.session.RoomID,
	}).Info("Client unregistered from Hub")
}

// removeFromRoomLocked 调用方必须持有写锁
func (h *Hub) removeFromRoomLocked(c *Client, roomID string) {
	if roomID == "" {
		return
	}
	if roomClients, ok := h.rooms[roomID]; ok {
		delete(roomClients, c)
		if len(roomClients) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// Session 返回连接会话的副本
func (h *Hub) Session(connID string) (Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[connID]
	if !ok {
		return Session{}, false
	}
	return c.session, true
}

// --- service.Broadcaster ---

// JoinRoom 把连接加入房间频道，更新会话和用户索引
func (h *Hub) JoinRoom(connID, roomID, userID, username string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[connID]
	if !ok {
		return
	}
	if c.session.RoomID != roomID {
		h.removeFromRoomLocked(c, c.session.RoomID)
	}
	if c.session.UserID != "" && c.session.UserID != userID && h.users[c.session.UserID] == connID {
		delete(h.users, c.session.UserID)
	}

	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[*Client]bool)
	}
	h.rooms[roomID][c] = true
	c.session.RoomID = roomID
	c.session.UserID = userID
	c.session.Username = username
	h.users[userID] = connID
}

// LeaveRoom 把连接移出房间频道
func (h *Hub) LeaveRoom(connID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[connID]
	if !ok {
		return
	}
	h.removeFromRoomLocked(c, roomID)
	if c.session.RoomID == roomID {
		c.session.RoomID = ""
	}
}

// DetachRoom 让房间频道内的所有连接离开
func (h *Hub) DetachRoom(roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.rooms[roomID] {
		if c.session.RoomID == roomID {
			c.session.RoomID = ""
		}
	}
	delete(h.rooms, roomID)
}

// SendTo 发给单个连接
func (h *Hub) SendTo(connID, event string, payload interface{}) {
	message, ok := encode(event, payload)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if c, ok := h.clients[connID]; ok {
		c.enqueue(message)
	}
}

// Broadcast 发给房间频道内的所有连接，跳过 exceptConnID
func (h *Hub) Broadcast(roomID, event string, payload interface{}, exceptConnID string) {
	message, ok := encode(event, payload)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	roomClients := h.rooms[roomID]
	logrus.WithFields(logrus.Fields{
		"room_id":         roomID,
		"event":           event,
		"recipient_count": len(roomClients),
	}).Debug("Broadcasting message to clients")
	for c := range roomClients {
		if c.connID == exceptConnID {
			continue
		}
		c.enqueue(message)
	}
}

// --- signaling.Router ---

// SendToUser 通过 userID 索引找到当前连接并投递
func (h *Hub) SendToUser(userID, event string, payload interface{}) bool {
	message, ok := encode(event, payload)
	if !ok {
		return false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	connID, ok := h.users[userID]
	if !ok {
		return false
	}
	c, ok := h.clients[connID]
	if !ok {
		return false
	}
	return c.enqueue(message)
}

// ConnectionCount 当前连接数
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll 关闭所有连接，用于服务关闭
func (h *Hub) CloseAll() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.Unregister(c)
	}
	logrus.WithField("count", len(clients)).Info("Hub closed all client connections")
}

func encode(event string, payload interface{}) ([]byte, bool) {
	env, err := dto.NewEnvelope(event, payload)
	if err != nil {
		logrus.WithError(err).WithField("event", event).Error("Failed to marshal event payload")
		return nil, false
	}
	message, err := json.Marshal(env)
	if err != nil {
		logrus.WithError(err).WithField("event", event).Error("Failed to marshal envelope")
		return nil, false
	}
	return message, true
}
