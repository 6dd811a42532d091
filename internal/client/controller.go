package client

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"vibe-meeting/internal/dto"
)

// State 连接状态机的状态
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
	LocalFallback // 自动重连次数用尽，只能手动重新连接
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case LocalFallback:
		return "local_fallback"
	default:
		return "unknown"
	}
}

// Status 返回的对外状态
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
	StatusLocal   = "local"
)

// 默认重连参数
const (
	DefaultBaseDelay   = 2 * time.Second
	DefaultMaxDelay    = 30 * time.Second
	DefaultMaxAttempts = 5
)

// ErrNotConnected 当前没有可用连接
var ErrNotConnected = errors.New("not connected")

// rateLimitHint 服务端限流提示里的关键字
const rateLimitHint = "频率过高"

// Config 控制器配置
type Config struct {
	URL         string
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
	DialTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = defaultHandshakeTimeout
	}
	return c
}

// Timer 可取消的定时器
type Timer interface {
	Stop() bool
}

// AfterFunc 在 d 之后调用 f，测试中可以替换
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Identity 最近一次加入房间使用的身份，重连后自动重新加入
type Identity struct {
	RoomID   string
	UserID   string
	Username string
}

// Controller 管理客户端连接状态、退避重连以及自动重新加入房间。
// 任意时刻最多只有一个连接和一个重连定时器。
type Controller struct {
	mu        sync.Mutex
	cfg       Config
	dialer    Dialer
	afterFunc AfterFunc
	handlers  Handlers

	state       State
	attempts    int
	conn        Conn
	timer       Timer
	gen         uint64 // 每次新连接/新定时器/主动断开时递增，旧的回调据此失效
	identity    *Identity
	rateLimited bool
}

// NewController 创建控制器，初始状态为 Disconnected
func NewController(cfg Config, dialer Dialer) *Controller {
	if dialer == nil {
		panic("Dialer cannot be nil for Controller")
	}
	return &Controller{
		cfg:       cfg.withDefaults(),
		dialer:    dialer,
		afterFunc: realAfterFunc,
		handlers:  Handlers{}.withDefaults(),
	}
}

// SetAfterFunc 替换定时器实现
func (c *Controller) SetAfterFunc(fn AfterFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.afterFunc = fn
}

// SetHandlers 一次性注册全部回调，未设置的为空操作
func (c *Controller) SetHandlers(h Handlers) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = h.withDefaults()
}

// State 当前状态
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempts 连续失败的自动重连次数
func (c *Controller) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Identity 返回记录的身份，没有时返回 nil
func (c *Controller) Identity() *Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.identity == nil {
		return nil
	}
	id := *c.identity
	return &id
}

// IsOnline 已连接且不在本地模式
func (c *Controller) IsOnline() bool {
	return c.State() == Connected
}

// Status 返回 online / offline / local
func (c *Controller) Status() string {
	switch c.State() {
	case LocalFallback:
		return StatusLocal
	case Connected:
		return StatusOnline
	default:
		return StatusOffline
	}
}

// backoff 第 attempts 次重连的等待时间: min(base*2^attempts, max)
func (c *Controller) backoff(attempts int) time.Duration {
	delay := c.cfg.BaseDelay
	for i := 0; i < attempts; i++ {
		delay *= 2
		if delay >= c.cfg.MaxDelay {
			return c.cfg.MaxDelay
		}
	}
	if delay > c.cfg.MaxDelay {
		return c.cfg.MaxDelay
	}
	return delay
}

// setStateLocked 调用方持有锁，返回需要在锁外执行的通知
func (c *Controller) setStateLocked(to State) func() {
	from := c.state
	if from == to {
		return func() {}
	}
	c.state = to
	notify := c.handlers.OnStateChange
	return func() { notify(from, to) }
}

func (c *Controller) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// Connect 手动发起连接。LocalFallback 状态下会清零重连计数重新开始。
// 已经连接或正在连接时直接返回。
func (c *Controller) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == Connected || c.state == Connecting {
		c.mu.Unlock()
		return nil
	}
	if c.state == LocalFallback {
		c.attempts = 0
	}
	c.stopTimerLocked()
	c.gen++
	gen := c.gen
	notify := c.setStateLocked(Connecting)
	c.mu.Unlock()

	notify()
	return c.attempt(ctx, gen)
}

// attempt 执行一次拨号。失败时按退避策略安排下一次重连。
func (c *Controller) attempt(ctx context.Context, gen uint64) error {
	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	defer cancel()
	conn, err := c.dialer.Dial(dialCtx, c.cfg.URL)

	c.mu.Lock()
	if gen != c.gen || c.state != Connecting {
		// 期间被主动断开或者被新的连接取代
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return ErrNotConnected
	}
	if err != nil {
		logCtx := logrus.WithFields(logrus.Fields{"url": c.cfg.URL, "attempts": c.attempts})
		logCtx.WithError(err).Warn("Connection attempt failed")
		notify := c.scheduleReconnectLocked(errors.Is(err, ErrRateLimited))
		c.mu.Unlock()
		notify()
		return err
	}

	c.conn = conn
	c.attempts = 0
	c.rateLimited = false
	c.stopTimerLocked()
	notify := c.setStateLocked(Connected)
	identity := c.identity
	handlers := c.handlers
	c.mu.Unlock()

	logrus.WithField("url", c.cfg.URL).Info("Realtime connection established")
	go c.readLoop(gen, conn)
	notify()
	handlers.OnConnectionChange(true)

	if identity != nil {
		// 重连成功后自动重新加入之前的房间
		if err := c.emit(dto.EventJoinRoom, dto.JoinRoomRequest{
			RoomID:   identity.RoomID,
			UserID:   identity.UserID,
			Username: identity.Username,
		}); err != nil {
			logrus.WithError(err).Warn("Failed to rejoin room after reconnect")
		}
	}
	return nil
}

// scheduleReconnectLocked 安排下一次重连，次数用尽时进入 LocalFallback。
// 限流时直接使用最大延迟。
func (c *Controller) scheduleReconnectLocked(rateLimited bool) func() {
	c.stopTimerLocked()
	if c.attempts >= c.cfg.MaxAttempts {
		logrus.WithField("attempts", c.attempts).Warn("Max reconnect attempts reached, switching to local mode")
		return c.setStateLocked(LocalFallback)
	}

	delay := c.backoff(c.attempts)
	if rateLimited {
		delay = c.cfg.MaxDelay
	}
	c.gen++
	gen := c.gen
	c.timer = c.afterFunc(delay, func() { c.fire(gen) })
	logrus.WithFields(logrus.Fields{
		"delay":    delay,
		"attempt":  c.attempts + 1,
		"max":      c.cfg.MaxAttempts,
		"url":      c.cfg.URL,
		"throttle": rateLimited,
	}).Info("Reconnect scheduled")
	return c.setStateLocked(Reconnecting)
}

// fire 定时器到期
func (c *Controller) fire(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.state != Reconnecting {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.attempts++
	notify := c.setStateLocked(Connecting)
	c.mu.Unlock()

	notify()
	_ = c.attempt(context.Background(), gen)
}

// readLoop 读取服务端事件，连接断开时触发重连
func (c *Controller) readLoop(gen uint64, conn Conn) {
	for {
		env, err := conn.ReadEnvelope()
		if err != nil {
			c.connectionLost(gen, conn, err)
			return
		}
		if env.Event == dto.EventError {
			c.noteError(env)
		}
		c.mu.Lock()
		stale := gen != c.gen
		handlers := c.handlers
		c.mu.Unlock()
		if stale {
			return
		}
		handlers.dispatch(env)
	}
}

// noteError 记录服务端的限流通知，服务端随后会关闭连接
func (c *Controller) noteError(env dto.Envelope) {
	var payload dto.ErrorPayload
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		return
	}
	if payload.Code == dto.ErrorCodeRateLimited || strings.Contains(payload.Message, rateLimitHint) {
		c.mu.Lock()
		c.rateLimited = true
		c.mu.Unlock()
	}
}

func (c *Controller) connectionLost(gen uint64, conn Conn, err error) {
	_ = conn.Close()

	c.mu.Lock()
	if gen != c.gen || c.conn != conn {
		// 主动断开或已被替换
		c.mu.Unlock()
		return
	}
	c.conn = nil
	rateLimited := c.rateLimited
	c.rateLimited = false
	handlers := c.handlers
	notify := c.scheduleReconnectLocked(rateLimited)
	c.mu.Unlock()

	logrus.WithError(err).Warn("Realtime connection lost")
	handlers.OnConnectionChange(false)
	notify()
}

// Disconnect 主动断开。不会触发重连，并清空记录的身份和重连计数。
func (c *Controller) Disconnect() {
	c.mu.Lock()
	c.gen++
	c.stopTimerLocked()
	conn := c.conn
	c.conn = nil
	wasConnected := c.state == Connected
	c.attempts = 0
	c.identity = nil
	c.rateLimited = false
	notify := c.setStateLocked(Disconnected)
	handlers := c.handlers
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	notify()
	if wasConnected {
		handlers.OnConnectionChange(false)
	}
}

// emit 在当前连接上发送事件
func (c *Controller) emit(event string, payload interface{}) error {
	c.mu.Lock()
	conn := c.conn
	connected := c.state == Connected
	c.mu.Unlock()
	if !connected || conn == nil {
		return ErrNotConnected
	}
	env, err := dto.NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	return conn.WriteEnvelope(env)
}

// Emit 发送任意事件，主要用于通话信令
func (c *Controller) Emit(event string, payload interface{}) error {
	return c.emit(event, payload)
}

// JoinRoom 记录身份并在已连接时发送 joinRoom。未连接时会在连接建立后自动加入。
func (c *Controller) JoinRoom(roomID, userID, username string) error {
	c.mu.Lock()
	c.identity = &Identity{RoomID: roomID, UserID: userID, Username: username}
	connected := c.state == Connected
	c.mu.Unlock()
	if !connected {
		return nil
	}
	return c.emit(dto.EventJoinRoom, dto.JoinRoomRequest{RoomID: roomID, UserID: userID, Username: username})
}

// LeaveRoom 发送 leaveRoom 并清空记录的身份
func (c *Controller) LeaveRoom(roomID, userID string) error {
	c.mu.Lock()
	c.identity = nil
	c.mu.Unlock()
	err := c.emit(dto.EventLeaveRoom, dto.LeaveRoomRequest{RoomID: roomID, UserID: userID})
	if errors.Is(err, ErrNotConnected) {
		return nil
	}
	return err
}

// SendMessage 发送聊天消息
func (c *Controller) SendMessage(req dto.SendMessageRequest) error {
	return c.emit(dto.EventSendMessage, req)
}

// SendTyping 发送输入状态
func (c *Controller) SendTyping(req dto.TypingRequest) error {
	return c.emit(dto.EventTyping, req)
}

// EndMeeting 请求结束会议，只有创建者会成功
func (c *Controller) EndMeeting(roomID, userID string) error {
	return c.emit(dto.EventEndMeeting, dto.EndMeetingRequest{RoomID: roomID, UserID: userID})
}
