package hub

// Session 是连接网关为每个连接维护的会话上下文。
// UserID / Username / RoomID 在 joinRoom 之后才有值。
type Session struct {
	ConnID   string
	ClientIP string
	UserID   string
	Username string
	RoomID   string
}
