package repository

import (
	"context"
	"time"

	"vibe-meeting/internal/domain"
)

// MessageStore 定义了房间、参与者和消息的存储操作。
// 持久化后端和内存后端都实现这个接口，调用方不关心当前使用的是哪一个。
type MessageStore interface {
	// GetRoom 根据 roomID 查找房间，不存在时返回 ErrRoomNotFound。
	GetRoom(ctx context.Context, roomID string) (*domain.Room, error)

	// CreateRoomIfAbsent 原子地插入房间。
	// 返回存储中的房间，以及本次调用是否真正创建了它。
	// 并发调用时只有一个调用者得到 created == true。
	CreateRoomIfAbsent(ctx context.Context, room *domain.Room) (stored *domain.Room, created bool, err error)

	// TouchRoom 刷新房间的 LastActivity。
	TouchRoom(ctx context.Context, roomID string, at time.Time) error

	// DeleteRoom 删除房间及其全部消息和参与者，返回删除的数量。
	DeleteRoom(ctx context.Context, roomID string) (domain.RoomDeletion, error)

	// SaveMessage 追加一条消息，成功后 msg.ID 被填充。
	SaveMessage(ctx context.Context, msg *domain.Message) error

	// GetMessages 返回房间最近的 limit 条消息，按时间正序。limit <= 0 表示全部。
	GetMessages(ctx context.Context, roomID string, limit int) ([]domain.Message, error)

	// GetParticipants 返回房间全部参与者，按加入时间排序。
	GetParticipants(ctx context.Context, roomID string) ([]domain.Participant, error)

	// SaveParticipant 按 (RoomID, UserID) 插入或覆盖参与者，已存在时保留 JoinTime。
	SaveParticipant(ctx context.Context, p *domain.Participant) error

	// UpdateParticipant 对参与者做部分更新，不存在时返回 ErrParticipantNotFound。
	UpdateParticipant(ctx context.Context, roomID, userID string, update domain.ParticipantUpdate) error

	// RemoveParticipant 删除参与者，不存在时不报错。
	RemoveParticipant(ctx context.Context, roomID, userID string) error

	// FindParticipantByConnectionID 通过连接 ID 反查参与者，不存在时返回 ErrParticipantNotFound。
	FindParticipantByConnectionID(ctx context.Context, connectionID string) (*domain.Participant, error)
}

// DurableStore 是持久化后端，在 MessageStore 之上提供后台任务需要的操作。
type DurableStore interface {
	MessageStore

	// MarkStaleOffline 将 LastSeen 早于 before 且仍为 online 的参与者标记为离线，返回受影响的行数。
	MarkStaleOffline(ctx context.Context, before time.Time) (int64, error)

	// PurgeMessagesBefore 删除 Timestamp 早于 before 的消息，返回删除数量。
	PurgeMessagesBefore(ctx context.Context, before time.Time) (int64, error)

	// Ping 检查后端连接。
	Ping(ctx context.Context) error
}
