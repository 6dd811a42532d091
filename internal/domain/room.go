package domain

import "time"

// 房间设置的默认值
const (
	DefaultMaxParticipants = 50
)

// RoomSettings 房间级别的设置，目前只做存储，不参与校验。
type RoomSettings struct {
	MaxParticipants int  `gorm:"not null;default:50" json:"maxParticipants"`
	AllowFileUpload bool `gorm:"not null;default:true" json:"allowFileUpload"`
	AIEnabled       bool `gorm:"not null;default:true" json:"aiEnabled"`
}

// DefaultRoomSettings 返回新建房间使用的设置。
func DefaultRoomSettings() RoomSettings {
	return RoomSettings{
		MaxParticipants: DefaultMaxParticipants,
		AllowFileUpload: true,
		AIEnabled:       true,
	}
}

// Room 表示一个会议房间。
// CreatorID 在第一次创建时确定，之后永不改变。
type Room struct {
	RoomID       string       `gorm:"primaryKey;size:191" json:"roomId"`
	CreatorID    string       `gorm:"index;size:191;not null" json:"creatorId"`
	CreatorName  string       `gorm:"size:191;not null" json:"creatorName"`
	CreatedAt    time.Time    `json:"createdAt"`
	LastActivity time.Time    `gorm:"index" json:"lastActivity"`
	Settings     RoomSettings `gorm:"embedded;embeddedPrefix:setting_" json:"settings"`
}

// IsCreator 判断 userID 是否为房间创建者
func (r *Room) IsCreator(userID string) bool {
	return r != nil && userID != "" && r.CreatorID == userID
}

// RoomInfo 是下发给客户端的房间创建者信息
type RoomInfo struct {
	CreatorID   string    `json:"creatorId"`
	CreatorName string    `json:"creatorName"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Info 提取创建者信息
func (r *Room) Info() *RoomInfo {
	if r == nil {
		return nil
	}
	return &RoomInfo{
		CreatorID:   r.CreatorID,
		CreatorName: r.CreatorName,
		CreatedAt:   r.CreatedAt,
	}
}

// RoomDeletion 记录结束会议时清理掉的数据量
type RoomDeletion struct {
	DeletedMessages     int64 `json:"deletedMessages"`
	DeletedParticipants int64 `json:"deletedParticipants"`
}

// Add 合并两个后端的清理结果
func (d RoomDeletion) Add(other RoomDeletion) RoomDeletion {
	return RoomDeletion{
		DeletedMessages:     d.DeletedMessages + other.DeletedMessages,
		DeletedParticipants: d.DeletedParticipants + other.DeletedParticipants,
	}
}
