package domain

import "time"

// 参与者在线状态
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Participant 表示房间中的一个参与者，(RoomID, UserID) 唯一。
// ConnectionID 为空表示当前没有绑定的连接。
type Participant struct {
	ID           uint      `gorm:"primaryKey" json:"-"`
	RoomID       string    `gorm:"size:191;not null;uniqueIndex:idx_room_user" json:"roomId"`
	UserID       string    `gorm:"size:191;not null;uniqueIndex:idx_room_user" json:"userId"`
	Name         string    `gorm:"size:191;not null" json:"name"`
	Status       string    `gorm:"size:16;not null;default:online;index:idx_status_last_seen" json:"status"`
	JoinTime     time.Time `gorm:"index" json:"joinTime"`
	LastSeen     time.Time `gorm:"index:idx_status_last_seen" json:"lastSeen"`
	ConnectionID string    `gorm:"size:64;index" json:"connectionId,omitempty"`
}

// Online 在线状态由是否绑定连接推导
func (p Participant) Online() bool {
	return p.ConnectionID != ""
}

// WithComputedStatus 返回按连接绑定重新计算状态后的副本
func (p Participant) WithComputedStatus() Participant {
	if p.Online() {
		p.Status = StatusOnline
	} else {
		p.Status = StatusOffline
	}
	return p
}

// ParticipantUpdate 描述对参与者的部分更新，nil 字段保持不变。
// LastSeen 总是会被刷新。
type ParticipantUpdate struct {
	Status       *string
	ConnectionID *string
}

// OfflineUpdate 将参与者标记为离线并清空连接
func OfflineUpdate() ParticipantUpdate {
	status := StatusOffline
	conn := ""
	return ParticipantUpdate{Status: &status, ConnectionID: &conn}
}

// TouchUpdate 只刷新 LastSeen
func TouchUpdate() ParticipantUpdate {
	return ParticipantUpdate{}
}

// Apply 把更新写入参与者
func (u ParticipantUpdate) Apply(p *Participant, now time.Time) {
	if u.Status != nil {
		p.Status = *u.Status
	}
	if u.ConnectionID != nil {
		p.ConnectionID = *u.ConnectionID
	}
	p.LastSeen = now
}
