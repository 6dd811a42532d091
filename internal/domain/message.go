package domain

import "time"

// 消息类型
const (
	MessageTypeUser          = "user"
	MessageTypeTranscription = "transcription"
)

// DisplayTimeLayout 消息展示时间的格式 (HH:MM)
const DisplayTimeLayout = "15:04"

// TranscriptionAuthor 语音转录消息的作者名
const TranscriptionAuthor = "语音转录"

// FileDescriptor 消息附带的文件信息
type FileDescriptor struct {
	Name string `json:"name"`
	Size string `json:"size"`
	Type string `json:"type"`
	URL  string `json:"url"`
}

// Message 表示房间里的一条消息，只追加，不修改。
type Message struct {
	ID           uint            `gorm:"primaryKey" json:"id,omitempty"`
	RoomID       string          `gorm:"size:191;not null;index:idx_room_timestamp,priority:1" json:"roomId"`
	Type         string          `gorm:"size:32;not null" json:"type"`
	Text         string          `gorm:"type:text" json:"text"`
	Author       string          `gorm:"size:191;not null" json:"author"`
	UserID       string          `gorm:"size:191;not null" json:"userId"`
	Time         string          `gorm:"size:32;not null" json:"time"`
	Timestamp    time.Time       `gorm:"not null;index;index:idx_room_timestamp,priority:2" json:"timestamp"`
	File         *FileDescriptor `gorm:"serializer:json;type:text" json:"file"`
	IsAIQuestion bool            `gorm:"not null;default:false" json:"isAIQuestion"`
	OriginUserID string          `gorm:"size:191" json:"originUserId,omitempty"`
}
