package dto

import (
	"encoding/json"
	"time"

	"vibe-meeting/internal/domain"

	"github.com/pion/webrtc/v4"
)

// 入站事件名
const (
	EventJoinRoom     = "joinRoom"
	EventLeaveRoom    = "leaveRoom"
	EventSendMessage  = "sendMessage"
	EventTyping       = "typing"
	EventEndMeeting   = "endMeeting"
	EventCallInvite   = "callInvite"
	EventCallAccept   = "callAccept"
	EventCallReject   = "callReject"
	EventCallEnd      = "callEnd"
	EventCallOffer    = "callOffer"
	EventCallAnswer   = "callAnswer"
	EventICECandidate = "iceCandidate"
)

// 出站事件名
const (
	EventRoomData           = "roomData"
	EventNewMessage         = "newMessage"
	EventParticipantsUpdate = "participantsUpdate"
	EventUserJoined         = "userJoined"
	EventUserLeft           = "userLeft"
	EventUserTyping         = "userTyping"
	EventMeetingEnded       = "meetingEnded"
	EventEndMeetingSuccess  = "endMeetingSuccess"
	EventError              = "error"
)

// 错误码
const (
	ErrorCodeValidation  = "validation_error"
	ErrorCodeNotCreator  = "not_creator"
	ErrorCodeRateLimited = "rate_limited"
	ErrorCodeInternal    = "internal_error"
)

// Envelope 是 WebSocket 上传输的统一消息格式
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope 序列化 payload 并封装成 Envelope
func NewEnvelope(event string, payload interface{}) (Envelope, error) {
	if payload == nil {
		return Envelope{Event: event}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: data}, nil
}

// --- 入站 ---

type JoinRoomRequest struct {
	RoomID   string `json:"roomId" validate:"required"`
	UserID   string `json:"userId" validate:"required"`
	Username string `json:"username" validate:"required"`
}

type LeaveRoomRequest struct {
	RoomID string `json:"roomId" validate:"required"`
	UserID string `json:"userId" validate:"required"`
}

// SendMessageRequest 中 Time/Timestamp 缺省时由服务端填充
type SendMessageRequest struct {
	RoomID       string                 `json:"roomId" validate:"required"`
	Type         string                 `json:"type"`
	Text         string                 `json:"text"`
	Author       string                 `json:"author" validate:"required"`
	UserID       string                 `json:"userId" validate:"required"`
	Time         string                 `json:"time"`
	Timestamp    *time.Time             `json:"timestamp"`
	File         *domain.FileDescriptor `json:"file"`
	IsAIQuestion bool                   `json:"isAIQuestion"`
	OriginUserID string                 `json:"originUserId"`
}

type TypingRequest struct {
	RoomID   string `json:"roomId" validate:"required"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}

type EndMeetingRequest struct {
	RoomID string `json:"roomId" validate:"required"`
	UserID string `json:"userId" validate:"required"`
}

type CallInvite struct {
	RoomID     string `json:"roomId" validate:"required"`
	CallerID   string `json:"callerId"`
	CallerName string `json:"callerName"`
}

type CallAccept struct {
	RoomID   string `json:"roomId" validate:"required"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

type CallReject struct {
	RoomID string `json:"roomId" validate:"required"`
	UserID string `json:"userId"`
	Reason string `json:"reason,omitempty"`
}

type CallEnd struct {
	RoomID string `json:"roomId" validate:"required"`
	UserID string `json:"userId"`
}

// CallOffer / CallAnswer / ICECandidate 为点对点协商消息，只投递给 TargetUserID 当前的连接
type CallOffer struct {
	RoomID       string                     `json:"roomId"`
	TargetUserID string                     `json:"targetUserId" validate:"required"`
	FromUserID   string                     `json:"fromUserId"`
	Offer        *webrtc.SessionDescription `json:"offer" validate:"required"`
}

type CallAnswer struct {
	RoomID       string                     `json:"roomId"`
	TargetUserID string                     `json:"targetUserId" validate:"required"`
	FromUserID   string                     `json:"fromUserId"`
	Answer       *webrtc.SessionDescription `json:"answer" validate:"required"`
}

type ICECandidate struct {
	RoomID       string                   `json:"roomId"`
	TargetUserID string                   `json:"targetUserId" validate:"required"`
	FromUserID   string                   `json:"fromUserId"`
	Candidate    *webrtc.ICECandidateInit `json:"candidate"`
}

// --- 出站 ---

// RoomData 加入房间后下发给加入者的快照
type RoomData struct {
	Messages     []domain.Message     `json:"messages"`
	Participants []domain.Participant `json:"participants"`
	RoomInfo     *domain.RoomInfo     `json:"roomInfo"`
	IsCreator    bool                 `json:"isCreator"`
}

type UserLeft struct {
	UserID string `json:"userId"`
}

type UserTyping struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}

// MeetingEnded 同时用于 meetingEnded 广播和 endMeetingSuccess 回执
type MeetingEnded struct {
	Message             string `json:"message"`
	DeletedMessages     int64  `json:"deletedMessages"`
	DeletedParticipants int64  `json:"deletedParticipants"`
}

// ErrorPayload 是 error 事件的内容
type ErrorPayload struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	RetryAfterMs int64  `json:"retryAfterMs,omitempty"`
}
