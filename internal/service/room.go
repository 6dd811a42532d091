package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"vibe-meeting/internal/domain"
	"vibe-meeting/internal/dto"
	"vibe-meeting/internal/repository"
)

// HistoryLimit 加入房间时下发的历史消息条数
const HistoryLimit = 50

// 结束会议时下发的提示
const (
	meetingEndedMessage      = "会议已被创建者结束，房间数据已清理"
	endMeetingSuccessMessage = "会议已成功结束"
)

// Broadcaster 是服务层看到的连接网关。
// 实现方不能阻塞：RoomService 会在持有房间锁时调用这些方法。
type Broadcaster interface {
	// JoinRoom 把连接加入房间频道，并记录连接的身份
	JoinRoom(connID, roomID, userID, username string)
	// LeaveRoom 把连接移出房间频道
	LeaveRoom(connID, roomID string)
	// DetachRoom 让房间频道内的所有连接离开
	DetachRoom(roomID string)
	// SendTo 发给单个连接
	SendTo(connID, event string, payload interface{})
	// Broadcast 发给房间频道内的所有连接，exceptConnID 非空时跳过该连接
	Broadcast(roomID, event string, payload interface{}, exceptConnID string)
}

// Caller 发起请求的连接及其当前会话状态
type Caller struct {
	ConnID string
	RoomID string // 连接当前所在的房间，可能为空
	UserID string
}

// RoomService 管理房间、参与者、创建者以及消息广播
type RoomService struct {
	store    repository.MessageStore
	out      Broadcaster
	validate *validator.Validate
	locks    *roomLocks
	now      func() time.Time
}

// NewRoomService 创建 RoomService 实例
func NewRoomService(store repository.MessageStore, out Broadcaster) *RoomService {
	if store == nil || out == nil {
		panic("RoomService requires non-nil store and broadcaster")
	}
	return &RoomService{
		store:    store,
		out:      out,
		validate: NewValidator(),
		locks:    newRoomLocks(),
		now:      time.Now,
	}
}

// SetClock 替换时钟，仅用于测试
func (s *RoomService) SetClock(now func() time.Time) {
	s.now = now
}

// JoinRoom 加入房间。
// 连接之前在别的房间时先执行离开逻辑；房间不存在时由本次调用创建，调用者成为创建者。
// roomData 在持有房间锁时直接发给调用者，保证它先于 participantsUpdate 到达。
func (s *RoomService) JoinRoom(ctx context.Context, caller Caller, req dto.JoinRoomRequest) (*dto.RoomData, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}

	if caller.RoomID != "" && caller.RoomID != req.RoomID {
		s.leave(ctx, caller.ConnID, caller.RoomID, caller.UserID)
	}

	unlock := s.locks.lock(req.RoomID)
	defer unlock()

	log := logrus.WithFields(logrus.Fields{"room_id": req.RoomID, "user_id": req.UserID, "conn_id": caller.ConnID})
	now := s.now()

	s.out.JoinRoom(caller.ConnID, req.RoomID, req.UserID, req.Username)

	// 同名但不同 userId 的参与者降为离线
	existing, err := s.store.GetParticipants(ctx, req.RoomID)
	if err != nil {
		return nil, internalError("get participants", err)
	}
	for _, p := range existing {
		if p.Name == req.Username && p.UserID != req.UserID {
			if err := s.store.UpdateParticipant(ctx, req.RoomID, p.UserID, domain.OfflineUpdate()); err != nil && !errors.Is(err, repository.ErrNotFound) {
				log.WithError(err).WithField("evicted_user_id", p.UserID).Warn("JoinRoom: failed to evict same-name participant")
			}
		}
	}

	room, created, err := s.store.CreateRoomIfAbsent(ctx, &domain.Room{
		RoomID:       req.RoomID,
		CreatorID:    req.UserID,
		CreatorName:  req.Username,
		CreatedAt:    now,
		LastActivity: now,
		Settings:     domain.DefaultRoomSettings(),
	})
	if err != nil {
		return nil, internalError("create room", err)
	}
	if created {
		log.Info("Room created")
	} else {
		if err := s.store.TouchRoom(ctx, req.RoomID, now); err != nil {
			log.WithError(err).Warn("JoinRoom: failed to update room activity")
		}
		room.LastActivity = now
	}

	participant := &domain.Participant{
		RoomID:       req.RoomID,
		UserID:       req.UserID,
		Name:         req.Username,
		Status:       domain.StatusOnline,
		JoinTime:     now,
		LastSeen:     now,
		ConnectionID: caller.ConnID,
	}
	if err := s.store.SaveParticipant(ctx, participant); err != nil {
		return nil, internalError("save participant", err)
	}

	messages, err := s.store.GetMessages(ctx, req.RoomID, HistoryLimit)
	if err != nil {
		return nil, internalError("get messages", err)
	}
	participants, err := s.participantList(ctx, req.RoomID)
	if err != nil {
		return nil, internalError("get participants", err)
	}

	data := &dto.RoomData{
		Messages:     messages,
		Participants: participants,
		RoomInfo:     room.Info(),
		IsCreator:    room.IsCreator(req.UserID),
	}
	s.out.SendTo(caller.ConnID, dto.EventRoomData, data)
	s.out.Broadcast(req.RoomID, dto.EventUserJoined, participant, caller.ConnID)
	s.out.Broadcast(req.RoomID, dto.EventParticipantsUpdate, participants, "")

	log.WithFields(logrus.Fields{"is_creator": data.IsCreator, "creator_id": room.CreatorID}).Info("User joined room")
	return data, nil
}

// LeaveRoom 主动离开房间：参与者标记为离线，房间和消息保留
func (s *RoomService) LeaveRoom(ctx context.Context, caller Caller, req dto.LeaveRoomRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return validationError(err)
	}
	s.leave(ctx, caller.ConnID, req.RoomID, req.UserID)
	return nil
}

// leave 执行离开逻辑。失败只记录日志。
func (s *RoomService) leave(ctx context.Context, connID, roomID, userID string) {
	unlock := s.locks.lock(roomID)
	defer unlock()

	s.out.LeaveRoom(connID, roomID)
	s.markOfflineAndNotify(ctx, roomID, userID, connID)
}

// markOfflineAndNotify 标记离线并通知房间。调用方必须持有房间锁。
func (s *RoomService) markOfflineAndNotify(ctx context.Context, roomID, userID, connID string) {
	log := logrus.WithFields(logrus.Fields{"room_id": roomID, "user_id": userID, "conn_id": connID})
	if userID != "" {
		err := s.store.UpdateParticipant(ctx, roomID, userID, domain.OfflineUpdate())
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			log.WithError(err).Error("Failed to mark participant offline")
		}
	}

	s.out.Broadcast(roomID, dto.EventUserLeft, dto.UserLeft{UserID: userID}, connID)
	participants, err := s.participantList(ctx, roomID)
	if err != nil {
		log.WithError(err).Error("Failed to load participants after leave")
		return
	}
	s.out.Broadcast(roomID, dto.EventParticipantsUpdate, participants, "")
	log.Info("User left room")
}

// Disconnect 连接断开时调用。通过连接 ID 反查参与者，执行与 LeaveRoom 相同的逻辑。
func (s *RoomService) Disconnect(ctx context.Context, connID string) {
	p, err := s.store.FindParticipantByConnectionID(ctx, connID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			logrus.WithError(err).WithField("conn_id", connID).Error("Disconnect: failed to look up participant")
		}
		return
	}

	unlock := s.locks.lock(p.RoomID)
	defer unlock()

	// 加锁后再确认一次，期间同一用户可能已经用新连接重新加入
	current, err := s.store.FindParticipantByConnectionID(ctx, connID)
	if err != nil || current.RoomID != p.RoomID || current.UserID != p.UserID {
		return
	}
	s.out.LeaveRoom(connID, p.RoomID)
	s.markOfflineAndNotify(ctx, p.RoomID, p.UserID, connID)
}

// SendMessage 保存消息并广播给房间内所有连接 (包括发送者)
func (s *RoomService) SendMessage(ctx context.Context, caller Caller, req dto.SendMessageRequest) (*domain.Message, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}

	now := s.now()
	msg := &domain.Message{
		RoomID:       req.RoomID,
		Type:         req.Type,
		Text:         req.Text,
		Author:       req.Author,
		UserID:       req.UserID,
		Time:         req.Time,
		Timestamp:    now,
		File:         req.File,
		IsAIQuestion: req.IsAIQuestion,
		OriginUserID: req.OriginUserID,
	}
	if msg.Type == "" {
		msg.Type = domain.MessageTypeUser
	}
	if msg.Time == "" {
		msg.Time = now.Format(domain.DisplayTimeLayout)
	}
	if req.Timestamp != nil && !req.Timestamp.IsZero() {
		msg.Timestamp = *req.Timestamp
	}

	unlock := s.locks.lock(req.RoomID)
	defer unlock()

	if err := s.store.SaveMessage(ctx, msg); err != nil {
		return nil, internalError("save message", err)
	}
	s.out.Broadcast(req.RoomID, dto.EventNewMessage, msg, "")

	if err := s.store.UpdateParticipant(ctx, req.RoomID, req.UserID, domain.TouchUpdate()); err != nil && !errors.Is(err, repository.ErrNotFound) {
		logrus.WithError(err).WithFields(logrus.Fields{"room_id": req.RoomID, "user_id": req.UserID}).Warn("SendMessage: failed to update last seen")
	}

	logrus.WithFields(logrus.Fields{"room_id": req.RoomID, "user_id": req.UserID, "type": msg.Type}).Debug("Message sent")
	return msg, nil
}

// Typing 把输入状态转发给房间内其他连接
func (s *RoomService) Typing(ctx context.Context, caller Caller, req dto.TypingRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return validationError(err)
	}
	s.out.Broadcast(req.RoomID, dto.EventUserTyping, dto.UserTyping{
		UserID:   req.UserID,
		Username: req.Username,
		IsTyping: req.IsTyping,
	}, caller.ConnID)
	return nil
}

// EndMeeting 结束会议。只有创建者可以操作，成功后删除房间的全部数据，
// 通知房间内所有连接并让它们离开频道。
func (s *RoomService) EndMeeting(ctx context.Context, caller Caller, req dto.EndMeetingRequest) (domain.RoomDeletion, error) {
	if err := s.validate.Struct(req); err != nil {
		return domain.RoomDeletion{}, validationError(err)
	}

	unlock := s.locks.lock(req.RoomID)
	defer unlock()

	log := logrus.WithFields(logrus.Fields{"room_id": req.RoomID, "user_id": req.UserID})

	room, err := s.store.GetRoom(ctx, req.RoomID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return domain.RoomDeletion{}, internalError("get room", err)
	}
	if !room.IsCreator(req.UserID) {
		log.Warn("EndMeeting: rejected, caller is not the creator")
		return domain.RoomDeletion{}, ErrNotCreator
	}

	deleted, err := s.store.DeleteRoom(ctx, req.RoomID)
	if err != nil {
		return domain.RoomDeletion{}, internalError("delete room", err)
	}

	s.out.Broadcast(req.RoomID, dto.EventMeetingEnded, dto.MeetingEnded{
		Message:             meetingEndedMessage,
		DeletedMessages:     deleted.DeletedMessages,
		DeletedParticipants: deleted.DeletedParticipants,
	}, "")
	s.out.DetachRoom(req.RoomID)
	s.out.SendTo(caller.ConnID, dto.EventEndMeetingSuccess, dto.MeetingEnded{
		Message:             endMeetingSuccessMessage,
		DeletedMessages:     deleted.DeletedMessages,
		DeletedParticipants: deleted.DeletedParticipants,
	})

	log.WithFields(logrus.Fields{
		"deleted_messages":     deleted.DeletedMessages,
		"deleted_participants": deleted.DeletedParticipants,
	}).Info("Meeting ended")
	return deleted, nil
}

// GetMessages 读取房间最近的消息，供 REST 接口使用
func (s *RoomService) GetMessages(ctx context.Context, roomID string, limit int) ([]domain.Message, error) {
	if roomID == "" {
		return nil, ErrValidation
	}
	if limit <= 0 {
		limit = HistoryLimit
	}
	msgs, err := s.store.GetMessages(ctx, roomID, limit)
	if err != nil {
		return nil, internalError("get messages", err)
	}
	return msgs, nil
}

// GetParticipants 读取房间参与者，状态按连接绑定重新计算
func (s *RoomService) GetParticipants(ctx context.Context, roomID string) ([]domain.Participant, error) {
	if roomID == "" {
		return nil, ErrValidation
	}
	participants, err := s.participantList(ctx, roomID)
	if err != nil {
		return nil, internalError("get participants", err)
	}
	return participants, nil
}

// SaveTranscript 把语音转录结果保存为一条 transcription 消息
func (s *RoomService) SaveTranscript(ctx context.Context, roomID, userID, text string) (*domain.Message, error) {
	if roomID == "" {
		roomID = "unknown"
	}
	if userID == "" {
		userID = "anonymous"
	}
	now := s.now()
	msg := &domain.Message{
		RoomID:    roomID,
		Type:      domain.MessageTypeTranscription,
		Text:      text,
		Author:    domain.TranscriptionAuthor,
		UserID:    userID,
		Time:      now.Format(domain.DisplayTimeLayout),
		Timestamp: now,
	}

	unlock := s.locks.lock(roomID)
	defer unlock()
	if err := s.store.SaveMessage(ctx, msg); err != nil {
		return nil, internalError("save transcript", err)
	}
	return msg, nil
}

func (s *RoomService) participantList(ctx context.Context, roomID string) ([]domain.Participant, error) {
	participants, err := s.store.GetParticipants(ctx, roomID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Participant, len(participants))
	for i, p := range participants {
		out[i] = p.WithComputedStatus()
	}
	return out, nil
}
