package storage

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"vibe-meeting/internal/domain"
	"vibe-meeting/internal/repository"
)

// Store 把持久化后端和内存后端合并成一个 MessageStore。
// 每次调用先尝试持久化后端，失败时记录日志并在同一次调用里改用内存后端，
// 调用方永远看不到持久化后端的错误。
// ErrNotFound 不算失败；按主键查找时持久化后端未命中会再查一次内存后端，
// 这样停机期间写进内存的记录仍然可以找到。
type Store struct {
	durable   repository.DurableStore // 可以为 nil
	transient repository.MessageStore
}

var _ repository.MessageStore = (*Store)(nil)

// NewStore 创建统一存储。durable 为 nil 时只使用内存后端。
func NewStore(durable repository.DurableStore, transient repository.MessageStore) *Store {
	if transient == nil {
		panic("transient store cannot be nil for storage.Store")
	}
	return &Store{durable: durable, transient: transient}
}

// Durable 返回持久化后端，未配置时为 nil
func (s *Store) Durable() repository.DurableStore {
	return s.durable
}

// fallback 记录持久化后端的失败。返回 true 表示需要改用内存后端。
func (s *Store) fallback(op string, err error, fields logrus.Fields) bool {
	if err == nil || errors.Is(err, repository.ErrNotFound) {
		return false
	}
	logrus.WithFields(fields).WithError(err).WithField("op", op).
		Warn("Storage: durable backend failed, falling back to transient store")
	return true
}

func (s *Store) GetRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	if s.durable != nil {
		room, err := s.durable.GetRoom(ctx, roomID)
		if err == nil {
			return room, nil
		}
		s.fallback("GetRoom", err, logrus.Fields{"room_id": roomID})
	}
	return s.transient.GetRoom(ctx, roomID)
}

func (s *Store) CreateRoomIfAbsent(ctx context.Context, room *domain.Room) (*domain.Room, bool, error) {
	if s.durable != nil {
		candidate := room
		// 停机期间创建在内存里的房间，恢复后以原创建者写入持久化后端
		if existing, err := s.transient.GetRoom(ctx, room.RoomID); err == nil {
			candidate = existing
		}
		stored, created, err := s.durable.CreateRoomIfAbsent(ctx, candidate)
		if err == nil {
			return stored, created && candidate == room, nil
		}
		s.fallback("CreateRoomIfAbsent", err, logrus.Fields{"room_id": room.RoomID})
	}
	return s.transient.CreateRoomIfAbsent(ctx, room)
}

func (s *Store) TouchRoom(ctx context.Context, roomID string, at time.Time) error {
	if s.durable != nil {
		err := s.durable.TouchRoom(ctx, roomID, at)
		if err == nil {
			return nil
		}
		s.fallback("TouchRoom", err, logrus.Fields{"room_id": roomID})
	}
	return s.transient.TouchRoom(ctx, roomID, at)
}

// DeleteRoom 两个后端都清理，删除数量相加
func (s *Store) DeleteRoom(ctx context.Context, roomID string) (domain.RoomDeletion, error) {
	var total domain.RoomDeletion
	if s.durable != nil {
		deleted, err := s.durable.DeleteRoom(ctx, roomID)
		if err == nil {
			total = total.Add(deleted)
		} else {
			s.fallback("DeleteRoom", err, logrus.Fields{"room_id": roomID})
		}
	}
	deleted, err := s.transient.DeleteRoom(ctx, roomID)
	if err != nil {
		return total, err
	}
	return total.Add(deleted), nil
}

func (s *Store) SaveMessage(ctx context.Context, msg *domain.Message) error {
	if s.durable != nil {
		err := s.durable.SaveMessage(ctx, msg)
		if err == nil {
			return nil
		}
		s.fallback("SaveMessage", err, logrus.Fields{"room_id": msg.RoomID, "user_id": msg.UserID})
	}
	return s.transient.SaveMessage(ctx, msg)
}

func (s *Store) GetMessages(ctx context.Context, roomID string, limit int) ([]domain.Message, error) {
	if s.durable != nil {
		msgs, err := s.durable.GetMessages(ctx, roomID, limit)
		if err == nil {
			return msgs, nil
		}
		s.fallback("GetMessages", err, logrus.Fields{"room_id": roomID})
	}
	return s.transient.GetMessages(ctx, roomID, limit)
}

func (s *Store) GetParticipants(ctx context.Context, roomID string) ([]domain.Participant, error) {
	if s.durable != nil {
		participants, err := s.durable.GetParticipants(ctx, roomID)
		if err == nil {
			return participants, nil
		}
		s.fallback("GetParticipants", err, logrus.Fields{"room_id": roomID})
	}
	return s.transient.GetParticipants(ctx, roomID)
}

func (s *Store) SaveParticipant(ctx context.Context, p *domain.Participant) error {
	if s.durable != nil {
		err := s.durable.SaveParticipant(ctx, p)
		if err == nil {
			return nil
		}
		s.fallback("SaveParticipant", err, logrus.Fields{"room_id": p.RoomID, "user_id": p.UserID})
	}
	return s.transient.SaveParticipant(ctx, p)
}

func (s *Store) UpdateParticipant(ctx context.Context, roomID, userID string, update domain.ParticipantUpdate) error {
	if s.durable != nil {
		err := s.durable.UpdateParticipant(ctx, roomID, userID, update)
		if err == nil {
			return nil
		}
		s.fallback("UpdateParticipant", err, logrus.Fields{"room_id": roomID, "user_id": userID})
	}
	return s.transient.UpdateParticipant(ctx, roomID, userID, update)
}

func (s *Store) RemoveParticipant(ctx context.Context, roomID, userID string) error {
	if s.durable != nil {
		err := s.durable.RemoveParticipant(ctx, roomID, userID)
		if err == nil {
			return s.transient.RemoveParticipant(ctx, roomID, userID)
		}
		s.fallback("RemoveParticipant", err, logrus.Fields{"room_id": roomID, "user_id": userID})
	}
	return s.transient.RemoveParticipant(ctx, roomID, userID)
}

func (s *Store) FindParticipantByConnectionID(ctx context.Context, connectionID string) (*domain.Participant, error) {
	if s.durable != nil {
		p, err := s.durable.FindParticipantByConnectionID(ctx, connectionID)
		if err == nil {
			return p, nil
		}
		s.fallback("FindParticipantByConnectionID", err, logrus.Fields{"conn_id": connectionID})
	}
	return s.transient.FindParticipantByConnectionID(ctx, connectionID)
}
