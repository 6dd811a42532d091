package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"vibe-meeting/internal/domain"
	"vibe-meeting/internal/repository"
)

// 每个房间保留的消息上限，超过 MaxMessagesPerRoom 后裁剪到 TrimMessagesTo 条
const (
	MaxMessagesPerRoom = 1000
	TrimMessagesTo     = 800
)

type roomState struct {
	info         *domain.Room
	messages     []domain.Message
	participants map[string]*domain.Participant // userID -> participant
}

// Store 是 MessageStore 的进程内实现。
// 数据只保存在内存中，进程重启后丢失。
type Store struct {
	mu     sync.RWMutex
	rooms  map[string]*roomState
	nextID uint
}

var _ repository.MessageStore = (*Store)(nil)

// NewStore 创建内存存储实例
func NewStore() *Store {
	return &Store{rooms: make(map[string]*roomState)}
}

// room 返回房间状态，不存在时创建。调用方必须持有写锁。
func (s *Store) room(roomID string) *roomState {
	rs, ok := s.rooms[roomID]
	if !ok {
		rs = &roomState{participants: make(map[string]*domain.Participant)}
		s.rooms[roomID] = rs
	}
	return rs
}

func (s *Store) GetRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rs, ok := s.rooms[roomID]
	if !ok || rs.info == nil {
		return nil, repository.ErrRoomNotFound
	}
	info := *rs.info
	return &info, nil
}

func (s *Store) CreateRoomIfAbsent(ctx context.Context, room *domain.Room) (*domain.Room, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs := s.room(room.RoomID)
	if rs.info != nil {
		existing := *rs.info
		return &existing, false, nil
	}
	info := *room
	rs.info = &info
	created := info
	return &created, true, nil
}

func (s *Store) TouchRoom(ctx context.Context, roomID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs, ok := s.rooms[roomID]
	if !ok || rs.info == nil {
		return repository.ErrRoomNotFound
	}
	rs.info.LastActivity = at
	return nil
}

func (s *Store) DeleteRoom(ctx context.Context, roomID string) (domain.RoomDeletion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs, ok := s.rooms[roomID]
	if !ok {
		return domain.RoomDeletion{}, nil
	}
	delete(s.rooms, roomID)
	return domain.RoomDeletion{
		DeletedMessages:     int64(len(rs.messages)),
		DeletedParticipants: int64(len(rs.participants)),
	}, nil
}

func (s *Store) SaveMessage(ctx context.Context, msg *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	msg.ID = s.nextID

	rs := s.room(msg.RoomID)
	rs.messages = append(rs.messages, *msg)
	if len(rs.messages) > MaxMessagesPerRoom {
		// 拷贝到新切片，释放旧数组
		kept := make([]domain.Message, TrimMessagesTo)
		copy(kept, rs.messages[len(rs.messages)-TrimMessagesTo:])
		rs.messages = kept
	}
	return nil
}

func (s *Store) GetMessages(ctx context.Context, roomID string, limit int) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rs, ok := s.rooms[roomID]
	if !ok {
		return []domain.Message{}, nil
	}
	msgs := rs.messages
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]domain.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *Store) GetParticipants(ctx context.Context, roomID string) ([]domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rs, ok := s.rooms[roomID]
	if !ok {
		return []domain.Participant{}, nil
	}
	out := make([]domain.Participant, 0, len(rs.participants))
	for _, p := range rs.participants {
		out = append(out, *p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].JoinTime.Equal(out[j].JoinTime) {
			return out[i].UserID < out[j].UserID
		}
		return out[i].JoinTime.Before(out[j].JoinTime)
	})
	return out, nil
}

func (s *Store) SaveParticipant(ctx context.Context, p *domain.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs := s.room(p.RoomID)
	saved := *p
	if existing, ok := rs.participants[p.UserID]; ok {
		saved.JoinTime = existing.JoinTime
		p.JoinTime = existing.JoinTime
	}
	rs.participants[p.UserID] = &saved
	return nil
}

func (s *Store) UpdateParticipant(ctx context.Context, roomID, userID string, update domain.ParticipantUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs, ok := s.rooms[roomID]
	if !ok {
		return repository.ErrParticipantNotFound
	}
	p, ok := rs.participants[userID]
	if !ok {
		return repository.ErrParticipantNotFound
	}
	update.Apply(p, time.Now())
	return nil
}

func (s *Store) RemoveParticipant(ctx context.Context, roomID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rs, ok := s.rooms[roomID]; ok {
		delete(rs.participants, userID)
	}
	return nil
}

func (s *Store) FindParticipantByConnectionID(ctx context.Context, connectionID string) (*domain.Participant, error) {
	if connectionID == "" {
		return nil, repository.ErrParticipantNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rs := range s.rooms {
		for _, p := range rs.participants {
			if p.ConnectionID == connectionID {
				found := *p
				return &found, nil
			}
		}
	}
	return nil, repository.ErrParticipantNotFound
}
