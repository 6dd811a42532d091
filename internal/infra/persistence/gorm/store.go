package gormpersistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"vibe-meeting/internal/domain"
	"vibe-meeting/internal/repository"
)

// GormStore 是 DurableStore 接口的 GORM 实现
type GormStore struct {
	db *gorm.DB
}

var _ repository.DurableStore = (*GormStore)(nil)

// NewGormStore 创建 GormStore 实例
func NewGormStore(db *gorm.DB) *GormStore {
	if db == nil {
		panic("database connection cannot be nil for GormStore")
	}
	return &GormStore{db: db}
}

// isDuplicateEntry 判断是否违反唯一约束 (MySQL 1062 / Postgres 23505)
func isDuplicateEntry(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// GetRoom 根据 roomID 查找房间
func (s *GormStore) GetRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	var room domain.Room
	err := s.db.WithContext(ctx).Where("room_id = ?", roomID).First(&room).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRoomNotFound
		}
		return nil, fmt.Errorf("gorm: find room '%s': %w", roomID, err)
	}
	return &room, nil
}

// CreateRoomIfAbsent 依赖主键唯一约束做 insert-if-absent，
// RowsAffected == 1 的调用者就是创建者，之后统一读回已提交的行。
func (s *GormStore) CreateRoomIfAbsent(ctx context.Context, room *domain.Room) (*domain.Room, bool, error) {
	row := *room
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	created := result.RowsAffected == 1
	if result.Error != nil {
		if !isDuplicateEntry(result.Error) {
			return nil, false, fmt.Errorf("gorm: create room '%s': %w", room.RoomID, result.Error)
		}
		created = false
	}

	stored, err := s.GetRoom(ctx, room.RoomID)
	if err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

// TouchRoom 刷新房间活动时间
func (s *GormStore) TouchRoom(ctx context.Context, roomID string, at time.Time) error {
	result := s.db.WithContext(ctx).Model(&domain.Room{}).
		Where("room_id = ?", roomID).
		Update("last_activity", at)
	if result.Error != nil {
		return fmt.Errorf("gorm: touch room '%s': %w", roomID, result.Error)
	}
	if result.RowsAffected == 0 {
		return repository.ErrRoomNotFound
	}
	return nil
}

// DeleteRoom 在一个事务里删除消息、参与者和房间本身
func (s *GormStore) DeleteRoom(ctx context.Context, roomID string) (domain.RoomDeletion, error) {
	var deleted domain.RoomDeletion
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		msgs := tx.Where("room_id = ?", roomID).Delete(&domain.Message{})
		if msgs.Error != nil {
			return msgs.Error
		}
		parts := tx.Where("room_id = ?", roomID).Delete(&domain.Participant{})
		if parts.Error != nil {
			return parts.Error
		}
		if err := tx.Where("room_id = ?", roomID).Delete(&domain.Room{}).Error; err != nil {
			return err
		}
		deleted.DeletedMessages = msgs.RowsAffected
		deleted.DeletedParticipants = parts.RowsAffected
		return nil
	})
	if err != nil {
		return domain.RoomDeletion{}, fmt.Errorf("gorm: delete room '%s': %w", roomID, err)
	}
	return deleted, nil
}

// SaveMessage 追加消息
func (s *GormStore) SaveMessage(ctx context.Context, msg *domain.Message) error {
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("gorm: save message in room '%s': %w", msg.RoomID, err)
	}
	return nil
}

// GetMessages 倒序取最近 limit 条，再翻转成时间正序
func (s *GormStore) GetMessages(ctx context.Context, roomID string, limit int) ([]domain.Message, error) {
	var msgs []domain.Message
	query := s.db.WithContext(ctx).Where("room_id = ?", roomID).Order("timestamp DESC").Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("gorm: get messages for room '%s': %w", roomID, err)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// GetParticipants 返回房间参与者，按加入时间排序
func (s *GormStore) GetParticipants(ctx context.Context, roomID string) ([]domain.Participant, error) {
	participants := []domain.Participant{}
	err := s.db.WithContext(ctx).Where("room_id = ?", roomID).
		Order("join_time ASC").Order("user_id ASC").
		Find(&participants).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: get participants for room '%s': %w", roomID, err)
	}
	return participants, nil
}

// SaveParticipant 按 (room_id, user_id) upsert，冲突时不覆盖 join_time
func (s *GormStore) SaveParticipant(ctx context.Context, p *domain.Participant) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "room_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "status", "last_seen", "connection_id"}),
	}).Create(p).Error
	if err != nil {
		return fmt.Errorf("gorm: upsert participant '%s' in room '%s': %w", p.UserID, p.RoomID, err)
	}

	// 读回已存储的记录，拿到真实的 ID 和 JoinTime
	var stored domain.Participant
	err = s.db.WithContext(ctx).Where("room_id = ? AND user_id = ?", p.RoomID, p.UserID).First(&stored).Error
	if err != nil {
		return fmt.Errorf("gorm: reload participant '%s' in room '%s': %w", p.UserID, p.RoomID, err)
	}
	*p = stored
	return nil
}

// UpdateParticipant 部分更新，last_seen 总会被刷新
func (s *GormStore) UpdateParticipant(ctx context.Context, roomID, userID string, update domain.ParticipantUpdate) error {
	values := map[string]interface{}{"last_seen": time.Now()}
	if update.Status != nil {
		values["status"] = *update.Status
	}
	if update.ConnectionID != nil {
		values["connection_id"] = *update.ConnectionID
	}
	result := s.db.WithContext(ctx).Model(&domain.Participant{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Updates(values)
	if result.Error != nil {
		return fmt.Errorf("gorm: update participant '%s' in room '%s': %w", userID, roomID, result.Error)
	}
	if result.RowsAffected == 0 {
		return repository.ErrParticipantNotFound
	}
	return nil
}

// RemoveParticipant 删除参与者
func (s *GormStore) RemoveParticipant(ctx context.Context, roomID, userID string) error {
	err := s.db.WithContext(ctx).Where("room_id = ? AND user_id = ?", roomID, userID).Delete(&domain.Participant{}).Error
	if err != nil {
		return fmt.Errorf("gorm: remove participant '%s' from room '%s': %w", userID, roomID, err)
	}
	return nil
}

// FindParticipantByConnectionID 通过连接 ID 反查参与者
func (s *GormStore) FindParticipantByConnectionID(ctx context.Context, connectionID string) (*domain.Participant, error) {
	if connectionID == "" {
		return nil, repository.ErrParticipantNotFound
	}
	var p domain.Participant
	err := s.db.WithContext(ctx).Where("connection_id = ?", connectionID).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrParticipantNotFound
		}
		return nil, fmt.Errorf("gorm: find participant by connection '%s': %w", connectionID, err)
	}
	return &p, nil
}

// MarkStaleOffline 把长时间没有活动的参与者标记为离线并清空 connection_id。
// 在线状态由 connection_id 推导，只改 status 对客户端不可见。
func (s *GormStore) MarkStaleOffline(ctx context.Context, before time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Model(&domain.Participant{}).
		Where("status = ? AND last_seen < ?", domain.StatusOnline, before).
		Updates(map[string]interface{}{"status": domain.StatusOffline, "connection_id": ""})
	if result.Error != nil {
		return 0, fmt.Errorf("gorm: mark stale participants offline: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// PurgeMessagesBefore 删除过期消息
func (s *GormStore) PurgeMessagesBefore(ctx context.Context, before time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Where("timestamp < ?", before).Delete(&domain.Message{})
	if result.Error != nil {
		return 0, fmt.Errorf("gorm: purge messages before %s: %w", before.Format(time.RFC3339), result.Error)
	}
	return result.RowsAffected, nil
}

// Ping 检查数据库连接
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("gorm: get sql.DB: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("gorm: ping: %w", err)
	}
	return nil
}
