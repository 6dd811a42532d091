package storage_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"vibe-meeting/internal/domain"
	"vibe-meeting/internal/infra/memory"
	"vibe-meeting/internal/repository"
	"vibe-meeting/internal/repository/mocks"
	"vibe-meeting/internal/storage"
)

var errDBDown = errors.New("dial tcp 127.0.0.1:3306: connect: connection refused")

func TestStore_SaveMessage_UsesDurableWhenHealthy(t *testing.T) {
	// Arrange
	durable := mocks.NewDurableStore(t)
	transient := memory.NewStore()
	store := storage.NewStore(durable, transient)
	ctx := context.Background()
	msg := &domain.Message{RoomID: "r1", Author: "a", UserID: "u1"}
	durable.On("SaveMessage", ctx, msg).Return(nil).Once()

	// Act
	err := store.SaveMessage(ctx, msg)

	// Assert
	require.NoError(t, err)
	kept, _ := transient.GetMessages(ctx, "r1", 0)
	assert.Empty(t, kept, "持久化成功时不应写入内存后端")
}

func TestStore_SaveMessage_FallsBackOnDurableFailure(t *testing.T) {
	durable := mocks.NewDurableStore(t)
	transient := memory.NewStore()
	store := storage.NewStore(durable, transient)
	ctx := context.Background()
	msg := &domain.Message{RoomID: "r1", Author: "a", UserID: "u1", Text: "hi"}
	durable.On("SaveMessage", ctx, msg).Return(errDBDown).Once()
	durable.On("GetMessages", ctx, "r1", 50).Return(nil, errDBDown).Once()

	err := store.SaveMessage(ctx, msg)
	require.NoError(t, err, "持久化失败不能暴露给调用方")

	msgs, err := store.GetMessages(ctx, "r1", 50)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi", msgs[0].Text)
}

func TestStore_NoDurableBackend(t *testing.T) {
	store := storage.NewStore(nil, memory.NewStore())
	ctx := context.Background()

	stored, created, err := store.CreateRoomIfAbsent(ctx, &domain.Room{RoomID: "r1", CreatorID: "u1"})

	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "u1", stored.CreatorID)
	assert.Nil(t, store.Durable())
}

func TestStore_GetRoom_NotFoundIsNotAFailure(t *testing.T) {
	durable := mocks.NewDurableStore(t)
	store := storage.NewStore(durable, memory.NewStore())
	ctx := context.Background()
	durable.On("GetRoom", ctx, "r1").Return(nil, repository.ErrRoomNotFound).Once()

	_, err := store.GetRoom(ctx, "r1")

	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestStore_FindParticipantByConnectionID_ChecksTransientOnMiss(t *testing.T) {
	durable := mocks.NewDurableStore(t)
	transient := memory.NewStore()
	store := storage.NewStore(durable, transient)
	ctx := context.Background()
	require.NoError(t, transient.SaveParticipant(ctx, &domain.Participant{RoomID: "r1", UserID: "u1", ConnectionID: "c1"}))
	durable.On("FindParticipantByConnectionID", ctx, "c1").Return(nil, repository.ErrNotFound).Once()

	p, err := store.FindParticipantByConnectionID(ctx, "c1")

	require.NoError(t, err)
	assert.Equal(t, "u1", p.UserID)
}

func TestStore_CreateRoomIfAbsent_KeepsCreatorFromOutage(t *testing.T) {
	// Arrange: 持久化后端停机期间，房间已在内存后端创建
	durable := mocks.NewDurableStore(t)
	transient := memory.NewStore()
	store := storage.NewStore(durable, transient)
	ctx := context.Background()
	_, _, err := transient.CreateRoomIfAbsent(ctx, &domain.Room{RoomID: "r1", CreatorID: "alice"})
	require.NoError(t, err)

	durable.On("CreateRoomIfAbsent", ctx, mock.MatchedBy(func(r *domain.Room) bool {
		return r.CreatorID == "alice"
	})).Return(func(_ context.Context, r *domain.Room) (*domain.Room, bool, error) {
		return r, true, nil
	}).Once()

	// Act: 恢复后 bob 第一个加入
	stored, created, err := store.CreateRoomIfAbsent(ctx, &domain.Room{RoomID: "r1", CreatorID: "bob"})

	// Assert
	require.NoError(t, err)
	assert.False(t, created, "bob 不是创建者")
	assert.Equal(t, "alice", stored.CreatorID)
}

func TestStore_DeleteRoom_PurgesBothBackends(t *testing.T) {
	durable := mocks.NewDurableStore(t)
	transient := memory.NewStore()
	store := storage.NewStore(durable, transient)
	ctx := context.Background()
	require.NoError(t, transient.SaveMessage(ctx, &domain.Message{RoomID: "r1"}))
	durable.On("DeleteRoom", ctx, "r1").
		Return(domain.RoomDeletion{DeletedMessages: 4, DeletedParticipants: 2}, nil).Once()

	deleted, err := store.DeleteRoom(ctx, "r1")

	require.NoError(t, err)
	assert.Equal(t, domain.RoomDeletion{DeletedMessages: 5, DeletedParticipants: 2}, deleted)
}

func TestStore_UpdateParticipant_FallsBack(t *testing.T) {
	durable := mocks.NewDurableStore(t)
	transient := memory.NewStore()
	store := storage.NewStore(durable, transient)
	ctx := context.Background()
	require.NoError(t, transient.SaveParticipant(ctx, &domain.Participant{RoomID: "r1", UserID: "u1", ConnectionID: "c1"}))
	update := domain.OfflineUpdate()
	durable.On("UpdateParticipant", ctx, "r1", "u1", update).Return(errDBDown).Once()

	err := store.UpdateParticipant(ctx, "r1", "u1", update)

	require.NoError(t, err)
	ps, _ := transient.GetParticipants(ctx, "r1")
	require.Len(t, ps, 1)
	assert.Equal(t, domain.StatusOffline, ps[0].Status)
	assert.Empty(t, ps[0].ConnectionID)
}

func TestStore_TouchRoom_FallsBack(t *testing.T) {
	durable := mocks.NewDurableStore(t)
	transient := memory.NewStore()
	store := storage.NewStore(durable, transient)
	ctx := context.Background()
	at := time.Now()
	_, _, _ = transient.CreateRoomIfAbsent(ctx, &domain.Room{RoomID: "r1", CreatorID: "u1"})
	durable.On("TouchRoom", ctx, "r1", at).Return(errDBDown).Once()

	require.NoError(t, store.TouchRoom(ctx, "r1", at))

	room, err := transient.GetRoom(ctx, "r1")
	require.NoError(t, err)
	assert.True(t, room.LastActivity.Equal(at))
}
