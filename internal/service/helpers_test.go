package service_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"vibe-meeting/internal/dto"
	"vibe-meeting/internal/infra/memory"
	"vibe-meeting/internal/service"
)

// sent 记录一次出站事件
type sent struct {
	To      string // 连接 ID
	Event   string
	Payload interface{}
}

// fakeBroadcaster 在内存里模拟房间频道，记录每个连接收到的事件
type fakeBroadcaster struct {
	mu       sync.Mutex
	channels map[string]map[string]bool // roomID -> connIDs
	events   []sent
}

func newFakeBroadcaster() *fakeBroadcaster {
	return &fakeBroadcaster{channels: make(map[string]map[string]bool)}
}

func (f *fakeBroadcaster) JoinRoom(connID, roomID, userID, username string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.channels[roomID] == nil {
		f.channels[roomID] = make(map[string]bool)
	}
	f.channels[roomID][connID] = true
}

func (f *fakeBroadcaster) LeaveRoom(connID, roomID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.channels[roomID], connID)
}

func (f *fakeBroadcaster) DetachRoom(roomID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.channels, roomID)
}

func (f *fakeBroadcaster) SendTo(connID, event string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, sent{To: connID, Event: event, Payload: payload})
}

func (f *fakeBroadcaster) Broadcast(roomID, event string, payload interface{}, exceptConnID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for connID := range f.channels[roomID] {
		if connID == exceptConnID {
			continue
		}
		f.events = append(f.events, sent{To: connID, Event: event, Payload: payload})
	}
}

// received 返回连接收到的某类事件
func (f *fakeBroadcaster) received(connID, event string) []interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []interface{}
	for _, e := range f.events {
		if e.To == connID && e.Event == event {
			out = append(out, e.Payload)
		}
	}
	return out
}

// eventsFor 返回连接收到的事件名，按顺序
func (f *fakeBroadcaster) eventsFor(connID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, e := range f.events {
		if e.To == connID {
			out = append(out, e.Event)
		}
	}
	return out
}

func (f *fakeBroadcaster) inChannel(roomID, connID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.channels[roomID][connID]
}

func (f *fakeBroadcaster) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = nil
}

type fixture struct {
	svc   *service.RoomService
	store *memory.Store
	out   *fakeBroadcaster
	ctx   context.Context
}

func newFixture() *fixture {
	store := memory.NewStore()
	out := newFakeBroadcaster()
	return &fixture{
		svc:   service.NewRoomService(store, out),
		store: store,
		out:   out,
		ctx:   context.Background(),
	}
}

// join 以 connID 的身份加入房间
func (f *fixture) join(t *testing.T, connID, roomID, userID, username string) *dto.RoomData {
	t.Helper()
	data, err := f.svc.JoinRoom(f.ctx, service.Caller{ConnID: connID}, dto.JoinRoomRequest{
		RoomID: roomID, UserID: userID, Username: username,
	})
	require.NoError(t, err)
	return data
}
