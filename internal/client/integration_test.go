package client_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vibe-meeting/internal/client"
	"vibe-meeting/internal/dto"
	wshandler "vibe-meeting/internal/handler/websocket"
	"vibe-meeting/internal/hub"
	"vibe-meeting/internal/infra/memory"
	"vibe-meeting/internal/middleware"
	"vibe-meeting/internal/ratelimit"
	"vibe-meeting/internal/service"
	"vibe-meeting/internal/signaling"
)

func TestController_ReconnectsToGatewayAndRejoins(t *testing.T) {
	// Arrange
	gin.SetMode(gin.TestMode)
	h := hub.NewHub()
	rooms := service.NewRoomService(memory.NewStore(), h)
	dispatcher := hub.NewDispatcher(h, rooms, signaling.NewRelay(h), ratelimit.NewMemoryLimiter(ratelimit.DefaultConfig()))
	router := gin.New()
	wshandler.NewWebSocketHandler(h, dispatcher, middleware.NewOriginMatcher(nil, true)).RegisterRoutes(router)
	srv := httptest.NewServer(router)
	defer srv.Close()

	c := client.NewController(client.Config{
		URL:       "ws" + strings.TrimPrefix(srv.URL, "http") + "/socket",
		BaseDelay: 20 * time.Millisecond,
		MaxDelay:  100 * time.Millisecond,
	}, client.NewWebSocketDialer(time.Second))
	snapshots := make(chan dto.RoomData, 4)
	c.SetHandlers(client.Handlers{OnRoomData: func(d dto.RoomData) { snapshots <- d }})
	defer c.Disconnect()

	require.NoError(t, c.JoinRoom("r1", "u1", "Alice"))
	require.NoError(t, c.Connect(context.Background()))
	first := receive(t, snapshots)
	assert.True(t, first.IsCreator)

	// Act: 服务端断开所有连接
	h.CloseAll()

	// Assert: 自动重连并重新加入，创建者身份不变
	second := receive(t, snapshots)
	assert.True(t, second.IsCreator)
	assert.Equal(t, client.Connected, c.State())
	assert.Equal(t, 0, c.Attempts())
}

func receive(t *testing.T, ch <-chan dto.RoomData) dto.RoomData {
	t.Helper()
	select {
	case d := <-ch:
		return d
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for roomData")
		return dto.RoomData{}
	}
}
