package websocket_test

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vibe-meeting/internal/domain"
	"vibe-meeting/internal/dto"
	wshandler "vibe-meeting/internal/handler/websocket"
	"vibe-meeting/internal/hub"
	"vibe-meeting/internal/infra/memory"
	"vibe-meeting/internal/middleware"
	"vibe-meeting/internal/ratelimit"
	"vibe-meeting/internal/service"
	"vibe-meeting/internal/signaling"
)

const testSDP = "v=0\r\n" +
	"o=- 4215775240449105457 2 IN IP4 127.0.0.1\r\n" +
	"s=-\r\n" +
	"t=0 0\r\n" +
	"m=audio 9 UDP/TLS/RTP/SAVPF 111\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=rtpmap:111 opus/48000/2\r\n"

func init() {
	gin.SetMode(gin.TestMode)
}

// newTestServer 组装完整的网关：内存存储 + Hub + 服务 + 限流
func newTestServer(t *testing.T, cfg ratelimit.Config) *httptest.Server {
	t.Helper()
	h := hub.NewHub()
	rooms := service.NewRoomService(memory.NewStore(), h)
	relay := signaling.NewRelay(h)
	dispatcher := hub.NewDispatcher(h, rooms, relay, ratelimit.NewMemoryLimiter(cfg))
	handler := wshandler.NewWebSocketHandler(h, dispatcher, middleware.NewOriginMatcher(nil, true))

	router := gin.New()
	handler.RegisterRoutes(router)
	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		h.CloseAll()
		srv.Close()
	})
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *gorillaws.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/socket"
	conn, _, err := gorillaws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func emit(t *testing.T, conn *gorillaws.Conn, event string, payload interface{}) {
	t.Helper()
	env, err := dto.NewEnvelope(event, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(env))
}

// expect 读取直到收到指定事件，跳过其他事件
func expect(t *testing.T, conn *gorillaws.Conn, event string, out interface{}) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var env dto.Envelope
		require.NoError(t, conn.ReadJSON(&env), "waiting for %s", event)
		if env.Event != event {
			continue
		}
		if out != nil {
			require.NoError(t, json.Unmarshal(env.Data, out))
		}
		return
	}
}

func join(t *testing.T, conn *gorillaws.Conn, roomID, userID, name string) dto.RoomData {
	t.Helper()
	emit(t, conn, dto.EventJoinRoom, dto.JoinRoomRequest{RoomID: roomID, UserID: userID, Username: name})
	var data dto.RoomData
	expect(t, conn, dto.EventRoomData, &data)
	return data
}

func TestGateway_JoinAndMessage(t *testing.T) {
	srv := newTestServer(t, ratelimit.DefaultConfig())
	alice := dial(t, srv)
	bob := dial(t, srv)

	aliceData := join(t, alice, "r1", "u1", "Alice")
	assert.True(t, aliceData.IsCreator)
	require.NotNil(t, aliceData.RoomInfo)
	assert.Equal(t, "u1", aliceData.RoomInfo.CreatorID)

	bobData := join(t, bob, "r1", "u2", "Bob")
	assert.False(t, bobData.IsCreator)
	assert.Len(t, bobData.Participants, 2)

	var joined domain.Participant
	expect(t, alice, dto.EventUserJoined, &joined)
	assert.Equal(t, "u2", joined.UserID)

	emit(t, alice, dto.EventSendMessage, dto.SendMessageRequest{RoomID: "r1", Text: "hello", Author: "Alice", UserID: "u1"})

	for _, conn := range []*gorillaws.Conn{alice, bob} {
		var msg domain.Message
		expect(t, conn, dto.EventNewMessage, &msg)
		assert.Equal(t, "hello", msg.Text)
		assert.Equal(t, domain.MessageTypeUser, msg.Type)
		assert.NotEmpty(t, msg.Time)
	}
}

func TestGateway_DisconnectNotifiesRoom(t *testing.T) {
	srv := newTestServer(t, ratelimit.DefaultConfig())
	alice := dial(t, srv)
	bob := dial(t, srv)
	join(t, alice, "r1", "u1", "Alice")
	join(t, bob, "r1", "u2", "Bob")

	require.NoError(t, bob.Close())

	var left dto.UserLeft
	expect(t, alice, dto.EventUserLeft, &left)
	assert.Equal(t, "u2", left.UserID)
}

func TestGateway_ValidationErrorKeepsConnection(t *testing.T) {
	srv := newTestServer(t, ratelimit.DefaultConfig())
	conn := dial(t, srv)

	emit(t, conn, dto.EventJoinRoom, dto.JoinRoomRequest{RoomID: "r1"})
	var payload dto.ErrorPayload
	expect(t, conn, dto.EventError, &payload)
	assert.Equal(t, dto.ErrorCodeValidation, payload.Code)

	// 连接仍可用
	data := join(t, conn, "r1", "u1", "Alice")
	assert.True(t, data.IsCreator)
}

func TestGateway_UnknownEvent(t *testing.T) {
	srv := newTestServer(t, ratelimit.DefaultConfig())
	conn := dial(t, srv)

	require.NoError(t, conn.WriteMessage(gorillaws.TextMessage, []byte(`{"event":"selfDestruct","data":{}}`)))

	var payload dto.ErrorPayload
	expect(t, conn, dto.EventError, &payload)
	assert.Equal(t, dto.ErrorCodeValidation, payload.Code)
}

func TestGateway_RateLimitClosesConnection(t *testing.T) {
	srv := newTestServer(t, ratelimit.Config{Points: 2, Window: time.Minute, Block: 2 * time.Minute})
	conn := dial(t, srv)

	emit(t, conn, dto.EventTyping, dto.TypingRequest{RoomID: "r1", IsTyping: true})
	emit(t, conn, dto.EventTyping, dto.TypingRequest{RoomID: "r1", IsTyping: false})
	emit(t, conn, dto.EventTyping, dto.TypingRequest{RoomID: "r1", IsTyping: true})

	var payload dto.ErrorPayload
	expect(t, conn, dto.EventError, &payload)
	assert.Equal(t, dto.ErrorCodeRateLimited, payload.Code)
	assert.Equal(t, int64(120000), payload.RetryAfterMs)

	// 之后服务端关闭连接
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			assert.True(t, gorillaws.IsCloseError(err, gorillaws.CloseNormalClosure), "unexpected error: %v", err)
			break
		}
	}
}

func TestGateway_SignalingDeliveredToTarget(t *testing.T) {
	srv := newTestServer(t, ratelimit.DefaultConfig())
	alice := dial(t, srv)
	bob := dial(t, srv)
	join(t, alice, "r1", "u1", "Alice")
	join(t, bob, "r1", "u2", "Bob")

	emit(t, alice, dto.EventCallOffer, dto.CallOffer{
		RoomID:       "r1",
		TargetUserID: "u2",
		Offer:        &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: testSDP},
	})

	var offer dto.CallOffer
	expect(t, bob, dto.EventCallOffer, &offer)
	assert.Equal(t, "u1", offer.FromUserID)
	require.NotNil(t, offer.Offer)
	assert.Equal(t, webrtc.SDPTypeOffer, offer.Offer.Type)
}
