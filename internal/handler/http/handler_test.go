package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"vibe-meeting/internal/domain"
	handler "vibe-meeting/internal/handler/http"
	"vibe-meeting/internal/hub"
	"vibe-meeting/internal/infra/memory"
	"vibe-meeting/internal/repository/mocks"
	"vibe-meeting/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func seedRoom(t *testing.T, store *memory.Store, roomID string, messages int) {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	_, _, err := store.CreateRoomIfAbsent(ctx, &domain.Room{RoomID: roomID, CreatorID: "u1", CreatorName: "Alice", CreatedAt: now})
	require.NoError(t, err)
	require.NoError(t, store.SaveParticipant(ctx, &domain.Participant{RoomID: roomID, UserID: "u1", Name: "Alice", JoinTime: now, ConnectionID: "c1"}))
	for i := 0; i < messages; i++ {
		require.NoError(t, store.SaveMessage(ctx, &domain.Message{
			RoomID: roomID, Type: domain.MessageTypeUser, Author: "Alice", UserID: "u1",
			Text: string(rune('a' + i%26)), Timestamp: now.Add(time.Duration(i) * time.Second),
		}))
	}
}

func newRoomRouter(store *memory.Store) *gin.Engine {
	rooms := service.NewRoomService(store, hub.NewHub())
	r := gin.New()
	handler.NewRoomHandler(rooms).RegisterRoutes(r.Group("/api"))
	return r
}

func TestRoomHandler_GetMessages(t *testing.T) {
	// Arrange
	store := memory.NewStore()
	seedRoom(t, store, "r1", 60)
	router := newRoomRouter(store)

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"default limit", "", 50},
		{"explicit limit", "?limit=5", 5},
		{"invalid limit", "?limit=abc", 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Act
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/rooms/r1/messages"+tt.query, nil))

			// Assert
			require.Equal(t, http.StatusOK, w.Code)
			var body struct {
				Messages []domain.Message `json:"messages"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Len(t, body.Messages, tt.want)
			// 返回最近的消息
			assert.True(t, body.Messages[len(body.Messages)-1].Timestamp.Equal(
				time.Date(2025, 1, 1, 9, 0, 59, 0, time.UTC)))
		})
	}
}

func TestRoomHandler_EmptyRoom(t *testing.T) {
	router := newRoomRouter(memory.NewStore())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/rooms/nope/messages", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"messages":[]}`, w.Body.String())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/rooms/nope/participants", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"participants":[]}`, w.Body.String())
}

func TestRoomHandler_GetParticipants(t *testing.T) {
	store := memory.NewStore()
	seedRoom(t, store, "r1", 0)
	router := newRoomRouter(store)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/rooms/r1/participants", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Participants []domain.Participant `json:"participants"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Participants, 1)
	assert.Equal(t, domain.StatusOnline, body.Participants[0].Status)
}

func TestHealthHandler_Dependencies(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	tests := []struct {
		name    string
		pingErr error
		want    string
	}{
		{"durable connected", nil, "connected"},
		{"durable down", errors.New("connection refused"), "disconnected"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			durable := mocks.NewDurableStore(t)
			durable.On("Ping", mock.Anything).Return(tt.pingErr).Once()
			r := gin.New()
			handler.NewHealthHandler(durable, rdb, "test").RegisterRoutes(r, r.Group("/api"))

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

			require.Equal(t, http.StatusOK, w.Code)
			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.want, body["database"])
			assert.Equal(t, "connected", body["redis"])
		})
	}
}

func TestHealthHandler_Liveness(t *testing.T) {
	r := gin.New()
	handler.NewHealthHandler(nil, nil, "production").RegisterRoutes(r, r.Group("/api"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "vibe-meeting", body["service"])
	assert.Equal(t, "production", body["environment"])
	assert.Equal(t, "1.0.0", body["version"])

	// 没有持久化后端时报告 disconnected
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Contains(t, w.Body.String(), `"database":"disconnected"`)
}

// mockSaver 记录保存的转录
type mockSaver struct {
	mock.Mock
}

func (m *mockSaver) SaveTranscript(ctx context.Context, roomID, userID, text string) (*domain.Message, error) {
	args := m.Called(ctx, roomID, userID, text)
	msg, _ := args.Get(0).(*domain.Message)
	return msg, args.Error(1)
}

func audioRequest(t *testing.T, roomID string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("audio_file", "clip.wav")
	require.NoError(t, err)
	_, err = part.Write([]byte("RIFF-fake-audio"))
	require.NoError(t, err)
	require.NoError(t, w.WriteField("roomId", roomID))
	require.NoError(t, w.WriteField("userId", "u1"))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/transcription/audio", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestTranscription_SavesSuccessfulTranscript(t *testing.T) {
	// Arrange
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transcribe/audio", r.URL.Path)
		file, header, err := r.FormFile("audio_file")
		if assert.NoError(t, err) {
			defer file.Close()
			data, _ := io.ReadAll(file)
			assert.Equal(t, "clip.wav", header.Filename)
			assert.Equal(t, "RIFF-fake-audio", string(data))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"text":"你好","language":"zh"}`))
	}))
	defer upstream.Close()

	saver := &mockSaver{}
	saver.On("SaveTranscript", mock.Anything, "r1", "u1", "你好").Return(&domain.Message{}, nil).Once()
	r := gin.New()
	handler.NewTranscriptionHandler(upstream.URL, saver).RegisterRoutes(r.Group("/api"))

	// Act
	w := httptest.NewRecorder()
	r.ServeHTTP(w, audioRequest(t, "r1"))

	// Assert
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"text":"你好","language":"zh"}`, w.Body.String())
	saver.AssertExpectations(t)
}

func TestTranscription_EmptyTextNotSaved(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"text":""}`))
	}))
	defer upstream.Close()

	saver := &mockSaver{}
	r := gin.New()
	handler.NewTranscriptionHandler(upstream.URL, saver).RegisterRoutes(r.Group("/api"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, audioRequest(t, "r1"))

	assert.Equal(t, http.StatusOK, w.Code)
	saver.AssertNotCalled(t, "SaveTranscript", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestTranscription_UpstreamDownReturnsFallback(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	upstream.Close()

	saver := &mockSaver{}
	r := gin.New()
	handler.NewTranscriptionHandler(upstream.URL, saver).RegisterRoutes(r.Group("/api"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, audioRequest(t, "r1"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"success":false,"error":"转录服务暂时不可用","text":"","language":"zh"}`, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/transcription/health", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "转录服务不可用")
}
