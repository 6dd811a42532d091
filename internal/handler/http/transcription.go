package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"vibe-meeting/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	transcriptionTimeout = 60 * time.Second
	audioFileField       = "audio_file"
	maxAudioSize         = 25 << 20
)

// TranscriptSaver 保存转录结果。由 RoomService 实现。
type TranscriptSaver interface {
	SaveTranscript(ctx context.Context, roomID, userID, text string) (*domain.Message, error)
}

// TranscriptionHandler 把请求转发给独立的转录服务。转录失败不影响实时通信。
type TranscriptionHandler struct {
	baseURL string
	client  *http.Client
	saver   TranscriptSaver
}

// NewTranscriptionHandler 创建 TranscriptionHandler
func NewTranscriptionHandler(baseURL string, saver TranscriptSaver) *TranscriptionHandler {
	if saver == nil {
		panic("TranscriptSaver cannot be nil for TranscriptionHandler")
	}
	return &TranscriptionHandler{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: transcriptionTimeout},
		saver:   saver,
	}
}

// RegisterRoutes 注册 /api/transcription 路由
func (h *TranscriptionHandler) RegisterRoutes(api *gin.RouterGroup) {
	g := api.Group("/transcription")
	g.GET("/health", h.Health)
	g.POST("/audio", h.TranscribeAudio)
}

// transcriptionResult 转录服务的返回，其余字段原样透传
type transcriptionResult struct {
	Success bool   `json:"success"`
	Text    string `json:"text"`
}

// Health 透传转录服务的健康检查
func (h *TranscriptionHandler) Health(c *gin.Context) {
	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodGet, h.baseURL+"/health", nil)
	if err == nil {
		var body json.RawMessage
		if body, err = h.do(req); err == nil {
			c.Data(http.StatusOK, "application/json; charset=utf-8", body)
			return
		}
	}
	logrus.WithError(err).Error("Transcription service health check failed")
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":         "转录服务不可用",
		"status":        "error",
		"whisper_model": "not_available",
		"database":      "unknown",
		"redis":         "unknown",
	})
}

// TranscribeAudio 转发 multipart 音频，成功且有文本时保存为 transcription 消息
func (h *TranscriptionHandler) TranscribeAudio(c *gin.Context) {
	roomID := c.PostForm("roomId")
	userID := c.PostForm("userId")
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "user_id": userID})

	body, err := h.forwardAudio(c)
	if err != nil {
		logCtx.WithError(err).Error("Transcription proxy failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"success":  false,
			"error":    "转录服务暂时不可用",
			"text":     "",
			"language": "zh",
		})
		return
	}

	var result transcriptionResult
	if err := json.Unmarshal(body, &result); err == nil && result.Success && result.Text != "" {
		if _, err := h.saver.SaveTranscript(c.Request.Context(), roomID, userID, result.Text); err != nil {
			// 保存失败不影响返回转录结果
			logCtx.WithError(err).Warn("Failed to save transcription message")
		}
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

func (h *TranscriptionHandler) forwardAudio(c *gin.Context) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if fh, err := c.FormFile(audioFileField); err == nil {
		if fh.Size > maxAudioSize {
			return nil, fmt.Errorf("audio file too large: %d bytes", fh.Size)
		}
		src, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("open audio file: %w", err)
		}
		defer src.Close()
		part, err := writer.CreateFormFile(audioFileField, fh.Filename)
		if err != nil {
			return nil, err
		}
		if _, err := io.Copy(part, src); err != nil {
			return nil, fmt.Errorf("copy audio file: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodPost, h.baseURL+"/transcribe/audio", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return h.do(req)
}

// do 发送请求并要求返回合法 JSON
func (h *TranscriptionHandler) do(req *http.Request) ([]byte, error) {
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("transcription service returned non-JSON response (status %d)", resp.StatusCode)
	}
	return body, nil
}
