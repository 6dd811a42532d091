package http

import (
	"net/http"
	"strconv"

	"vibe-meeting/internal/domain"
	"vibe-meeting/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RoomHandler 提供房间历史的只读接口
type RoomHandler struct {
	roomService *service.RoomService
}

// NewRoomHandler 创建 RoomHandler 实例
func NewRoomHandler(roomService *service.RoomService) *RoomHandler {
	if roomService == nil {
		panic("RoomService cannot be nil for RoomHandler")
	}
	return &RoomHandler{roomService: roomService}
}

// RegisterRoutes 注册 /api/rooms 路由
func (h *RoomHandler) RegisterRoutes(api *gin.RouterGroup) {
	rooms := api.Group("/rooms")
	rooms.GET("/:roomId/messages", h.GetMessages)
	rooms.GET("/:roomId/participants", h.GetParticipants)
}

// GetMessages 返回房间最近的消息，按时间升序。limit 缺省或非法时为 50。
func (h *RoomHandler) GetMessages(c *gin.Context) {
	roomID := c.Param("roomId")
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit <= 0 {
		limit = service.HistoryLimit
	}

	messages, err := h.roomService.GetMessages(c.Request.Context(), roomID, limit)
	if err != nil {
		logrus.WithError(err).WithField("room_id", roomID).Error("Handler.GetMessages: Failed to load messages")
		HandleServiceError(c, err, "获取消息失败")
		return
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	SuccessResponse(c, http.StatusOK, gin.H{"messages": messages})
}

// GetParticipants 返回房间参与者
func (h *RoomHandler) GetParticipants(c *gin.Context) {
	roomID := c.Param("roomId")

	participants, err := h.roomService.GetParticipants(c.Request.Context(), roomID)
	if err != nil {
		logrus.WithError(err).WithField("room_id", roomID).Error("Handler.GetParticipants: Failed to load participants")
		HandleServiceError(c, err, "获取参与者失败")
		return
	}
	if participants == nil {
		participants = []domain.Participant{}
	}
	SuccessResponse(c, http.StatusOK, gin.H{"participants": participants})
}
