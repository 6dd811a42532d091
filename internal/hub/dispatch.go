package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"vibe-meeting/internal/dto"
	"vibe-meeting/internal/ratelimit"
	"vibe-meeting/internal/service"
	"vibe-meeting/internal/signaling"
)

// Dispatcher 把连接上收到的事件路由到 RoomService 和 signaling.Relay
type Dispatcher struct {
	hub     *Hub
	rooms   *service.RoomService
	relay   *signaling.Relay
	limiter ratelimit.Limiter
}

// NewDispatcher 创建 Dispatcher
func NewDispatcher(hub *Hub, rooms *service.RoomService, relay *signaling.Relay, limiter ratelimit.Limiter) *Dispatcher {
	if hub == nil || rooms == nil || relay == nil || limiter == nil {
		panic("Dispatcher requires non-nil hub, room service, relay and limiter")
	}
	return &Dispatcher{hub: hub, rooms: rooms, relay: relay, limiter: limiter}
}

// Dispatch 处理一条入站消息。返回 false 表示需要关闭连接 (超出限流)。
func (d *Dispatcher) Dispatch(ctx context.Context, c *Client, raw []byte) bool {
	logCtx := logrus.WithFields(c.logFields())

	// 每个入站事件消耗一个配额点
	if res := d.limiter.Consume(ctx, c.clientIP); !res.Allowed {
		seconds := int64(math.Ceil(res.RetryAfter.Seconds()))
		logCtx.WithField("retry_after", res.RetryAfter).Warn("Rate limit exceeded, closing connection")
		d.hub.SendTo(c.connID, dto.EventError, dto.ErrorPayload{
			Code:         dto.ErrorCodeRateLimited,
			Message:      fmt.Sprintf("请求频率过高，请%d秒后重试", seconds),
			RetryAfterMs: res.RetryAfter.Milliseconds(),
		})
		return false
	}

	var env dto.Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
		logCtx.WithError(err).Warn("Failed to unmarshal websocket envelope")
		d.reportError(c, "", fmt.Errorf("%w: malformed message", service.ErrValidation))
		return true
	}
	logCtx = logCtx.WithField("event", env.Event)

	session, ok := d.hub.Session(c.connID)
	if !ok {
		// 已经注销的连接
		return false
	}
	caller := service.Caller{ConnID: c.connID, RoomID: session.RoomID, UserID: session.UserID}
	sender := signaling.Sender{ConnID: c.connID, UserID: session.UserID}

	var err error
	switch env.Event {
	case dto.EventJoinRoom:
		err = handle(env.Data, func(req dto.JoinRoomRequest) error {
			_, err := d.rooms.JoinRoom(ctx, caller, req)
			return err
		})
	case dto.EventLeaveRoom:
		err = handle(env.Data, func(req dto.LeaveRoomRequest) error {
			return d.rooms.LeaveRoom(ctx, caller, req)
		})
	case dto.EventSendMessage:
		err = handle(env.Data, func(req dto.SendMessageRequest) error {
			_, err := d.rooms.SendMessage(ctx, caller, req)
			return err
		})
	case dto.EventTyping:
		err = handle(env.Data, func(req dto.TypingRequest) error {
			return d.rooms.Typing(ctx, caller, req)
		})
	case dto.EventEndMeeting:
		err = handle(env.Data, func(req dto.EndMeetingRequest) error {
			_, err := d.rooms.EndMeeting(ctx, caller, req)
			return err
		})
	case dto.EventCallInvite:
		err = handle(env.Data, func(req dto.CallInvite) error { return d.relay.CallInvite(ctx, sender, req) })
	case dto.EventCallAccept:
		err = handle(env.Data, func(req dto.CallAccept) error { return d.relay.CallAccept(ctx, sender, req) })
	case dto.EventCallReject:
		err = handle(env.Data, func(req dto.CallReject) error { return d.relay.CallReject(ctx, sender, req) })
	case dto.EventCallEnd:
		err = handle(env.Data, func(req dto.CallEnd) error { return d.relay.CallEnd(ctx, sender, req) })
	case dto.EventCallOffer:
		err = handle(env.Data, func(req dto.CallOffer) error { return d.relay.CallOffer(ctx, sender, req) })
	case dto.EventCallAnswer:
		err = handle(env.Data, func(req dto.CallAnswer) error { return d.relay.CallAnswer(ctx, sender, req) })
	case dto.EventICECandidate:
		err = handle(env.Data, func(req dto.ICECandidate) error { return d.relay.ICECandidate(ctx, sender, req) })
	default:
		err = fmt.Errorf("%w: unknown event %q", service.ErrValidation, env.Event)
	}

	if err != nil {
		logCtx.WithError(err).Warn("Failed to handle websocket event")
		d.reportError(c, env.Event, err)
	}
	return true
}

// handle 解码事件数据并调用处理函数
func handle[T any](data json.RawMessage, fn func(T) error) error {
	var req T
	if len(data) > 0 {
		if err := json.Unmarshal(data, &req); err != nil {
			return fmt.Errorf("%w: invalid payload: %v", service.ErrValidation, err)
		}
	}
	return fn(req)
}

// reportError 只通知发起请求的连接
func (d *Dispatcher) reportError(c *Client, event string, err error) {
	payload := dto.ErrorPayload{Code: dto.ErrorCodeInternal, Message: "服务器内部错误"}
	switch {
	case errors.Is(err, service.ErrValidation):
		payload.Code = dto.ErrorCodeValidation
		payload.Message = err.Error()
	case errors.Is(err, service.ErrNotCreator):
		payload.Code = dto.ErrorCodeNotCreator
		payload.Message = "只有会议创建者可以结束会议"
	}
	if event != "" {
		logrus.WithFields(c.logFields()).WithFields(logrus.Fields{
			"event": event,
			"code":  payload.Code,
		}).Debug("Reporting error to client")
	}
	d.hub.SendTo(c.connID, dto.EventError, payload)
}

// Disconnect 连接断开时调用
func (d *Dispatcher) Disconnect(ctx context.Context, c *Client) {
	d.rooms.Disconnect(ctx, c.connID)
}
