package signaling

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"

	"vibe-meeting/internal/dto"
	"vibe-meeting/internal/service"
)

// Router 投递信令消息。由连接网关实现。
type Router interface {
	// Broadcast 发给房间频道内的所有连接，exceptConnID 非空时跳过该连接
	Broadcast(roomID, event string, payload interface{}, exceptConnID string)
	// SendToUser 发给 userID 当前绑定的连接，没有在线连接时返回 false
	SendToUser(userID, event string, payload interface{}) bool
}

// Sender 发起信令的连接
type Sender struct {
	ConnID string
	UserID string
}

// Relay 转发通话控制信令和点对点协商消息
type Relay struct {
	router   Router
	validate *validator.Validate
}

// NewRelay 创建 Relay
func NewRelay(router Router) *Relay {
	if router == nil {
		panic("router cannot be nil for signaling.Relay")
	}
	return &Relay{router: router, validate: service.NewValidator()}
}

func (r *Relay) check(req interface{}) error {
	if err := r.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", service.ErrValidation, err)
	}
	return nil
}

// --- 房间广播类信令 ---

// CallInvite 发给房间内除发起者以外的所有连接
func (r *Relay) CallInvite(ctx context.Context, from Sender, req dto.CallInvite) error {
	if err := r.check(req); err != nil {
		return err
	}
	if req.CallerID == "" {
		req.CallerID = from.UserID
	}
	r.router.Broadcast(req.RoomID, dto.EventCallInvite, req, from.ConnID)
	logrus.WithFields(logrus.Fields{"room_id": req.RoomID, "user_id": req.CallerID}).Debug("Signaling: call invite")
	return nil
}

// CallAccept 发给房间内所有连接，包括发送者
func (r *Relay) CallAccept(ctx context.Context, from Sender, req dto.CallAccept) error {
	if err := r.check(req); err != nil {
		return err
	}
	if req.UserID == "" {
		req.UserID = from.UserID
	}
	r.router.Broadcast(req.RoomID, dto.EventCallAccept, req, "")
	logrus.WithFields(logrus.Fields{"room_id": req.RoomID, "user_id": req.UserID}).Debug("Signaling: call accepted")
	return nil
}

// CallReject 发给房间内所有连接，包括发送者
func (r *Relay) CallReject(ctx context.Context, from Sender, req dto.CallReject) error {
	if err := r.check(req); err != nil {
		return err
	}
	if req.UserID == "" {
		req.UserID = from.UserID
	}
	r.router.Broadcast(req.RoomID, dto.EventCallReject, req, "")
	logrus.WithFields(logrus.Fields{"room_id": req.RoomID, "user_id": req.UserID, "reason": req.Reason}).Debug("Signaling: call rejected")
	return nil
}

// CallEnd 发给房间内所有连接，包括发送者
func (r *Relay) CallEnd(ctx context.Context, from Sender, req dto.CallEnd) error {
	if err := r.check(req); err != nil {
		return err
	}
	if req.UserID == "" {
		req.UserID = from.UserID
	}
	r.router.Broadcast(req.RoomID, dto.EventCallEnd, req, "")
	logrus.WithFields(logrus.Fields{"room_id": req.RoomID, "user_id": req.UserID}).Debug("Signaling: call ended")
	return nil
}

// --- 点对点协商 ---

// checkDescription 只校验 SDP 类型。SDP 内容原样转发，解析失败只记 debug 日志。
func checkDescription(desc *webrtc.SessionDescription, want webrtc.SDPType, fromUserID string) error {
	if desc.Type != want {
		return fmt.Errorf("%w: expected sdp type %s, got %s", service.ErrValidation, want, desc.Type)
	}
	if _, err := desc.Unmarshal(); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{"user_id": fromUserID, "sdp_type": want.String()}).
			Debug("Signaling: sdp did not parse, forwarding as is")
	}
	return nil
}

// deliver 投递给目标用户。目标不在线时丢弃，只记 debug 日志，不通知发送者。
func (r *Relay) deliver(event, targetUserID, fromUserID string, payload interface{}) {
	if !r.router.SendToUser(targetUserID, event, payload) {
		logrus.WithFields(logrus.Fields{
			"event":          event,
			"target_user_id": targetUserID,
			"user_id":        fromUserID,
		}).Debug("Signaling: relay target not connected, dropping")
	}
}

// CallOffer 把 offer 投递给目标用户
func (r *Relay) CallOffer(ctx context.Context, from Sender, req dto.CallOffer) error {
	if err := r.check(req); err != nil {
		return err
	}
	if err := checkDescription(req.Offer, webrtc.SDPTypeOffer, from.UserID); err != nil {
		return err
	}
	if req.FromUserID == "" {
		req.FromUserID = from.UserID
	}
	r.deliver(dto.EventCallOffer, req.TargetUserID, req.FromUserID, req)
	return nil
}

// CallAnswer 把 answer 投递给目标用户
func (r *Relay) CallAnswer(ctx context.Context, from Sender, req dto.CallAnswer) error {
	if err := r.check(req); err != nil {
		return err
	}
	if err := checkDescription(req.Answer, webrtc.SDPTypeAnswer, from.UserID); err != nil {
		return err
	}
	if req.FromUserID == "" {
		req.FromUserID = from.UserID
	}
	r.deliver(dto.EventCallAnswer, req.TargetUserID, req.FromUserID, req)
	return nil
}

// ICECandidate 把 ICE candidate 投递给目标用户。candidate 为 null 表示收集结束，同样转发。
func (r *Relay) ICECandidate(ctx context.Context, from Sender, req dto.ICECandidate) error {
	if err := r.check(req); err != nil {
		return err
	}
	if req.FromUserID == "" {
		req.FromUserID = from.UserID
	}
	r.deliver(dto.EventICECandidate, req.TargetUserID, req.FromUserID, req)
	return nil
}
