package client

import (
	"encoding/json"

	"github.com/sirupsen/logrus"

	"vibe-meeting/internal/domain"
	"vibe-meeting/internal/dto"
)

// Handlers 是客户端可以订阅的全部回调。未设置的回调为空操作。
type Handlers struct {
	OnConnectionChange   func(connected bool)
	OnStateChange        func(from, to State)
	OnRoomData           func(dto.RoomData)
	OnMessage            func(domain.Message)
	OnParticipantsUpdate func([]domain.Participant)
	OnUserJoined         func(domain.Participant)
	OnUserLeft           func(dto.UserLeft)
	OnUserTyping         func(dto.UserTyping)
	OnMeetingEnded       func(dto.MeetingEnded)
	OnEndMeetingSuccess  func(dto.MeetingEnded)
	OnError              func(dto.ErrorPayload)
	OnCallInvite         func(dto.CallInvite)
	OnCallAccept         func(dto.CallAccept)
	OnCallReject         func(dto.CallReject)
	OnCallEnd            func(dto.CallEnd)
	OnCallOffer          func(dto.CallOffer)
	OnCallAnswer         func(dto.CallAnswer)
	OnICECandidate       func(dto.ICECandidate)
}

func noop[T any](T) {}

// withDefaults 用空操作填充未设置的回调
func (h Handlers) withDefaults() Handlers {
	if h.OnConnectionChange == nil {
		h.OnConnectionChange = noop[bool]
	}
	if h.OnStateChange == nil {
		h.OnStateChange = func(State, State) {}
	}
	if h.OnRoomData == nil {
		h.OnRoomData = noop[dto.RoomData]
	}
	if h.OnMessage == nil {
		h.OnMessage = noop[domain.Message]
	}
	if h.OnParticipantsUpdate == nil {
		h.OnParticipantsUpdate = noop[[]domain.Participant]
	}
	if h.OnUserJoined == nil {
		h.OnUserJoined = noop[domain.Participant]
	}
	if h.OnUserLeft == nil {
		h.OnUserLeft = noop[dto.UserLeft]
	}
	if h.OnUserTyping == nil {
		h.OnUserTyping = noop[dto.UserTyping]
	}
	if h.OnMeetingEnded == nil {
		h.OnMeetingEnded = noop[dto.MeetingEnded]
	}
	if h.OnEndMeetingSuccess == nil {
		h.OnEndMeetingSuccess = noop[dto.MeetingEnded]
	}
	if h.OnError == nil {
		h.OnError = noop[dto.ErrorPayload]
	}
	if h.OnCallInvite == nil {
		h.OnCallInvite = noop[dto.CallInvite]
	}
	if h.OnCallAccept == nil {
		h.OnCallAccept = noop[dto.CallAccept]
	}
	if h.OnCallReject == nil {
		h.OnCallReject = noop[dto.CallReject]
	}
	if h.OnCallEnd == nil {
		h.OnCallEnd = noop[dto.CallEnd]
	}
	if h.OnCallOffer == nil {
		h.OnCallOffer = noop[dto.CallOffer]
	}
	if h.OnCallAnswer == nil {
		h.OnCallAnswer = noop[dto.CallAnswer]
	}
	if h.OnICECandidate == nil {
		h.OnICECandidate = noop[dto.ICECandidate]
	}
	return h
}

func deliver[T any](env dto.Envelope, fn func(T)) {
	var payload T
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			logrus.WithError(err).WithField("event", env.Event).Warn("Failed to decode server event")
			return
		}
	}
	fn(payload)
}

// dispatch 把服务端事件分发给对应回调
func (h Handlers) dispatch(env dto.Envelope) {
	switch env.Event {
	case dto.EventRoomData:
		deliver(env, h.OnRoomData)
	case dto.EventNewMessage:
		deliver(env, h.OnMessage)
	case dto.EventParticipantsUpdate:
		deliver(env, h.OnParticipantsUpdate)
	case dto.EventUserJoined:
		deliver(env, h.OnUserJoined)
	case dto.EventUserLeft:
		deliver(env, h.OnUserLeft)
	case dto.EventUserTyping:
		deliver(env, h.OnUserTyping)
	case dto.EventMeetingEnded:
		deliver(env, h.OnMeetingEnded)
	case dto.EventEndMeetingSuccess:
		deliver(env, h.OnEndMeetingSuccess)
	case dto.EventError:
		deliver(env, h.OnError)
	case dto.EventCallInvite:
		deliver(env, h.OnCallInvite)
	case dto.EventCallAccept:
		deliver(env, h.OnCallAccept)
	case dto.EventCallReject:
		deliver(env, h.OnCallReject)
	case dto.EventCallEnd:
		deliver(env, h.OnCallEnd)
	case dto.EventCallOffer:
		deliver(env, h.OnCallOffer)
	case dto.EventCallAnswer:
		deliver(env, h.OnCallAnswer)
	case dto.EventICECandidate:
		deliver(env, h.OnICECandidate)
	default:
		logrus.WithField("event", env.Event).Debug("Ignoring unknown server event")
	}
}
