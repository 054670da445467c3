package protocol

import (
	"time"

	msgmodel "PPDirect/module/message/model"
	usermodel "PPDirect/module/user/model"
	"PPDirect/tools/decode"
	"PPDirect/tools/errs"
)

// 服务端 -> 客户端 事件类型
const (
	EventAuthSuccess = "auth_success"
	EventPong        = "pong"
	EventMessageSent = "message_sent"
	EventNewMessage  = "new_message"
	EventError       = "error"
)

// relay 元数据，转发给客户端前剥离
const (
	MetaUserID = "user_id"
	MetaOrigin = "origin"
)

type ErrorEvent struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

func Error(content string) *ErrorEvent {
	return &ErrorEvent{Type: EventError, Content: content}
}

type AuthSuccessEvent struct {
	Type string            `json:"type"`
	User usermodel.Profile `json:"user"`
}

func AuthSuccess(p usermodel.Profile) *AuthSuccessEvent {
	return &AuthSuccessEvent{Type: EventAuthSuccess, User: p}
}

type PongEvent struct {
	Type string `json:"type"`
}

func Pong() *PongEvent { return &PongEvent{Type: EventPong} }

// MessageEvent carries the canonical message fields flattened next to type.
// Delivered is only set on message_sent.
type MessageEvent struct {
	Type      string `json:"type"`
	Delivered string `json:"delivered,omitempty"`
	*msgmodel.Message
}

func NewMessage(m *msgmodel.Message) *MessageEvent {
	return &MessageEvent{Type: EventNewMessage, Message: m}
}

func MessageSent(m *msgmodel.Message, outcome string) *MessageEvent {
	return &MessageEvent{Type: EventMessageSent, Delivered: outcome, Message: m}
}

// MessageFields renders m the same way MessageEvent marshals it.
func MessageFields(m *msgmodel.Message) map[string]any {
	return map[string]any{
		"id":          m.ID,
		"sender_id":   m.SenderID,
		"receiver_id": m.ReceiverID,
		"content":     m.Content,
		"created_at":  m.CreatedAt.Format(time.RFC3339Nano),
		"is_read":     m.IsRead,
	}
}

// RelayNewMessage builds the payload published to the receiver's channel.
func RelayNewMessage(m *msgmodel.Message, origin string) map[string]any {
	p := MessageFields(m)
	p["type"] = EventNewMessage
	p[MetaUserID] = m.ReceiverID
	p[MetaOrigin] = origin
	return p
}

// RelayEnvelope is the metadata part of a relayed payload.
type RelayEnvelope struct {
	Type   string `json:"type"`
	UserID int64  `json:"user_id"`
	Origin string `json:"origin"`
}

func ReadEnvelope(payload map[string]any) (*RelayEnvelope, error) {
	env, err := decode.DecodeMap[RelayEnvelope](payload)
	if err != nil {
		return nil, errs.ErrArgs.WrapMsg("bad relay payload", "err", err)
	}
	if env.UserID <= 0 {
		return nil, errs.ErrArgs.WrapMsg("relay payload without user_id")
	}
	return env, nil
}

// StripRelayMeta returns a copy of payload without relay metadata.
func StripRelayMeta(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		if k == MetaUserID || k == MetaOrigin {
			continue
		}
		out[k] = v
	}
	return out
}
