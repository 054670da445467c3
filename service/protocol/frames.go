package protocol

import (
	"strings"

	"PPDirect/tools/decode"
	"PPDirect/tools/errs"
)

// 客户端 -> 服务端 帧类型
const (
	FrameAuth    = "auth"
	FrameMessage = "message"
	FramePing    = "ping"
)

// Frame is one decoded inbound frame. The concrete type is one of
// *AuthFrame, *ChatFrame, *PingFrame or *UnknownFrame.
type Frame interface {
	FrameType() string
}

type AuthFrame struct {
	Token string
}

// ChatFrame 单聊消息。ReceiverID == 0 表示缺失。
type ChatFrame struct {
	ReceiverID int64
	Content    string
}

type PingFrame struct{}

type UnknownFrame struct {
	Type string
}

func (*AuthFrame) FrameType() string      { return FrameAuth }
func (*ChatFrame) FrameType() string      { return FrameMessage }
func (*PingFrame) FrameType() string      { return FramePing }
func (f *UnknownFrame) FrameType() string { return f.Type }

// Valid reports whether both receiver and content are present.
func (f *ChatFrame) Valid() bool {
	return f.ReceiverID != 0 && f.Content != ""
}

type rawFrame struct {
	Type    string `json:"type"`
	Content any    `json:"content"`
	Token   string `json:"token"`
}

// ParseFrame decodes raw once at the transport boundary.
// Only JSON that is not an object is an error; unknown types come back
// as *UnknownFrame so the caller can log and move on.
func ParseFrame(raw []byte) (Frame, error) {
	m, err := decode.JSONObject(raw)
	if err != nil {
		return nil, errs.ErrArgs.WrapMsg("bad frame", "err", err)
	}
	rf, err := decode.DecodeMap[rawFrame](m)
	if err != nil {
		return nil, errs.ErrArgs.WrapMsg("bad frame", "err", err)
	}

	switch strings.TrimSpace(rf.Type) {
	case FrameAuth:
		tok, _ := rf.Content.(string)
		if tok == "" {
			tok = rf.Token
		}
		return &AuthFrame{Token: strings.TrimSpace(tok)}, nil
	case FramePing:
		return &PingFrame{}, nil
	case FrameMessage:
		f := &ChatFrame{}
		if s, ok := rf.Content.(string); ok {
			f.Content = s
		}
		f.ReceiverID = readReceiver(m)
		return f, nil
	default:
		return &UnknownFrame{Type: rf.Type}, nil
	}
}

// readReceiver accepts receiver_id and the legacy spelling reciever_id,
// either as a JSON number or a numeric string.
func readReceiver(m map[string]any) int64 {
	for _, key := range []string{"receiver_id", "reciever_id"} {
		if id, err := decode.ReadInt64(m, key); err == nil && id > 0 {
			return id
		}
	}
	return 0
}
