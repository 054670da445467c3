package chat

import (
	"context"

	"PPDirect/service/protocol"

	"go.uber.org/zap"
)

// HandleRelay is the broker handler bound to every user channel. Events
// for users without a local session are dropped; so are events this node
// published itself, since the local attempt already happened.
func (s *Server) HandleRelay(_ context.Context, channel string, payload map[string]any) {
	env, err := protocol.ReadEnvelope(payload)
	if err != nil {
		s.log.Warn("relay payload skipped", zap.String("channel", channel), zap.Error(err))
		return
	}
	if env.Origin != "" && env.Origin == s.conf.NodeID {
		s.log.Debug("own relay event skipped", zap.String("channel", channel), zap.Int64("user_id", env.UserID))
		return
	}
	if !s.reg.IsOnline(env.UserID) {
		s.log.Debug("relay target not here", zap.Int64("user_id", env.UserID))
		return
	}
	if s.reg.SendDirect(env.UserID, protocol.StripRelayMeta(payload)) {
		s.log.Info("relayed message delivered", zap.Int64("user_id", env.UserID), zap.String("type", env.Type))
	} else {
		s.log.Warn("relayed message not delivered", zap.Int64("user_id", env.UserID))
	}
}
