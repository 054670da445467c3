package chat

import (
	"context"

	"PPDirect/service/protocol"
	"PPDirect/tools/errs"

	"go.uber.org/zap"
)

func (s *Server) handlePing(_ context.Context, sess *Session, _ protocol.Frame) error {
	s.log.Debug("ping", zap.Int64("user_id", sess.UserID))
	return sess.Conn.WriteJSON(protocol.Pong())
}

// handleChat hands the frame to the sender and acks the outcome. Bad
// input and store failures are answered with an error event, the socket
// stays open.
func (s *Server) handleChat(ctx context.Context, sess *Session, f protocol.Frame) error {
	cf := f.(*protocol.ChatFrame)
	rc, err := s.sender.Send(ctx, sess.UserID, cf)
	if err != nil {
		content := "Failed to process message"
		switch {
		case errs.ErrArgs.Is(err):
			content = "Missing content or receiver_id"
		case errs.ErrStore.Is(err):
			content = "Failed to save message"
		}
		s.log.Warn("message rejected", zap.Int64("user_id", sess.UserID), zap.Error(err))
		return sess.Conn.WriteJSON(protocol.Error(content))
	}
	return sess.Conn.WriteJSON(protocol.MessageSent(rc.Message, string(rc.Outcome)))
}
