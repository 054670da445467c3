package chat

import (
	"context"

	"PPDirect/service/protocol"

	"go.uber.org/zap"
)

// FrameHandler handles one streaming-phase frame. A returned error is
// fatal for the socket.
type FrameHandler func(ctx context.Context, sess *Session, f protocol.Frame) error

type Dispatcher struct {
	handlers map[string]FrameHandler
	log      *zap.Logger
}

func NewDispatcher(l *zap.Logger) *Dispatcher {
	return &Dispatcher{handlers: make(map[string]FrameHandler), log: l}
}

func (d *Dispatcher) Register(frameType string, h FrameHandler) { d.handlers[frameType] = h }

// Dispatch runs the handler for f. Frames without a handler are logged
// and ignored.
func (d *Dispatcher) Dispatch(ctx context.Context, sess *Session, f protocol.Frame) error {
	h, ok := d.handlers[f.FrameType()]
	if !ok {
		d.log.Warn("unknown frame type", zap.String("type", f.FrameType()), zap.Int64("user_id", sess.UserID))
		return nil
	}
	return h(ctx, sess, f)
}
