package delivery

import (
	"context"

	"PPDirect/logger"
	msgmodel "PPDirect/module/message/model"
	"PPDirect/service/broker"
	"PPDirect/service/protocol"
	"PPDirect/tools/errs"

	"go.uber.org/zap"
)

// Store persists a message and returns it with id and created_at set.
type Store interface {
	Insert(ctx context.Context, senderID, receiverID int64, content string) (*msgmodel.Message, error)
}

// LocalDeliverer writes to a socket held by this process.
type LocalDeliverer interface {
	SendDirect(userID int64, event any) bool
}

// Publisher hands an event to the broker.
type Publisher interface {
	Publish(ctx context.Context, channel string, msg any) bool
}

type Options struct {
	NodeID string
	// SkipRelayOnLocal drops the broker publish when local delivery already
	// succeeded. Off by default: the receiver may hold sockets elsewhere.
	SkipRelayOnLocal bool
	Logger           *zap.Logger
}

type Orchestrator struct {
	store Store
	local LocalDeliverer
	pub   Publisher
	opts  Options
	log   *zap.Logger
}

func NewOrchestrator(store Store, local LocalDeliverer, pub Publisher, opts Options) *Orchestrator {
	return &Orchestrator{
		store: store,
		local: local,
		pub:   pub,
		opts:  opts,
		log:   logger.Named(opts.Logger, "delivery"),
	}
}

// Send persists f and delivers it. Errors are ErrArgs (missing receiver or
// content) and ErrStore (nothing was delivered); otherwise a Receipt with
// the outcome is returned.
func (o *Orchestrator) Send(ctx context.Context, senderID int64, f *protocol.ChatFrame) (*Receipt, error) {
	if f == nil || !f.Valid() {
		return nil, errs.ErrArgs.WrapMsg("Missing content or receiver_id")
	}

	msg, err := o.store.Insert(ctx, senderID, f.ReceiverID, f.Content)
	if err != nil {
		o.log.Error("save message", zap.Int64("sender_id", senderID), zap.Int64("receiver_id", f.ReceiverID), zap.Error(err))
		return nil, errs.ErrStore.WrapMsg("Failed to save message")
	}

	local := o.local.SendDirect(msg.ReceiverID, protocol.NewMessage(msg))

	published := false
	if !(local && o.opts.SkipRelayOnLocal) {
		published = o.pub.Publish(ctx, broker.UserChannel(msg.ReceiverID), protocol.RelayNewMessage(msg, o.opts.NodeID))
	}

	outcome := decide(local, published)
	o.log.Info("message routed",
		zap.Int64("id", msg.ID),
		zap.Int64("sender_id", senderID),
		zap.Int64("receiver_id", msg.ReceiverID),
		zap.String("outcome", string(outcome)))
	return &Receipt{Outcome: outcome, Message: msg}, nil
}
