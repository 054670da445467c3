package broker

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"PPDirect/logger"
	"PPDirect/tools/decode"
	"PPDirect/tools/errs"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Handler receives the decoded payload of a relayed event.
type Handler func(ctx context.Context, channel string, payload map[string]any)

type Options struct {
	ReconnectAttempts int           // 默认 5
	InitialBackoff    time.Duration // 默认 1s
	MaxBackoff        time.Duration // 默认 30s
	MaxListenRestarts int           // 连续重启上限，默认 10

	// Sleep waits between reconnect attempts. Tests replace it to record
	// the backoff sequence.
	Sleep  func(ctx context.Context, d time.Duration) error
	Clock  func() time.Time
	Logger *zap.Logger
}

func (o *Options) setDefaults() {
	if o.ReconnectAttempts <= 0 {
		o.ReconnectAttempts = 5
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = time.Second
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 30 * time.Second
	}
	if o.MaxListenRestarts <= 0 {
		o.MaxListenRestarts = 10
	}
	if o.Sleep == nil {
		o.Sleep = sleepCtx
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Relay owns one broker connection plus the channel -> handler table.
// The table outlives individual connections and is replayed after every
// successful reconnect.
type Relay struct {
	transport Transport
	opts      Options
	log       *zap.Logger

	state  atomic.Int32
	closed atomic.Bool

	// mu 保护 conn 与 subs；订阅/退订/重订阅都在锁内完成
	mu          sync.Mutex
	conn        Conn
	subs        map[string]Handler
	connectedAt time.Time

	reconnects singleflight.Group
}

func NewRelay(t Transport, opts Options) *Relay {
	opts.setDefaults()
	r := &Relay{
		transport: t,
		opts:      opts,
		log:       logger.Named(opts.Logger, "relay").With(zap.String("transport", t.Name())),
		subs:      make(map[string]Handler),
	}
	r.state.Store(int32(StateDisconnected))
	return r
}

func (r *Relay) State() State { return State(r.state.Load()) }

func (r *Relay) setState(s State) {
	old := State(r.state.Swap(int32(s)))
	if old != s {
		r.log.Debug("state", zap.Stringer("from", old), zap.Stringer("to", s))
	}
}

func (r *Relay) current() Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn
}

// Connect dials the broker. On failure with autoReconnect set it runs
// the reconnect cycle and reports its result.
func (r *Relay) Connect(ctx context.Context, autoReconnect bool) bool {
	if r.closed.Load() {
		return false
	}
	r.setState(StateConnecting)
	conn, err := r.transport.Dial(ctx)
	if err == nil {
		if err = r.install(ctx, conn); err == nil {
			r.log.Info("broker connected")
			return true
		}
		_ = conn.Close()
	}
	r.log.Warn("broker connect failed", zap.Error(err))
	r.setState(StateDisconnected)
	if autoReconnect {
		return r.Reconnect(ctx)
	}
	return false
}

// install makes conn current, replays the subscription table on it and
// marks the relay connected.
func (r *Relay) install(ctx context.Context, conn Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed.Load() {
		return ErrRelayClosed
	}
	if channels := r.channelsLocked(); len(channels) > 0 {
		if err := conn.Subscribe(ctx, channels...); err != nil {
			return errs.WrapMsg(err, "resubscribe", "channels", len(channels))
		}
		r.log.Info("resubscribed", zap.Int("channels", len(channels)))
	}
	r.conn = conn
	r.connectedAt = r.opts.Clock()
	r.setState(StateConnected)
	return nil
}

func (r *Relay) teardown() {
	r.mu.Lock()
	conn := r.conn
	r.conn = nil
	r.mu.Unlock()
	if conn != nil {
		if err := conn.Close(); err != nil {
			r.log.Debug("close conn", zap.Error(err))
		}
	}
}

// Reconnect tears the connection down and tries to re-establish it with
// exponential backoff. Only one cycle runs at a time; concurrent callers
// wait for it and share its result.
func (r *Relay) Reconnect(ctx context.Context) bool {
	v, _, shared := r.reconnects.Do("reconnect", func() (any, error) {
		return r.reconnect(ctx), nil
	})
	if shared {
		r.log.Debug("joined running reconnect")
	}
	return v.(bool)
}

func (r *Relay) reconnect(ctx context.Context) bool {
	if r.closed.Load() {
		return false
	}
	r.setState(StateReconnecting)
	delay := r.opts.InitialBackoff
	for attempt := 1; attempt <= r.opts.ReconnectAttempts; attempt++ {
		r.log.Info("reconnecting", zap.Int("attempt", attempt), zap.Int("max", r.opts.ReconnectAttempts), zap.Duration("delay", delay))
		r.teardown()
		if err := r.opts.Sleep(ctx, delay); err != nil {
			r.log.Warn("reconnect aborted", zap.Error(err))
			r.setState(StateDisconnected)
			return false
		}
		conn, err := r.transport.Dial(ctx)
		if err == nil {
			if err = r.install(ctx, conn); err == nil {
				r.log.Info("broker reconnected", zap.Int("attempt", attempt))
				return true
			}
			_ = conn.Close()
		}
		r.log.Warn("reconnect attempt failed", zap.Int("attempt", attempt), zap.Error(err))
		delay *= 2
		if delay > r.opts.MaxBackoff {
			delay = r.opts.MaxBackoff
		}
	}
	r.log.Error("broker unreachable, giving up", zap.Int("attempts", r.opts.ReconnectAttempts))
	r.setState(StateDisconnected)
	return false
}

// Publish serializes msg and publishes it. It never returns an error:
// every failure is logged and reported as false.
func (r *Relay) Publish(ctx context.Context, channel string, msg any) bool {
	if r.State() != StateConnected {
		r.log.Warn("publish skipped, not connected", zap.String("channel", channel))
		return false
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		r.log.Error("publish serialize", zap.String("channel", channel), zap.Error(err))
		return false
	}
	conn := r.current()
	if conn == nil {
		return false
	}
	if err := conn.Publish(ctx, channel, payload); err != nil {
		r.log.Error("publish", zap.String("channel", channel), zap.Error(err))
		return false
	}
	r.log.Debug("published", zap.String("channel", channel))
	return true
}

// Subscribe binds handler to channel. Subscribing a channel that is
// already in the table only replaces the handler. When the relay is not
// connected the entry is still recorded, so the next reconnect replays
// it, but false is returned.
func (r *Relay) Subscribe(ctx context.Context, channel string, h Handler) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.State() != StateConnected || r.conn == nil {
		r.subs[channel] = h
		r.log.Warn("subscribe deferred, not connected", zap.String("channel", channel))
		return false
	}
	if _, ok := r.subs[channel]; !ok {
		if err := r.conn.Subscribe(ctx, channel); err != nil {
			r.log.Error("subscribe", zap.String("channel", channel), zap.Error(err))
			return false
		}
	}
	r.subs[channel] = h
	r.log.Info("subscribed", zap.String("channel", channel))
	return true
}

// Unsubscribe drops channel from the table. Unknown channels are a no-op.
// When the relay is not connected the entry is still dropped, so it is not
// replayed by the next reconnect, but false is returned.
func (r *Relay) Unsubscribe(ctx context.Context, channel string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, known := r.subs[channel]
	delete(r.subs, channel)
	if r.State() != StateConnected || r.conn == nil {
		r.log.Warn("unsubscribe while not connected", zap.String("channel", channel))
		return false
	}
	if !known {
		return true
	}
	if err := r.conn.Unsubscribe(ctx, channel); err != nil {
		r.log.Error("unsubscribe", zap.String("channel", channel), zap.Error(err))
		return false
	}
	r.log.Info("unsubscribed", zap.String("channel", channel))
	return true
}

func (r *Relay) handler(channel string) (Handler, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.subs[channel]
	return h, ok
}

func (r *Relay) channelsLocked() []string {
	out := make([]string, 0, len(r.subs))
	for ch := range r.subs {
		out = append(out, ch)
	}
	sort.Strings(out)
	return out
}

// Channels returns the subscribed channel names, sorted.
func (r *Relay) Channels() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.channelsLocked()
}

// Listen is the single receive loop of the process. It returns nil when
// ctx is done or the relay is closed. A transport error triggers Reconnect
// and the loop restarts on success; after MaxListenRestarts restarts
// without a delivered message, or when Reconnect fails, Listen returns an
// error and the relay stays disconnected.
func (r *Relay) Listen(ctx context.Context) error {
	r.log.Info("listener started")
	defer r.log.Info("listener stopped")

	restarts := 0
	for {
		conn := r.current()
		var (
			err      error
			received bool
		)
		if conn == nil {
			err = ErrNotConnect
		} else {
			received, err = r.receiveLoop(ctx, conn)
		}
		if ctx.Err() != nil || r.closed.Load() {
			return nil
		}
		if received {
			restarts = 0
		}
		// 别的调用方已经重连成功，直接在新连接上继续
		if cur := r.current(); cur != nil && cur != conn && r.State() == StateConnected {
			continue
		}
		r.log.Warn("listener transport error", zap.Error(err))
		if restarts >= r.opts.MaxListenRestarts {
			r.setState(StateDisconnected)
			return errs.WrapMsg(err, "listener restart limit reached", "restarts", restarts)
		}
		restarts++
		if !r.Reconnect(ctx) {
			if ctx.Err() != nil {
				return nil
			}
			return errs.WrapMsg(ErrBrokerDown, "listener exiting after failed reconnect")
		}
		r.log.Info("listener restarting", zap.Int("restarts", restarts))
	}
}

// receiveLoop reads conn until it fails. received reports whether at
// least one message came through.
func (r *Relay) receiveLoop(ctx context.Context, conn Conn) (bool, error) {
	received := false
	for {
		msg, err := conn.Receive(ctx)
		if err != nil {
			return received, err
		}
		received = true
		r.dispatch(ctx, msg)
	}
}

func (r *Relay) dispatch(ctx context.Context, msg Message) {
	h, ok := r.handler(msg.Channel)
	if !ok {
		r.log.Debug("no handler", zap.String("channel", msg.Channel))
		return
	}
	payload, err := decode.JSONObject(msg.Payload)
	if err != nil {
		r.log.Warn("malformed payload skipped", zap.String("channel", msg.Channel), zap.Error(err))
		return
	}
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("handler panic", zap.String("channel", msg.Channel), zap.Error(errs.ErrPanic(p)))
		}
	}()
	h(ctx, msg.Channel, payload)
}

// Close stops the relay for good and unblocks Listen.
func (r *Relay) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	r.teardown()
	r.setState(StateDisconnected)
	r.log.Info("relay closed")
	return nil
}

// Snapshot is a point-in-time view used by health checks.
type Snapshot struct {
	State       string    `json:"state"`
	Transport   string    `json:"transport"`
	Channels    int       `json:"channels"`
	ConnectedAt time.Time `json:"connected_at,omitempty"`
}

func (r *Relay) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Snapshot{
		State:     r.State().String(),
		Transport: r.transport.Name(),
		Channels:  len(r.subs),
	}
	if r.State() == StateConnected {
		s.ConnectedAt = r.connectedAt
	}
	return s
}
