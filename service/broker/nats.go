package broker

import (
	"context"
	"strings"
	"sync"
	"time"

	"PPDirect/global/config"
	"PPDirect/tools/errs"

	"github.com/nats-io/nats.go"
)

const natsInboxSize = 1024

// NatsTransport is core NATS subjects. Client-side reconnect is turned
// off: the Relay runs its own backoff cycle and resubscribes.
type NatsTransport struct {
	cfg config.NatsConfig
}

func NewNatsTransport(c config.NatsConfig) *NatsTransport {
	return &NatsTransport{cfg: c}
}

func (t *NatsTransport) Name() string { return config.BrokerNats }

func (t *NatsTransport) Dial(ctx context.Context) (Conn, error) {
	if len(t.cfg.Servers) == 0 {
		return nil, errs.New("nats servers missing")
	}
	c := &natsConn{
		inbox: make(chan *nats.Msg, natsInboxSize),
		errCh: make(chan error, 1),
		subs:  make(map[string]*nats.Subscription),
	}
	timeout := 3 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
	}
	opts := []nats.Option{
		nats.Name(t.cfg.Name),
		nats.NoReconnect(),
		nats.Timeout(timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err == nil {
				err = ErrConnClosed
			}
			c.fail(err)
		}),
		nats.ClosedHandler(func(*nats.Conn) { c.fail(ErrConnClosed) }),
	}
	if t.cfg.User != "" {
		opts = append(opts, nats.UserInfo(t.cfg.User, t.cfg.Password))
	}
	nc, err := nats.Connect(strings.Join(t.cfg.Servers, ","), opts...)
	if err != nil {
		return nil, errs.WrapMsg(err, "nats connect", "servers", t.cfg.Servers)
	}
	c.nc = nc
	return c, nil
}

type natsConn struct {
	nc    *nats.Conn
	inbox chan *nats.Msg
	errCh chan error

	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

func (c *natsConn) fail(err error) {
	select {
	case c.errCh <- err:
	default:
	}
}

func (c *natsConn) Publish(_ context.Context, channel string, payload []byte) error {
	return c.nc.Publish(channel, payload)
}

func (c *natsConn) Subscribe(_ context.Context, channels ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range channels {
		if _, ok := c.subs[ch]; ok {
			continue
		}
		sub, err := c.nc.ChanSubscribe(ch, c.inbox)
		if err != nil {
			return errs.WrapMsg(err, "nats subscribe", "subject", ch)
		}
		c.subs[ch] = sub
	}
	// 确保服务端已处理 SUB
	return c.nc.Flush()
}

func (c *natsConn) Unsubscribe(_ context.Context, channels ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range channels {
		sub, ok := c.subs[ch]
		if !ok {
			continue
		}
		delete(c.subs, ch)
		if err := sub.Unsubscribe(); err != nil {
			return errs.WrapMsg(err, "nats unsubscribe", "subject", ch)
		}
	}
	return nil
}

func (c *natsConn) Receive(ctx context.Context) (Message, error) {
	select {
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case err := <-c.errCh:
		c.fail(err) // 保持后续 Receive 也能拿到错误
		return Message{}, err
	case m := <-c.inbox:
		return Message{Channel: m.Subject, Payload: m.Data}, nil
	}
}

func (c *natsConn) Close() error {
	c.nc.Close()
	return nil
}
