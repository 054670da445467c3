package broker

import (
	"context"
	"errors"
	"net"
	"time"

	"PPDirect/global/config"
	"PPDirect/tools/errs"

	"github.com/redis/go-redis/v9"
)

const redisReceivePoll = time.Second

// RedisTransport is Redis PUBLISH/SUBSCRIBE.
type RedisTransport struct {
	opts *redis.Options
}

func NewRedisTransport(c config.RedisConfig) *RedisTransport {
	return &RedisTransport{opts: &redis.Options{
		Addr:         c.Addr,
		Password:     c.Password,
		DB:           c.DB,
		PoolSize:     c.PoolSize,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}}
}

func (t *RedisTransport) Name() string { return config.BrokerRedis }

func (t *RedisTransport) Dial(ctx context.Context) (Conn, error) {
	rdb := redis.NewClient(t.opts)
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errs.WrapMsg(err, "redis ping", "addr", t.opts.Addr)
	}
	// 不带频道创建，首次 Subscribe 时才真正占用连接
	return &redisConn{rdb: rdb, ps: rdb.Subscribe(ctx)}, nil
}

type redisConn struct {
	rdb *redis.Client
	ps  *redis.PubSub
}

func (c *redisConn) Publish(ctx context.Context, channel string, payload []byte) error {
	return c.rdb.Publish(ctx, channel, payload).Err()
}

func (c *redisConn) Subscribe(ctx context.Context, channels ...string) error {
	return c.ps.Subscribe(ctx, channels...)
}

func (c *redisConn) Unsubscribe(ctx context.Context, channels ...string) error {
	return c.ps.Unsubscribe(ctx, channels...)
}

// Receive polls with a short timeout so that ctx cancellation is noticed
// even though the underlying read does not watch ctx.
func (c *redisConn) Receive(ctx context.Context) (Message, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Message{}, err
		}
		v, err := c.ps.ReceiveTimeout(ctx, redisReceivePoll)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if errors.Is(err, redis.ErrClosed) {
				return Message{}, ErrConnClosed
			}
			return Message{}, err
		}
		// *redis.Subscription / *redis.Pong 忽略
		if m, ok := v.(*redis.Message); ok {
			return Message{Channel: m.Channel, Payload: []byte(m.Payload)}, nil
		}
	}
}

func (c *redisConn) Close() error {
	err := c.ps.Close()
	if cerr := c.rdb.Close(); err == nil {
		err = cerr
	}
	return err
}
