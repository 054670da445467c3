package broker

import (
	"context"
	"errors"
	"strconv"
)

var (
	ErrConnClosed  = errors.New("broker: connection closed")
	ErrBrokerDown  = errors.New("broker: unavailable")
	ErrNotConnect  = errors.New("broker: not connected")
	ErrRelayClosed = errors.New("broker: relay closed")
)

// Message is one event received on a subscribed channel.
type Message struct {
	Channel string
	Payload []byte
}

// Transport dials one broker connection. Each Relay owns at most one
// live Conn at a time.
type Transport interface {
	Name() string
	Dial(ctx context.Context) (Conn, error)
}

// Conn is a live broker connection. Receive blocks until a message
// arrives, ctx is done, or the connection fails; after Close it returns
// an error.
type Conn interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channels ...string) error
	Unsubscribe(ctx context.Context, channels ...string) error
	Receive(ctx context.Context) (Message, error)
	Close() error
}

// UserChannel is the direct-message channel of a user.
func UserChannel(userID int64) string {
	return "user:" + strconv.FormatInt(userID, 10)
}
