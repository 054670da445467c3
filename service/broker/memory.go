package broker

import (
	"context"
	"sync"
	"sync/atomic"

	"PPDirect/global/config"
)

const memoryInboxSize = 1024

// MemoryBus is an in-process broker. Several relays dialing the same bus
// behave like several processes sharing one broker. SetDown simulates an
// outage: live connections fail and Dial is refused until it is lifted.
type MemoryBus struct {
	mu    sync.Mutex
	conns map[*memoryConn]struct{}
	down  bool
	dials atomic.Int64
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{conns: make(map[*memoryConn]struct{})}
}

func (b *MemoryBus) Name() string { return config.BrokerMemory }

func (b *MemoryBus) Dial(ctx context.Context) (Conn, error) {
	b.dials.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.down {
		return nil, ErrBrokerDown
	}
	c := &memoryConn{
		bus:    b,
		subs:   make(map[string]int),
		inbox:  make(chan Message, memoryInboxSize),
		closed: make(chan struct{}),
	}
	b.conns[c] = struct{}{}
	return c, nil
}

// Dials counts Dial calls, refused ones included.
func (b *MemoryBus) Dials() int64 { return b.dials.Load() }

func (b *MemoryBus) SetDown(down bool) {
	b.mu.Lock()
	b.down = down
	var victims []*memoryConn
	if down {
		for c := range b.conns {
			victims = append(victims, c)
		}
	}
	b.mu.Unlock()
	for _, c := range victims {
		c.fail(ErrBrokerDown)
	}
}

// Subscribers returns how many live connections subscribe channel.
func (b *MemoryBus) Subscribers(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for c := range b.conns {
		c.mu.Lock()
		n += c.subs[channel]
		c.mu.Unlock()
	}
	return n
}

func (b *MemoryBus) publish(channel string, payload []byte) error {
	b.mu.Lock()
	if b.down {
		b.mu.Unlock()
		return ErrBrokerDown
	}
	var targets []*memoryConn
	for c := range b.conns {
		c.mu.Lock()
		if c.subs[channel] > 0 {
			targets = append(targets, c)
		}
		c.mu.Unlock()
	}
	b.mu.Unlock()

	for _, c := range targets {
		data := append([]byte(nil), payload...)
		select {
		case c.inbox <- Message{Channel: channel, Payload: data}:
		case <-c.closed:
		}
	}
	return nil
}

func (b *MemoryBus) remove(c *memoryConn) {
	b.mu.Lock()
	delete(b.conns, c)
	b.mu.Unlock()
}

type memoryConn struct {
	bus *MemoryBus

	mu   sync.Mutex
	subs map[string]int // 计数便于测试发现重复订阅

	inbox     chan Message
	closed    chan struct{}
	closeOnce sync.Once
	err       atomic.Value // error
}

func (c *memoryConn) fail(err error) {
	c.closeOnce.Do(func() {
		c.err.Store(err)
		close(c.closed)
		c.bus.remove(c)
	})
}

func (c *memoryConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *memoryConn) Publish(_ context.Context, channel string, payload []byte) error {
	if c.isClosed() {
		return ErrConnClosed
	}
	return c.bus.publish(channel, payload)
}

func (c *memoryConn) Subscribe(_ context.Context, channels ...string) error {
	if c.isClosed() {
		return ErrConnClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range channels {
		c.subs[ch]++
	}
	return nil
}

func (c *memoryConn) Unsubscribe(_ context.Context, channels ...string) error {
	if c.isClosed() {
		return ErrConnClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range channels {
		delete(c.subs, ch)
	}
	return nil
}

func (c *memoryConn) Receive(ctx context.Context) (Message, error) {
	select {
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case <-c.closed:
		err, _ := c.err.Load().(error)
		if err == nil {
			err = ErrConnClosed
		}
		return Message{}, err
	case m := <-c.inbox:
		return m, nil
	}
}

func (c *memoryConn) Close() error {
	c.fail(ErrConnClosed)
	return nil
}
