package chat

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	usermodel "PPDirect/module/user/model"
	"PPDirect/service/broker"
	"PPDirect/service/delivery"
	"PPDirect/service/storage"
	"PPDirect/tools/security"

	"github.com/stretchr/testify/require"
)

var errPeerGone = errors.New("fake: peer gone")

// fakeConn is an in-memory socket. Frames pushed by the test are read by
// the session; every write is decoded back to a map.
type fakeConn struct {
	in     chan []byte
	closed chan struct{}

	mu          sync.Mutex
	events      []map[string]any
	failWrites  bool
	closeCode   int
	closeReason string
	closeOnce   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 16), closed: make(chan struct{})}
}

func (c *fakeConn) ReadMessage(deadline time.Time) ([]byte, error) {
	var timeout <-chan time.Time
	if !deadline.IsZero() {
		timer := time.NewTimer(time.Until(deadline))
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case raw := <-c.in:
		return raw, nil
	case <-c.closed:
		return nil, errPeerGone
	case <-timeout:
		return nil, ErrReadTimeout
	}
}

func (c *fakeConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWrites {
		return errors.New("fake: broken pipe")
	}
	select {
	case <-c.closed:
		return errors.New("fake: closed")
	default:
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return err
	}
	c.events = append(c.events, m)
	return nil
}

func (c *fakeConn) Close(code int, reason string) error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closeCode, c.closeReason = code, reason
		c.mu.Unlock()
		close(c.closed)
	})
	return nil
}

func (c *fakeConn) RemoteAddr() string { return "fake" }

func (c *fakeConn) send(t *testing.T, v any) {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	c.in <- raw
}

func (c *fakeConn) sendRaw(raw string) { c.in <- []byte(raw) }

func (c *fakeConn) hangUp() { _ = c.Close(CloseNormal, "client left") }

func (c *fakeConn) breakWrites() {
	c.mu.Lock()
	c.failWrites = true
	c.mu.Unlock()
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) closeInfo() (int, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCode, c.closeReason
}

func (c *fakeConn) ofType(typ string) []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []map[string]any
	for _, e := range c.events {
		if e["type"] == typ {
			out = append(out, e)
		}
	}
	return out
}

func (c *fakeConn) waitFor(t *testing.T, typ string) map[string]any {
	t.Helper()
	var got map[string]any
	require.Eventually(t, func() bool {
		evs := c.ofType(typ)
		if len(evs) == 0 {
			return false
		}
		got = evs[len(evs)-1]
		return true
	}, 2*time.Second, 5*time.Millisecond, "no %q event", typ)
	return got
}

func (c *fakeConn) waitClosed(t *testing.T) (int, string) {
	t.Helper()
	select {
	case <-c.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("socket was not closed")
	}
	return c.closeInfo()
}

const testSecret = "test-secret"

func jwtOptions() security.Options {
	return security.DefaultOptions([]byte(testSecret))
}

func tokenFor(t *testing.T, username string) string {
	t.Helper()
	tok, _, err := security.Generate(jwtOptions(), username, security.TokenTypeAccess)
	require.NoError(t, err)
	return tok
}

// cluster is a set of nodes sharing one broker and one store.
type cluster struct {
	bus   *broker.MemoryBus
	store *storage.MemoryStore
	users map[string]*usermodel.User
}

func newCluster(t *testing.T, usernames ...string) *cluster {
	t.Helper()
	c := &cluster{bus: broker.NewMemoryBus(), store: storage.NewMemoryStore(), users: map[string]*usermodel.User{}}
	for _, name := range usernames {
		u := &usermodel.User{Username: name, Email: name + "@example.com", HashedPassword: "x"}
		require.NoError(t, c.store.Create(context.Background(), u))
		c.users[name] = u
	}
	return c
}

type node struct {
	id    string
	srv   *Server
	reg   *Registry
	relay *broker.Relay
	ctx   context.Context
}

func (c *cluster) node(t *testing.T, id string, store delivery.Store) *node {
	t.Helper()
	return c.nodeWithSleep(t, id, store, func(context.Context, time.Duration) error { return nil })
}

// nodeWithSleep lets a test hold the relay inside its reconnect backoff.
func (c *cluster) nodeWithSleep(t *testing.T, id string, store delivery.Store, sleep func(context.Context, time.Duration) error) *node {
	t.Helper()
	if store == nil {
		store = c.store
	}
	ctx, cancel := context.WithCancel(context.Background())
	relay := broker.NewRelay(c.bus, broker.Options{Sleep: sleep})
	require.True(t, relay.Connect(ctx, false))
	go func() { _ = relay.Listen(ctx) }()

	reg := NewRegistry(nil, nil)
	orch := delivery.NewOrchestrator(store, reg, relay, delivery.Options{NodeID: id})
	srv := NewServer(ServerConf{NodeID: id, AuthTimeout: 150 * time.Millisecond, WriteTimeout: time.Second}, Deps{
		Registry: reg,
		Relay:    relay,
		Verifier: security.NewVerifier(jwtOptions(), security.TokenTypeAccess),
		Users:    c.store,
		Sender:   orch,
	})
	t.Cleanup(func() {
		cancel()
		_ = relay.Close()
	})
	return &node{id: id, srv: srv, reg: reg, relay: relay, ctx: ctx}
}

// open starts serving a fresh socket without authenticating it.
func (n *node) open() (*fakeConn, chan struct{}) {
	conn := newFakeConn()
	done := make(chan struct{})
	go func() {
		defer close(done)
		n.srv.Serve(n.ctx, conn)
	}()
	return conn, done
}

// login opens a socket and completes the handshake.
func (n *node) login(t *testing.T, username string) *fakeConn {
	t.Helper()
	conn, _ := n.open()
	conn.send(t, map[string]any{"type": "auth", "content": tokenFor(t, username)})
	conn.waitFor(t, "auth_success")
	return conn
}
