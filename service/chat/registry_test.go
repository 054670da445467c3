package chat

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r := NewRegistry(func() time.Time { return now }, nil)

	t.Run("register and lookup", func(t *testing.T) {
		c := newFakeConn()
		s := r.Register(1, c)
		assert.Equal(t, int64(1), s.UserID)
		assert.Equal(t, now, s.ConnectedAt)
		assert.NotEmpty(t, s.ID)
		assert.True(t, r.IsOnline(1))
		assert.False(t, r.IsOnline(2))
		r.Remove(1)
		assert.False(t, r.IsOnline(1))
		r.Remove(1)
	})

	t.Run("register twice keeps the newest and closes the old", func(t *testing.T) {
		old, cur := newFakeConn(), newFakeConn()
		s1 := r.Register(7, old)
		s2 := r.Register(7, cur)

		assert.True(t, old.isClosed())
		assert.False(t, cur.isClosed())
		assert.Equal(t, 1, countUser(r, 7))

		assert.False(t, r.RemoveSession(s1), "stale session must not evict the new one")
		assert.True(t, r.IsOnline(7))
		assert.True(t, r.RemoveSession(s2))
		assert.False(t, r.IsOnline(7))
	})

	t.Run("send direct", func(t *testing.T) {
		c := newFakeConn()
		r.Register(3, c)
		assert.True(t, r.SendDirect(3, map[string]any{"type": "pong"}))
		assert.Len(t, c.ofType("pong"), 1)
		assert.False(t, r.SendDirect(4, map[string]any{"type": "pong"}))
	})

	t.Run("failed write removes the session", func(t *testing.T) {
		c := newFakeConn()
		r.Register(5, c)
		c.breakWrites()
		assert.False(t, r.SendDirect(5, map[string]any{"type": "pong"}))
		assert.False(t, r.IsOnline(5))
		code, _ := c.closeInfo()
		assert.Equal(t, CloseInternalError, code)
	})

	t.Run("close all", func(t *testing.T) {
		a, b := newFakeConn(), newFakeConn()
		r.Register(10, a)
		r.Register(11, b)
		r.CloseAll(CloseNormal, "bye")
		assert.Equal(t, 0, r.Count())
		assert.True(t, a.isClosed())
		assert.True(t, b.isClosed())
	})
}

func countUser(r *Registry, userID int64) int {
	if _, ok := r.Get(userID); ok {
		return 1
	}
	return 0
}

func TestRegistryConcurrent(t *testing.T) {
	r := NewRegistry(nil, nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(uid int64) {
			defer wg.Done()
			c := newFakeConn()
			s := r.Register(uid%5, c)
			r.SendDirect(uid%5, map[string]any{"n": uid})
			r.IsOnline(uid % 5)
			r.RemoveSession(s)
		}(int64(i))
	}
	wg.Wait()
	require.LessOrEqual(t, r.Count(), 5)
}
