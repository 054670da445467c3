package chat

import (
	"sync"
	"time"

	"PPDirect/logger"
	"PPDirect/tools/ids"

	"go.uber.org/zap"
)

// Session is the live binding of a user to a socket on this process.
type Session struct {
	ID          string // snowflake，用于 compare-and-remove
	UserID      int64
	Conn        Conn
	ConnectedAt time.Time
}

// Registry maps users to their single live session on this process.
// It is the only place that closes sockets of registered sessions.
type Registry struct {
	mu     sync.RWMutex
	byUser map[int64]*Session

	clock func() time.Time
	log   *zap.Logger
}

func NewRegistry(clock func() time.Time, l *zap.Logger) *Registry {
	if clock == nil {
		clock = time.Now
	}
	return &Registry{
		byUser: make(map[int64]*Session),
		clock:  clock,
		log:    logger.Named(l, "registry"),
	}
}

// Register installs conn as the only handle of userID. A previous handle
// is closed, not left open.
func (r *Registry) Register(userID int64, conn Conn) *Session {
	s := &Session{
		ID:          ids.GenerateString(),
		UserID:      userID,
		Conn:        conn,
		ConnectedAt: r.clock(),
	}
	r.mu.Lock()
	old := r.byUser[userID]
	r.byUser[userID] = s
	r.mu.Unlock()

	if old != nil && old.Conn != conn {
		r.log.Info("session replaced", zap.Int64("user_id", userID), zap.String("old", old.ID), zap.String("new", s.ID))
		_ = old.Conn.Close(CloseNormal, "replaced by a newer connection")
	}
	return s
}

// Remove drops whatever session userID has. No-op when there is none.
func (r *Registry) Remove(userID int64) {
	r.mu.Lock()
	delete(r.byUser, userID)
	r.mu.Unlock()
}

// RemoveSession drops s only if it is still the current session of its
// user, and reports whether it did.
func (r *Registry) RemoveSession(s *Session) bool {
	if s == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.byUser[s.UserID]
	if !ok || cur.ID != s.ID {
		return false
	}
	delete(r.byUser, s.UserID)
	return true
}

func (r *Registry) IsOnline(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byUser[userID]
	return ok
}

func (r *Registry) Get(userID int64) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byUser[userID]
	return s, ok
}

// SendDirect writes event to the user's socket. It is true only when the
// write went through. A failed write removes the session and closes its
// socket, so a read-like call can shrink the registry.
func (r *Registry) SendDirect(userID int64, event any) bool {
	s, ok := r.Get(userID)
	if !ok {
		return false
	}
	if err := s.Conn.WriteJSON(event); err != nil {
		r.log.Warn("send failed, dropping session", zap.Int64("user_id", userID), zap.String("session", s.ID), zap.Error(err))
		r.RemoveSession(s)
		_ = s.Conn.Close(CloseInternalError, "write failed")
		return false
	}
	return true
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}

// CloseAll closes every session with code and empties the registry.
func (r *Registry) CloseAll(code int, reason string) {
	r.mu.Lock()
	all := r.byUser
	r.byUser = make(map[int64]*Session)
	r.mu.Unlock()
	for _, s := range all {
		_ = s.Conn.Close(code, reason)
	}
	r.log.Info("all sessions closed", zap.Int("count", len(all)))
}
