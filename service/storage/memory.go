package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	friendmodel "PPDirect/module/friend/model"
	msgmodel "PPDirect/module/message/model"
	usermodel "PPDirect/module/user/model"
	"PPDirect/tools/errs"
)

// MemoryStore keeps everything in process. Used by tests and single-node dev runs.
type MemoryStore struct {
	mu         sync.RWMutex
	msgs       []*msgmodel.Message // 按插入顺序
	users      map[int64]*usermodel.User
	byName     map[string]int64
	friends    []*friendmodel.Friendship
	nextMsg    int64
	nextUser   int64
	nextFriend int64
	now        func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:  make(map[int64]*usermodel.User),
		byName: make(map[string]int64),
		now:    time.Now,
	}
}

// SetClock overrides the time source used for created_at.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

func (s *MemoryStore) Ping(context.Context) error  { return nil }
func (s *MemoryStore) Close(context.Context) error { return nil }

func (s *MemoryStore) Insert(ctx context.Context, senderID, receiverID int64, content string) (*msgmodel.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextMsg++
	m := &msgmodel.Message{
		ID:         s.nextMsg,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		CreatedAt:  s.now().UTC(),
	}
	s.msgs = append(s.msgs, m)
	cp := *m
	return &cp, nil
}

func between(m *msgmodel.Message, a, b int64) bool {
	return (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a)
}

func (s *MemoryStore) Range(ctx context.Context, a, b int64, page msgmodel.Page) ([]*msgmodel.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(err)
	}
	page = page.Normalize()
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*msgmodel.Message, 0, page.Limit)
	skipped := 0
	for i := len(s.msgs) - 1; i >= 0 && len(out) < page.Limit; i-- {
		m := s.msgs[i]
		if !between(m, a, b) {
			continue
		}
		if skipped < page.Offset {
			skipped++
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) Conversations(ctx context.Context, userID int64) ([]*msgmodel.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[int64]bool)
	var out []*msgmodel.Conversation
	for i := len(s.msgs) - 1; i >= 0; i-- {
		m := s.msgs[i]
		var other int64
		switch userID {
		case m.SenderID:
			other = m.ReceiverID
		case m.ReceiverID:
			other = m.SenderID
		default:
			continue
		}
		if seen[other] {
			continue
		}
		seen[other] = true
		c := &msgmodel.Conversation{
			OtherUserID:     other,
			LastMessage:     m.Content,
			LastMessageTime: m.CreatedAt,
		}
		if u, ok := s.users[other]; ok {
			c.Username = u.Username
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastMessageTime.After(out[j].LastMessageTime)
	})
	return out, nil
}

func (s *MemoryStore) DeleteConversation(ctx context.Context, a, b int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, errs.Wrap(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.msgs[:0]
	var n int64
	for _, m := range s.msgs {
		if between(m, a, b) {
			n++
			continue
		}
		kept = append(kept, m)
	}
	s.msgs = kept
	return n, nil
}

func (s *MemoryStore) LookupByID(_ context.Context, id int64) (*usermodel.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, errs.ErrUserNotFound.WrapMsg("", "id", id)
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) LookupByUsername(_ context.Context, username string) (*usermodel.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byName[username]
	if !ok {
		return nil, errs.ErrUserNotFound.WrapMsg("", "username", username)
	}
	cp := *s.users[id]
	return &cp, nil
}

func (s *MemoryStore) Create(_ context.Context, u *usermodel.User) error {
	if u == nil || u.Username == "" {
		return errs.ErrArgs.WrapMsg("username is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byName[u.Username]; ok {
		return errs.ErrRecordIsExist.WrapMsg("username taken", "username", u.Username)
	}
	for _, other := range s.users {
		if u.Email != "" && strings.EqualFold(other.Email, u.Email) {
			return errs.ErrRecordIsExist.WrapMsg("email taken", "email", u.Email)
		}
	}
	if u.ID == 0 {
		s.nextUser++
		u.ID = s.nextUser
	} else if _, ok := s.users[u.ID]; ok {
		return errs.ErrRecordIsExist.WrapMsg("id taken", "id", u.ID)
	} else if u.ID > s.nextUser {
		s.nextUser = u.ID
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now().UTC()
	}
	cp := *u
	s.users[u.ID] = &cp
	s.byName[u.Username] = u.ID
	return nil
}

func (s *MemoryStore) ExistsByEmail(_ context.Context, email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return true, nil
		}
	}
	return false, nil
}
