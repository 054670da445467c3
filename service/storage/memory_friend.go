package storage

import (
	"context"
	"sort"

	friendmodel "PPDirect/module/friend/model"
	"PPDirect/tools/errs"
)

func (s *MemoryStore) findPairLocked(a, b int64) *friendmodel.Friendship {
	for _, f := range s.friends {
		if f.Involves(a, b) {
			return f
		}
	}
	return nil
}

func (s *MemoryStore) CreateRequest(ctx context.Context, from, to int64) (*friendmodel.Friendship, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[to]; !ok {
		return nil, errs.ErrUserNotFound.WrapMsg("", "id", to)
	}
	if f := s.findPairLocked(from, to); f != nil {
		return nil, errs.ErrRecordIsExist.WrapMsg("Friend request already exists "+string(f.Status), "status", f.Status)
	}
	s.nextFriend++
	f := &friendmodel.Friendship{
		ID:        s.nextFriend,
		UserID:    from,
		FriendID:  to,
		Status:    friendmodel.StatusPending,
		CreatedAt: s.now().UTC(),
	}
	s.friends = append(s.friends, f)
	cp := *f
	return &cp, nil
}

// transition sets the first row matching ok to next.
func (s *MemoryStore) transition(ctx context.Context, ok func(*friendmodel.Friendship) bool, next friendmodel.Status) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, errs.Wrap(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.friends {
		if ok(f) {
			f.Status = next
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) Accept(ctx context.Context, userID, requesterID int64) (bool, error) {
	return s.transition(ctx, func(f *friendmodel.Friendship) bool {
		return f.UserID == requesterID && f.FriendID == userID && f.Status == friendmodel.StatusPending
	}, friendmodel.StatusAccepted)
}

func (s *MemoryStore) Block(ctx context.Context, userID, otherID int64) (bool, error) {
	return s.transition(ctx, func(f *friendmodel.Friendship) bool {
		return f.Involves(userID, otherID) && f.Status == friendmodel.StatusAccepted
	}, friendmodel.StatusBlocked)
}

func (s *MemoryStore) RemoveFriend(ctx context.Context, userID, otherID int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, errs.Wrap(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, f := range s.friends {
		if f.Involves(userID, otherID) && f.Status != friendmodel.StatusAccepted {
			s.friends = append(s.friends[:i], s.friends[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// profilesLocked lists the far side of every row matching keep, newest
// relation first.
func (s *MemoryStore) profilesLocked(userID int64, keep func(*friendmodel.Friendship) bool) []*friendmodel.Profile {
	out := []*friendmodel.Profile{}
	for i := len(s.friends) - 1; i >= 0; i-- {
		f := s.friends[i]
		if !keep(f) {
			continue
		}
		u, ok := s.users[f.Other(userID)]
		if !ok {
			continue
		}
		out = append(out, &friendmodel.Profile{
			ID:                  u.ID,
			Username:            u.Username,
			FriendshipStatus:    f.Status,
			FriendshipCreatedAt: f.CreatedAt,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FriendshipCreatedAt.After(out[j].FriendshipCreatedAt)
	})
	return out
}

func (s *MemoryStore) Friends(ctx context.Context, userID int64) ([]*friendmodel.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profilesLocked(userID, func(f *friendmodel.Friendship) bool {
		return (f.UserID == userID || f.FriendID == userID) && f.Status == friendmodel.StatusAccepted
	}), nil
}

func (s *MemoryStore) Requests(ctx context.Context, userID int64) ([]*friendmodel.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profilesLocked(userID, func(f *friendmodel.Friendship) bool {
		return f.FriendID == userID && f.Status == friendmodel.StatusPending
	}), nil
}

func (s *MemoryStore) Suggestions(ctx context.Context, userID int64) ([]*friendmodel.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	related := map[int64]bool{userID: true}
	for _, f := range s.friends {
		if f.UserID == userID || f.FriendID == userID {
			related[f.Other(userID)] = true
		}
	}
	now := s.now().UTC()
	out := []*friendmodel.Profile{}
	for id, u := range s.users {
		if related[id] {
			continue
		}
		out = append(out, &friendmodel.Profile{
			ID:                  u.ID,
			Username:            u.Username,
			FriendshipStatus:    friendmodel.StatusNone,
			FriendshipCreatedAt: now,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
