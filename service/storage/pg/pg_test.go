package pg

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"PPDirect/global/config"
	friendmodel "PPDirect/module/friend/model"
	msgmodel "PPDirect/module/message/model"
	usermodel "PPDirect/module/user/model"
	"PPDirect/tools/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTest connects to $PPDIRECT_DATABASE_URL; without it the test is skipped.
func openTest(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("PPDIRECT_DATABASE_URL")
	if url == "" {
		t.Skip("PPDIRECT_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s, err := Open(ctx, config.PGConfig{URL: url, MaxConns: 4})
	require.NoError(t, err)
	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.Migrate(ctx), "migrate is idempotent")
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

// newUsers creates uniquely named users and removes everything they own
// when the test ends.
func newUsers(t *testing.T, s *Store, n int) []*usermodel.User {
	t.Helper()
	ctx := context.Background()
	tag := time.Now().UnixNano()
	out := make([]*usermodel.User, 0, n)
	for i := 0; i < n; i++ {
		u := &usermodel.User{
			Username:       fmt.Sprintf("u%d_%d", tag, i),
			Email:          fmt.Sprintf("u%d_%d@example.com", tag, i),
			HashedPassword: "x",
		}
		require.NoError(t, s.Create(ctx, u))
		require.NotZero(t, u.ID)
		out = append(out, u)
	}
	t.Cleanup(func() {
		idList := make([]int64, 0, len(out))
		for _, u := range out {
			idList = append(idList, u.ID)
		}
		ctx := context.Background()
		_, _ = s.pool.Exec(ctx, `DELETE FROM friendships WHERE user_id = ANY($1) OR friend_id = ANY($1)`, idList)
		_, _ = s.pool.Exec(ctx, `DELETE FROM messages WHERE sender_id = ANY($1) OR receiver_id = ANY($1)`, idList)
		_, _ = s.pool.Exec(ctx, `DELETE FROM users WHERE id = ANY($1)`, idList)
	})
	return out
}

func TestRangeNewestFirst(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	us := newUsers(t, s, 3)
	a, b, c := us[0].ID, us[1].ID, us[2].ID

	for i := 1; i <= 5; i++ {
		from, to := a, b
		if i%2 == 0 {
			from, to = b, a
		}
		m, err := s.Insert(ctx, from, to, fmt.Sprint(i))
		require.NoError(t, err)
		assert.NotZero(t, m.ID)
		assert.False(t, m.CreatedAt.IsZero())
	}
	_, err := s.Insert(ctx, c, a, "other pair")
	require.NoError(t, err)

	all, err := s.Range(ctx, a, b, msgmodel.Page{})
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i, want := range []string{"5", "4", "3", "2", "1"} {
		assert.Equal(t, want, all[i].Content)
	}

	page, err := s.Range(ctx, b, a, msgmodel.Page{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "4", page[0].Content)
	assert.Equal(t, "3", page[1].Content)

	page, err = s.Range(ctx, a, b, msgmodel.Page{Limit: 10, Offset: 9})
	require.NoError(t, err)
	assert.Empty(t, page)

	convs, err := s.Conversations(ctx, a)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, c, convs[0].OtherUserID)
	assert.Equal(t, us[2].Username, convs[0].Username)
	assert.Equal(t, "5", convs[1].LastMessage)

	n, err := s.DeleteConversation(ctx, b, a)
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)
}

func TestCreateUniqueViolation(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	u := newUsers(t, s, 1)[0]

	err := s.Create(ctx, &usermodel.User{Username: u.Username, Email: "other_" + u.Email, HashedPassword: "x"})
	require.Error(t, err)
	assert.True(t, errs.ErrRecordIsExist.Is(err), err)

	got, err := s.LookupByUsername(ctx, u.Username)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	_, err = s.LookupByID(ctx, -1)
	assert.True(t, errs.ErrUserNotFound.Is(err), err)

	ok, err := s.ExistsByEmail(ctx, u.Email)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFriendships(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	us := newUsers(t, s, 3)
	a, b, c := us[0].ID, us[1].ID, us[2].ID

	f, err := s.CreateRequest(ctx, a, b)
	require.NoError(t, err)
	assert.Equal(t, friendmodel.StatusPending, f.Status)

	_, err = s.CreateRequest(ctx, b, a)
	assert.True(t, errs.ErrRecordIsExist.Is(err), err)
	_, err = s.CreateRequest(ctx, a, -1)
	assert.True(t, errs.ErrUserNotFound.Is(err), err)

	reqs, err := s.Requests(ctx, b)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, a, reqs[0].ID)

	ok, err := s.Accept(ctx, a, b)
	require.NoError(t, err)
	assert.False(t, ok, "the sender cannot accept")
	ok, err = s.Accept(ctx, b, a)
	require.NoError(t, err)
	assert.True(t, ok)

	friends, err := s.Friends(ctx, a)
	require.NoError(t, err)
	require.Len(t, friends, 1)
	assert.Equal(t, b, friends[0].ID)
	assert.Equal(t, friendmodel.StatusAccepted, friends[0].FriendshipStatus)

	sugg, err := s.Suggestions(ctx, a)
	require.NoError(t, err)
	var seen []int64
	for _, p := range sugg {
		seen = append(seen, p.ID)
	}
	assert.Contains(t, seen, c)
	assert.NotContains(t, seen, b)
	assert.NotContains(t, seen, a)

	ok, err = s.RemoveFriend(ctx, a, b)
	require.NoError(t, err)
	assert.False(t, ok, "accepted friendships are blocked, not removed")
	ok, err = s.Block(ctx, b, a)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.RemoveFriend(ctx, a, b)
	require.NoError(t, err)
	assert.True(t, ok)
}
