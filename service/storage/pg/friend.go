package pg

import (
	"context"
	"errors"

	friendmodel "PPDirect/module/friend/model"
	"PPDirect/tools/errs"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const pairWhere = `((user_id = $1 AND friend_id = $2) OR (user_id = $2 AND friend_id = $1))`

func (s *Store) CreateRequest(ctx context.Context, from, to int64) (*friendmodel.Friendship, error) {
	var status string
	err := s.pool.QueryRow(ctx, `SELECT status FROM friendships WHERE `+pairWhere+` LIMIT 1`, from, to).Scan(&status)
	if err == nil {
		return nil, errs.ErrRecordIsExist.WrapMsg("Friend request already exists "+status, "status", status)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrStore.WrapMsg(err.Error(), "op", "check friendship")
	}

	f := &friendmodel.Friendship{}
	err = s.pool.QueryRow(ctx,
		`INSERT INTO friendships (user_id, friend_id, status) VALUES ($1, $2, 'pending')
		 RETURNING id, user_id, friend_id, status, created_at`,
		from, to,
	).Scan(&f.ID, &f.UserID, &f.FriendID, &status, &f.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation:
			return nil, errs.ErrRecordIsExist.WrapMsg("Friend request already exists", "constraint", pgErr.ConstraintName)
		case foreignKeyViolation:
			return nil, errs.ErrUserNotFound.WrapMsg("", "id", to)
		}
	}
	if err != nil {
		return nil, errs.ErrStore.WrapMsg(err.Error(), "op", "insert friendship")
	}
	f.Status = friendmodel.Status(status)
	return f, nil
}

func (s *Store) exec(ctx context.Context, op, sql string, args ...any) (bool, error) {
	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return false, errs.ErrStore.WrapMsg(err.Error(), "op", op)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) Accept(ctx context.Context, userID, requesterID int64) (bool, error) {
	return s.exec(ctx, "accept friendship",
		`UPDATE friendships SET status = 'accepted'
		  WHERE user_id = $1 AND friend_id = $2 AND status = 'pending'`,
		requesterID, userID)
}

func (s *Store) Block(ctx context.Context, userID, otherID int64) (bool, error) {
	return s.exec(ctx, "block friendship",
		`UPDATE friendships SET status = 'blocked' WHERE `+pairWhere+` AND status = 'accepted'`,
		userID, otherID)
}

func (s *Store) RemoveFriend(ctx context.Context, userID, otherID int64) (bool, error) {
	return s.exec(ctx, "remove friendship",
		`DELETE FROM friendships WHERE `+pairWhere+` AND status IN ('pending', 'blocked')`,
		userID, otherID)
}

func (s *Store) profiles(ctx context.Context, op, sql string, args ...any) ([]*friendmodel.Profile, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, errs.ErrStore.WrapMsg(err.Error(), "op", op)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*friendmodel.Profile, error) {
		p := &friendmodel.Profile{}
		var status string
		err := row.Scan(&p.ID, &p.Username, &status, &p.FriendshipCreatedAt)
		p.FriendshipStatus = friendmodel.Status(status)
		return p, err
	})
	if err != nil {
		return nil, errs.ErrStore.WrapMsg(err.Error(), "op", op)
	}
	return out, nil
}

func (s *Store) Friends(ctx context.Context, userID int64) ([]*friendmodel.Profile, error) {
	return s.profiles(ctx, "friends",
		`SELECT u.id, u.username, f.status, f.created_at
		   FROM friendships f
		   JOIN users u ON u.id = CASE WHEN f.user_id = $1 THEN f.friend_id ELSE f.user_id END
		  WHERE (f.user_id = $1 OR f.friend_id = $1) AND f.status = 'accepted'
		  ORDER BY f.created_at DESC, f.id DESC`,
		userID)
}

func (s *Store) Requests(ctx context.Context, userID int64) ([]*friendmodel.Profile, error) {
	return s.profiles(ctx, "friend requests",
		`SELECT u.id, u.username, f.status, f.created_at
		   FROM friendships f
		   JOIN users u ON u.id = f.user_id
		  WHERE f.friend_id = $1 AND f.status = 'pending'
		  ORDER BY f.created_at DESC, f.id DESC`,
		userID)
}

func (s *Store) Suggestions(ctx context.Context, userID int64) ([]*friendmodel.Profile, error) {
	return s.profiles(ctx, "people you may know",
		`SELECT id, username, 'none', now()
		   FROM users
		  WHERE id <> $1
		    AND id NOT IN (
		        SELECT friend_id FROM friendships WHERE user_id = $1
		        UNION
		        SELECT user_id FROM friendships WHERE friend_id = $1
		    )
		  ORDER BY id`,
		userID)
}
