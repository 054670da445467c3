package pg

import (
	"context"
	"errors"
	"time"

	"PPDirect/global/config"
	"PPDirect/logger"
	msgmodel "PPDirect/module/message/model"
	usermodel "PPDirect/module/user/model"
	"PPDirect/tools/errs"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id              BIGSERIAL PRIMARY KEY,
	username        TEXT NOT NULL UNIQUE,
	email           TEXT NOT NULL UNIQUE,
	hashed_password TEXT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS messages (
	id          BIGSERIAL PRIMARY KEY,
	sender_id   BIGINT NOT NULL REFERENCES users(id),
	receiver_id BIGINT NOT NULL REFERENCES users(id),
	content     TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	is_read     BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages (sender_id, receiver_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_messages_receiver ON messages (receiver_id, created_at DESC);
CREATE TABLE IF NOT EXISTS friendships (
	id         BIGSERIAL PRIMARY KEY,
	user_id    BIGINT NOT NULL REFERENCES users(id),
	friend_id  BIGINT NOT NULL REFERENCES users(id),
	status     TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'accepted', 'blocked')),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (user_id, friend_id)
);
CREATE INDEX IF NOT EXISTS idx_friendships_user ON friendships (user_id);
CREATE INDEX IF NOT EXISTS idx_friendships_friend ON friendships (friend_id);
`

// Store is the Postgres backend.
type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func Open(ctx context.Context, cfg config.PGConfig) (*Store, error) {
	pc, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, errs.WrapMsg(err, "parse postgres url")
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, errs.WrapMsg(err, "Unable to connect to database")
	}
	s := &Store{pool: pool, log: logger.Log.Named("pg")}
	if err := s.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates tables and indexes if they don't exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return errs.WrapMsg(err, "migrate postgres")
	}
	s.log.Info("schema ready")
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return errs.WrapMsg(err, "postgres ping failed")
	}
	return nil
}

func (s *Store) Close(context.Context) error {
	s.pool.Close()
	return nil
}

func (s *Store) Insert(ctx context.Context, senderID, receiverID int64, content string) (*msgmodel.Message, error) {
	m := &msgmodel.Message{SenderID: senderID, ReceiverID: receiverID, Content: content}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO messages (sender_id, receiver_id, content) VALUES ($1, $2, $3)
		 RETURNING id, created_at, is_read`,
		senderID, receiverID, content,
	).Scan(&m.ID, &m.CreatedAt, &m.IsRead)
	if err != nil {
		return nil, errs.ErrStore.WrapMsg(err.Error(), "op", "insert message")
	}
	return m, nil
}

func (s *Store) Range(ctx context.Context, a, b int64, page msgmodel.Page) ([]*msgmodel.Message, error) {
	page = page.Normalize()
	rows, err := s.pool.Query(ctx,
		`SELECT id, sender_id, receiver_id, content, created_at, is_read
		   FROM messages
		  WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)
		  ORDER BY created_at DESC, id DESC
		  LIMIT $3 OFFSET $4`,
		a, b, page.Limit, page.Offset,
	)
	if err != nil {
		return nil, errs.ErrStore.WrapMsg(err.Error(), "op", "range messages")
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*msgmodel.Message, error) {
		m := &msgmodel.Message{}
		err := row.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Content, &m.CreatedAt, &m.IsRead)
		return m, err
	})
	if err != nil {
		return nil, errs.ErrStore.WrapMsg(err.Error(), "op", "scan messages")
	}
	return out, nil
}

func (s *Store) Conversations(ctx context.Context, userID int64) ([]*msgmodel.Conversation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT t.other_id, COALESCE(u.username, ''), t.content, t.created_at FROM (
		    SELECT DISTINCT ON (other_id) other_id, content, created_at, id FROM (
		        SELECT CASE WHEN sender_id = $1 THEN receiver_id ELSE sender_id END AS other_id,
		               content, created_at, id
		          FROM messages
		         WHERE sender_id = $1 OR receiver_id = $1
		    ) m
		    ORDER BY other_id, created_at DESC, id DESC
		 ) t
		 LEFT JOIN users u ON u.id = t.other_id
		 ORDER BY t.created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, errs.ErrStore.WrapMsg(err.Error(), "op", "conversations")
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*msgmodel.Conversation, error) {
		c := &msgmodel.Conversation{}
		err := row.Scan(&c.OtherUserID, &c.Username, &c.LastMessage, &c.LastMessageTime)
		return c, err
	})
	if err != nil {
		return nil, errs.ErrStore.WrapMsg(err.Error(), "op", "scan conversations")
	}
	return out, nil
}

func (s *Store) DeleteConversation(ctx context.Context, a, b int64) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM messages
		  WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)`,
		a, b,
	)
	if err != nil {
		return 0, errs.ErrStore.WrapMsg(err.Error(), "op", "delete conversation")
	}
	return tag.RowsAffected(), nil
}

func (s *Store) LookupByID(ctx context.Context, id int64) (*usermodel.User, error) {
	return s.lookupOne(ctx, `WHERE id = $1`, id)
}

func (s *Store) LookupByUsername(ctx context.Context, username string) (*usermodel.User, error) {
	return s.lookupOne(ctx, `WHERE username = $1`, username)
}

func (s *Store) lookupOne(ctx context.Context, where string, arg any) (*usermodel.User, error) {
	u := &usermodel.User{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, email, hashed_password, created_at FROM users `+where, arg,
	).Scan(&u.ID, &u.Username, &u.Email, &u.HashedPassword, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrUserNotFound.WrapMsg("", "key", arg)
	}
	if err != nil {
		return nil, errs.ErrStore.WrapMsg(err.Error(), "op", "lookup user")
	}
	return u, nil
}

func (s *Store) Create(ctx context.Context, u *usermodel.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (username, email, hashed_password, created_at) VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		u.Username, u.Email, u.HashedPassword, u.CreatedAt,
	).Scan(&u.ID)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return errs.ErrRecordIsExist.WrapMsg(pgErr.ConstraintName, "username", u.Username)
	}
	if err != nil {
		return errs.ErrStore.WrapMsg(err.Error(), "op", "create user")
	}
	return nil
}

func (s *Store) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE lower(email) = lower($1))`, email).Scan(&ok)
	if err != nil {
		return false, errs.ErrStore.WrapMsg(err.Error(), "op", "exists by email")
	}
	return ok, nil
}
