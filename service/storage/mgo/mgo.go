package mgo

import (
	"context"
	"strings"
	"time"

	"PPDirect/global/config"
	"PPDirect/logger"
	friendmodel "PPDirect/module/friend/model"
	msgmodel "PPDirect/module/message/model"
	usermodel "PPDirect/module/user/model"
	"PPDirect/tools/errs"
	"PPDirect/tools/ids"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Store is the MongoDB backend. ids are snowflake int64 so that they
// look the same as the Postgres ones on the wire.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	msgs    *mongo.Collection
	users   *mongo.Collection
	friends *mongo.Collection
	log     *zap.Logger
}

func Open(ctx context.Context, cfg config.MongoConfig) (*Store, error) {
	if cfg.URI == "" {
		return nil, errs.New("mongo uri is required")
	}
	if cfg.Database == "" {
		return nil, errs.New("mongo database is required")
	}
	cli, err := connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	db := cli.Database(cfg.Database)
	s := &Store{
		client:  cli,
		db:      db,
		msgs:    db.Collection(msgmodel.MsgTableName),
		users:   db.Collection(usermodel.UserTableName),
		friends: db.Collection(friendmodel.FriendTableName),
		log:     logger.Log.Named("mongo"),
	}
	return s, nil
}

// Migrate creates the indexes the queries rely on.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		return errs.WrapMsg(err, "create user indexes")
	}
	_, err = s.msgs.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "sender_id", Value: 1}, {Key: "receiver_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "receiver_id", Value: 1}, {Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return errs.WrapMsg(err, "create message indexes")
	}
	_, err = s.friends.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "friend_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "friend_id", Value: 1}}},
	})
	if err != nil {
		return errs.WrapMsg(err, "create friendship indexes")
	}
	s.log.Info("indexes ready")
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, nil); err != nil {
		return errs.WrapMsg(err, "MongoDB ping failed")
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func pairFilter(a, b int64) bson.M {
	return bson.M{"$or": bson.A{
		bson.M{"sender_id": a, "receiver_id": b},
		bson.M{"sender_id": b, "receiver_id": a},
	}}
}

func (s *Store) Insert(ctx context.Context, senderID, receiverID int64, content string) (*msgmodel.Message, error) {
	m := &msgmodel.Message{
		ID:         ids.Generate(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		// mongo 只存毫秒
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	if _, err := s.msgs.InsertOne(ctx, m); err != nil {
		return nil, errs.ErrStore.WrapMsg(err.Error(), "op", "insert message")
	}
	return m, nil
}

func (s *Store) Range(ctx context.Context, a, b int64, page msgmodel.Page) ([]*msgmodel.Message, error) {
	page = page.Normalize()
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(page.Offset)).
		SetLimit(int64(page.Limit))
	cur, err := s.msgs.Find(ctx, pairFilter(a, b), opts)
	if err != nil {
		return nil, errs.ErrStore.WrapMsg(err.Error(), "op", "range messages")
	}
	out := make([]*msgmodel.Message, 0, page.Limit)
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.ErrStore.WrapMsg(err.Error(), "op", "decode messages")
	}
	return out, nil
}

func (s *Store) Conversations(ctx context.Context, userID int64) ([]*msgmodel.Conversation, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"$or": bson.A{
			bson.M{"sender_id": userID},
			bson.M{"receiver_id": userID},
		}}}},
		{{Key: "$addFields", Value: bson.M{"other_id": bson.M{
			"$cond": bson.A{bson.M{"$eq": bson.A{"$sender_id", userID}}, "$receiver_id", "$sender_id"},
		}}}},
		{{Key: "$sort", Value: bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}}},
		{{Key: "$group", Value: bson.M{
			"_id":        "$other_id",
			"content":    bson.M{"$first": "$content"},
			"created_at": bson.M{"$first": "$created_at"},
		}}},
		{{Key: "$lookup", Value: bson.M{
			"from":         usermodel.UserTableName,
			"localField":   "_id",
			"foreignField": "_id",
			"as":           "user",
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "created_at", Value: -1}}}},
	}
	cur, err := s.msgs.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, errs.ErrStore.WrapMsg(err.Error(), "op", "conversations")
	}
	var rows []struct {
		OtherID   int64     `bson:"_id"`
		Content   string    `bson:"content"`
		CreatedAt time.Time `bson:"created_at"`
		User      []struct {
			Username string `bson:"username"`
		} `bson:"user"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, errs.ErrStore.WrapMsg(err.Error(), "op", "decode conversations")
	}
	out := make([]*msgmodel.Conversation, 0, len(rows))
	for _, r := range rows {
		c := &msgmodel.Conversation{
			OtherUserID:     r.OtherID,
			LastMessage:     r.Content,
			LastMessageTime: r.CreatedAt,
		}
		if len(r.User) > 0 {
			c.Username = r.User[0].Username
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *Store) DeleteConversation(ctx context.Context, a, b int64) (int64, error) {
	res, err := s.msgs.DeleteMany(ctx, pairFilter(a, b))
	if err != nil {
		return 0, errs.ErrStore.WrapMsg(err.Error(), "op", "delete conversation")
	}
	return res.DeletedCount, nil
}

func (s *Store) LookupByID(ctx context.Context, id int64) (*usermodel.User, error) {
	return s.lookupOne(ctx, bson.M{"_id": id})
}

func (s *Store) LookupByUsername(ctx context.Context, username string) (*usermodel.User, error) {
	return s.lookupOne(ctx, bson.M{"username": username})
}

func (s *Store) lookupOne(ctx context.Context, filter bson.M) (*usermodel.User, error) {
	u := &usermodel.User{}
	err := s.users.FindOne(ctx, filter).Decode(u)
	if err == mongo.ErrNoDocuments {
		return nil, errs.ErrUserNotFound.WrapMsg("", "filter", filter)
	}
	if err != nil {
		return nil, errs.ErrStore.WrapMsg(err.Error(), "op", "lookup user")
	}
	return u, nil
}

func (s *Store) Create(ctx context.Context, u *usermodel.User) error {
	if u.ID == 0 {
		u.ID = ids.Generate()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	}
	u.Email = strings.ToLower(u.Email)
	if _, err := s.users.InsertOne(ctx, u); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return errs.ErrRecordIsExist.WrapMsg("duplicate user", "username", u.Username)
		}
		return errs.ErrStore.WrapMsg(err.Error(), "op", "create user")
	}
	return nil
}

func (s *Store) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	n, err := s.users.CountDocuments(ctx, bson.M{"email": strings.ToLower(email)}, options.Count().SetLimit(1))
	if err != nil {
		return false, errs.ErrStore.WrapMsg(err.Error(), "op", "exists by email")
	}
	return n > 0, nil
}
