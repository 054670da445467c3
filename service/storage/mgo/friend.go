package mgo

import (
	"context"
	"time"

	friendmodel "PPDirect/module/friend/model"
	usermodel "PPDirect/module/user/model"
	"PPDirect/tools/errs"
	"PPDirect/tools/ids"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func friendPair(a, b int64) bson.A {
	return bson.A{
		bson.M{"user_id": a, "friend_id": b},
		bson.M{"user_id": b, "friend_id": a},
	}
}

func (s *Store) CreateRequest(ctx context.Context, from, to int64) (*friendmodel.Friendship, error) {
	if _, err := s.LookupByID(ctx, to); err != nil {
		return nil, err
	}
	existing := &friendmodel.Friendship{}
	err := s.friends.FindOne(ctx, bson.M{"$or": friendPair(from, to)}).Decode(existing)
	if err == nil {
		return nil, errs.ErrRecordIsExist.WrapMsg("Friend request already exists "+string(existing.Status), "status", existing.Status)
	}
	if err != mongo.ErrNoDocuments {
		return nil, errs.ErrStore.WrapMsg(err.Error(), "op", "check friendship")
	}

	f := &friendmodel.Friendship{
		ID:        ids.Generate(),
		UserID:    from,
		FriendID:  to,
		Status:    friendmodel.StatusPending,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	if _, err := s.friends.InsertOne(ctx, f); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, errs.ErrRecordIsExist.WrapMsg("Friend request already exists")
		}
		return nil, errs.ErrStore.WrapMsg(err.Error(), "op", "insert friendship")
	}
	return f, nil
}

func (s *Store) setStatus(ctx context.Context, op string, filter bson.M, next friendmodel.Status) (bool, error) {
	res, err := s.friends.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"status": next}})
	if err != nil {
		return false, errs.ErrStore.WrapMsg(err.Error(), "op", op)
	}
	return res.MatchedCount > 0, nil
}

func (s *Store) Accept(ctx context.Context, userID, requesterID int64) (bool, error) {
	return s.setStatus(ctx, "accept friendship", bson.M{
		"user_id":   requesterID,
		"friend_id": userID,
		"status":    friendmodel.StatusPending,
	}, friendmodel.StatusAccepted)
}

func (s *Store) Block(ctx context.Context, userID, otherID int64) (bool, error) {
	return s.setStatus(ctx, "block friendship", bson.M{
		"$or":    friendPair(userID, otherID),
		"status": friendmodel.StatusAccepted,
	}, friendmodel.StatusBlocked)
}

func (s *Store) RemoveFriend(ctx context.Context, userID, otherID int64) (bool, error) {
	res, err := s.friends.DeleteMany(ctx, bson.M{
		"$or":    friendPair(userID, otherID),
		"status": bson.M{"$in": bson.A{friendmodel.StatusPending, friendmodel.StatusBlocked}},
	})
	if err != nil {
		return false, errs.ErrStore.WrapMsg(err.Error(), "op", "remove friendship")
	}
	return res.DeletedCount > 0, nil
}

// usernames resolves ids to usernames in one round trip.
func (s *Store) usernames(ctx context.Context, idList []int64) (map[int64]string, error) {
	out := make(map[int64]string, len(idList))
	if len(idList) == 0 {
		return out, nil
	}
	cur, err := s.users.Find(ctx, bson.M{"_id": bson.M{"$in": idList}},
		options.Find().SetProjection(bson.M{"username": 1}))
	if err != nil {
		return nil, errs.ErrStore.WrapMsg(err.Error(), "op", "lookup usernames")
	}
	var users []*usermodel.User
	if err := cur.All(ctx, &users); err != nil {
		return nil, errs.ErrStore.WrapMsg(err.Error(), "op", "decode usernames")
	}
	for _, u := range users {
		out[u.ID] = u.Username
	}
	return out, nil
}

// profiles lists the far side of every friendship matching filter,
// newest relation first.
func (s *Store) profiles(ctx context.Context, op string, userID int64, filter bson.M) ([]*friendmodel.Profile, error) {
	cur, err := s.friends.Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}))
	if err != nil {
		return nil, errs.ErrStore.WrapMsg(err.Error(), "op", op)
	}
	var rows []*friendmodel.Friendship
	if err := cur.All(ctx, &rows); err != nil {
		return nil, errs.ErrStore.WrapMsg(err.Error(), "op", op)
	}
	others := make([]int64, 0, len(rows))
	for _, f := range rows {
		others = append(others, f.Other(userID))
	}
	names, err := s.usernames(ctx, others)
	if err != nil {
		return nil, err
	}
	out := make([]*friendmodel.Profile, 0, len(rows))
	for _, f := range rows {
		name, ok := names[f.Other(userID)]
		if !ok {
			continue
		}
		out = append(out, &friendmodel.Profile{
			ID:                  f.Other(userID),
			Username:            name,
			FriendshipStatus:    f.Status,
			FriendshipCreatedAt: f.CreatedAt,
		})
	}
	return out, nil
}

func (s *Store) Friends(ctx context.Context, userID int64) ([]*friendmodel.Profile, error) {
	return s.profiles(ctx, "friends", userID, bson.M{
		"$or":    bson.A{bson.M{"user_id": userID}, bson.M{"friend_id": userID}},
		"status": friendmodel.StatusAccepted,
	})
}

func (s *Store) Requests(ctx context.Context, userID int64) ([]*friendmodel.Profile, error) {
	return s.profiles(ctx, "friend requests", userID, bson.M{
		"friend_id": userID,
		"status":    friendmodel.StatusPending,
	})
}

func (s *Store) Suggestions(ctx context.Context, userID int64) ([]*friendmodel.Profile, error) {
	cur, err := s.friends.Find(ctx, bson.M{"$or": bson.A{bson.M{"user_id": userID}, bson.M{"friend_id": userID}}})
	if err != nil {
		return nil, errs.ErrStore.WrapMsg(err.Error(), "op", "related users")
	}
	var rows []*friendmodel.Friendship
	if err := cur.All(ctx, &rows); err != nil {
		return nil, errs.ErrStore.WrapMsg(err.Error(), "op", "related users")
	}
	exclude := []int64{userID}
	for _, f := range rows {
		exclude = append(exclude, f.Other(userID))
	}

	ucur, err := s.users.Find(ctx, bson.M{"_id": bson.M{"$nin": exclude}},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}).SetProjection(bson.M{"username": 1}))
	if err != nil {
		return nil, errs.ErrStore.WrapMsg(err.Error(), "op", "people you may know")
	}
	var users []*usermodel.User
	if err := ucur.All(ctx, &users); err != nil {
		return nil, errs.ErrStore.WrapMsg(err.Error(), "op", "people you may know")
	}
	now := time.Now().UTC()
	out := make([]*friendmodel.Profile, 0, len(users))
	for _, u := range users {
		out = append(out, &friendmodel.Profile{
			ID:                  u.ID,
			Username:            u.Username,
			FriendshipStatus:    friendmodel.StatusNone,
			FriendshipCreatedAt: now,
		})
	}
	return out, nil
}
