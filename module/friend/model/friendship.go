package model

import "time"

const FriendTableName = "friendships"

// Status 好友关系状态
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusBlocked  Status = "blocked"
	StatusNone     Status = "none" // 推荐列表里尚无关系
)

// Friendship 一条好友关系。UserID 是发起方，FriendID 是接收方；
// 同一对用户最多一条，不论方向。
type Friendship struct {
	ID        int64     `bson:"_id" json:"id"`
	UserID    int64     `bson:"user_id" json:"user_id"`
	FriendID  int64     `bson:"friend_id" json:"friend_id"`
	Status    Status    `bson:"status" json:"status"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// Other returns the id on the far side of f as seen by userID.
func (f *Friendship) Other(userID int64) int64 {
	if f.UserID == userID {
		return f.FriendID
	}
	return f.UserID
}

// Involves reports whether the relation is between a and b, either direction.
func (f *Friendship) Involves(a, b int64) bool {
	return (f.UserID == a && f.FriendID == b) || (f.UserID == b && f.FriendID == a)
}

// Profile 好友/请求/推荐列表的一行。
type Profile struct {
	ID                  int64     `json:"id"`
	Username            string    `json:"username"`
	FriendshipStatus    Status    `json:"friendship_status"`
	FriendshipCreatedAt time.Time `json:"friendship_created_at"`
}

// RequestParams 发送好友请求的入参
type RequestParams struct {
	ID int64 `json:"id" form:"id"`
}
