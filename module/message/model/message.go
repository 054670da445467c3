package model

import "time"

const (
	MsgTableName = "messages" // 集合名/表名

	DefaultPageLimit = 50
	MaxPageLimit     = 200
)

// Message 一条单聊消息。id 与 created_at 由存储层分配，写入后不可变。
type Message struct {
	ID         int64     `bson:"_id" json:"id"`
	SenderID   int64     `bson:"sender_id" json:"sender_id"`
	ReceiverID int64     `bson:"receiver_id" json:"receiver_id"`
	Content    string    `bson:"content" json:"content"`
	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
	IsRead     bool      `bson:"is_read" json:"is_read"`
}

// Conversation 会话列表的一行：与某个对端的最后一条消息。
type Conversation struct {
	OtherUserID     int64     `json:"other_user_id"`
	Username        string    `json:"username"`
	LastMessage     string    `json:"last_message"`
	LastMessageTime time.Time `json:"last_message_time"`
}

// Page 分页参数；Normalize 之后 Limit ∈ [1, MaxPageLimit]，Offset >= 0。
type Page struct {
	Limit  int
	Offset int
}

func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
