package storage

import (
	"context"

	friendmodel "PPDirect/module/friend/model"
	msgmodel "PPDirect/module/message/model"
	usermodel "PPDirect/module/user/model"
)

// MessageStore persists direct messages.
//
// Insert assigns id and created_at. Range returns the messages exchanged
// between a and b (both directions), newest first.
type MessageStore interface {
	Insert(ctx context.Context, senderID, receiverID int64, content string) (*msgmodel.Message, error)
	Range(ctx context.Context, a, b int64, page msgmodel.Page) ([]*msgmodel.Message, error)
	Conversations(ctx context.Context, userID int64) ([]*msgmodel.Conversation, error)
	DeleteConversation(ctx context.Context, a, b int64) (int64, error)
}

// UserDirectory resolves accounts. Lookups of unknown users return
// errs.ErrUserNotFound.
type UserDirectory interface {
	LookupByID(ctx context.Context, id int64) (*usermodel.User, error)
	LookupByUsername(ctx context.Context, username string) (*usermodel.User, error)
	Create(ctx context.Context, u *usermodel.User) error
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}

// FriendStore persists friendships. At most one row exists per pair of
// users regardless of direction; CreateRequest answers
// errs.ErrRecordIsExist when one is already there. The transition calls
// report false when no row in the required state matched.
type FriendStore interface {
	CreateRequest(ctx context.Context, from, to int64) (*friendmodel.Friendship, error)
	Accept(ctx context.Context, userID, requesterID int64) (bool, error)
	Block(ctx context.Context, userID, otherID int64) (bool, error)
	RemoveFriend(ctx context.Context, userID, otherID int64) (bool, error)
	Friends(ctx context.Context, userID int64) ([]*friendmodel.Profile, error)
	Requests(ctx context.Context, userID int64) ([]*friendmodel.Profile, error)
	Suggestions(ctx context.Context, userID int64) ([]*friendmodel.Profile, error)
}

// Store is what a backend provides.
type Store interface {
	MessageStore
	UserDirectory
	FriendStore
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
