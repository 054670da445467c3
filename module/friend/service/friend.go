package service

import (
	"context"

	"PPDirect/logger"
	friendmodel "PPDirect/module/friend/model"
	"PPDirect/tools/errs"

	"go.uber.org/zap"
)

// Store is the friendship side of the store.
type Store interface {
	CreateRequest(ctx context.Context, from, to int64) (*friendmodel.Friendship, error)
	Accept(ctx context.Context, userID, requesterID int64) (bool, error)
	Block(ctx context.Context, userID, otherID int64) (bool, error)
	RemoveFriend(ctx context.Context, userID, otherID int64) (bool, error)
	Friends(ctx context.Context, userID int64) ([]*friendmodel.Profile, error)
	Requests(ctx context.Context, userID int64) ([]*friendmodel.Profile, error)
	Suggestions(ctx context.Context, userID int64) ([]*friendmodel.Profile, error)
}

type Service struct {
	store Store
	log   *zap.Logger
}

func New(store Store, l *zap.Logger) *Service {
	return &Service{store: store, log: logger.Named(l, "friend")}
}

func checkPeer(me, other int64) error {
	if other <= 0 {
		return errs.ErrArgs.WrapMsg("invalid friend id", "id", other)
	}
	if me == other {
		return errs.ErrArgs.WrapMsg("cannot send request to yourself or the current user")
	}
	return nil
}

// SendRequest opens a pending friendship from me to other.
func (s *Service) SendRequest(ctx context.Context, me, other int64) (*friendmodel.Friendship, error) {
	if err := checkPeer(me, other); err != nil {
		return nil, err
	}
	f, err := s.store.CreateRequest(ctx, me, other)
	if err != nil {
		return nil, err
	}
	s.log.Info("friend request sent", zap.Int64("from", me), zap.Int64("to", other))
	return f, nil
}

// Accept accepts the pending request requester sent to me.
func (s *Service) Accept(ctx context.Context, me, requester int64) error {
	if err := checkPeer(me, requester); err != nil {
		return err
	}
	ok, err := s.store.Accept(ctx, me, requester)
	if err != nil {
		return err
	}
	if !ok {
		return errs.ErrRecordNotFound.WrapMsg("Friend request not found")
	}
	return nil
}

// Block blocks an accepted friendship, whichever side opened it.
func (s *Service) Block(ctx context.Context, me, other int64) error {
	if err := checkPeer(me, other); err != nil {
		return err
	}
	ok, err := s.store.Block(ctx, me, other)
	if err != nil {
		return err
	}
	if !ok {
		return errs.ErrRecordNotFound.WrapMsg("No accepted friendship found to block")
	}
	s.log.Info("friend blocked", zap.Int64("user", me), zap.Int64("other", other))
	return nil
}

// Remove drops a pending or blocked relation.
func (s *Service) Remove(ctx context.Context, me, other int64) error {
	if err := checkPeer(me, other); err != nil {
		return err
	}
	ok, err := s.store.RemoveFriend(ctx, me, other)
	if err != nil {
		return err
	}
	if !ok {
		return errs.ErrArgs.WrapMsg("Error in removing friend", "other", other)
	}
	return nil
}

func (s *Service) Friends(ctx context.Context, me int64) ([]*friendmodel.Profile, error) {
	return s.store.Friends(ctx, me)
}

func (s *Service) Requests(ctx context.Context, me int64) ([]*friendmodel.Profile, error) {
	return s.store.Requests(ctx, me)
}

func (s *Service) Suggestions(ctx context.Context, me int64) ([]*friendmodel.Profile, error) {
	return s.store.Suggestions(ctx, me)
}
