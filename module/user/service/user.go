package service

import (
	"context"
	"net/mail"
	"strings"

	"PPDirect/logger"
	usermodel "PPDirect/module/user/model"
	"PPDirect/tools/errs"
	jwtlib "PPDirect/tools/security"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLen = 6

// Directory is the part of the store the account flows need.
type Directory interface {
	LookupByUsername(ctx context.Context, username string) (*usermodel.User, error)
	Create(ctx context.Context, u *usermodel.User) error
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}

// RegisterParams 注册入参
type RegisterParams struct {
	Email    string `json:"email" form:"email"`
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

// TokenPair 登录/刷新的结果；RefreshToken 只写进 cookie。
type TokenPair struct {
	AccessToken     string
	RefreshToken    string
	RefreshExpireAt int64 // unix 秒
}

type Service struct {
	users Directory
	opts  jwtlib.Options
	cost  int
	log   *zap.Logger
}

func New(users Directory, opts jwtlib.Options, l *zap.Logger) *Service {
	return &Service{users: users, opts: opts, cost: bcrypt.DefaultCost, log: logger.Named(l, "user")}
}

// SetHashCost lowers the bcrypt cost; tests use bcrypt.MinCost.
func (s *Service) SetHashCost(cost int) { s.cost = cost }

func (s *Service) Register(ctx context.Context, in RegisterParams) (*usermodel.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if in.Username == "" {
		return nil, errs.ErrArgs.WrapMsg("username is required")
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return nil, errs.ErrArgs.WrapMsg("invalid email", "email", in.Email)
	}
	if len(in.Password) < minPasswordLen {
		return nil, errs.ErrArgs.WrapMsg("password too short")
	}

	if _, err := s.users.LookupByUsername(ctx, in.Username); err == nil {
		return nil, errs.ErrRecordIsExist.WrapMsg("user already exists with this username")
	} else if !errs.ErrUserNotFound.Is(err) {
		return nil, err
	}
	taken, err := s.users.ExistsByEmail(ctx, in.Email)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, errs.ErrRecordIsExist.WrapMsg("user already exists with this email")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, errs.WrapMsg(err, "hash password")
	}
	u := &usermodel.User{Username: in.Username, Email: in.Email, HashedPassword: string(hashed)}
	// 并发注册时唯一索引兜底，Create 返回 ErrRecordIsExist
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	s.log.Info("user registered", zap.Int64("user_id", u.ID), zap.String("username", u.Username))
	return u, nil
}

// Login checks the password and issues an access/refresh pair.
func (s *Service) Login(ctx context.Context, username, password string) (*TokenPair, error) {
	u, err := s.users.LookupByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errs.ErrUserNotFound.Is(err) {
			return nil, errs.ErrArgs.WrapMsg("user does not exist")
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.HashedPassword), []byte(password)); err != nil {
		return nil, errs.ErrPassword.Wrap()
	}
	return s.issue(u.Username)
}

// Refresh rotates both tokens from a valid refresh token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if refreshToken == "" {
		return nil, errs.ErrTokenInvalid.WrapMsg("refresh token not found")
	}
	id, err := jwtlib.NewVerifier(s.opts, jwtlib.TokenTypeRefresh).Verify(refreshToken)
	if err != nil {
		return nil, err
	}
	// 账号被删后旧 refresh token 作废
	if _, err := s.users.LookupByUsername(ctx, id.Subject); err != nil {
		if errs.ErrUserNotFound.Is(err) {
			return nil, errs.ErrTokenInvalid.WrapMsg("unknown subject")
		}
		return nil, err
	}
	return s.issue(id.Subject)
}

func (s *Service) issue(username string) (*TokenPair, error) {
	access, _, err := jwtlib.Generate(s.opts, username, jwtlib.TokenTypeAccess)
	if err != nil {
		return nil, errs.WrapMsg(err, "sign access token")
	}
	refresh, refreshExp, err := jwtlib.Generate(s.opts, username, jwtlib.TokenTypeRefresh)
	if err != nil {
		return nil, errs.WrapMsg(err, "sign refresh token")
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh, RefreshExpireAt: refreshExp.Unix()}, nil
}

// RefreshTTLSeconds is the cookie max-age matching the refresh token.
func (s *Service) RefreshTTLSeconds() int {
	ttl := s.opts.RefreshTTL
	if ttl <= 0 {
		return 0
	}
	return int(ttl.Seconds())
}
