package security

import (
	"context"
	"net/http"
	"strings"

	usermodel "PPDirect/module/user/model"
	"PPDirect/tools/errs"
	jwtlib "PPDirect/tools/security"

	"github.com/gin-gonic/gin"
)

// —— context key ——
// 后续模块统一用这个 key 读取当前用户
const PPCtxUserKey = "ppdirect.user" // *usermodel.User

// TokenVerifier checks an access token.
type TokenVerifier interface {
	Verify(token string) (*jwtlib.Identity, error)
}

// UserLookup resolves the token subject.
type UserLookup interface {
	LookupByUsername(ctx context.Context, username string) (*usermodel.User, error)
}

type Options struct {
	// 读取哪个请求头
	HeaderToken               string // 默认 "authorization"
	EnableAuthorizationBearer bool   // 默认 true
}

func DefaultOptions() *Options {
	return &Options{
		HeaderToken:               "Authorization",
		EnableAuthorizationBearer: true,
	}
}

// Middleware authenticates a bearer access token and stores the user in the context.
func Middleware(opts *Options, v TokenVerifier, users UserLookup) gin.HandlerFunc {
	if opts == nil {
		opts = DefaultOptions()
	}
	return func(c *gin.Context) {
		token := extractToken(c, opts)
		if token == "" {
			abort(c, errs.ErrTokenInvalid.WithDetail("could not validate credentials"))
			return
		}
		id, err := v.Verify(token)
		if err != nil {
			ce, _ := errs.As(err)
			if ce == nil {
				ce = errs.ErrTokenInvalid
			}
			abort(c, ce)
			return
		}
		u, err := users.LookupByUsername(c.Request.Context(), id.Subject)
		if err != nil {
			if errs.ErrUserNotFound.Is(err) {
				abort(c, errs.ErrTokenInvalid.WithDetail("could not validate credentials"))
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, errs.ErrInternalServer)
			return
		}
		c.Set(PPCtxUserKey, u)
		c.Next()
	}
}

func extractToken(c *gin.Context, opts *Options) string {
	raw := strings.TrimSpace(c.GetHeader(opts.HeaderToken))
	if raw == "" {
		return ""
	}
	// 兼容 Authorization: Bearer xxx
	if opts.EnableAuthorizationBearer && len(raw) > len("bearer ") && strings.EqualFold(raw[:len("bearer ")], "bearer ") {
		return strings.TrimSpace(raw[len("bearer "):])
	}
	return raw
}

func abort(c *gin.Context, ce *errs.CodeError) {
	c.Header("WWW-Authenticate", "Bearer")
	c.AbortWithStatusJSON(http.StatusUnauthorized, ce)
}

// CurrentUser returns the user set by Middleware.
func CurrentUser(c *gin.Context) (*usermodel.User, bool) {
	v, ok := c.Get(PPCtxUserKey)
	if !ok {
		return nil, false
	}
	u, ok := v.(*usermodel.User)
	return u, ok && u != nil
}
