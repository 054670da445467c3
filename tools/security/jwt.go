package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"PPDirect/tools/errs"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Options 控制签名与TTL等参数。
type Options struct {
	Secret     []byte        // HMAC 密钥（生产用ENV/KMS）
	Alg        string        // HS256/HS384/HS512（默认 HS256）
	TTL        time.Duration // access token 有效期（默认 30m）
	RefreshTTL time.Duration // refresh token 有效期（默认 7d）
	Now        func() time.Time
}

func DefaultOptions(secret []byte) Options {
	return Options{Secret: secret, Alg: "HS256", TTL: 30 * time.Minute, RefreshTTL: 7 * 24 * time.Hour}
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// Claims is what the service puts into a token.
type Claims struct {
	Type string `json:"typ"`
	jwtlib.RegisteredClaims
}

// Identity is the verified content of a credential.
type Identity struct {
	Subject   string
	TokenType string
	TokenID   string
	ExpiresAt time.Time
}

// Generate signs a token of the given type for subject.
func Generate(opts Options, subject, tokenType string) (token string, expireAt time.Time, err error) {
	method, err := signingMethod(opts.Alg)
	if err != nil {
		return "", time.Time{}, err
	}
	ttl := opts.TTL
	if tokenType == TokenTypeRefresh {
		ttl = opts.RefreshTTL
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	now := opts.now()
	exp := now.Add(ttl)

	claims := Claims{
		Type: tokenType,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   subject,
			ID:        uuid.NewString(),
			IssuedAt:  jwtlib.NewNumericDate(now),
			NotBefore: jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(exp),
		},
	}

	signed, err := jwtlib.NewWithClaims(method, claims).SignedString(opts.Secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Verify parses token and classifies failures as
// errs.ErrTokenExpired, errs.ErrTokenMalformed or errs.ErrTokenInvalid.
func Verify(opts Options, token string) (*Identity, error) {
	method, err := signingMethod(opts.Alg)
	if err != nil {
		return nil, err
	}
	claims := &Claims{}
	parsed, err := jwtlib.ParseWithClaims(token, claims, func(t *jwtlib.Token) (interface{}, error) {
		// 仅允许 HMAC 家族
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected alg: %v", t.Header["alg"])
		}
		return opts.Secret, nil
	},
		jwtlib.WithValidMethods([]string{method.Alg()}),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithTimeFunc(opts.now),
	)
	switch {
	case err == nil:
	case errors.Is(err, jwtlib.ErrTokenExpired):
		return nil, errs.ErrTokenExpired.WrapMsg(err.Error())
	case errors.Is(err, jwtlib.ErrTokenMalformed):
		return nil, errs.ErrTokenMalformed.WrapMsg(err.Error())
	default:
		return nil, errs.ErrTokenInvalid.WrapMsg(err.Error())
	}
	if !parsed.Valid {
		return nil, errs.ErrTokenInvalid.Wrap()
	}

	id := &Identity{
		Subject:   claims.Subject,
		TokenType: claims.Type,
		TokenID:   claims.ID,
	}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	return id, nil
}

// Verifier binds Options for callers that only need Verify.
type Verifier struct {
	opts Options
	typ  string
}

// NewVerifier returns a Verifier that only accepts tokens of tokenType
// (empty accepts any type).
func NewVerifier(opts Options, tokenType string) *Verifier {
	return &Verifier{opts: opts, typ: tokenType}
}

func (v *Verifier) Verify(token string) (*Identity, error) {
	id, err := Verify(v.opts, token)
	if err != nil {
		return nil, err
	}
	if v.typ != "" && id.TokenType != v.typ {
		return nil, errs.ErrTokenInvalid.WrapMsg("wrong token type", "typ", id.TokenType)
	}
	return id, nil
}

func signingMethod(alg string) (jwtlib.SigningMethod, error) {
	switch strings.ToUpper(strings.TrimSpace(alg)) {
	case "", "HS256":
		return jwtlib.SigningMethodHS256, nil
	case "HS384":
		return jwtlib.SigningMethodHS384, nil
	case "HS512":
		return jwtlib.SigningMethodHS512, nil
	default:
		return nil, fmt.Errorf("unsupported alg: %s (use HS256/HS384/HS512)", alg)
	}
}
