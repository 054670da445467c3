package security

import (
	"errors"
	"testing"
	"time"

	"PPDirect/tools/errs"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateVerify(t *testing.T) {
	opts := DefaultOptions([]byte("secret"))
	now := time.Now()
	opts.Now = func() time.Time { return now }

	tok, exp, err := Generate(opts, "alice", TokenTypeAccess)
	require.NoError(t, err)
	assert.WithinDuration(t, now.Add(30*time.Minute), exp, time.Second)

	id, err := Verify(opts, tok)
	require.NoError(t, err)
	assert.Equal(t, "alice", id.Subject)
	assert.Equal(t, TokenTypeAccess, id.TokenType)
	assert.NotEmpty(t, id.TokenID)

	_, rexp, err := Generate(opts, "alice", TokenTypeRefresh)
	require.NoError(t, err)
	assert.WithinDuration(t, now.Add(7*24*time.Hour), rexp, time.Second)
}

func TestVerifyClassifiesFailures(t *testing.T) {
	opts := DefaultOptions([]byte("secret"))

	past := opts
	past.Now = func() time.Time { return time.Now().Add(-time.Hour) }
	expired, _, err := Generate(past, "alice", TokenTypeAccess)
	require.NoError(t, err)

	other, _, err := Generate(DefaultOptions([]byte("other")), "alice", TokenTypeAccess)
	require.NoError(t, err)

	none, err := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, jwtlib.MapClaims{
		"sub": "alice", "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(jwtlib.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noExp, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{"sub": "alice"}).SignedString([]byte("secret"))
	require.NoError(t, err)

	cases := []struct {
		name  string
		token string
		want  *errs.CodeError
	}{
		{"expired", expired, errs.ErrTokenExpired},
		{"malformed", "abc.def", errs.ErrTokenMalformed},
		{"empty", "", errs.ErrTokenMalformed},
		{"wrong key", other, errs.ErrTokenInvalid},
		{"alg none", none, errs.ErrTokenInvalid},
		{"no exp", noExp, errs.ErrTokenInvalid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Verify(opts, tc.token)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
			assert.True(t, errors.Is(err, errs.ErrToken))
		})
	}
}

func TestVerifierTokenType(t *testing.T) {
	opts := DefaultOptions([]byte("secret"))
	refresh, _, err := Generate(opts, "bob", TokenTypeRefresh)
	require.NoError(t, err)

	_, err = NewVerifier(opts, TokenTypeAccess).Verify(refresh)
	assert.True(t, errors.Is(err, errs.ErrTokenInvalid))

	id, err := NewVerifier(opts, TokenTypeRefresh).Verify(refresh)
	require.NoError(t, err)
	assert.Equal(t, "bob", id.Subject)

	_, err = NewVerifier(opts, "").Verify(refresh)
	assert.NoError(t, err)
}

func TestUnsupportedAlg(t *testing.T) {
	opts := DefaultOptions([]byte("secret"))
	opts.Alg = "RS256"
	_, _, err := Generate(opts, "x", TokenTypeAccess)
	assert.Error(t, err)

	for _, alg := range []string{"hs384", "HS512"} {
		opts.Alg = alg
		tok, _, err := Generate(opts, "x", TokenTypeAccess)
		require.NoError(t, err)
		_, err = Verify(opts, tok)
		assert.NoError(t, err)
	}
}
