package errs

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeErrorIs(t *testing.T) {
	err := ErrTokenExpired.WrapMsg("exp in the past", "sub", "alice")

	assert.True(t, errors.Is(err, ErrTokenExpired))
	assert.True(t, errors.Is(err, ErrToken), "expired is a token error")
	assert.False(t, errors.Is(err, ErrTokenInvalid))
	assert.False(t, errors.Is(ErrToken.Wrap(), ErrTokenExpired), "parent is not a child")

	ce, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, TokenExpiredError, ce.Code)
	assert.Equal(t, "exp in the past, sub=alice", ce.Detail)
	// 原始变量不被修改
	assert.Empty(t, ErrTokenExpired.Detail)
}

func TestWithDetailAndError(t *testing.T) {
	e := ErrArgs.WithDetail("a").WithDetail("b")
	assert.Equal(t, "a, b", e.Detail)
	assert.Equal(t, "1001 invalid arguments a, b", e.Error())
	assert.Equal(t, "1004 store failure", ErrStore.Error())
}

func TestWrapHelpers(t *testing.T) {
	assert.Nil(t, Wrap(nil))
	assert.Nil(t, WrapMsg(nil, "x"))

	base := errors.New("boom")
	err := WrapMsg(base, "insert", "table", "messages", "dangling")
	assert.ErrorIs(t, err, base)
	assert.Contains(t, err.Error(), "insert, table=messages, dangling=MISSING")

	_, ok := As(base)
	assert.False(t, ok)
}

func TestHTTPStatus(t *testing.T) {
	cases := map[int]int{
		ArgsError:           http.StatusBadRequest,
		RecordExistsError:   http.StatusBadRequest,
		RecordNotFoundError: http.StatusNotFound,
		UserNotFoundError:   http.StatusNotFound,
		TokenExpiredError:   http.StatusUnauthorized,
		PasswordError:       http.StatusUnauthorized,
		StoreError:          http.StatusInternalServerError,
		ServerInternalError: http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, HTTPStatus(code), "code %d", code)
	}
}

func TestErrPanic(t *testing.T) {
	assert.Nil(t, ErrPanic(nil))
	err := ErrPanic("boom")
	ce, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, ServerInternalError, ce.Code)
	assert.Equal(t, "boom", ce.Detail)
}
