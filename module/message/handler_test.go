package message

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"PPDirect/middleware"
	midsec "PPDirect/middleware/security"
	msgmodel "PPDirect/module/message/model"
	usermodel "PPDirect/module/user/model"
	"PPDirect/service/storage"
	jwtlib "PPDirect/tools/security"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	r     *gin.Engine
	store *storage.MemoryStore
	ids   map[string]int64
	opts  jwtlib.Options
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	f := &fixture{store: storage.NewMemoryStore(), ids: map[string]int64{}, opts: jwtlib.DefaultOptions([]byte("k"))}
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	n := 0
	f.store.SetClock(func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Minute)
	})
	for _, name := range []string{"alice", "bob", "carol"} {
		u := &usermodel.User{Username: name, Email: name + "@example.com", HashedPassword: "x"}
		require.NoError(t, f.store.Create(context.Background(), u))
		f.ids[name] = u.ID
	}
	f.r = gin.New()
	auth := midsec.Middleware(nil, jwtlib.NewVerifier(f.opts, jwtlib.TokenTypeAccess), f.store)
	NewHandler(f.store).Mount(middleware.NewRoutes(f.r, auth))
	return f
}

func (f *fixture) send(t *testing.T, from, to, content string) {
	t.Helper()
	_, err := f.store.Insert(context.Background(), f.ids[from], f.ids[to], content)
	require.NoError(t, err)
}

func (f *fixture) get(t *testing.T, as, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	tok, _, err := jwtlib.Generate(f.opts, as, jwtlib.TokenTypeAccess)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	f.r.ServeHTTP(w, req)
	return w
}

func TestMessagesEndpoint(t *testing.T) {
	f := newFixture(t)
	for i := 1; i <= 5; i++ {
		from, to := "alice", "bob"
		if i%2 == 0 {
			from, to = "bob", "alice"
		}
		f.send(t, from, to, fmt.Sprint(i))
	}
	f.send(t, "carol", "alice", "c")

	path := fmt.Sprintf("/messages/conversations/%d", f.ids["bob"])
	w := f.get(t, "alice", http.MethodGet, path+"?limit=2&offset=1")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var msgs []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &msgs))
	require.Len(t, msgs, 2)
	assert.Equal(t, "4", msgs[0]["content"])
	assert.Equal(t, "3", msgs[1]["content"])
	assert.Contains(t, msgs[0], "receiver_id")
	assert.Contains(t, msgs[0], "is_read")

	w = f.get(t, "alice", http.MethodGet, path+"?limit=0")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &msgs))
	assert.Len(t, msgs, 1, "limit is clamped to at least one")

	w = f.get(t, "alice", http.MethodGet, path+"?limit=abc")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = f.get(t, "alice", http.MethodGet, "/messages/conversations/xyz")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.get(t, "carol", http.MethodGet, path)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestConversationsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.send(t, "alice", "bob", "hi bob")
	f.send(t, "carol", "alice", "hi alice")
	f.send(t, "bob", "alice", "yo")

	w := f.get(t, "alice", http.MethodGet, "/messages/conversations")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var convs []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &convs))
	require.Len(t, convs, 2)
	assert.Equal(t, "bob", convs[0]["username"])
	assert.Equal(t, "yo", convs[0]["last_message"])
	assert.EqualValues(t, f.ids["bob"], convs[0]["other_user_id"])
	assert.Equal(t, "carol", convs[1]["username"])

	w = f.get(t, "alice", http.MethodGet, "/messages/conversations?limit=1&offset=1")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &convs))
	require.Len(t, convs, 1)
	assert.Equal(t, "carol", convs[0]["username"])

	w = f.get(t, "alice", http.MethodGet, "/messages/conversations?offset=9")
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestDeleteConversation(t *testing.T) {
	f := newFixture(t)
	f.send(t, "alice", "bob", "1")
	f.send(t, "bob", "alice", "2")
	f.send(t, "alice", "carol", "3")

	w := f.get(t, "alice", http.MethodDelete, fmt.Sprintf("/messages/conversations/%d", f.ids["bob"]))
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.EqualValues(t, 2, body["deleted_messages"])

	left, err := f.store.Range(context.Background(), f.ids["alice"], f.ids["carol"], msgmodel.Page{})
	require.NoError(t, err)
	assert.Len(t, left, 1)
}

func TestMessagesRequireAuth(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/messages/conversations", nil)
	w := httptest.NewRecorder()
	f.r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
