package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"PPDirect/global/config"
	"PPDirect/service/broker"
	"PPDirect/service/chat"
	"PPDirect/service/delivery"
	"PPDirect/service/storage"
	jwtlib "PPDirect/tools/security"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartRelayLeavesReconnectToListen(t *testing.T) {
	bus := broker.NewMemoryBus()
	bus.SetDown(true)
	cfg := config.BrokerConfig{InitialBackoff: 20 * time.Millisecond, MaxBackoff: 20 * time.Millisecond}

	relay := startRelay(context.Background(), cfg, bus)
	t.Cleanup(func() { _ = relay.Close() })
	assert.EqualValues(t, 1, bus.Dials(), "startup dials once and does not run the backoff cycle")
	assert.Equal(t, broker.StateDisconnected, relay.State())

	bus.SetDown(false)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = relay.Listen(ctx) }()
	require.Eventually(t, func() bool { return relay.State() == broker.StateConnected }, 2*time.Second, 5*time.Millisecond)
}

func TestRouterMountsEverything(t *testing.T) {
	cfg := config.Default()
	cfg.NodeId = "n1"
	store := storage.NewMemoryStore()
	jwtOpts := jwtlib.DefaultOptions([]byte("k"))

	bus := broker.NewMemoryBus()
	relay := startRelay(context.Background(), cfg.Broker, bus)
	t.Cleanup(func() { _ = relay.Close() })
	reg := chat.NewRegistry(nil, nil)
	srv := chat.NewServer(chat.ServerConf{NodeID: cfg.NodeId}, chat.Deps{
		Registry: reg,
		Relay:    relay,
		Verifier: jwtlib.NewVerifier(jwtOpts, jwtlib.TokenTypeAccess),
		Users:    store,
		Sender:   delivery.NewOrchestrator(store, reg, relay, delivery.Options{NodeID: cfg.NodeId}),
	})
	r := newRouter(cfg, store, jwtOpts, srv, relay)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var h map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &h))
	assert.Equal(t, "n1", h["node"])

	for _, path := range []string{"/auth/me", "/messages/conversations", "/friends/allfriends"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}
