package main

import (
	"context"
	"net/http"

	"PPDirect/global/config"
	"PPDirect/logger"
	mid "PPDirect/middleware"
	midsec "PPDirect/middleware/security"
	"PPDirect/module/friend"
	friendsvc "PPDirect/module/friend/service"
	"PPDirect/module/message"
	"PPDirect/module/user"
	usersvc "PPDirect/module/user/service"
	"PPDirect/service/broker"
	"PPDirect/service/chat"
	"PPDirect/service/storage"
	"PPDirect/service/storage/mgo"
	"PPDirect/service/storage/pg"
	"PPDirect/tools/errs"
	jwtlib "PPDirect/tools/security"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// openStore connects the configured backend and migrates its schema.
func openStore(ctx context.Context, c config.StoreConfig) (storage.Store, error) {
	switch c.Kind {
	case config.StorePostgres:
		s, err := pg.Open(ctx, c.Postgres)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close(ctx)
			return nil, err
		}
		logger.Info("store ready", zap.String("kind", c.Kind))
		return s, nil
	case config.StoreMongo:
		s, err := mgo.Open(ctx, c.Mongo)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close(ctx)
			return nil, err
		}
		logger.Info("store ready", zap.String("kind", c.Kind))
		return s, nil
	case config.StoreMemory:
		logger.Warn("memory store: data is lost on restart")
		return storage.NewMemoryStore(), nil
	default:
		return nil, errs.ErrArgs.WrapMsg("unknown store kind", "kind", c.Kind)
	}
}

func newTransport(c config.BrokerConfig) (broker.Transport, error) {
	switch c.Kind {
	case config.BrokerRedis:
		return broker.NewRedisTransport(c.Redis), nil
	case config.BrokerNats:
		return broker.NewNatsTransport(c.Nats), nil
	case config.BrokerMemory:
		// 单进程：广播只回到自己
		return broker.NewMemoryBus(), nil
	default:
		return nil, errs.ErrArgs.WrapMsg("unknown broker kind", "kind", c.Kind)
	}
}

// startRelay dials the broker once. A failed dial leaves the reconnect
// cycle to Listen so the HTTP server is not held back by backoff.
func startRelay(ctx context.Context, c config.BrokerConfig, t broker.Transport) *broker.Relay {
	relay := broker.NewRelay(t, broker.Options{
		ReconnectAttempts: c.ReconnectAttempts,
		InitialBackoff:    c.InitialBackoff,
		MaxBackoff:        c.MaxBackoff,
		MaxListenRestarts: c.MaxListenRestarts,
	})
	if !relay.Connect(ctx, false) {
		// 恢复前广播报 failed，本地投递照常
		logger.Warn("broker unavailable at startup", zap.String("broker", t.Name()))
	}
	return relay
}

type healthReport struct {
	Node     string          `json:"node"`
	Broker   broker.Snapshot `json:"broker"`
	Sessions int             `json:"sessions"`
}

func newRouter(cfg config.AppConfig, store storage.Store, jwtOpts jwtlib.Options, srv *chat.Server, relay *broker.Relay) *gin.Engine {
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	mids := mid.NewManager()
	mids.Add(mid.Recovery(nil), mid.AccessLog(nil), mid.Origin(cfg.HTTP.AllowedOrigins))
	r.Use(mids.Handlers()...)

	auth := midsec.Middleware(midsec.DefaultOptions(), jwtlib.NewVerifier(jwtOpts, jwtlib.TokenTypeAccess), store)
	rt := mid.NewRoutes(r, auth)

	user.NewHandler(usersvc.New(store, jwtOpts, nil)).Mount(rt)
	message.NewHandler(store).Mount(rt)
	friend.NewHandler(friendsvc.New(store, nil)).Mount(rt)

	r.GET("/ws", srv.HandleWS)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, healthReport{
			Node:     cfg.NodeId,
			Broker:   relay.Snapshot(),
			Sessions: srv.Registry().Count(),
		})
	})
	return r
}
