package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"PPDirect/global/config"
	"PPDirect/logger"
	"PPDirect/service/chat"
	"PPDirect/service/delivery"
	"PPDirect/tools/ids"
	"PPDirect/tools/safe"
	jwtlib "PPDirect/tools/security"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	confPath := flag.String("config", "", "path to the yaml config (default $"+config.EnvConfigPath+")")
	flag.Parse()

	cfg, err := config.Load(*confPath)
	if err != nil {
		logger.Error("load config", zap.Error(err))
		os.Exit(1)
	}
	logger.SetLevel(cfg.Log.Level)
	defer logger.Sync()

	// 配置生成的ids
	if cfg.NodeId == "" {
		cfg.NodeId = "node-" + ids.GenerateString()
	}
	ids.SetNodeID(ids.NodeIDFromString(cfg.NodeId))
	logger.Info("starting", zap.Stringer("config", cfg))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Error("exit with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("bye")
}

func run(ctx context.Context, cfg config.AppConfig) error {
	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Close(cctx); err != nil {
			logger.Warn("close store", zap.Error(err))
		}
	}()

	transport, err := newTransport(cfg.Broker)
	if err != nil {
		return err
	}
	relay := startRelay(ctx, cfg.Broker, transport)

	jwtOpts := jwtlib.Options{
		Secret:     []byte(cfg.JWT.Secret),
		Alg:        cfg.JWT.Alg,
		TTL:        cfg.JWT.AccessTTL,
		RefreshTTL: cfg.JWT.RefreshTTL,
	}
	reg := chat.NewRegistry(nil, nil)
	orch := delivery.NewOrchestrator(store, reg, relay, delivery.Options{
		NodeID:           cfg.NodeId,
		SkipRelayOnLocal: cfg.Delivery.SkipRelayOnLocal,
	})
	srv := chat.NewServer(chat.ServerConf{
		NodeID:         cfg.NodeId,
		AuthTimeout:    cfg.Handshake.AuthTimeout,
		WriteTimeout:   cfg.Handshake.WriteTimeout,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	}, chat.Deps{
		Registry: reg,
		Relay:    relay,
		Verifier: jwtlib.NewVerifier(jwtOpts, jwtlib.TokenTypeAccess),
		Users:    store,
		Sender:   orch,
	})

	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           newRouter(cfg, store, jwtOpts, srv, relay),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer safe.Recover("relay listen")
		// 监听失败只记录：本地投递仍可用
		if err := relay.Listen(gctx); err != nil {
			logger.Error("relay listener stopped", zap.Error(err))
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("http listening", zap.String("addr", cfg.HTTP.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := httpSrv.Shutdown(sctx)
		srv.Shutdown()
		_ = relay.Close()
		return err
	})
	return g.Wait()
}
