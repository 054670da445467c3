package mgo

import (
	"context"
	"errors"
	"time"

	"PPDirect/global/config"
	"PPDirect/tools/errs"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	defaultMaxRetry = 3
	retryInterval   = 500 * time.Millisecond

	codeUnauthorized   = 13
	codeAuthentication = 18
)

func clientOptions(cfg config.MongoConfig) *options.ClientOptions {
	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(cfg.MaxPoolSize)
	}
	return opts
}

// connect dials and pings, retrying transient failures up to cfg.MaxRetry times.
func connect(ctx context.Context, cfg config.MongoConfig) (*mongo.Client, error) {
	attempts := cfg.MaxRetry
	if attempts <= 0 {
		attempts = defaultMaxRetry
	}
	opts := clientOptions(cfg)

	var err error
	for i := 0; i < attempts; i++ {
		var cli *mongo.Client
		cli, err = connectOnce(ctx, opts)
		if err == nil {
			return cli, nil
		}
		if !shouldRetry(ctx, err) {
			break
		}
		select {
		case <-ctx.Done():
			return nil, errs.Wrap(ctx.Err())
		case <-time.After(retryInterval):
		}
	}
	return nil, errs.WrapMsg(err, "MongoDB connect failed", "URI", cfg.URI, "Database", cfg.Database)
}

func connectOnce(ctx context.Context, opts *options.ClientOptions) (*mongo.Client, error) {
	cli, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := cli.Ping(ctx, nil); err != nil {
		_ = cli.Disconnect(context.Background())
		return nil, err
	}
	return cli, nil
}

// shouldRetry is false for auth failures and a finished ctx.
func shouldRetry(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Code != codeUnauthorized && cmdErr.Code != codeAuthentication
	}
	return true
}
