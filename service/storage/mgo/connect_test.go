package mgo

import (
	"context"
	"errors"
	"testing"

	"PPDirect/global/config"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestShouldRetry(t *testing.T) {
	ctx := context.Background()
	assert.True(t, shouldRetry(ctx, errors.New("connection refused")))
	assert.True(t, shouldRetry(ctx, mongo.CommandError{Code: 91, Message: "shutting down"}))
	assert.False(t, shouldRetry(ctx, mongo.CommandError{Code: codeAuthentication}))
	assert.False(t, shouldRetry(ctx, pkgerrors.Wrap(mongo.CommandError{Code: codeUnauthorized}, "ping")))

	done, cancel := context.WithCancel(ctx)
	cancel()
	assert.False(t, shouldRetry(done, errors.New("timeout")))
}

func TestOpenRejectsIncompleteConfig(t *testing.T) {
	_, err := Open(context.Background(), config.MongoConfig{Database: "chat"})
	assert.Error(t, err)
	_, err = Open(context.Background(), config.MongoConfig{URI: "mongodb://localhost:27017"})
	assert.Error(t, err)
}
