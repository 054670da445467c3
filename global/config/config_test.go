package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConf(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "app.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadFileOverDefaults(t *testing.T) {
	p := writeConf(t, `
node_id: n7
jwt:
  secret: s3cret
  access_ttl: 15m
handshake:
  auth_timeout: 3s
broker:
  kind: nats
  nats:
    servers: ["nats://a:4222", "nats://b:4222"]
store:
  kind: memory
delivery:
  skip_relay_on_local: true
`)
	cfg, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, "n7", cfg.NodeId)
	assert.Equal(t, 15*time.Minute, cfg.JWT.AccessTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.JWT.RefreshTTL, "untouched keys keep defaults")
	assert.Equal(t, 3*time.Second, cfg.Handshake.AuthTimeout)
	assert.Equal(t, BrokerNats, cfg.Broker.Kind)
	assert.Equal(t, []string{"nats://a:4222", "nats://b:4222"}, cfg.Broker.Nats.Servers)
	assert.Equal(t, 5, cfg.Broker.ReconnectAttempts)
	assert.Equal(t, time.Second, cfg.Broker.InitialBackoff)
	assert.Equal(t, 30*time.Second, cfg.Broker.MaxBackoff)
	assert.Equal(t, StoreMemory, cfg.Store.Kind)
	assert.True(t, cfg.Delivery.SkipRelayOnLocal)
}

func TestLoadEnvOverrides(t *testing.T) {
	p := writeConf(t, "jwt:\n  secret: from-file\n")
	t.Setenv("PPDIRECT_JWT_SECRET", "from-env")
	t.Setenv("PPDIRECT_BROKER", "memory")
	t.Setenv("PPDIRECT_NATS_URL", "nats://x:1,nats://y:2")
	t.Setenv("PPDIRECT_HTTP_ADDR", ":9000")

	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.JWT.Secret)
	assert.Equal(t, BrokerMemory, cfg.Broker.Kind)
	assert.Equal(t, []string{"nats://x:1", "nats://y:2"}, cfg.Broker.Nats.Servers)
	assert.Equal(t, ":9000", cfg.HTTP.Addr)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("PPDIRECT_JWT_SECRET", "x")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8000", cfg.HTTP.Addr)
	assert.Equal(t, BrokerRedis, cfg.Broker.Kind)
	assert.Equal(t, StorePostgres, cfg.Store.Kind)
	assert.Equal(t, 10*time.Second, cfg.Handshake.AuthTimeout)
}

func TestLoadBadYAML(t *testing.T) {
	p := writeConf(t, "jwt: [unclosed")
	_, err := Load(p)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	ok := Default()
	ok.JWT.Secret = "s"
	require.NoError(t, ok.Validate())

	cases := map[string]func(c *AppConfig){
		"no secret":     func(c *AppConfig) { c.JWT.Secret = " " },
		"bad broker":    func(c *AppConfig) { c.Broker.Kind = "kafka" },
		"bad store":     func(c *AppConfig) { c.Store.Kind = "sqlite" },
		"zero timeout":  func(c *AppConfig) { c.Handshake.AuthTimeout = 0 },
		"zero attempts": func(c *AppConfig) { c.Broker.ReconnectAttempts = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := ok
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}
