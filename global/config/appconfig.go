package config

import "time"

const (
	BrokerRedis  = "redis"
	BrokerNats   = "nats"
	BrokerMemory = "memory"

	StorePostgres = "postgres"
	StoreMongo    = "mongo"
	StoreMemory   = "memory"
)

type AppConfig struct {
	NodeId    string          `yaml:"node_id"` // 节点ID，空则自动生成
	HTTP      HTTPConfig      `yaml:"http"`
	Log       LogConfig       `yaml:"log"`
	JWT       JWTConfig       `yaml:"jwt"`
	Handshake HandshakeConfig `yaml:"handshake"`
	Broker    BrokerConfig    `yaml:"broker"`
	Store     StoreConfig     `yaml:"store"`
	Delivery  DeliveryConfig  `yaml:"delivery"`
}

type DeliveryConfig struct {
	// 本地投递成功后不再广播；多端同账号在线时需要保持 false
	SkipRelayOnLocal bool `yaml:"skip_relay_on_local"`
}

type HTTPConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"` // 空 => 不校验 Origin
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type JWTConfig struct {
	Secret     string        `yaml:"secret"`
	Alg        string        `yaml:"alg"`
	AccessTTL  time.Duration `yaml:"access_ttl"`
	RefreshTTL time.Duration `yaml:"refresh_ttl"`
}

type HandshakeConfig struct {
	AuthTimeout  time.Duration `yaml:"auth_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type BrokerConfig struct {
	Kind              string        `yaml:"kind"`
	ReconnectAttempts int           `yaml:"reconnect_attempts"`
	InitialBackoff    time.Duration `yaml:"initial_backoff"`
	MaxBackoff        time.Duration `yaml:"max_backoff"`
	MaxListenRestarts int           `yaml:"max_listen_restarts"`
	Redis             RedisConfig   `yaml:"redis"`
	Nats              NatsConfig    `yaml:"nats"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type NatsConfig struct {
	Servers  []string `yaml:"servers"`
	Name     string   `yaml:"name"`
	User     string   `yaml:"user"`
	Password string   `yaml:"password"`
}

type StoreConfig struct {
	Kind     string      `yaml:"kind"`
	Postgres PGConfig    `yaml:"postgres"`
	Mongo    MongoConfig `yaml:"mongo"`
}

type PGConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type MongoConfig struct {
	URI         string `yaml:"uri"`
	Database    string `yaml:"database"`
	MaxPoolSize uint64 `yaml:"max_pool_size"`
	MaxRetry    int    `yaml:"max_retry"` // 连接重试次数，默认 3
}
