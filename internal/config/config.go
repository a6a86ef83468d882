package config

import (
	"time"

	"github.com/spf13/viper"

	pkgconfig "github.com/JulienCr/obs-live-suite-sub002/pkg/config"
	"github.com/JulienCr/obs-live-suite-sub002/pkg/log"
)

type Config struct {
	Server    ServerConfig
	WebSocket WebSocketConfig
	Relay     RelayConfig
	Store     StoreConfig
	Retention RetentionConfig
	Replay    ReplayConfig
	Redis     RedisConfig
	Log       log.Config
}

type ServerConfig struct {
	Host string
	Port int
}

type WebSocketConfig struct {
	// HeartbeatInterval is the period of the hub liveness sweep. A client
	// that misses two consecutive sweeps without a pong is terminated.
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	WriteWait         time.Duration `mapstructure:"write_wait"`
	MaxMessageSize    int64         `mapstructure:"max_message_size"`
	SendBuffer        int           `mapstructure:"send_buffer"`
}

type RelayConfig struct {
	// AckTimeout bounds how long a published event waits for client
	// acknowledgment before the pending entry is dropped.
	AckTimeout time.Duration `mapstructure:"ack_timeout"`
}

type StoreConfig struct {
	// Driver selects the message store backend: "sqlite" or "memory".
	Driver string
	Path   string
}

type RetentionConfig struct {
	// Schedule is a cron spec for the retention sweep.
	Schedule string
	// Keep is the number of non-pinned messages retained by a sweep.
	Keep int
}

type ReplayConfig struct {
	// RecentLimit caps how many recent messages a joining presenter receives.
	RecentLimit int `mapstructure:"recent_limit"`
}

type RedisConfig struct {
	// Address enables the hub-owner registry when non-empty.
	Address           string
	Password          string
	DB                int
	RegistryPrefix    string        `mapstructure:"registry_prefix"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	KeyTTL            time.Duration `mapstructure:"key_ttl"`
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 4455)
	v.SetDefault("websocket.heartbeat_interval", "30s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 65536)
	v.SetDefault("websocket.send_buffer", 256)
	v.SetDefault("relay.ack_timeout", "10s")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "./data/messages.db")
	v.SetDefault("retention.schedule", "@every 5m")
	v.SetDefault("retention.keep", 200)
	v.SetDefault("replay.recent_limit", 50)
	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.registry_prefix", "relay:hub")
	v.SetDefault("redis.heartbeat_interval", "10s")
	v.SetDefault("redis.key_ttl", "30s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.service_name", "relay")

	// Override from environment
	v.BindEnv("server.port", "PORT")
	v.BindEnv("store.driver", "STORE_DRIVER")
	v.BindEnv("store.path", "STORE_PATH")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("log.level", "LOG_LEVEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Parse durations
	cfg.WebSocket.HeartbeatInterval = parseDuration(v, "websocket.heartbeat_interval", 30*time.Second)
	cfg.WebSocket.WriteWait = parseDuration(v, "websocket.write_wait", 10*time.Second)
	cfg.Relay.AckTimeout = parseDuration(v, "relay.ack_timeout", 10*time.Second)
	cfg.Redis.HeartbeatInterval = parseDuration(v, "redis.heartbeat_interval", 10*time.Second)
	cfg.Redis.KeyTTL = parseDuration(v, "redis.key_ttl", 30*time.Second)

	return &cfg, nil
}

func parseDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	str := v.GetString(key)
	d, err := time.ParseDuration(str)
	if err != nil {
		return defaultVal
	}
	return d
}
