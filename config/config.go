package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Port string `mapstructure:"port"`
	// seconds
	ShutdownTimeout int `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"` // mongo, sqlite, memory
}

type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type BusConfig struct {
	Driver string `mapstructure:"driver"` // memory, redis, kafka, nats
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

type NATSConfig struct {
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

type JWTConfig struct {
	Secret           string `mapstructure:"secret"`
	Issuer           string `mapstructure:"issuer"`
	AccessTTLMinutes int    `mapstructure:"access_ttl_minutes"`
	RefreshTTLDays   int    `mapstructure:"refresh_ttl_days"`
}

type FederatedConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Issuer        string `mapstructure:"issuer"`
	Audience      string `mapstructure:"audience"`
	PublicKeyPath string `mapstructure:"public_key_path"`
}

type PresenceConfig struct {
	TTLSeconds int `mapstructure:"ttl_seconds"`
}

type WSConfig struct {
	PingIntervalSeconds  int     `mapstructure:"ping_interval_seconds"`
	WriteDeadlineSeconds int     `mapstructure:"write_deadline_seconds"`
	MaxMessageSizeBytes  int64   `mapstructure:"max_message_size_bytes"`
	MessagesPerSecond    float64 `mapstructure:"messages_per_second"`
	Burst                int     `mapstructure:"burst"`
}

type RateLimitConfig struct {
	PerMinute     int `mapstructure:"per_minute"`
	AuthPerMinute int `mapstructure:"auth_per_minute"`
}

type MediaConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Bucket         string `mapstructure:"bucket"`
	Region         string `mapstructure:"region"`
	Endpoint       string `mapstructure:"endpoint"` // S3-compatible stores, e.g. MinIO
	PublicRead     bool   `mapstructure:"public_read"`
	AvatarSize     int    `mapstructure:"avatar_size"`
	MaxUploadBytes int    `mapstructure:"max_upload_bytes"`
	MaxDimension   int    `mapstructure:"max_dimension"`
}

type BreakerConfig struct {
	MaxFailures     uint32 `mapstructure:"max_failures"`
	IntervalSeconds int    `mapstructure:"interval_seconds"`
	TimeoutSeconds  int    `mapstructure:"timeout_seconds"`
}

type ConsulConfig struct {
	Addr           string `mapstructure:"addr"`
	ServiceName    string `mapstructure:"service_name"`
	ServiceAddress string `mapstructure:"service_address"`
}

type ChannelsConfig struct {
	Defaults []string `mapstructure:"defaults"`
}

type SessionConfig struct {
	IdleMinutes int `mapstructure:"idle_minutes"`
}

// Config holds all configuration values
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Log       LogConfig       `mapstructure:"log"`
	Store     StoreConfig     `mapstructure:"store"`
	Mongo     MongoConfig     `mapstructure:"mongo"`
	SQLite    SQLiteConfig    `mapstructure:"sqlite"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Bus       BusConfig       `mapstructure:"bus"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	NATS      NATSConfig      `mapstructure:"nats"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Federated FederatedConfig `mapstructure:"federated"`
	Presence  PresenceConfig  `mapstructure:"presence"`
	WS        WSConfig        `mapstructure:"ws"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Media     MediaConfig     `mapstructure:"media"`
	Breaker   BreakerConfig   `mapstructure:"breaker"`
	Consul    ConsulConfig    `mapstructure:"consul"`
	Channels  ChannelsConfig  `mapstructure:"channels"`
	Session   SessionConfig   `mapstructure:"session"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "realtime-chat")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.shutdown_timeout", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("store.driver", "memory")
	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "realtime_chat")
	v.SetDefault("sqlite.path", "realtime-chat.db")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "chat")
	v.SetDefault("bus.driver", "memory")
	v.SetDefault("kafka.topic", "chat.changes")
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.subject_prefix", "chat")
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.group_id", "")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "realtime-chat")
	v.SetDefault("federated.enabled", false)
	v.SetDefault("federated.issuer", "")
	v.SetDefault("federated.audience", "")
	v.SetDefault("federated.public_key_path", "")
	v.SetDefault("jwt.access_ttl_minutes", 15)
	v.SetDefault("jwt.refresh_ttl_days", 7)
	v.SetDefault("presence.ttl_seconds", 90)
	v.SetDefault("session.idle_minutes", 30)
	v.SetDefault("ws.ping_interval_seconds", 25)
	v.SetDefault("ws.write_deadline_seconds", 10)
	v.SetDefault("ws.max_message_size_bytes", 65536)
	v.SetDefault("ws.messages_per_second", 10)
	v.SetDefault("ws.burst", 20)
	v.SetDefault("rate_limit.per_minute", 120)
	v.SetDefault("rate_limit.auth_per_minute", 10)
	v.SetDefault("media.enabled", false)
	v.SetDefault("media.bucket", "")
	v.SetDefault("media.region", "us-east-1")
	v.SetDefault("media.endpoint", "")
	v.SetDefault("media.public_read", true)
	v.SetDefault("media.avatar_size", 256)
	v.SetDefault("media.max_upload_bytes", 5*1024*1024)
	v.SetDefault("media.max_dimension", 8192)
	v.SetDefault("breaker.max_failures", 5)
	v.SetDefault("breaker.interval_seconds", 60)
	v.SetDefault("breaker.timeout_seconds", 30)
	v.SetDefault("consul.addr", "")
	v.SetDefault("consul.service_name", "realtime-chat")
	v.SetDefault("consul.service_address", "")
	v.SetDefault("channels.defaults", []string{"general", "random", "help", "announcements"})
}

// Load reads configuration from the yaml file at path (optional) and the environment.
// Nested keys are overridden with underscores, e.g. REDIS_ADDR or JWT_SECRET.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case "mongo", "sqlite", "memory":
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	switch c.Bus.Driver {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			return errors.New("bus.driver=redis requires redis.addr")
		}
	case "kafka":
		if len(c.Kafka.Brokers) == 0 {
			return errors.New("bus.driver=kafka requires kafka.brokers")
		}
	case "nats":
	default:
		return fmt.Errorf("unknown bus.driver %q", c.Bus.Driver)
	}
	if c.JWT.Secret == "" {
		if c.IsProduction() {
			return errors.New("jwt.secret is required in production")
		}
		c.JWT.Secret = "dev-jwt-secret-not-for-production-use"
	}
	if c.Federated.Enabled && c.Federated.PublicKeyPath == "" {
		return errors.New("federated.enabled requires federated.public_key_path")
	}
	if c.Media.Enabled && c.Media.Bucket == "" {
		return errors.New("media.enabled requires media.bucket")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.App.ShutdownTimeout) * time.Second
}

func (c *Config) PresenceTTL() time.Duration {
	return time.Duration(c.Presence.TTLSeconds) * time.Second
}

// SessionIdle is how long a session without connections survives without HTTP activity.
func (c *Config) SessionIdle() time.Duration {
	return time.Duration(c.Session.IdleMinutes) * time.Minute
}

func (c *Config) AccessTTL() time.Duration {
	return time.Duration(c.JWT.AccessTTLMinutes) * time.Minute
}

func (c *Config) RefreshTTL() time.Duration {
	return time.Duration(c.JWT.RefreshTTLDays) * 24 * time.Hour
}

func (c *Config) PingInterval() time.Duration {
	return time.Duration(c.WS.PingIntervalSeconds) * time.Second
}

func (c *Config) WriteDeadline() time.Duration {
	return time.Duration(c.WS.WriteDeadlineSeconds) * time.Second
}
