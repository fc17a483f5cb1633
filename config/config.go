package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	JWT          JWTConfig          `mapstructure:"jwt"`
	Log          LogConfig          `mapstructure:"log"`
	Chat         ChatConfig         `mapstructure:"chat"`
	Settlement   SettlementConfig   `mapstructure:"settlement"`
	Notification NotificationConfig `mapstructure:"notification"`
	Realtime     RealtimeConfig     `mapstructure:"realtime"`
	Sentry       SentryConfig       `mapstructure:"sentry"`
	Tracing      TracingConfig      `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // debug, release, test
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowOrigins    []string      `mapstructure:"allow_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // postgres, sqlite
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Enabled 未配置地址时，相关功能退化为进程内实现
func (r RedisConfig) Enabled() bool { return r.Addr != "" }

type JWTConfig struct {
	Secret     string `mapstructure:"secret"`
	CookieName string `mapstructure:"cookie_name"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, console
}

type ChatConfig struct {
	MaxMessageLength int           `mapstructure:"max_message_length"`
	RateLimit        float64       `mapstructure:"rate_limit"` // 每个连接每秒消息数
	RateBurst        int           `mapstructure:"rate_burst"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	HistoryLimit     int           `mapstructure:"history_limit"`
	HistoryCacheTTL  time.Duration `mapstructure:"history_cache_ttl"`
	ShardTables      int           `mapstructure:"shard_tables"`
	NodeID           int64         `mapstructure:"node_id"` // snowflake 节点号
}

type SettlementConfig struct {
	LockTTL         time.Duration `mapstructure:"lock_ttl"`
	ReleaseOnReject bool          `mapstructure:"release_on_reject"`
}

type NotificationConfig struct {
	Backend   string `mapstructure:"backend"` // memory, asynq
	Workers   int    `mapstructure:"workers"`
	QueueSize int    `mapstructure:"queue_size"`
	Queue     string `mapstructure:"queue"`
	MaxRetry  int    `mapstructure:"max_retry"`
}

type RealtimeConfig struct {
	RedisFanout  bool          `mapstructure:"redis_fanout"`
	Channel      string        `mapstructure:"channel"`
	SendBuffer   int           `mapstructure:"send_buffer"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	MaxFrameSize int64         `mapstructure:"max_frame_size"`
}

type SentryConfig struct {
	DSN         string  `mapstructure:"dsn"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
	Insecure    bool    `mapstructure:"insecure"`
}

// Load 读取配置：.env -> config.yaml -> 环境变量 (LC_ 前缀)
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("LC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
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

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.allow_origins", []string{"*"})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "live_commerce.db")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("jwt.secret", "changeme")
	v.SetDefault("jwt.cookie_name", "token")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("chat.max_message_length", 500)
	v.SetDefault("chat.rate_limit", 2.0)
	v.SetDefault("chat.rate_burst", 5)
	v.SetDefault("chat.write_timeout", 5*time.Second)
	v.SetDefault("chat.history_limit", 50)
	v.SetDefault("chat.history_cache_ttl", 5*time.Minute)
	v.SetDefault("chat.shard_tables", 1)
	v.SetDefault("chat.node_id", 1)

	v.SetDefault("settlement.lock_ttl", 10*time.Second)
	v.SetDefault("settlement.release_on_reject", false)

	v.SetDefault("notification.backend", "memory")
	v.SetDefault("notification.workers", 4)
	v.SetDefault("notification.queue_size", 10000)
	v.SetDefault("notification.queue", "notification")
	v.SetDefault("notification.max_retry", 5)

	v.SetDefault("realtime.redis_fanout", false)
	v.SetDefault("realtime.channel", "live:events")
	v.SetDefault("realtime.send_buffer", 128)
	v.SetDefault("realtime.read_timeout", 60*time.Second)
	v.SetDefault("realtime.max_frame_size", 1<<16)

	v.SetDefault("sentry.environment", "development")
	v.SetDefault("sentry.sample_rate", 1.0)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.service_name", "live-commerce")
	v.SetDefault("tracing.sample_ratio", 1.0)
	v.SetDefault("tracing.insecure", true)
}

func (c *Config) validate() error {
	if c.Notification.Backend == "asynq" && !c.Redis.Enabled() {
		return fmt.Errorf("notification.backend=asynq requires redis.addr")
	}
	if c.Realtime.RedisFanout && !c.Redis.Enabled() {
		return fmt.Errorf("realtime.redis_fanout requires redis.addr")
	}
	if c.Chat.ShardTables < 1 {
		c.Chat.ShardTables = 1
	}
	return nil
}
