package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// ConsumerConfig holds all configuration for the alert consumer
type ConsumerConfig struct {
	Broker   BrokerSettings   `yaml:"broker"`
	Feed     FeedSettings     `yaml:"feed"`
	Server   ServerSettings   `yaml:"server"`
	Database DatabaseSettings `yaml:"database"`
	Redis    RedisSettings    `yaml:"redis"`
	Logging  LoggingConfig    `yaml:"logging"`
}

// FeedSettings controls where readings come from
type FeedSettings struct {
	ReplayFile     string        `yaml:"replay_file"` // replay a CSV instead of subscribing
	ReplayInterval time.Duration `yaml:"replay_interval"`
	BufferSize     int           `yaml:"buffer_size"`
}

// ServerSettings contains HTTP server configuration
type ServerSettings struct {
	Enabled           bool          `yaml:"enabled"`
	Port              int           `yaml:"port"`
	Host              string        `yaml:"host"`
	AuthToken         string        `yaml:"auth_token"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	AllowedOrigins    []string      `yaml:"allowed_origins"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	RecentAlerts      int           `yaml:"recent_alerts"`
}

// DatabaseSettings contains alert history configuration
type DatabaseSettings struct {
	Enabled       bool          `yaml:"enabled"`
	Path          string        `yaml:"path"`
	BatchSize     int           `yaml:"batch_size"`
	FlushPeriod   time.Duration `yaml:"flush_period"`
	ChannelSize   int           `yaml:"channel_size"`
	RetentionDays int           `yaml:"retention_days"`
	CleanupPeriod time.Duration `yaml:"cleanup_period"`
}

// RedisSettings contains the optional Redis alert publisher configuration
type RedisSettings struct {
	Enabled   bool          `yaml:"enabled"`
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	Prefix    string        `yaml:"prefix"`
	TTL       time.Duration `yaml:"ttl"`
	QueueSize int           `yaml:"queue_size"`
}

// LoadConsumerConfig loads consumer configuration from a YAML file.
// Values from a .env file and the environment override the file.
func LoadConsumerConfig(path string) (*ConsumerConfig, error) {
	var cfg ConsumerConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	cfg.OverrideFromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid consumer config: %w", err)
	}
	return &cfg, nil
}

// ApplyDefaults sets default values for any unset fields
func (c *ConsumerConfig) ApplyDefaults() {
	c.Broker.applyDefaults()
	c.Logging.applyDefaults()

	// A stable client id lets the broker hand back the queued session
	if c.Broker.ClientID == "" {
		c.Broker.ClientID = "smoker-consumer"
	}
	if c.Broker.SessionExpiry == 0 {
		c.Broker.SessionExpiry = time.Hour
	}

	if c.Feed.BufferSize == 0 {
		c.Feed.BufferSize = 256
	}

	if c.Server.Port == 0 {
		c.Server.Port = 8081
	}
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 60 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 10 * time.Second
	}
	if c.Server.HeartbeatInterval == 0 {
		c.Server.HeartbeatInterval = 30 * time.Second
	}
	if c.Server.RecentAlerts == 0 {
		c.Server.RecentAlerts = 100
	}

	if c.Database.Path == "" {
		c.Database.Path = "./data/smoker-alerts.db"
	}
	if c.Database.BatchSize == 0 {
		c.Database.BatchSize = 50
	}
	if c.Database.FlushPeriod == 0 {
		c.Database.FlushPeriod = 2 * time.Second
	}
	if c.Database.ChannelSize == 0 {
		c.Database.ChannelSize = 500
	}
	if c.Database.RetentionDays == 0 {
		c.Database.RetentionDays = 30
	}
	if c.Database.CleanupPeriod == 0 {
		c.Database.CleanupPeriod = time.Hour
	}

	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "smoker"
	}
	if c.Redis.TTL == 0 {
		c.Redis.TTL = time.Hour
	}
	if c.Redis.QueueSize == 0 {
		c.Redis.QueueSize = 100
	}
}

// OverrideFromEnv overrides config values from environment variables
func (c *ConsumerConfig) OverrideFromEnv() {
	c.Broker.overrideFromEnv()
	c.Logging.overrideFromEnv()

	if v := os.Getenv("FEED_REPLAY_FILE"); v != "" {
		c.Feed.ReplayFile = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("SERVER_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("SERVER_AUTH_TOKEN"); v != "" {
		c.Server.AuthToken = v
	}
	if b, ok := envBool("SERVER_ENABLED"); ok {
		c.Server.Enabled = b
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if b, ok := envBool("DB_ENABLED"); ok {
		c.Database.Enabled = b
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if b, ok := envBool("REDIS_ENABLED"); ok {
		c.Redis.Enabled = b
	}
}

// Validate checks if the configuration is valid
func (c *ConsumerConfig) Validate() error {
	if c.Feed.ReplayFile == "" {
		if err := c.Broker.validate(); err != nil {
			return err
		}
	}
	if c.Feed.BufferSize < 1 {
		return fmt.Errorf("feed buffer size must be at least 1")
	}
	if c.Feed.ReplayInterval < 0 {
		return fmt.Errorf("replay interval must not be negative")
	}
	if c.Server.Enabled {
		if c.Server.Port < 1 || c.Server.Port > 65535 {
			return fmt.Errorf("port must be between 1 and 65535")
		}
		if c.Server.RecentAlerts < 1 {
			return fmt.Errorf("recent alerts must be at least 1")
		}
	}
	if c.Database.Enabled {
		if c.Database.Path == "" {
			return fmt.Errorf("database path is required")
		}
		if c.Database.RetentionDays < 1 {
			return fmt.Errorf("retention days must be at least 1")
		}
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required")
	}
	return c.Logging.validate()
}

// String returns a safe string representation (hides secrets)
func (c *ConsumerConfig) String() string {
	server := c.Server
	server.AuthToken = maskToken(server.AuthToken)
	redis := c.Redis
	redis.Password = maskToken(redis.Password)

	return fmt.Sprintf("ConsumerConfig{Broker: %s, Feed: %+v, Server: %+v, Database: %+v, Redis: %+v, Logging: %+v}",
		c.Broker.String(),
		c.Feed,
		server,
		c.Database,
		redis,
		c.Logging,
	)
}
