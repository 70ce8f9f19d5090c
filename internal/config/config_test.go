package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

func TestLoadConsumerConfig(t *testing.T) {
	path := writeConfig(t, `
broker:
  address: "broker.local:1883"
  username: "bbq"
  password: "hickory-smoke"
  topic_prefix: "pit"
  qos: 2

feed:
  buffer_size: 64

server:
  enabled: true
  port: 9090
  auth_token: "dashboard-token"
  allowed_origins:
    - "http://dash.local"
  heartbeat_interval: 15s

database:
  enabled: true
  path: "/tmp/alerts.db"
  retention_days: 7

redis:
  enabled: true
  addr: "redis.local:6379"
  ttl: 30m

logging:
  level: "debug"
  format: "text"
`)

	cfg, err := LoadConsumerConfig(path)
	if err != nil {
		t.Fatalf("LoadConsumerConfig failed: %v", err)
	}

	if cfg.Broker.Address != "broker.local:1883" || cfg.Broker.TopicPrefix != "pit" || cfg.Broker.QoS != 2 {
		t.Errorf("Broker = %+v", cfg.Broker)
	}
	if cfg.Feed.BufferSize != 64 {
		t.Errorf("Feed.BufferSize = %d, want 64", cfg.Feed.BufferSize)
	}
	if !cfg.Server.Enabled || cfg.Server.Port != 9090 || cfg.Server.HeartbeatInterval != 15*time.Second {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "http://dash.local" {
		t.Errorf("Server.AllowedOrigins = %v", cfg.Server.AllowedOrigins)
	}
	if !cfg.Database.Enabled || cfg.Database.RetentionDays != 7 {
		t.Errorf("Database = %+v", cfg.Database)
	}
	// Unset fields pick up defaults
	if cfg.Database.BatchSize != 50 || cfg.Database.CleanupPeriod != time.Hour {
		t.Errorf("Database defaults = %+v", cfg.Database)
	}
	if !cfg.Redis.Enabled || cfg.Redis.TTL != 30*time.Minute || cfg.Redis.Prefix != "smoker" {
		t.Errorf("Redis = %+v", cfg.Redis)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}

	bc := cfg.Broker.BrokerConfig()
	if bc.QoS != 2 || bc.Username != "bbq" || bc.Password != "hickory-smoke" {
		t.Errorf("BrokerConfig = %+v", bc)
	}
}

func TestLoadConsumerConfig_Errors(t *testing.T) {
	if _, err := LoadConsumerConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	bad := writeConfig(t, "broker: [not, a, map]\n")
	if _, err := LoadConsumerConfig(bad); err == nil {
		t.Error("expected error for malformed yaml")
	}

	invalid := writeConfig(t, "logging:\n  level: loud\n")
	if _, err := LoadConsumerConfig(invalid); err == nil {
		t.Error("expected error for invalid log level")
	}
}

func TestConsumerConfig_ApplyDefaults(t *testing.T) {
	cfg := &ConsumerConfig{}
	cfg.ApplyDefaults()

	if cfg.Broker.Address != "localhost:1883" {
		t.Errorf("Default Broker.Address = %v", cfg.Broker.Address)
	}
	if cfg.Broker.QoS != 1 {
		t.Errorf("Default Broker.QoS = %v, want 1", cfg.Broker.QoS)
	}
	if cfg.Broker.TopicPrefix != "smoker" {
		t.Errorf("Default Broker.TopicPrefix = %v, want smoker", cfg.Broker.TopicPrefix)
	}
	if cfg.Broker.ClientID != "smoker-consumer" || cfg.Broker.SessionExpiry != time.Hour {
		t.Errorf("Default Broker session = %q/%v, want smoker-consumer/1h", cfg.Broker.ClientID, cfg.Broker.SessionExpiry)
	}
	if got := cfg.Broker.BrokerConfig().SessionExpiry; got != time.Hour {
		t.Errorf("BrokerConfig().SessionExpiry = %v, want 1h", got)
	}

	cfg.Broker.SessionExpiry = -time.Second
	if got := cfg.Broker.BrokerConfig().SessionExpiry; got != 0 {
		t.Errorf("negative session expiry maps to %v, want 0", got)
	}
	if cfg.Feed.BufferSize != 256 {
		t.Errorf("Default Feed.BufferSize = %v, want 256", cfg.Feed.BufferSize)
	}
	if cfg.Server.Port != 8081 {
		t.Errorf("Default Server.Port = %v, want 8081", cfg.Server.Port)
	}
	if cfg.Database.RetentionDays != 30 {
		t.Errorf("Default Database.RetentionDays = %v, want 30", cfg.Database.RetentionDays)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("Default Logging = %+v", cfg.Logging)
	}
	if cfg.Server.Enabled || cfg.Database.Enabled || cfg.Redis.Enabled {
		t.Error("optional components should default to disabled")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestConsumerConfig_OverrideFromEnv(t *testing.T) {
	t.Setenv("BROKER_ADDRESS", "env-broker:1883")
	t.Setenv("BROKER_PASSWORD", "env-secret")
	t.Setenv("FEED_REPLAY_FILE", "data/replay.csv")
	t.Setenv("SERVER_PORT", "7070")
	t.Setenv("SERVER_ENABLED", "true")
	t.Setenv("DB_ENABLED", "false")
	t.Setenv("REDIS_ADDR", "env-redis:6379")
	t.Setenv("LOG_LEVEL", "warn")

	cfg := &ConsumerConfig{
		Broker:   BrokerSettings{Address: "config-broker:1883"},
		Database: DatabaseSettings{Enabled: true},
		Logging:  LoggingConfig{Level: "info"},
	}
	cfg.OverrideFromEnv()

	if cfg.Broker.Address != "env-broker:1883" || cfg.Broker.Password != "env-secret" {
		t.Errorf("Broker = %+v", cfg.Broker)
	}
	if cfg.Feed.ReplayFile != "data/replay.csv" {
		t.Errorf("Feed.ReplayFile = %v", cfg.Feed.ReplayFile)
	}
	if cfg.Server.Port != 7070 || !cfg.Server.Enabled {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.Database.Enabled {
		t.Error("DB_ENABLED=false should disable the database")
	}
	if cfg.Redis.Addr != "env-redis:6379" {
		t.Errorf("Redis.Addr = %v", cfg.Redis.Addr)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %v, want warn", cfg.Logging.Level)
	}
}

func TestConsumerConfig_Validate(t *testing.T) {
	valid := func() ConsumerConfig {
		cfg := ConsumerConfig{}
		cfg.ApplyDefaults()
		return cfg
	}

	tests := []struct {
		name      string
		modify    func(*ConsumerConfig)
		wantError bool
	}{
		{"valid config", func(c *ConsumerConfig) {}, false},
		{"missing broker address", func(c *ConsumerConfig) { c.Broker.Address = "" }, true},
		{"replay needs no broker", func(c *ConsumerConfig) {
			c.Broker.Address = ""
			c.Feed.ReplayFile = "data/smoker-temps.csv"
		}, false},
		{"qos zero", func(c *ConsumerConfig) { c.Broker.QoS = 0 }, true},
		{"qos too high", func(c *ConsumerConfig) { c.Broker.QoS = 3 }, true},
		{"zero buffer", func(c *ConsumerConfig) { c.Feed.BufferSize = 0 }, true},
		{"bad port when server enabled", func(c *ConsumerConfig) {
			c.Server.Enabled = true
			c.Server.Port = 70000
		}, true},
		{"bad port ignored when server disabled", func(c *ConsumerConfig) { c.Server.Port = 70000 }, false},
		{"database without retention", func(c *ConsumerConfig) {
			c.Database.Enabled = true
			c.Database.RetentionDays = -1
		}, true},
		{"redis without address", func(c *ConsumerConfig) {
			c.Redis.Enabled = true
			c.Redis.Addr = ""
		}, true},
		{"unknown log format", func(c *ConsumerConfig) { c.Logging.Format = "xml" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.modify(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantError {
				t.Errorf("Validate() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}

func TestConsumerConfig_String(t *testing.T) {
	cfg := ConsumerConfig{
		Broker: BrokerSettings{Address: "broker:1883", Password: "broker-secret"},
		Server: ServerSettings{AuthToken: "super-secret-token"},
		Redis:  RedisSettings{Password: "redis-secret"},
	}

	s := cfg.String()
	for _, secret := range []string{"broker-secret", "super-secret-token", "redis-secret"} {
		if strings.Contains(s, secret) {
			t.Errorf("String() leaks %q: %s", secret, s)
		}
	}
	if !strings.Contains(s, "supe****") {
		t.Errorf("String() should show masked token prefix: %s", s)
	}
	// Masking must not mutate the config
	if cfg.Server.AuthToken != "super-secret-token" {
		t.Error("String() modified the auth token")
	}
}

func TestLoadProducerConfig(t *testing.T) {
	path := writeConfig(t, `
broker:
  address: "broker.local:1883"
csv_file: "data/cook.csv"
row_interval: 250ms
`)

	cfg, err := LoadProducerConfig(path)
	if err != nil {
		t.Fatalf("LoadProducerConfig failed: %v", err)
	}
	if cfg.CSVFile != "data/cook.csv" {
		t.Errorf("CSVFile = %v", cfg.CSVFile)
	}
	if cfg.RowInterval != 250*time.Millisecond {
		t.Errorf("RowInterval = %v, want 250ms", cfg.RowInterval)
	}
	if cfg.Broker.QoS != 1 {
		t.Errorf("Broker.QoS = %v, want 1", cfg.Broker.QoS)
	}
}

func TestProducerConfig_Defaults(t *testing.T) {
	cfg := &ProducerConfig{}
	cfg.ApplyDefaults()

	if cfg.RowInterval != 5*time.Second {
		t.Errorf("Default RowInterval = %v, want 5s", cfg.RowInterval)
	}
	if cfg.CSVFile != "data/smoker-temps.csv" {
		t.Errorf("Default CSVFile = %v", cfg.CSVFile)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestProducerConfig_OverrideFromEnv(t *testing.T) {
	t.Setenv("CSV_FILE", "env.csv")
	t.Setenv("ROW_INTERVAL", "1s")
	t.Setenv("BROKER_TOPIC_PREFIX", "kitchen")

	cfg := &ProducerConfig{}
	cfg.OverrideFromEnv()

	if cfg.CSVFile != "env.csv" || cfg.RowInterval != time.Second || cfg.Broker.TopicPrefix != "kitchen" {
		t.Errorf("cfg = %+v", cfg)
	}

	cfg.RowInterval = -time.Second
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err == nil {
		t.Error("negative row interval should not validate")
	}
}

func TestMaskToken(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", ""},
		{"abc", "****"},
		{"abcdefgh", "abcd****"},
	}

	for _, tt := range tests {
		if got := maskToken(tt.input); got != tt.want {
			t.Errorf("maskToken(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
