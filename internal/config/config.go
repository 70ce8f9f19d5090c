package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/afroash/smoker-monitor/internal/feed"
)

// BrokerSettings contains the MQTT broker connection settings
type BrokerSettings struct {
	Address        string        `yaml:"address"`
	ClientID       string        `yaml:"client_id"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	TopicPrefix    string        `yaml:"topic_prefix"`
	QoS            int           `yaml:"qos"`
	KeepAlive      time.Duration `yaml:"keep_alive"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	SessionExpiry  time.Duration `yaml:"session_expiry"` // consumer only; negative disables
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level    string `yaml:"level"`     // debug, info, warn, error
	Format   string `yaml:"format"`    // json or text
	FilePath string `yaml:"file_path"` // empty = stdout only
}

// ProducerConfig holds all configuration for the feed producer
type ProducerConfig struct {
	Broker      BrokerSettings `yaml:"broker"`
	CSVFile     string         `yaml:"csv_file"`
	RowInterval time.Duration  `yaml:"row_interval"`
	Logging     LoggingConfig  `yaml:"logging"`
}

// LoadProducerConfig loads producer configuration from a YAML file.
// Values from a .env file and the environment override the file.
func LoadProducerConfig(path string) (*ProducerConfig, error) {
	var cfg ProducerConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	cfg.OverrideFromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid producer config: %w", err)
	}
	return &cfg, nil
}

// ApplyDefaults sets default values for any unset fields
func (c *ProducerConfig) ApplyDefaults() {
	c.Broker.applyDefaults()
	c.Logging.applyDefaults()
	if c.CSVFile == "" {
		c.CSVFile = "data/smoker-temps.csv"
	}
	if c.RowInterval == 0 {
		c.RowInterval = 5 * time.Second
	}
}

// OverrideFromEnv overrides config values from environment variables
func (c *ProducerConfig) OverrideFromEnv() {
	c.Broker.overrideFromEnv()
	c.Logging.overrideFromEnv()
	if v := os.Getenv("CSV_FILE"); v != "" {
		c.CSVFile = v
	}
	if v := os.Getenv("ROW_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.RowInterval = d
		}
	}
}

// Validate checks if the configuration is valid
func (c *ProducerConfig) Validate() error {
	if err := c.Broker.validate(); err != nil {
		return err
	}
	if c.CSVFile == "" {
		return fmt.Errorf("csv file is required")
	}
	if c.RowInterval < 0 {
		return fmt.Errorf("row interval must not be negative")
	}
	return c.Logging.validate()
}

// String returns a safe string representation (hides the broker password)
func (c *ProducerConfig) String() string {
	return fmt.Sprintf("ProducerConfig{Broker: %s, CSVFile: %s, RowInterval: %s, Logging: %+v}",
		c.Broker.String(),
		c.CSVFile,
		c.RowInterval,
		c.Logging,
	)
}

func (b *BrokerSettings) applyDefaults() {
	if b.Address == "" {
		b.Address = "localhost:1883"
	}
	if b.TopicPrefix == "" {
		b.TopicPrefix = "smoker"
	}
	if b.QoS == 0 {
		b.QoS = 1
	}
	if b.KeepAlive == 0 {
		b.KeepAlive = 30 * time.Second
	}
	if b.ConnectTimeout == 0 {
		b.ConnectTimeout = 10 * time.Second
	}
}

func (b *BrokerSettings) overrideFromEnv() {
	if v := os.Getenv("BROKER_ADDRESS"); v != "" {
		b.Address = v
	}
	if v := os.Getenv("BROKER_CLIENT_ID"); v != "" {
		b.ClientID = v
	}
	if v := os.Getenv("BROKER_USERNAME"); v != "" {
		b.Username = v
	}
	if v := os.Getenv("BROKER_PASSWORD"); v != "" {
		b.Password = v
	}
	if v := os.Getenv("BROKER_TOPIC_PREFIX"); v != "" {
		b.TopicPrefix = v
	}
}

func (b *BrokerSettings) validate() error {
	if b.Address == "" {
		return fmt.Errorf("broker address is required")
	}
	// Readings are delivered at least once
	if b.QoS < 1 || b.QoS > 2 {
		return fmt.Errorf("broker qos must be 1 or 2, got %d", b.QoS)
	}
	return nil
}

// BrokerConfig converts the settings for the feed package
func (b BrokerSettings) BrokerConfig() feed.BrokerConfig {
	return feed.BrokerConfig{
		Address:        b.Address,
		ClientID:       b.ClientID,
		Username:       b.Username,
		Password:       b.Password,
		TopicPrefix:    b.TopicPrefix,
		QoS:            byte(b.QoS),
		KeepAlive:      b.KeepAlive,
		ConnectTimeout: b.ConnectTimeout,
		SessionExpiry:  max(b.SessionExpiry, 0),
	}
}

func (b BrokerSettings) String() string {
	return fmt.Sprintf("[Address=%s, ClientID=%s, Username=%s, Password=%s, TopicPrefix=%s, QoS=%d]",
		b.Address, b.ClientID, b.Username, maskToken(b.Password), b.TopicPrefix, b.QoS)
}

func (l *LoggingConfig) applyDefaults() {
	if l.Level == "" {
		l.Level = "info"
	}
	if l.Format == "" {
		l.Format = "json"
	}
}

func (l *LoggingConfig) overrideFromEnv() {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		l.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		l.Format = v
	}
}

func (l *LoggingConfig) validate() error {
	if _, err := zerolog.ParseLevel(strings.ToLower(l.Level)); err != nil {
		return fmt.Errorf("invalid log level %q", l.Level)
	}
	if l.Format != "json" && l.Format != "text" {
		return fmt.Errorf("log format must be json or text, got %q", l.Format)
	}
	return nil
}

// loadYAML loads an optional .env file, then decodes path into out
func loadYAML(path string, out interface{}) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// envBool parses a boolean environment variable
func envBool(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

// maskToken masks all but the first 4 characters of a secret
func maskToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 4 {
		return "****"
	}
	return token[:4] + "****"
}
