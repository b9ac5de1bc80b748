package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	MySQL     MySQLConfig     `yaml:"mysql"`
	NATS      NATSConfig      `yaml:"nats"`
	Pollers   PollersConfig   `yaml:"pollers"`
	Processor ProcessorConfig `yaml:"processor"`
	Binlog    BinlogConfig    `yaml:"binlog"`
	Health    HealthConfig    `yaml:"health"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

type NATSConfig struct {
	URL           string        `yaml:"url"`
	SubjectPrefix string        `yaml:"subject_prefix"`
	JetStream     bool          `yaml:"jetstream"`
	Stream        string        `yaml:"stream"` // JetStream stream to ensure at startup
	AckTimeout    time.Duration `yaml:"ack_timeout"`
	MaxReconnect  int           `yaml:"max_reconnect"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
}

// PollerConfig configures one table's polling loop.
type PollerConfig struct {
	Disabled  bool          `yaml:"disabled"`
	Interval  time.Duration `yaml:"interval"`
	BatchSize int           `yaml:"batch_size"`
	Topic     string        `yaml:"topic"`
}

type PollersConfig struct {
	Orders    PollerConfig `yaml:"orders"`
	Inventory PollerConfig `yaml:"inventory"`
	Prices    PollerConfig `yaml:"prices"`
	Customers PollerConfig `yaml:"customers"`
}

// ProcessorConfig configures optional event transformation before
// publish. A JavaScript script takes precedence over YAML rules.
type ProcessorConfig struct {
	Enabled bool            `yaml:"enabled"`
	Script  string          `yaml:"script"`
	Rules   []TransformRule `yaml:"rules"`
}

// TransformRule reshapes events on a single topic.
type TransformRule struct {
	Topic     string            `yaml:"topic"`
	Include   []string          `yaml:"include"`
	Exclude   []string          `yaml:"exclude"`
	Rename    map[string]string `yaml:"rename"`
	AddFields map[string]string `yaml:"add_fields"`
}

// BinlogConfig configures the optional binlog watcher that wakes
// pollers ahead of their next tick.
type BinlogConfig struct {
	Enabled  bool   `yaml:"enabled"`
	ServerID uint32 `yaml:"server_id"`
	Flavor   string `yaml:"flavor"` // mysql, mariadb
}

type HealthConfig struct {
	Disabled bool          `yaml:"disabled"`
	Interval time.Duration `yaml:"interval"`
	Topic    string        `yaml:"topic"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

func LoadConfig(path string) (*Config, error) {
	// A .env file next to the binary overrides nothing; it only seeds
	// the environment for the overrides below. Missing files are fine.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyEnv()
	config.applyDefaults()

	return &config, nil
}

// applyEnv lets the environment select connection targets, matching
// how the service is deployed (compose files set these per stack).
func (c *Config) applyEnv() {
	if v := os.Getenv("MYSQL_HOST"); v != "" {
		c.MySQL.Host = v
	}
	if v := os.Getenv("MYSQL_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.MySQL.Port = port
		}
	}
	if v := os.Getenv("MYSQL_USER"); v != "" {
		c.MySQL.User = v
	}
	if v := os.Getenv("MYSQL_PASSWORD"); v != "" {
		c.MySQL.Password = v
	}
	if v := os.Getenv("MYSQL_DATABASE"); v != "" {
		c.MySQL.Database = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		c.NATS.URL = v
	}
}

func (c *Config) applyDefaults() {
	if c.MySQL.Host == "" {
		c.MySQL.Host = "127.0.0.1"
	}
	if c.MySQL.Port == 0 {
		c.MySQL.Port = 3306
	}

	if c.NATS.URL == "" {
		c.NATS.URL = "nats://127.0.0.1:4222"
	}
	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = "events"
	}
	if c.NATS.Stream == "" {
		c.NATS.Stream = "EVENTS"
	}
	if c.NATS.AckTimeout == 0 {
		c.NATS.AckTimeout = 10 * time.Second
	}
	if c.NATS.ReconnectWait == 0 {
		c.NATS.ReconnectWait = 2 * time.Second
	}

	c.Pollers.Orders.applyDefaults(5*time.Second, "orders")
	c.Pollers.Inventory.applyDefaults(10*time.Second, "inventory")
	c.Pollers.Prices.applyDefaults(15*time.Second, "prices")
	c.Pollers.Customers.applyDefaults(8*time.Second, "customers")

	if c.Binlog.ServerID == 0 {
		c.Binlog.ServerID = 1001
	}
	if c.Binlog.Flavor == "" {
		c.Binlog.Flavor = "mysql"
	}

	if c.Health.Interval == 0 {
		c.Health.Interval = 60 * time.Second
	}
	if c.Health.Topic == "" {
		c.Health.Topic = "health"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

func (p *PollerConfig) applyDefaults(interval time.Duration, topic string) {
	if p.Interval == 0 {
		p.Interval = interval
	}
	if p.BatchSize == 0 {
		p.BatchSize = 100
	}
	if p.Topic == "" {
		p.Topic = topic
	}
}
