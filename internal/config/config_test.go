package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
mysql:
  host: db.internal
  port: 3307
  user: events
  password: secret
  database: shop
nats:
  url: nats://broker:4222
  jetstream: true
pollers:
  orders:
    interval: 2s
    batch_size: 50
  prices:
    disabled: true
logging:
  level: debug
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.MySQL.Host != "db.internal" || cfg.MySQL.Port != 3307 {
		t.Errorf("mysql config: %+v", cfg.MySQL)
	}
	if cfg.NATS.URL != "nats://broker:4222" || !cfg.NATS.JetStream {
		t.Errorf("nats config: %+v", cfg.NATS)
	}
	if cfg.Pollers.Orders.Interval != 2*time.Second || cfg.Pollers.Orders.BatchSize != 50 {
		t.Errorf("orders poller config: %+v", cfg.Pollers.Orders)
	}
	if !cfg.Pollers.Prices.Disabled {
		t.Error("prices poller should be disabled")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("logging level: %q", cfg.Logging.Level)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `mysql: {user: events}`))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.MySQL.Host != "127.0.0.1" || cfg.MySQL.Port != 3306 {
		t.Errorf("mysql defaults: %+v", cfg.MySQL)
	}
	if cfg.NATS.URL != "nats://127.0.0.1:4222" {
		t.Errorf("nats url default: %q", cfg.NATS.URL)
	}
	if cfg.NATS.SubjectPrefix != "events" || cfg.NATS.Stream != "EVENTS" {
		t.Errorf("nats subject defaults: %+v", cfg.NATS)
	}
	if cfg.NATS.AckTimeout != 10*time.Second || cfg.NATS.ReconnectWait != 2*time.Second {
		t.Errorf("nats timing defaults: %+v", cfg.NATS)
	}

	tests := []struct {
		name     string
		poller   PollerConfig
		interval time.Duration
		topic    string
	}{
		{"orders", cfg.Pollers.Orders, 5 * time.Second, "orders"},
		{"inventory", cfg.Pollers.Inventory, 10 * time.Second, "inventory"},
		{"prices", cfg.Pollers.Prices, 15 * time.Second, "prices"},
		{"customers", cfg.Pollers.Customers, 8 * time.Second, "customers"},
	}
	for _, tt := range tests {
		if tt.poller.Disabled {
			t.Errorf("%s disabled by default", tt.name)
		}
		if tt.poller.Interval != tt.interval {
			t.Errorf("%s interval: got %s, want %s", tt.name, tt.poller.Interval, tt.interval)
		}
		if tt.poller.BatchSize != 100 {
			t.Errorf("%s batch size: got %d, want 100", tt.name, tt.poller.BatchSize)
		}
		if tt.poller.Topic != tt.topic {
			t.Errorf("%s topic: got %q, want %q", tt.name, tt.poller.Topic, tt.topic)
		}
	}

	if cfg.Binlog.Enabled {
		t.Error("binlog watcher enabled by default")
	}
	if cfg.Binlog.Flavor != "mysql" || cfg.Binlog.ServerID == 0 {
		t.Errorf("binlog defaults: %+v", cfg.Binlog)
	}
	if cfg.Health.Interval != 60*time.Second || cfg.Health.Topic != "health" {
		t.Errorf("health defaults: %+v", cfg.Health)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("logging default: %q", cfg.Logging.Level)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("MYSQL_HOST", "env-db")
	t.Setenv("MYSQL_PORT", "3310")
	t.Setenv("MYSQL_PASSWORD", "env-secret")
	t.Setenv("NATS_URL", "nats://env-broker:4222")

	cfg, err := LoadConfig(writeConfig(t, `
mysql:
  host: file-db
  port: 3306
  password: file-secret
nats:
  url: nats://file-broker:4222
`))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.MySQL.Host != "env-db" || cfg.MySQL.Port != 3310 || cfg.MySQL.Password != "env-secret" {
		t.Errorf("env overrides not applied: %+v", cfg.MySQL)
	}
	if cfg.NATS.URL != "nats://env-broker:4222" {
		t.Errorf("NATS_URL override not applied: %q", cfg.NATS.URL)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("missing config file accepted")
	}
}

func TestLoadConfigBadYAML(t *testing.T) {
	if _, err := LoadConfig(writeConfig(t, "mysql: [not a map")); err == nil {
		t.Error("malformed yaml accepted")
	}
}
