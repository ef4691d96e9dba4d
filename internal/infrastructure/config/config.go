package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/mdaskalov/homebridge-tasmota-zbbridge-sub000/internal/accessory"
)

// autoClientID asks Load to generate a unique MQTT client id.
const autoClientID = "auto"

// Config is the root configuration structure for the bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Bridge      BridgeConfig           `yaml:"bridge"`
	Database    DatabaseConfig         `yaml:"database"`
	MQTT        MQTTConfig             `yaml:"mqtt"`
	API         APIConfig              `yaml:"api"`
	WebSocket   WebSocketConfig        `yaml:"websocket"`
	InfluxDB    InfluxDBConfig         `yaml:"influxdb"`
	Metrics     MetricsConfig          `yaml:"metrics"`
	Logging     LoggingConfig          `yaml:"logging"`
	Accessories []accessory.Definition `yaml:"accessories"`
}

// BridgeConfig contains message routing and reconciliation settings.
type BridgeConfig struct {
	// Topic is the Tasmota topic of the Zigbee bridge. Zigbee accessories
	// without a topic use it.
	Topic string `yaml:"topic"`

	// RequestTimeoutMS bounds a device query in milliseconds.
	RequestTimeoutMS int `yaml:"request_timeout_ms"`

	// StaleWindowMS is how long an unconfirmed write is trusted.
	StaleWindowMS int `yaml:"stale_window_ms"`

	// QueueSize is the depth of the inbound message queue.
	QueueSize int `yaml:"queue_size"`

	// DumpPayloads logs every received payload at debug level.
	DumpPayloads bool `yaml:"dump_payloads"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// HistoryRetentionDays prunes value history older than this. 0 keeps everything.
	HistoryRetentionDays int `yaml:"history_retention_days"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings. Reconnects use a
// fixed interval and never give up.
type MQTTReconnectConfig struct {
	Interval int `yaml:"interval"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// MetricsConfig contains Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//  4. Derived values (generated client id, Zigbee accessory topics)
//
// Environment variables follow the pattern: ZBBRIDGE_SECTION_KEY
// For example: ZBBRIDGE_MQTT_HOST, ZBBRIDGE_API_PORT
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)
	cfg.resolve()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Bridge: BridgeConfig{
			Topic:            "zbbridge",
			RequestTimeoutMS: 1000,
			StaleWindowMS:    2000,
			QueueSize:        256,
		},
		Database: DatabaseConfig{
			Enabled:              true,
			Path:                 "./data/zbbridge.db",
			WALMode:              true,
			BusyTimeout:          5,
			HistoryRetentionDays: 30,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: autoClientID,
			},
			QoS: 0,
			Reconnect: MQTTReconnectConfig{
				Interval: 5,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/api/v1/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
			File: FileLoggingConfig{
				MaxSize:    10,
				MaxBackups: 3,
				MaxAge:     28,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: ZBBRIDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Bridge
	if v := os.Getenv("ZBBRIDGE_BRIDGE_TOPIC"); v != "" {
		cfg.Bridge.Topic = v
	}

	// Database
	if v := os.Getenv("ZBBRIDGE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("ZBBRIDGE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("ZBBRIDGE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("ZBBRIDGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("ZBBRIDGE_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("ZBBRIDGE_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// InfluxDB
	if v := os.Getenv("ZBBRIDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("ZBBRIDGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// resolve fills values derived from other settings.
func (c *Config) resolve() {
	if c.MQTT.Broker.ClientID == autoClientID {
		c.MQTT.Broker.ClientID = "zbbridge-" + uuid.NewString()[:8]
	}
	for i := range c.Accessories {
		if c.Accessories[i].Type == accessory.DeviceZigbee && c.Accessories[i].Topic == "" {
			c.Accessories[i].Topic = c.Bridge.Topic
		}
	}
}

// Validate checks the configuration and returns every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Bridge validation
	if c.Bridge.RequestTimeoutMS <= 0 {
		errs = append(errs, "bridge.request_timeout_ms must be positive")
	}
	if c.Bridge.StaleWindowMS <= 0 {
		errs = append(errs, "bridge.stale_window_ms must be positive")
	}
	if c.Bridge.QueueSize <= 0 {
		errs = append(errs, "bridge.queue_size must be positive")
	}

	// Database validation
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.Database.HistoryRetentionDays < 0 {
		errs = append(errs, "database.history_retention_days must not be negative")
	}

	// MQTT validation
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.Broker.ClientID == "" {
		errs = append(errs, "mqtt.broker.client_id is required")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Reconnect.Interval <= 0 {
		errs = append(errs, "mqtt.reconnect.interval must be positive")
	}

	// API validation
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when enabled")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when enabled")
		}
	}

	// Metrics validation
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, "metrics.path must start with /")
	}

	// Logging validation
	if (c.Logging.Output == "file" || c.Logging.Output == "both") && c.Logging.File.Path == "" {
		errs = append(errs, "logging.file.path is required for file output")
	}

	// Accessory validation
	seen := make(map[string]bool, len(c.Accessories))
	for _, def := range c.Accessories {
		if err := def.Validate(); err != nil {
			errs = append(errs, err.Error())
		}
		if def.ID != "" && seen[def.ID] {
			errs = append(errs, fmt.Sprintf("accessory id %q is used twice", def.ID))
		}
		seen[def.ID] = true
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// RequestTimeout returns the device query timeout as a Duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Bridge.RequestTimeoutMS) * time.Millisecond
}

// StaleWindow returns the reconciliation stale window as a Duration.
func (c *Config) StaleWindow() time.Duration {
	return time.Duration(c.Bridge.StaleWindowMS) * time.Millisecond
}

// ReconnectInterval returns the MQTT reconnect interval as a Duration.
func (c *Config) ReconnectInterval() time.Duration {
	return time.Duration(c.MQTT.Reconnect.Interval) * time.Second
}

// HistoryRetention returns how long value history is kept. Zero means forever.
func (c *Config) HistoryRetention() time.Duration {
	return time.Duration(c.Database.HistoryRetentionDays) * 24 * time.Hour
}

// ReadTimeout returns the API read timeout as a Duration.
func (c APIConfig) ReadTimeout() time.Duration {
	return time.Duration(c.Timeouts.Read) * time.Second
}

// WriteTimeout returns the API write timeout as a Duration.
func (c APIConfig) WriteTimeout() time.Duration {
	return time.Duration(c.Timeouts.Write) * time.Second
}

// IdleTimeout returns the API idle timeout as a Duration.
func (c APIConfig) IdleTimeout() time.Duration {
	return time.Duration(c.Timeouts.Idle) * time.Second
}
