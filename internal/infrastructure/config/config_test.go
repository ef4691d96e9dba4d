package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mdaskalov/homebridge-tasmota-zbbridge-sub000/internal/accessory"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
bridge:
  topic: "zb-hall"
  request_timeout_ms: 1500
database:
  path: "/tmp/test.db"
mqtt:
  broker:
    host: "broker.local"
    port: 1883
    client_id: "test-client"
accessories:
  - id: kitchen
    name: Kitchen Lamp
    type: tasmota
    topic: kitchen
    color_mode: hs
    properties: [power, brightness, hue, saturation]
  - id: hall
    type: zigbee
    address: "0x4A2F"
    endpoint: 1
    color_mode: xy
    properties: [power, hue, saturation]
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Bridge.Topic != "zb-hall" {
		t.Errorf("Bridge.Topic = %q, want %q", cfg.Bridge.Topic, "zb-hall")
	}
	if cfg.RequestTimeout() != 1500*time.Millisecond {
		t.Errorf("RequestTimeout() = %v, want 1.5s", cfg.RequestTimeout())
	}
	if cfg.StaleWindow() != 2*time.Second {
		t.Errorf("StaleWindow() = %v, want default 2s", cfg.StaleWindow())
	}
	if cfg.MQTT.Broker.ClientID != "test-client" {
		t.Errorf("MQTT.Broker.ClientID = %q, want %q", cfg.MQTT.Broker.ClientID, "test-client")
	}

	if len(cfg.Accessories) != 2 {
		t.Fatalf("len(Accessories) = %d, want 2", len(cfg.Accessories))
	}
	kitchen := cfg.Accessories[0]
	if kitchen.Type != accessory.DeviceTasmota || kitchen.ColorMode != accessory.ColorModeHS {
		t.Errorf("kitchen = %+v", kitchen)
	}
	if len(kitchen.Properties) != 4 || kitchen.Properties[3] != accessory.KindSaturation {
		t.Errorf("kitchen.Properties = %v", kitchen.Properties)
	}

	hall := cfg.Accessories[1]
	if hall.Topic != "zb-hall" {
		t.Errorf("zigbee accessory Topic = %q, want bridge topic %q", hall.Topic, "zb-hall")
	}
	if hall.Endpoint != 1 {
		t.Errorf("hall.Endpoint = %d, want 1", hall.Endpoint)
	}
}

func TestLoad_AutoClientID(t *testing.T) {
	cfg, err := Load(writeConfig(t, "mqtt:\n  broker:\n    host: localhost\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	id := cfg.MQTT.Broker.ClientID
	if !strings.HasPrefix(id, "zbbridge-") || len(id) != len("zbbridge-")+8 {
		t.Errorf("generated ClientID = %q", id)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_UnknownPropertyKind(t *testing.T) {
	content := `
accessories:
  - id: lamp
    type: tasmota
    topic: lamp
    properties: [power, chromaticity]
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Fatal("Load() expected error for unknown kind, got nil")
	}
	if !errors.Is(err, accessory.ErrUnknownKind) {
		t.Errorf("Load() error = %v, want ErrUnknownKind", err)
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
bridge:
  stale_window_ms: -1
accessories:
  - id: lamp
    type: zigbee
    properties: [power]
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Fatal("Load() expected validation error, got nil")
	}
	for _, want := range []string{"bridge.stale_window_ms", "address is required"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	lamp := accessory.Definition{
		ID:         "lamp",
		Type:       accessory.DeviceTasmota,
		Topic:      "lamp",
		Properties: []accessory.Kind{accessory.KindPower},
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(*Config) {}, false},
		{"valid accessory", func(c *Config) { c.Accessories = []accessory.Definition{lamp} }, false},
		{"duplicate accessory id", func(c *Config) { c.Accessories = []accessory.Definition{lamp, lamp} }, true},
		{"invalid accessory", func(c *Config) {
			bad := lamp
			bad.Topic = ""
			c.Accessories = []accessory.Definition{bad}
		}, true},
		{"zero request timeout", func(c *Config) { c.Bridge.RequestTimeoutMS = 0 }, true},
		{"zero queue", func(c *Config) { c.Bridge.QueueSize = 0 }, true},
		{"missing database path", func(c *Config) { c.Database.Path = "" }, true},
		{"database disabled without path", func(c *Config) {
			c.Database.Enabled = false
			c.Database.Path = ""
		}, false},
		{"negative retention", func(c *Config) { c.Database.HistoryRetentionDays = -1 }, true},
		{"missing broker host", func(c *Config) { c.MQTT.Broker.Host = "" }, true},
		{"invalid QoS", func(c *Config) { c.MQTT.QoS = 3 }, true},
		{"zero reconnect interval", func(c *Config) { c.MQTT.Reconnect.Interval = 0 }, true},
		{"invalid port low", func(c *Config) { c.API.Port = 0 }, true},
		{"invalid port high", func(c *Config) { c.API.Port = 70000 }, true},
		{"api disabled ignores port", func(c *Config) {
			c.API.Enabled = false
			c.API.Port = 0
		}, false},
		{"influx without url", func(c *Config) {
			c.InfluxDB.Enabled = true
			c.InfluxDB.Bucket = "values"
		}, true},
		{"metrics path", func(c *Config) { c.Metrics.Path = "metrics" }, true},
		{"file logging without path", func(c *Config) { c.Logging.Output = "file" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.MQTT.Broker.ClientID = "test"
			tt.mutate(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Durations(t *testing.T) {
	cfg := &Config{
		Bridge: BridgeConfig{RequestTimeoutMS: 750, StaleWindowMS: 2500},
		MQTT:   MQTTConfig{Reconnect: MQTTReconnectConfig{Interval: 7}},
		Database: DatabaseConfig{
			HistoryRetentionDays: 2,
		},
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.RequestTimeout(); got != 750*time.Millisecond {
		t.Errorf("RequestTimeout() = %v, want 750ms", got)
	}
	if got := cfg.StaleWindow(); got != 2500*time.Millisecond {
		t.Errorf("StaleWindow() = %v, want 2.5s", got)
	}
	if got := cfg.ReconnectInterval(); got != 7*time.Second {
		t.Errorf("ReconnectInterval() = %v, want 7s", got)
	}
	if got := cfg.HistoryRetention(); got != 48*time.Hour {
		t.Errorf("HistoryRetention() = %v, want 48h", got)
	}
	if got := cfg.API.ReadTimeout().Seconds(); got != 30 {
		t.Errorf("API.ReadTimeout() = %v, want 30", got)
	}
	if got := cfg.API.WriteTimeout().Seconds(); got != 45 {
		t.Errorf("API.WriteTimeout() = %v, want 45", got)
	}
	if got := cfg.API.IdleTimeout().Seconds(); got != 60 {
		t.Errorf("API.IdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("ZBBRIDGE_BRIDGE_TOPIC", "zb-attic")
	t.Setenv("ZBBRIDGE_DATABASE_PATH", "/custom/path.db")
	t.Setenv("ZBBRIDGE_MQTT_HOST", "mqtt.example.com")
	t.Setenv("ZBBRIDGE_MQTT_USERNAME", "testuser")
	t.Setenv("ZBBRIDGE_MQTT_PASSWORD", "testpass")
	t.Setenv("ZBBRIDGE_API_HOST", "192.168.1.1")
	t.Setenv("ZBBRIDGE_API_PORT", "9090")
	t.Setenv("ZBBRIDGE_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("ZBBRIDGE_LOG_LEVEL", "debug")

	applyEnvOverrides(cfg)

	checks := []struct {
		field, got, want string
	}{
		{"Bridge.Topic", cfg.Bridge.Topic, "zb-attic"},
		{"Database.Path", cfg.Database.Path, "/custom/path.db"},
		{"MQTT.Broker.Host", cfg.MQTT.Broker.Host, "mqtt.example.com"},
		{"MQTT.Auth.Username", cfg.MQTT.Auth.Username, "testuser"},
		{"MQTT.Auth.Password", cfg.MQTT.Auth.Password, "testpass"},
		{"API.Host", cfg.API.Host, "192.168.1.1"},
		{"InfluxDB.Token", cfg.InfluxDB.Token, "secret-token"},
		{"Logging.Level", cfg.Logging.Level, "debug"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %q, want %q", c.field, c.got, c.want)
		}
	}
	if cfg.API.Port != 9090 {
		t.Errorf("API.Port = %d, want 9090", cfg.API.Port)
	}
}

func TestApplyEnvOverrides_BadPortIgnored(t *testing.T) {
	cfg := defaultConfig()
	t.Setenv("ZBBRIDGE_API_PORT", "not-a-port")

	applyEnvOverrides(cfg)

	if cfg.API.Port != 8080 {
		t.Errorf("API.Port = %d, want default 8080", cfg.API.Port)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Bridge.Topic != "zbbridge" {
		t.Errorf("defaultConfig Bridge.Topic = %q, want zbbridge", cfg.Bridge.Topic)
	}
	if cfg.Bridge.StaleWindowMS != 2000 {
		t.Errorf("defaultConfig Bridge.StaleWindowMS = %d, want 2000", cfg.Bridge.StaleWindowMS)
	}
	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.MQTT.Broker.ClientID != autoClientID {
		t.Errorf("defaultConfig MQTT.Broker.ClientID = %q, want %q", cfg.MQTT.Broker.ClientID, autoClientID)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("defaultConfig API.Port = %d, want 8080", cfg.API.Port)
	}
}
