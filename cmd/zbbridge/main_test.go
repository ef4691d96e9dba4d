package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/mdaskalov/homebridge-tasmota-zbbridge-sub000/internal/accessory"
	"github.com/mdaskalov/homebridge-tasmota-zbbridge-sub000/internal/infrastructure/config"
	"github.com/mdaskalov/homebridge-tasmota-zbbridge-sub000/internal/infrastructure/logging"
	"github.com/mdaskalov/homebridge-tasmota-zbbridge-sub000/internal/router"
)

// recordingBroker remembers every subscription the router issues.
type recordingBroker struct {
	mu     sync.Mutex
	topics []string
}

func (b *recordingBroker) Send(string, []byte) error { return nil }

func (b *recordingBroker) Subscribe(topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.topics = append(b.topics, topic)
	return nil
}

func (b *recordingBroker) Unsubscribe(string) error { return nil }

func (b *recordingBroker) subscribed() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := append([]string(nil), b.topics...)
	sort.Strings(out)
	return out
}

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "test-config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv("ZBBRIDGE_CONFIG", configPath)
	return configPath
}

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("ZBBRIDGE_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_MissingDatabasePath verifies run fails when database path is empty.
func TestRun_MissingDatabasePath(t *testing.T) {
	writeTestConfig(t, `
database:
  enabled: true
  path: ""

mqtt:
  broker:
    host: "127.0.0.1"
    port: 1883
    client_id: "test-client"

logging:
  level: info
  format: text
  output: stdout

api:
  enabled: false
`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with empty database path")
	}
}

// TestRun_InvalidAccessory verifies configuration validation covers accessories.
func TestRun_InvalidAccessory(t *testing.T) {
	writeTestConfig(t, `
database:
  enabled: false

api:
  enabled: false

accessories:
  - id: lamp
    type: tasmota
    properties: [power]
`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail for a tasmota accessory without a topic")
	}
}

// TestRun_StartupAndShutdown starts every component against a broker that
// is not listening. Startup either completes or stops at the MQTT connect
// when the context expires first.
func TestRun_StartupAndShutdown(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	writeTestConfig(t, `
database:
  enabled: true
  path: "`+dbPath+`"
  wal_mode: true
  busy_timeout: 5

mqtt:
  broker:
    host: "127.0.0.1"
    port: 1
    client_id: "test-startup"
  reconnect:
    interval: 1

influxdb:
  enabled: false

logging:
  level: warn
  format: text
  output: stdout

api:
  enabled: false

accessories:
  - id: desk
    type: tasmota
    topic: desk
    properties: [power, brightness]
  - id: hall
    type: zigbee
    address: "0x4A2F"
    color_mode: xy
    properties: [power, hue, saturation]
`)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	if err := run(ctx); err != nil {
		t.Logf("run() returned error: %v (expected without a broker)", err)
	}

	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("database file not created: %v", err)
	}
}

// TestGetConfigPath_Default verifies default config path.
func TestGetConfigPath_Default(t *testing.T) {
	t.Setenv("ZBBRIDGE_CONFIG", "")

	if path := getConfigPath(); path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

// TestGetConfigPath_EnvOverride verifies environment variable override.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	expected := "/custom/path/config.yaml"
	t.Setenv("ZBBRIDGE_CONFIG", expected)

	if path := getConfigPath(); path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}

func testBridgeConfig(defs ...accessory.Definition) *config.Config {
	return &config.Config{
		Bridge: config.BridgeConfig{
			Topic:            "zbbridge",
			RequestTimeoutMS: 1000,
			StaleWindowMS:    2000,
			QueueSize:        16,
		},
		Accessories: defs,
	}
}

func TestBuildAccessories(t *testing.T) {
	broker := &recordingBroker{}
	rt := router.New(broker, logging.Default())

	cfg := testBridgeConfig(
		accessory.Definition{
			ID: "desk", Type: accessory.DeviceTasmota, Topic: "desk",
			Properties: []accessory.Kind{accessory.KindPower, accessory.KindBrightness},
		},
		accessory.Definition{
			ID: "hall", Type: accessory.DeviceZigbee, Topic: "zbbridge", Address: "0x4A2F",
			Properties: []accessory.Kind{accessory.KindPower},
		},
		accessory.Definition{
			ID: "porch", Type: accessory.DeviceZigbee, Topic: "zbbridge", Address: "0x0C1D", Endpoint: 2,
			Properties: []accessory.Kind{accessory.KindPower},
		},
	)

	registry, err := buildAccessories(cfg, rt)
	if err != nil {
		t.Fatalf("buildAccessories() error = %v", err)
	}
	if registry.Len() != 3 {
		t.Errorf("registry.Len() = %d, want 3", registry.Len())
	}

	want := []string{"stat/desk/RESULT", "tele/desk/STATE", "tele/zbbridge/#"}
	got := broker.subscribed()
	if len(got) != len(want) {
		t.Fatalf("subscriptions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("subscriptions[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	hall, err := registry.Get("hall")
	if err != nil {
		t.Fatalf("registry.Get(hall) error = %v", err)
	}
	if hall.Name() != "hall" {
		t.Errorf("hall.Name() = %q, want id fallback", hall.Name())
	}
}

func TestBuildAccessories_DuplicateID(t *testing.T) {
	rt := router.New(&recordingBroker{}, logging.Default())
	def := accessory.Definition{
		ID: "desk", Type: accessory.DeviceTasmota, Topic: "desk",
		Properties: []accessory.Kind{accessory.KindPower},
	}

	if _, err := buildAccessories(testBridgeConfig(def, def), rt); err == nil {
		t.Fatal("buildAccessories() should reject duplicate ids")
	}
}

func TestNewChannel_UnknownType(t *testing.T) {
	rt := router.New(&recordingBroker{}, logging.Default())
	def := accessory.Definition{ID: "fan", Type: "shelly", Topic: "fan"}

	_, err := newChannel(def, rt, testBridgeConfig())
	if !errors.Is(err, accessory.ErrInvalidDefinition) {
		t.Errorf("newChannel() error = %v, want ErrInvalidDefinition", err)
	}
}
