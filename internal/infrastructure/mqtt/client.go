package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/mdaskalov/homebridge-tasmota-zbbridge-sub000/internal/infrastructure/config"
)

// Client wraps paho.mqtt.golang as the bridge's broker connection.
//
// Every received message, on any subscribed pattern, is handed to a single
// MessageHandler (normally router.Deliver). Routing to individual handlers
// happens in the router, not here.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Subscriptions are automatically restored on reconnection.
type Client struct {
	client  pahomqtt.Client
	options *pahomqtt.ClientOptions
	cfg     config.MQTTConfig
	factory ClientFactory

	connectTimeout time.Duration

	// subscriptions tracks broker-level patterns for re-subscription on reconnect.
	subscriptions map[string]byte
	subMu         sync.RWMutex

	// connected tracks current connection state.
	connected bool
	started   bool
	connMu    sync.RWMutex

	// handler receives every inbound message.
	handler   MessageHandler
	handlerMu sync.RWMutex

	// Callbacks for connection events (optional, set via SetOnConnect/SetOnDisconnect).
	onConnect    func()
	onDisconnect func(err error)
	callbackMu   sync.RWMutex

	// logger for connection events and handler failures (optional).
	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// MessageHandler is the callback signature for received messages.
//
// The handler is invoked on paho's delivery goroutine, in arrival order.
// It must not block: enqueue and return.
type MessageHandler func(topic string, payload []byte) error

// ClientFactory creates the underlying paho client. Tests substitute a fake.
type ClientFactory func(opts *pahomqtt.ClientOptions) pahomqtt.Client

// Option configures a Client.
type Option func(*Client)

// WithClientFactory replaces pahomqtt.NewClient.
func WithClientFactory(f ClientFactory) Option {
	return func(c *Client) {
		if f != nil {
			c.factory = f
		}
	}
}

// WithConnectTimeout bounds how long Start waits for the first connection.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.connectTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New builds a client without connecting.
//
// It configures broker URL, auth, TLS, a fixed reconnect interval and the
// Last Will and Testament on the bridge status topic.
func New(cfg config.MQTTConfig, opts ...Option) *Client {
	c := &Client{
		cfg:            cfg,
		factory:        pahomqtt.NewClient,
		connectTimeout: defaultConnectTimeout,
		subscriptions:  make(map[string]byte),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.options = buildClientOptions(cfg)
	configureLWT(c.options, cfg.Broker.ClientID)

	c.options.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})
	c.options.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleDisconnect(err)
	})
	c.options.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		if logger := c.getLogger(); logger != nil {
			logger.Info("reconnecting to MQTT broker", "client_id", cfg.Broker.ClientID)
		}
	})
	c.options.SetDefaultPublishHandler(c.onMessage)

	c.client = c.factory(c.options)
	return c
}

// Connect builds a client and starts connecting to the broker.
//
// Connect waits up to the connect timeout for the first connection. If the
// broker is not reachable yet the failure is logged and paho keeps retrying
// at the configured interval; the caller is never failed for it. Broker
// subscriptions made meanwhile are issued once the connection is up.
func Connect(ctx context.Context, cfg config.MQTTConfig, opts ...Option) (*Client, error) {
	c := New(cfg, opts...)
	if err := c.Start(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Start begins connecting. It is idempotent: later calls return immediately.
// It only returns an error if ctx is cancelled before the first attempt
// completes.
func (c *Client) Start(ctx context.Context) error {
	c.connMu.Lock()
	if c.started {
		c.connMu.Unlock()
		return nil
	}
	c.started = true
	c.connMu.Unlock()

	token := c.client.Connect()

	waitCtx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	defer cancel()

	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			c.logWarn("MQTT connect failed, retrying in background",
				"broker", c.brokerURL(), "error", err)
			return nil
		}
		c.connMu.Lock()
		c.connected = true
		c.connMu.Unlock()
	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", ErrConnectionFailed, ctx.Err())
		}
		c.logWarn("MQTT broker not reachable yet, retrying in background",
			"broker", c.brokerURL(), "timeout", c.connectTimeout)
	}
	return nil
}

// handleConnect is called when the connection is established.
func (c *Client) handleConnect() {
	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	if logger := c.getLogger(); logger != nil {
		logger.Info("connected to MQTT broker", "broker", c.brokerURL())
	}

	c.restoreSubscriptions()
	c.publishOnlineStatus()

	c.callbackMu.RLock()
	callback := c.onConnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

// handleDisconnect is called when the connection is lost.
func (c *Client) handleDisconnect(err error) {
	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	c.logWarn("MQTT connection lost", "error", err)

	c.callbackMu.RLock()
	callback := c.onDisconnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// restoreSubscriptions re-subscribes to all tracked patterns after (re)connect.
func (c *Client) restoreSubscriptions() {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	for topic, qos := range c.subscriptions {
		// Errors surface on the token; the next reconnect retries.
		c.client.Subscribe(topic, qos, c.onMessage)
	}
}

// publishOnlineStatus publishes the bridge's retained online status.
func (c *Client) publishOnlineStatus() {
	topic := Topics{}.Status(c.cfg.Broker.ClientID)
	payload := buildOnlinePayload(c.cfg.Broker.ClientID)
	c.client.Publish(topic, byte(c.cfg.QoS), true, payload)
}

// Close gracefully disconnects from the MQTT broker.
//
// It publishes a graceful offline status (different from the LWT crash
// status), waits for pending publishes, and disconnects.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() {
		topic := Topics{}.Status(c.cfg.Broker.ClientID)
		payload := buildOfflinePayload(c.cfg.Broker.ClientID)
		token := c.client.Publish(topic, byte(c.cfg.QoS), true, payload)
		token.WaitTimeout(defaultPublishTimeout)
	}

	c.client.Disconnect(defaultDisconnectQuiesce)

	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	return nil
}

// HealthCheck verifies the MQTT connection is alive.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	return nil
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	if c.client == nil {
		return false
	}
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client.IsConnected()
}

// SetMessageHandler sets the receiver of every inbound message.
func (c *Client) SetMessageHandler(handler MessageHandler) {
	c.handlerMu.Lock()
	c.handler = handler
	c.handlerMu.Unlock()
}

// SetOnConnect sets a callback to be invoked when connection is established.
// This is called on initial connect and on every reconnect.
func (c *Client) SetOnConnect(callback func()) {
	c.callbackMu.Lock()
	c.onConnect = callback
	c.callbackMu.Unlock()
}

// SetOnDisconnect sets a callback to be invoked when connection is lost.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.callbackMu.Lock()
	c.onDisconnect = callback
	c.callbackMu.Unlock()
}

// SetLogger sets a logger for connection events and handler failures.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// getLogger returns the current logger (may be nil).
func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

func (c *Client) logWarn(msg string, args ...any) {
	if logger := c.getLogger(); logger != nil {
		logger.Warn(msg, args...)
	}
}

// onMessage hands a paho message to the handler with panic recovery.
func (c *Client) onMessage(_ pahomqtt.Client, msg pahomqtt.Message) {
	defer func() {
		if r := recover(); r != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Error("MQTT handler panic recovered",
					"topic", msg.Topic(),
					"panic", r,
				)
			}
		}
	}()

	c.handlerMu.RLock()
	handler := c.handler
	c.handlerMu.RUnlock()
	if handler == nil {
		return
	}

	if err := handler(msg.Topic(), msg.Payload()); err != nil {
		c.logWarn("MQTT handler returned error",
			"topic", msg.Topic(),
			"error", err,
		)
	}
}

func (c *Client) brokerURL() string {
	return brokerURL(c.cfg)
}
