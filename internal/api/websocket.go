package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mdaskalov/homebridge-tasmota-zbbridge-sub000/internal/accessory"
	"github.com/mdaskalov/homebridge-tasmota-zbbridge-sub000/internal/infrastructure/config"
)

// WebSocket message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypeSnapshot    = "snapshot"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	// ChannelValueChanged carries accepted accessory value changes.
	ChannelValueChanged = "accessory.value_changed"

	wsSendBufferSize = 256

	defaultPingInterval = 30 * time.Second
	defaultPongTimeout  = 10 * time.Second
)

// WSMessage is the envelope of every frame sent to a client.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload selects channels and, optionally, the accessories a
// client wants value changes for. No accessories means all of them.
type WSSubscribePayload struct {
	Channels    []string `json:"channels"`
	Accessories []string `json:"accessories,omitempty"`
}

// wsRequest is an inbound frame with its payload left raw.
type wsRequest struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// Hub tracks connected clients and pushes events to them.
//
// Hub implements accessory.Notifier: every accepted value change goes to
// clients subscribed to ChannelValueChanged whose accessory filter matches.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  Logger
	clients map[*WSClient]struct{}
	mu      sync.RWMutex
}

// WSClient is one connected WebSocket client.
type WSClient struct {
	hub         *Hub
	conn        *websocket.Conn
	send        chan []byte
	registry    *accessory.Registry
	channels    map[string]struct{}
	accessories map[string]struct{}
	mu          sync.RWMutex
}

var _ accessory.Notifier = (*Hub)(nil)

// Origins are checked by the CORS middleware.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(_ *http.Request) bool { return true },
}

// NewHub creates an empty hub.
func NewHub(cfg config.WebSocketConfig, logger Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n)
}

// Unregister removes a client. Only the call that actually removes it
// closes the send channel.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	n := len(h.clients)
	h.mu.Unlock()

	if existed {
		close(client.send)
		h.logger.Debug("websocket client disconnected", "clients", n)
	}
}

// ValueChanged implements accessory.Notifier.
func (h *Hub) ValueChanged(change accessory.Change) {
	data, ok := h.encodeEvent(ChannelValueChanged, change)
	if !ok {
		return
	}
	h.deliver(data, func(c *WSClient) bool {
		return c.wants(ChannelValueChanged, change.AccessoryID)
	})
}

// Broadcast sends an event to every client subscribed to channel,
// regardless of accessory filters.
func (h *Hub) Broadcast(channel string, payload any) {
	data, ok := h.encodeEvent(channel, payload)
	if !ok {
		return
	}
	h.deliver(data, func(c *WSClient) bool { return c.subscribed(channel) })
}

func (h *Hub) encodeEvent(channel string, payload any) ([]byte, bool) {
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("encoding websocket event", "channel", channel, "error", err)
		return nil, false
	}
	return data, true
}

// deliver queues data for every client accepted by match. The hub lock is
// released before any client lock is taken.
func (h *Hub) deliver(data []byte, match func(*WSClient) bool) {
	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if match(c) {
			c.trySend(data)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		close(c.send)
		if c.conn != nil {
			c.conn.Close()
		}
		delete(h.clients, c)
	}
}

// handleWebSocket upgrades the request and starts the client pumps.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := newWSClient(s.hub, conn, s.accessories)
	s.hub.Register(client)

	go client.writePump(s.wsCfg)
	go client.readPump(s.wsCfg)
}

func newWSClient(hub *Hub, conn *websocket.Conn, registry *accessory.Registry) *WSClient {
	return &WSClient{
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, wsSendBufferSize),
		registry:    registry,
		channels:    make(map[string]struct{}),
		accessories: make(map[string]struct{}),
	}
}

func (c *WSClient) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	if cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	}
	pingInterval, pongWait := wsTimings(cfg)
	extend := func() error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	}
	//nolint:errcheck // best effort
	extend()
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		// Any frame keeps the connection alive.
		//nolint:errcheck // best effort
		extend()
		c.handleMessage(data)
	}
}

func (c *WSClient) writePump(cfg config.WebSocketConfig) {
	pingInterval, pongWait := wsTimings(cfg)
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				//nolint:errcheck // connection is going away
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// wsTimings returns the ping interval and pong wait, defaulting unset values.
func wsTimings(cfg config.WebSocketConfig) (pingInterval, pongWait time.Duration) {
	pingInterval = time.Duration(cfg.PingInterval) * time.Second
	if pingInterval <= 0 {
		pingInterval = defaultPingInterval
	}
	pongWait = time.Duration(cfg.PongTimeout) * time.Second
	if pongWait <= 0 {
		pongWait = defaultPongTimeout
	}
	return pingInterval, pongWait
}

func (c *WSClient) handleMessage(data []byte) {
	var req wsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError("", "invalid JSON message")
		return
	}

	switch req.Type {
	case WSTypeSubscribe:
		c.handleSubscribe(req)
	case WSTypeUnsubscribe:
		c.handleUnsubscribe(req)
	case WSTypeSnapshot:
		c.handleSnapshot(req)
	case WSTypePing:
		c.reply(req.ID, WSTypePong, nil)
	default:
		c.sendError(req.ID, "unknown message type: "+req.Type)
	}
}

func decodeSubscription(req wsRequest) (WSSubscribePayload, bool) {
	var sub WSSubscribePayload
	if len(req.Payload) == 0 {
		return sub, false
	}
	if err := json.Unmarshal(req.Payload, &sub); err != nil {
		return sub, false
	}
	return sub, true
}

func (c *WSClient) handleSubscribe(req wsRequest) {
	sub, ok := decodeSubscription(req)
	if !ok {
		c.sendError(req.ID, "invalid subscribe payload")
		return
	}

	c.mu.Lock()
	for _, ch := range sub.Channels {
		c.channels[ch] = struct{}{}
	}
	for _, id := range sub.Accessories {
		c.accessories[id] = struct{}{}
	}
	c.mu.Unlock()

	c.hub.logger.Debug("websocket client subscribed",
		"channels", sub.Channels, "accessories", sub.Accessories)

	c.reply(req.ID, WSTypeResponse, map[string]any{
		"subscribed":  sub.Channels,
		"accessories": sub.Accessories,
	})
}

func (c *WSClient) handleUnsubscribe(req wsRequest) {
	sub, ok := decodeSubscription(req)
	if !ok {
		c.sendError(req.ID, "invalid unsubscribe payload")
		return
	}

	c.mu.Lock()
	for _, ch := range sub.Channels {
		delete(c.channels, ch)
	}
	for _, id := range sub.Accessories {
		delete(c.accessories, id)
	}
	c.mu.Unlock()

	c.reply(req.ID, WSTypeResponse, map[string]any{
		"unsubscribed": sub.Channels,
	})
}

// handleSnapshot answers with the cached values of the accessories the
// client filters on, or of every accessory. Devices are not queried.
func (c *WSClient) handleSnapshot(req wsRequest) {
	if c.registry == nil {
		c.sendError(req.ID, "no accessories")
		return
	}

	out := make([]AccessoryResponse, 0, c.registry.Len())
	for _, a := range c.registry.List() {
		if c.wantsAccessory(a.ID()) {
			out = append(out, accessoryResponse(a))
		}
	}
	c.reply(req.ID, WSTypeResponse, map[string]any{
		"accessories": out,
		"count":       len(out),
	})
}

// trySend queues data. A full buffer (slow client) or a closed channel
// (client leaving during a broadcast) drops the frame.
func (c *WSClient) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // send on closed channel
	}()

	select {
	case c.send <- data:
	default:
	}
}

func (c *WSClient) subscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.channels[channel]
	return ok
}

func (c *WSClient) wantsAccessory(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.accessories) == 0 {
		return true
	}
	_, ok := c.accessories[id]
	return ok
}

func (c *WSClient) wants(channel, accessoryID string) bool {
	return c.subscribed(channel) && c.wantsAccessory(accessoryID)
}

func (c *WSClient) reply(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.trySend(data)
}

func (c *WSClient) sendError(id, message string) {
	c.reply(id, WSTypeError, map[string]string{"message": message})
}
