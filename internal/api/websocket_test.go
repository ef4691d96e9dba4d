package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdaskalov/homebridge-tasmota-zbbridge-sub000/internal/accessory"
)

// ─── Hub ───────────────────────────────────────────────────────────

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(testWSConfig(), testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func newFakeClient(hub *Hub, channels ...string) *WSClient {
	client := newWSClient(hub, nil, nil)
	for _, ch := range channels {
		client.channels[ch] = struct{}{}
	}
	return client
}

func TestHub_BroadcastToSubscribed(t *testing.T) {
	hub := newTestHub(t)
	client := newFakeClient(hub, ChannelValueChanged)
	hub.Register(client)

	hub.Broadcast(ChannelValueChanged, map[string]any{"accessory_id": "lamp"})

	select {
	case msg := <-client.send:
		var wsMsg WSMessage
		require.NoError(t, json.Unmarshal(msg, &wsMsg))
		assert.Equal(t, WSTypeEvent, wsMsg.Type)
		assert.Equal(t, ChannelValueChanged, wsMsg.EventType)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast message")
	}
}

func TestHub_NoMessageForUnsubscribed(t *testing.T) {
	hub := newTestHub(t)
	client := newFakeClient(hub, "other.channel")
	hub.Register(client)

	hub.Broadcast(ChannelValueChanged, map[string]any{"accessory_id": "lamp"})

	select {
	case <-client.send:
		t.Error("unsubscribed client should not receive message")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHub_ValueChanged(t *testing.T) {
	hub := newTestHub(t)
	client := newFakeClient(hub, ChannelValueChanged)
	hub.Register(client)

	at := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	hub.ValueChanged(accessory.Change{
		AccessoryID: "lamp",
		Kind:        accessory.KindBrightness,
		Value:       42,
		Source:      accessory.SourceTelemetry,
		At:          at,
	})

	select {
	case msg := <-client.send:
		var got struct {
			EventType string           `json:"event_type"`
			Payload   accessory.Change `json:"payload"`
		}
		require.NoError(t, json.Unmarshal(msg, &got))
		assert.Equal(t, ChannelValueChanged, got.EventType)
		assert.Equal(t, "lamp", got.Payload.AccessoryID)
		assert.Equal(t, accessory.KindBrightness, got.Payload.Kind)
		assert.Equal(t, 42, got.Payload.Value)
		assert.True(t, at.Equal(got.Payload.At))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for value change")
	}
}

func TestHub_ValueChangedAccessoryFilter(t *testing.T) {
	hub := newTestHub(t)
	client := newFakeClient(hub, ChannelValueChanged)
	client.accessories["bulb"] = struct{}{}
	hub.Register(client)

	hub.ValueChanged(accessory.Change{AccessoryID: "lamp", Kind: accessory.KindPower, Value: 1})
	hub.ValueChanged(accessory.Change{AccessoryID: "bulb", Kind: accessory.KindPower, Value: 1})

	select {
	case msg := <-client.send:
		var got struct {
			Payload accessory.Change `json:"payload"`
		}
		require.NoError(t, json.Unmarshal(msg, &got))
		assert.Equal(t, "bulb", got.Payload.AccessoryID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for value change")
	}
	assert.Empty(t, client.send, "lamp change filtered out")
}

func TestHub_ClientCount(t *testing.T) {
	hub := newTestHub(t)
	assert.Equal(t, 0, hub.ClientCount())

	client := newFakeClient(hub)
	hub.Register(client)
	assert.Equal(t, 1, hub.ClientCount())

	hub.Unregister(client)
	assert.Equal(t, 0, hub.ClientCount())

	// A second unregister must not close the send channel again.
	hub.Unregister(client)
}

func TestHub_SlowClientDoesNotBlock(t *testing.T) {
	hub := newTestHub(t)
	client := newFakeClient(hub, ChannelValueChanged)
	client.send = make(chan []byte, 1)
	hub.Register(client)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			hub.Broadcast(ChannelValueChanged, i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a full client buffer")
	}
}

func TestHub_RunClosesClients(t *testing.T) {
	hub := NewHub(testWSConfig(), testLogger())
	client := newFakeClient(hub)
	hub.Register(client)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	assert.Equal(t, 0, hub.ClientCount())
	_, open := <-client.send
	assert.False(t, open, "send channel closed")
}

// ─── Full connection ───────────────────────────────────────────────

func startWSServer(t *testing.T) (*testEnv, string) {
	t.Helper()
	env := newTestEnv(t)
	require.NoError(t, env.srv.Start(context.Background()))
	t.Cleanup(func() { env.srv.Close() })
	return env, env.srv.Addr()
}

func dialWS(t *testing.T, addr string) *websocket.Conn {
	t.Helper()
	ws, resp, err := websocket.DefaultDialer.Dial("ws://"+addr+"/api/v1/ws", nil)
	require.NoError(t, err, "dial (resp: %v)", resp)
	t.Cleanup(func() { ws.Close() })
	//nolint:errcheck // test deadline
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	return ws
}

func subscribe(t *testing.T, ws *websocket.Conn, channels ...string) {
	t.Helper()
	require.NoError(t, ws.WriteJSON(WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "sub-1",
		Payload: WSSubscribePayload{Channels: channels},
	}))
	var resp WSMessage
	require.NoError(t, ws.ReadJSON(&resp))
	require.Equal(t, WSTypeResponse, resp.Type)
	require.Equal(t, "sub-1", resp.ID)
}

func TestWebSocket_SubscribeUnsubscribe(t *testing.T) {
	_, addr := startWSServer(t)
	ws := dialWS(t, addr)

	subscribe(t, ws, ChannelValueChanged, "other.channel")

	require.NoError(t, ws.WriteJSON(WSMessage{
		Type:    WSTypeUnsubscribe,
		ID:      "unsub-1",
		Payload: WSSubscribePayload{Channels: []string{"other.channel"}},
	}))

	var resp WSMessage
	require.NoError(t, ws.ReadJSON(&resp))
	assert.Equal(t, WSTypeResponse, resp.Type)
	assert.Equal(t, "unsub-1", resp.ID)
}

func TestWebSocket_Ping(t *testing.T) {
	_, addr := startWSServer(t)
	ws := dialWS(t, addr)

	require.NoError(t, ws.WriteJSON(WSMessage{Type: WSTypePing, ID: "ping-1"}))

	var resp WSMessage
	require.NoError(t, ws.ReadJSON(&resp))
	assert.Equal(t, WSTypePong, resp.Type)
	assert.Equal(t, "ping-1", resp.ID)
}

func TestWebSocket_InvalidMessages(t *testing.T) {
	_, addr := startWSServer(t)
	ws := dialWS(t, addr)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("not json")))
	var resp WSMessage
	require.NoError(t, ws.ReadJSON(&resp))
	assert.Equal(t, WSTypeError, resp.Type)

	require.NoError(t, ws.WriteJSON(WSMessage{Type: "unknown_type", ID: "x-1"}))
	require.NoError(t, ws.ReadJSON(&resp))
	assert.Equal(t, WSTypeError, resp.Type)
	assert.Equal(t, "x-1", resp.ID)
}

// A telemetry report accepted by an accessory reaches a subscribed client.
func TestWebSocket_TelemetryPushed(t *testing.T) {
	env, addr := startWSServer(t)
	ws := dialWS(t, addr)
	subscribe(t, ws, ChannelValueChanged)

	env.lamp.Emit(accessory.Report{accessory.FieldPower: 1})

	var event struct {
		Type      string           `json:"type"`
		EventType string           `json:"event_type"`
		Payload   accessory.Change `json:"payload"`
	}
	require.NoError(t, ws.ReadJSON(&event))
	assert.Equal(t, WSTypeEvent, event.Type)
	assert.Equal(t, ChannelValueChanged, event.EventType)
	assert.Equal(t, "lamp", event.Payload.AccessoryID)
	assert.Equal(t, accessory.KindPower, event.Payload.Kind)
	assert.Equal(t, 1, event.Payload.Value)
	assert.Equal(t, accessory.SourceTelemetry, event.Payload.Source)
}

func TestWebSocket_Snapshot(t *testing.T) {
	env, addr := startWSServer(t)
	ws := dialWS(t, addr)

	require.NoError(t, ws.WriteJSON(WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "sub-1",
		Payload: WSSubscribePayload{Channels: []string{ChannelValueChanged}, Accessories: []string{"lamp"}},
	}))
	var resp WSMessage
	require.NoError(t, ws.ReadJSON(&resp))
	require.Equal(t, WSTypeResponse, resp.Type)

	env.lamp.Emit(accessory.Report{accessory.FieldDimmer: 30})
	var event WSMessage
	require.NoError(t, ws.ReadJSON(&event))
	require.Equal(t, WSTypeEvent, event.Type)

	require.NoError(t, ws.WriteJSON(WSMessage{Type: WSTypeSnapshot, ID: "snap-1"}))
	var snap struct {
		Type    string `json:"type"`
		ID      string `json:"id"`
		Payload struct {
			Accessories []AccessoryResponse `json:"accessories"`
			Count       int                 `json:"count"`
		} `json:"payload"`
	}
	require.NoError(t, ws.ReadJSON(&snap))
	assert.Equal(t, "snap-1", snap.ID)
	require.Equal(t, 1, snap.Payload.Count)
	assert.Equal(t, "lamp", snap.Payload.Accessories[0].ID)
	assert.Equal(t, 30, snap.Payload.Accessories[0].Values[accessory.KindBrightness])
}

func TestWebSocket_PlainHTTPRejected(t *testing.T) {
	_, addr := startWSServer(t)

	resp, err := http.Get("http://" + addr + "/api/v1/ws")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
