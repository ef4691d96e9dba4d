package router

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Zigbee bridge payload keys.
const (
	deviceKey   = "Device"
	ieeeKey     = "IEEEAddr"
	nameKey     = "Name"
	endpointKey = "Endpoint"

	sensorSuffix = "/SENSOR"
)

// DeviceHandler receives the device object found in a bridge payload,
// for example {"Device":"0x8F20","Power":1,"Endpoint":1,"LinkQuality":66}.
type DeviceHandler func(device map[string]any) error

// DeviceRoute binds a Zigbee device to a handler.
type DeviceRoute struct {
	// Address is the permanent identity: short address, IEEE address or
	// friendly name as configured on the bridge.
	Address string

	// ShortAddress is the network address learned from messages matched on
	// Address. It may change when the device rejoins.
	ShortAddress string

	// Endpoint restricts the route to one endpoint. Zero accepts any.
	Endpoint int

	Handler DeviceHandler
}

// RouteDevice registers a device route. Routes live as long as the router.
func (r *Router) RouteDevice(route DeviceRoute) error {
	if route.Address == "" {
		return fmt.Errorf("%w: device address is required", ErrInvalidRoute)
	}
	if route.Handler == nil {
		return ErrNilHandler
	}

	r.mu.Lock()
	r.routes = append(r.routes, &route)
	r.mu.Unlock()
	return nil
}

// ShortAddress returns the short address learned for a route's primary
// address, or "" if none has been seen yet.
func (r *Router) ShortAddress(address string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, route := range r.routes {
		if strings.EqualFold(route.Address, address) && route.ShortAddress != "" {
			return route.ShortAddress
		}
	}
	return ""
}

// FromDevice accepts bridge payloads whose device object belongs to address,
// either directly or through the short address learned for it.
func (r *Router) FromDevice(address string) Predicate {
	return func(payload []byte) bool {
		var doc any
		if err := json.Unmarshal(payload, &doc); err != nil {
			return false
		}
		device := findDevice(doc)
		if device == nil {
			return false
		}

		id := stringField(device, deviceKey)
		if sameAddress(address, id) ||
			sameAddress(address, stringField(device, ieeeKey)) ||
			sameAddress(address, stringField(device, nameKey)) {
			return true
		}
		return sameAddress(r.ShortAddress(address), id)
	}
}

// ListenDevices subscribes to a bridge's telemetry tree and routes every
// SENSOR payload through RouteDevice registrations.
func (r *Router) ListenDevices(bridgeTopic string) (SubscriptionID, error) {
	pattern := "tele/" + bridgeTopic + "/#"
	return r.Subscribe(pattern, func(topic string, payload []byte) error {
		if !strings.HasSuffix(topic, sensorSuffix) {
			return nil
		}
		r.routeDeviceMessage(topic, payload)
		return nil
	}, SubscribeOptions{})
}

// routeDeviceMessage finds the device object in raw and fans it out to every
// matching route. Malformed payloads are logged and dropped.
func (r *Router) routeDeviceMessage(topic string, raw []byte) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		r.logger.Debug("dropping malformed device payload", "topic", topic, "error", err)
		r.metrics.MessageDropped("parse_error")
		return
	}

	device := findDevice(doc)
	if device == nil {
		return
	}

	id := stringField(device, deviceKey)
	ieee := stringField(device, ieeeKey)
	name := stringField(device, nameKey)
	endpoint := intField(device, endpointKey)

	r.mu.Lock()
	var handlers []DeviceHandler
	for _, route := range r.routes {
		primary := sameAddress(route.Address, id) ||
			sameAddress(route.Address, ieee) ||
			sameAddress(route.Address, name)
		learned := !primary && sameAddress(route.ShortAddress, id)
		if !primary && !learned {
			continue
		}
		if route.Endpoint != 0 && route.Endpoint != endpoint {
			continue
		}
		if primary && id != "" && route.ShortAddress != id {
			route.ShortAddress = id
		}
		handlers = append(handlers, route.Handler)
	}
	r.mu.Unlock()

	if len(handlers) == 0 {
		r.metrics.MessageDropped("no_device_route")
		return
	}

	for _, h := range handlers {
		r.invokeDevice(h, topic, device)
	}
}

func (r *Router) invokeDevice(h DeviceHandler, topic string, device map[string]any) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("device handler panic recovered", "topic", topic, "panic", rec)
		}
	}()

	if err := h(device); err != nil {
		r.logger.Warn("device handler returned error",
			"topic", topic,
			"device", stringField(device, deviceKey),
			"error", err,
		)
	}
}

// DeviceObject extracts the device object from a bridge payload.
func DeviceObject(payload []byte) (map[string]any, error) {
	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("decoding device payload: %w", err)
	}
	device := findDevice(doc)
	if device == nil {
		return nil, ErrNoDevice
	}
	return device, nil
}

// findDevice returns the first object, depth-first, that carries a Device key.
func findDevice(v any) map[string]any {
	switch node := v.(type) {
	case map[string]any:
		if _, ok := node[deviceKey]; ok {
			return node
		}
		for _, k := range sortedKeys(node) {
			if found := findDevice(node[k]); found != nil {
				return found
			}
		}
	case []any:
		for _, item := range node {
			if found := findDevice(item); found != nil {
				return found
			}
		}
	}
	return nil
}

func sameAddress(a, b string) bool {
	return a != "" && b != "" && strings.EqualFold(a, b)
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%g", v)
	default:
		return ""
	}
}

func intField(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case string:
		var n int
		if _, err := fmt.Sscan(v, &n); err == nil {
			return n
		}
	}
	return 0
}
