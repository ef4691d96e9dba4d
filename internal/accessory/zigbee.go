package accessory

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/mdaskalov/homebridge-tasmota-zbbridge-sub000/internal/colorspace"
	"github.com/mdaskalov/homebridge-tasmota-zbbridge-sub000/internal/router"
)

// Zigbee scales: Tasmota reports dimmer, hue and saturation as 0-254.
const zigbeeScale = 254

// zbColorKey carries chromaticity as "x,y" in a ZbSend command.
const zbColorKey = "color"

// zbCommand is the ZbSend payload.
type zbCommand struct {
	Device   string          `json:"Device"`
	Endpoint int             `json:"Endpoint,omitempty"`
	Send     map[string]any  `json:"Send,omitempty"`
	Read     map[string]bool `json:"Read,omitempty"`
}

// ZigbeeChannel reaches a Zigbee device through a Tasmota Zigbee bridge.
// Commands go to cmnd/<bridge>/ZbSend, reports arrive on tele/<bridge>/SENSOR
// and are routed to the device by address.
type ZigbeeChannel struct {
	transport Transport
	bridge    string
	address   string
	endpoint  int
	timeout   time.Duration
}

// NewZigbeeChannel creates a channel for the device at address on bridge.
// The caller must have called ListenDevices for bridge on the router.
func NewZigbeeChannel(transport Transport, bridge, address string, endpoint int, timeout time.Duration) *ZigbeeChannel {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &ZigbeeChannel{
		transport: transport,
		bridge:    bridge,
		address:   address,
		endpoint:  endpoint,
		timeout:   timeout,
	}
}

// Listen registers a device route for the address and endpoint.
func (c *ZigbeeChannel) Listen(handler func(Report)) error {
	return c.transport.RouteDevice(router.DeviceRoute{
		Address:  c.address,
		Endpoint: c.endpoint,
		Handler: func(device map[string]any) error {
			if report := parseZigbee(device); len(report) > 0 {
				handler(report)
			}
			return nil
		},
	})
}

// Send publishes one ZbSend command carrying every field.
func (c *ZigbeeChannel) Send(values Report) error {
	send := make(map[string]any, len(values))

	hasX, hasY := values.Has(FieldX), values.Has(FieldY)
	if hasX != hasY {
		return fmt.Errorf("%w: chromaticity needs both X and Y", ErrUnsupportedField)
	}
	if hasX {
		send[zbColorKey] = fmt.Sprintf("%d,%d", values[FieldX], values[FieldY])
	}

	for _, field := range sortedFields(values) {
		v := values[field]
		switch field {
		case FieldPower:
			send[string(FieldPower)] = boolInt(v != 0)
		case FieldDimmer, FieldHue, FieldSat:
			send[string(field)] = toZigbee(field, v)
		case FieldCT:
			send[string(FieldCT)] = v
		case FieldX, FieldY:
		default:
			return fmt.Errorf("%w: zigbee %s", ErrUnsupportedField, field)
		}
	}

	payload, err := json.Marshal(zbCommand{Device: c.address, Endpoint: c.endpoint, Send: send})
	if err != nil {
		return fmt.Errorf("encoding ZbSend: %w", err)
	}
	c.transport.Publish(Topics{}.ZbSend(c.bridge), payload)
	return nil
}

// Query sends a ZbSend Read for field and waits for this device's report on
// the shared SENSOR topic. Chromaticity is read as a pair and only a report
// carrying both X and Y answers it.
func (c *ZigbeeChannel) Query(ctx context.Context, field Field) (Report, error) {
	attrs := []string{string(field)}
	if field == FieldX || field == FieldY {
		attrs = []string{string(FieldX), string(FieldY)}
	}

	read := make(map[string]bool, len(attrs))
	match := []router.Predicate{c.transport.FromDevice(c.address)}
	for _, attr := range attrs {
		read[attr] = true
		match = append(match, router.HasKey(attr))
	}

	payload, err := json.Marshal(zbCommand{
		Device:   c.address,
		Endpoint: c.endpoint,
		Read:     read,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding ZbSend read: %w", err)
	}

	resp, err := c.transport.Request(ctx,
		Topics{}.ZbSend(c.bridge), payload,
		Topics{}.Sensor(c.bridge), c.timeout,
		router.All(match...),
	)
	if err != nil {
		return nil, err
	}

	device, err := router.DeviceObject(resp)
	if err != nil {
		return nil, err
	}
	return parseZigbee(device), nil
}

// parseZigbee converts a ZbReceived device object to hub units.
func parseZigbee(device map[string]any) Report {
	report := Report{}
	for _, field := range fieldOrder {
		raw, ok := device[string(field)]
		if !ok {
			continue
		}
		v, ok := number(raw)
		if !ok {
			continue
		}
		switch field {
		case FieldPower:
			report[field] = boolInt(v != 0)
		default:
			report[field] = fromZigbee(field, v)
		}
	}
	return report
}

// Normalize rounds dimmer, hue and saturation through the 0-254 device
// scale so the result equals what the device echoes for a write of v.
func (c *ZigbeeChannel) Normalize(field Field, v int) int {
	switch field {
	case FieldDimmer, FieldHue, FieldSat:
		return fromZigbee(field, toZigbee(field, v))
	default:
		return v
	}
}

// toZigbee converts a hub value to device units.
func toZigbee(field Field, v int) int {
	switch field {
	case FieldDimmer, FieldSat:
		return colorspace.Scale(v, colorspace.MaxPercent, zigbeeScale)
	case FieldHue:
		return colorspace.Scale(v, colorspace.MaxHue, zigbeeScale)
	default:
		return v
	}
}

// fromZigbee converts a device value to hub units. Hue 254 wraps to 0.
func fromZigbee(field Field, v int) int {
	switch field {
	case FieldDimmer, FieldSat:
		return colorspace.Scale(v, zigbeeScale, colorspace.MaxPercent)
	case FieldHue:
		return colorspace.Scale(v, zigbeeScale, colorspace.MaxHue) % colorspace.MaxHue
	default:
		return v
	}
}

// String identifies the device in logs.
func (c *ZigbeeChannel) String() string {
	if c.endpoint == 0 {
		return c.bridge + "/" + c.address
	}
	return c.bridge + "/" + c.address + ":" + strconv.Itoa(c.endpoint)
}
