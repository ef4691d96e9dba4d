package accessory

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mdaskalov/homebridge-tasmota-zbbridge-sub000/internal/router"
)

// Tasmota command and JSON keys.
const (
	tasmotaPower    = "POWER"
	tasmotaDimmer   = "Dimmer"
	tasmotaHSB      = "HSBColor"
	tasmotaHue      = "HSBColor1"
	tasmotaSat      = "HSBColor2"
	tasmotaCT       = "CT"
	tasmotaOn       = "ON"
	tasmotaOff      = "OFF"
	hsbColorDivider = ","
)

// TasmotaChannel reaches a device running Tasmota firmware over
// cmnd/<topic>/<key> commands, stat/<topic>/RESULT acknowledgements and
// tele/<topic>/STATE telemetry.
type TasmotaChannel struct {
	transport Transport
	topic     string
	timeout   time.Duration
	dump      bool
}

// NewTasmotaChannel creates a channel for the device at topic.
func NewTasmotaChannel(transport Transport, topic string, timeout time.Duration) *TasmotaChannel {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &TasmotaChannel{transport: transport, topic: topic, timeout: timeout}
}

// WithPayloadDump logs every payload received for this device at debug level.
func (c *TasmotaChannel) WithPayloadDump(dump bool) *TasmotaChannel {
	c.dump = dump
	return c
}

// Listen subscribes to the device's RESULT and STATE topics.
func (c *TasmotaChannel) Listen(handler func(Report)) error {
	h := func(_ string, payload []byte) error {
		report, err := parseTasmota(payload)
		if err != nil {
			return err
		}
		if len(report) > 0 {
			handler(report)
		}
		return nil
	}

	opts := router.SubscribeOptions{DumpPayload: c.dump}
	for _, topic := range []string{Topics{}.Result(c.topic), Topics{}.State(c.topic)} {
		if _, err := c.transport.Subscribe(topic, h, opts); err != nil {
			return fmt.Errorf("listening on %s: %w", topic, err)
		}
	}
	return nil
}

// Send publishes one command per field.
func (c *TasmotaChannel) Send(values Report) error {
	for _, field := range sortedFields(values) {
		key, payload, err := tasmotaCommand(field, values[field])
		if err != nil {
			return err
		}
		c.transport.Publish(Topics{}.Command(c.topic, key), []byte(payload))
	}
	return nil
}

// Normalize returns v unchanged: Tasmota reports values in hub units.
func (c *TasmotaChannel) Normalize(_ Field, v int) int { return v }

// Query sends an empty command for field and waits for a RESULT carrying it.
func (c *TasmotaChannel) Query(ctx context.Context, field Field) (Report, error) {
	key, _, err := tasmotaCommand(field, 0)
	if err != nil {
		return nil, err
	}
	answer := tasmotaAnswerKey(field)

	payload, err := c.transport.Request(ctx,
		Topics{}.Command(c.topic, queryKey(key)), nil,
		Topics{}.Result(c.topic), c.timeout,
		router.HasKey(answer),
	)
	if err != nil {
		return nil, err
	}
	return parseTasmota(payload)
}

// tasmotaCommand maps a field to its command key and payload.
func tasmotaCommand(field Field, value int) (key, payload string, err error) {
	switch field {
	case FieldPower:
		if value != 0 {
			return tasmotaPower, tasmotaOn, nil
		}
		return tasmotaPower, tasmotaOff, nil
	case FieldDimmer:
		return tasmotaDimmer, strconv.Itoa(value), nil
	case FieldHue:
		return tasmotaHue, strconv.Itoa(value), nil
	case FieldSat:
		return tasmotaSat, strconv.Itoa(value), nil
	case FieldCT:
		return tasmotaCT, strconv.Itoa(value), nil
	default:
		return "", "", fmt.Errorf("%w: tasmota %s", ErrUnsupportedField, field)
	}
}

// queryKey maps a command key to the command that reports it. Hue and
// saturation are both read from HSBColor.
func queryKey(key string) string {
	if key == tasmotaHue || key == tasmotaSat {
		return tasmotaHSB
	}
	return key
}

func tasmotaAnswerKey(field Field) string {
	switch field {
	case FieldHue, FieldSat:
		return tasmotaHSB
	case FieldPower:
		return tasmotaPower
	case FieldDimmer:
		return tasmotaDimmer
	default:
		return string(field)
	}
}

// parseTasmota extracts known fields from a RESULT or STATE payload.
func parseTasmota(payload []byte) (Report, error) {
	var doc map[string]any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("decoding tasmota payload: %w", err)
	}

	report := Report{}
	for key, raw := range doc {
		switch {
		case strings.EqualFold(key, tasmotaPower), strings.EqualFold(key, tasmotaPower+"1"):
			if s, ok := raw.(string); ok {
				report[FieldPower] = boolInt(strings.EqualFold(s, tasmotaOn))
			}
		case strings.EqualFold(key, tasmotaDimmer):
			if n, ok := number(raw); ok {
				report[FieldDimmer] = n
			}
		case strings.EqualFold(key, tasmotaCT):
			if n, ok := number(raw); ok {
				report[FieldCT] = n
			}
		case strings.EqualFold(key, tasmotaHSB):
			s, ok := raw.(string)
			if !ok {
				continue
			}
			parts := strings.Split(s, hsbColorDivider)
			if len(parts) != 3 {
				continue
			}
			hue, errH := strconv.Atoi(strings.TrimSpace(parts[0]))
			sat, errS := strconv.Atoi(strings.TrimSpace(parts[1]))
			if errH == nil && errS == nil {
				report[FieldHue] = hue
				report[FieldSat] = sat
			}
		}
	}
	return report, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// number reads a JSON number, numeric string or bool as an int.
func number(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case bool:
		return boolInt(n), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	default:
		return 0, false
	}
}
