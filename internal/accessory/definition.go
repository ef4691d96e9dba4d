package accessory

import (
	"fmt"
	"strings"
)

// DeviceType selects the Channel implementation.
type DeviceType string

const (
	DeviceTasmota DeviceType = "tasmota"
	DeviceZigbee  DeviceType = "zigbee"
)

// ColorMode selects how colour writes are sent and colour reports read.
type ColorMode string

const (
	// ColorModeNone means the light has no colour capability.
	ColorModeNone ColorMode = ""

	// ColorModeHS sends and reads hue/saturation directly.
	ColorModeHS ColorMode = "hs"

	// ColorModeXY sends hue/saturation as chromaticity and converts
	// chromaticity reports back. Zigbee only.
	ColorModeXY ColorMode = "xy"

	// ColorModeCT is a white-spectrum light. Colour temperature reports also
	// derive hue/saturation for display.
	ColorModeCT ColorMode = "ct"
)

// maxZigbeeEndpoint is the highest application endpoint number.
const maxZigbeeEndpoint = 240

// Definition describes one accessory as configured.
type Definition struct {
	ID   string     `yaml:"id" json:"id"`
	Name string     `yaml:"name" json:"name"`
	Type DeviceType `yaml:"type" json:"type"`

	// Topic is the Tasmota device topic, or for Zigbee devices the bridge
	// topic (defaults to bridge.topic).
	Topic string `yaml:"topic" json:"topic"`

	// Address identifies a Zigbee device: short address, IEEE address or
	// friendly name.
	Address string `yaml:"address,omitempty" json:"address,omitempty"`

	// Endpoint restricts a Zigbee device to one endpoint. Zero means any.
	Endpoint int `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`

	ColorMode  ColorMode `yaml:"color_mode,omitempty" json:"color_mode,omitempty"`
	Properties []Kind    `yaml:"properties" json:"properties"`
}

// Validate checks a definition and returns every problem found.
func (d Definition) Validate() error {
	var errs []string

	if strings.TrimSpace(d.ID) == "" {
		errs = append(errs, "id is required")
	}

	switch d.Type {
	case DeviceTasmota:
		if d.Topic == "" {
			errs = append(errs, "topic is required for tasmota devices")
		}
		if d.ColorMode == ColorModeXY {
			errs = append(errs, "color_mode xy requires a zigbee device")
		}
	case DeviceZigbee:
		if d.Address == "" {
			errs = append(errs, "address is required for zigbee devices")
		}
		if d.Endpoint < 0 || d.Endpoint > maxZigbeeEndpoint {
			errs = append(errs, fmt.Sprintf("endpoint must be between 0 and %d", maxZigbeeEndpoint))
		}
	default:
		errs = append(errs, fmt.Sprintf("type must be %q or %q, got %q", DeviceTasmota, DeviceZigbee, d.Type))
	}

	switch d.ColorMode {
	case ColorModeNone, ColorModeHS, ColorModeXY, ColorModeCT:
	default:
		errs = append(errs, fmt.Sprintf("color_mode %q is not one of hs, xy, ct", d.ColorMode))
	}

	if len(d.Properties) == 0 {
		errs = append(errs, "at least one property is required")
	}
	seen := make(map[Kind]bool, len(d.Properties))
	for _, k := range d.Properties {
		if !k.Valid() {
			errs = append(errs, fmt.Sprintf("property %q: %v", k, ErrUnknownKind))
			continue
		}
		if seen[k] {
			errs = append(errs, fmt.Sprintf("property %q listed twice", k))
		}
		seen[k] = true
	}
	if seen[KindHue] != seen[KindSaturation] {
		errs = append(errs, "hue and saturation must be configured together")
	}
	if (d.ColorMode == ColorModeHS || d.ColorMode == ColorModeXY) && !seen[KindHue] {
		errs = append(errs, fmt.Sprintf("color_mode %s requires hue and saturation", d.ColorMode))
	}
	if d.ColorMode == ColorModeCT && !seen[KindColorTemperature] {
		errs = append(errs, "color_mode ct requires color_temperature")
	}

	if len(errs) > 0 {
		name := d.ID
		if name == "" {
			name = "<unnamed>"
		}
		return fmt.Errorf("%w %s: %s", ErrInvalidDefinition, name, strings.Join(errs, "; "))
	}
	return nil
}
