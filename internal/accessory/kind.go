package accessory

import (
	"fmt"
	"strings"
)

// Kind is a hub-facing property. The set is closed.
type Kind string

const (
	KindPower            Kind = "power"
	KindBrightness       Kind = "brightness"
	KindHue              Kind = "hue"
	KindSaturation       Kind = "saturation"
	KindColorTemperature Kind = "color_temperature"
)

// AllKinds lists every Kind in display order.
var AllKinds = []Kind{
	KindPower,
	KindBrightness,
	KindHue,
	KindSaturation,
	KindColorTemperature,
}

// kindSpec describes how a Kind maps to the device.
type kindSpec struct {
	field    Field
	min, max int
	initial  int
}

var kindSpecs = map[Kind]kindSpec{
	KindPower:            {field: FieldPower, min: 0, max: 1, initial: 0},
	KindBrightness:       {field: FieldDimmer, min: 0, max: 100, initial: 100},
	KindHue:              {field: FieldHue, min: 0, max: 359, initial: 0},
	KindSaturation:       {field: FieldSat, min: 0, max: 100, initial: 0},
	KindColorTemperature: {field: FieldCT, min: MinMireds, max: MaxMireds, initial: 370},
}

// Colour temperature range accepted by Tasmota lights, in mireds.
const (
	MinMireds = 153
	MaxMireds = 500
)

// ParseKind converts a configuration string to a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := kindSpecs[k]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}

// Valid reports whether k is in the closed set.
func (k Kind) Valid() bool {
	_, ok := kindSpecs[k]
	return ok
}

// Field returns the device field backing k.
func (k Kind) Field() Field {
	return kindSpecs[k].field
}

// Clamp limits v to the range of k. Hue wraps instead of clamping.
func (k Kind) Clamp(v int) int {
	spec := kindSpecs[k]
	if k == KindHue {
		v %= 360
		if v < 0 {
			v += 360
		}
		return v
	}
	if v < spec.min {
		return spec.min
	}
	if v > spec.max {
		return spec.max
	}
	return v
}

// UnmarshalText rejects unknown kinds while the configuration is parsed.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k), nil
}
