package accessory

// Field is a device-level value carried by a Channel. Values travel in hub
// units: power 0/1, dimmer and saturation 0-100, hue 0-359, CT in mireds,
// X and Y on the 16-bit chromaticity scale. Channels convert to and from
// whatever the device speaks.
type Field string

const (
	FieldPower     Field = "Power"
	FieldDimmer    Field = "Dimmer"
	FieldHue       Field = "Hue"
	FieldSat       Field = "Sat"
	FieldCT        Field = "CT"
	FieldX         Field = "X"
	FieldY         Field = "Y"
	FieldColorMode Field = "ColorMode"
)

// Zigbee colour modes as reported in the ColorMode attribute.
const (
	zigbeeModeHS = 0
	zigbeeModeXY = 1
	zigbeeModeCT = 2
)

// Report is a set of field values from one device message.
type Report map[Field]int

// Has reports whether every field is present.
func (r Report) Has(fields ...Field) bool {
	for _, f := range fields {
		if _, ok := r[f]; !ok {
			return false
		}
	}
	return true
}

// fieldOrder fixes the order fields are sent in.
var fieldOrder = []Field{FieldPower, FieldDimmer, FieldHue, FieldSat, FieldCT, FieldX, FieldY, FieldColorMode}

// sortedFields returns the fields present in r in fieldOrder.
func sortedFields(r Report) []Field {
	fields := make([]Field, 0, len(r))
	for _, f := range fieldOrder {
		if _, ok := r[f]; ok {
			fields = append(fields, f)
		}
	}
	return fields
}
