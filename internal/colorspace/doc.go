// Package colorspace converts between the three colour representations a
// light can report: hue/saturation, CIE xy chromaticity and colour temperature.
//
// Lights behind a Tasmota bridge report whichever representation matches the
// colour mode they were last driven in. The hub only understands hue and
// saturation (plus colour temperature for white-spectrum lights), so every
// report is normalised through this package before it reaches a property.
//
// # Units
//
//   - Hue: degrees in [0, 360)
//   - Saturation and brightness: percent in [0, 100]
//   - Chromaticity: x and y scaled to the 16-bit range [0, 65535]
//   - Colour temperature: mireds (1,000,000 / kelvin), the unit devices use
//
// # Guarantees
//
// All functions are pure and safe for concurrent use. Inputs outside their
// range are clamped, and no function returns NaN or panics.
//
// The primitives never compose themselves. Callers chain them explicitly,
// for example colour temperature to chromaticity to hue/saturation:
//
//	xy := colorspace.ColorTemperatureToXY(370)
//	hs := colorspace.XYToHueSat(xy, 100)
package colorspace
