// Package accessory exposes Tasmota and Zigbee devices as hub accessories.
//
// An Accessory is a generic record carrying a set of capabilities, one
// Property per Kind (power, brightness, hue, saturation, colour
// temperature). Each Property owns one reconcile.Value and maps to one device
// field. Devices are reached through a Channel:
//
//   - TasmotaChannel talks to plain Tasmota firmware over cmnd/stat/tele topics.
//   - ZigbeeChannel talks to a Zigbee device behind a Tasmota Zigbee bridge
//     using ZbSend commands and ZbReceived telemetry.
//
// Colour handling depends on the light's ColorMode. Lights driven in xy mode
// receive hue/saturation writes as chromaticity, and chromaticity reports
// are converted back to hue/saturation using the current brightness. Colour
// temperature reports from lights in ct mode also update hue/saturation so
// the hub shows a matching tint.
//
// Only Accepted outcomes are pushed to the Notifier, so echoes of our own
// commands never reach the hub twice.
package accessory
