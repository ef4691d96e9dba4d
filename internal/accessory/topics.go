package accessory

import "fmt"

// Tasmota topic prefixes.
const (
	PrefixCommand   = "cmnd"
	PrefixStat      = "stat"
	PrefixTelemetry = "tele"
)

// Topics provides builders for Tasmota topics.
//
//	topics := accessory.Topics{}
//	topics.Command("kitchen", "POWER") // "cmnd/kitchen/POWER"
type Topics struct{}

// Command returns the topic for a command to a device.
//
// Example: cmnd/kitchen/Dimmer
func (Topics) Command(device, key string) string {
	return fmt.Sprintf("%s/%s/%s", PrefixCommand, device, key)
}

// Result returns the topic a device acknowledges commands on.
//
// Example: stat/kitchen/RESULT
func (Topics) Result(device string) string {
	return fmt.Sprintf("%s/%s/RESULT", PrefixStat, device)
}

// State returns the periodic state telemetry topic of a device.
//
// Example: tele/kitchen/STATE
func (Topics) State(device string) string {
	return fmt.Sprintf("%s/%s/STATE", PrefixTelemetry, device)
}

// ZbSend returns the Zigbee command topic of a bridge.
//
// Example: cmnd/zbbridge/ZbSend
func (Topics) ZbSend(bridge string) string {
	return fmt.Sprintf("%s/%s/ZbSend", PrefixCommand, bridge)
}

// Sensor returns the Zigbee report topic of a bridge.
//
// Example: tele/zbbridge/SENSOR
func (Topics) Sensor(bridge string) string {
	return fmt.Sprintf("%s/%s/SENSOR", PrefixTelemetry, bridge)
}
