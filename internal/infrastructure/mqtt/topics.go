package mqtt

import "fmt"

// TopicPrefixBridge is the base for the bridge's own topics. Device topics
// follow Tasmota's cmnd/stat/tele scheme and are built by the accessory package.
const TopicPrefixBridge = "zbbridge"

// Topics provides builders for the bridge's own MQTT topics.
//
//	topics := mqtt.Topics{}
//	statusTopic := topics.Status("zbbridge-1a2b3c4d")
//	// Returns: "zbbridge/zbbridge-1a2b3c4d/status"
type Topics struct{}

// Status returns the retained online/offline status topic of a bridge instance.
//
// Example: zbbridge/zbbridge-1a2b3c4d/status
func (Topics) Status(clientID string) string {
	return fmt.Sprintf("%s/%s/status", TopicPrefixBridge, clientID)
}
