// Package mqtt provides the broker connection for the bridge.
//
// This package manages:
//   - Connection to the broker with a fixed-interval reconnect that never gives up
//   - Message publishing for device commands
//   - Broker-level subscriptions, restored after every reconnect
//   - Last Will and Testament (LWT) plus a retained online/offline status
//
// # Architecture
//
// Client implements router.Broker. It owns no routing of its own: every
// inbound message goes to one MessageHandler, normally router.Deliver, which
// queues it for the router's dispatch goroutine.
//
//	Tasmota devices / Zigbee bridge ↔ MQTT Broker ↔ Client → Router → Accessories
//
// # Security Considerations
//
//   - Enable TLS when the broker is not on a trusted network (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client, err := mqtt.Connect(ctx, cfg.MQTT, mqtt.WithLogger(log))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	rt := router.New(client, log)
//	client.SetMessageHandler(rt.Deliver)
package mqtt
