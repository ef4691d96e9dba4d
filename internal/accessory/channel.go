package accessory

import (
	"context"
	"time"

	"github.com/mdaskalov/homebridge-tasmota-zbbridge-sub000/internal/router"
)

// DefaultRequestTimeout bounds a device query.
const DefaultRequestTimeout = time.Second

// Channel carries field values between an accessory and its device.
type Channel interface {
	// Listen registers handler for device telemetry.
	Listen(handler func(Report)) error

	// Send writes values to the device. Delivery is fire and forget.
	Send(values Report) error

	// Query asks the device for field and waits for the answer.
	Query(ctx context.Context, field Field) (Report, error)

	// Normalize returns v as the device will report it back after a write,
	// i.e. rounded to the device's own resolution.
	Normalize(field Field, v int) int
}

// Transport is the router surface channels use. *router.Router satisfies it.
type Transport interface {
	Publish(topic string, payload []byte)
	Subscribe(pattern string, handler router.Handler, opts router.SubscribeOptions) (router.SubscriptionID, error)
	Request(ctx context.Context, topic string, payload []byte, responseTopic string,
		timeout time.Duration, predicate router.Predicate) ([]byte, error)
	RouteDevice(route router.DeviceRoute) error
	FromDevice(address string) router.Predicate
}
