package mqtt

import "errors"

// Broker errors. Compare with errors.Is.
var (
	// ErrNotConnected means the broker session is down. Sends fail fast;
	// subscriptions are remembered and issued on the next connect.
	ErrNotConnected = errors.New("mqtt: not connected to broker")

	// ErrConnectionFailed is returned by Start and Connect when the caller's
	// context ends before the first connect completes.
	ErrConnectionFailed = errors.New("mqtt: broker connection failed")

	ErrPublishFailed     = errors.New("mqtt: publish failed")
	ErrSubscribeFailed   = errors.New("mqtt: subscribe failed")
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidQoS rejects QoS levels outside 0..2.
	ErrInvalidQoS = errors.New("mqtt: QoS must be 0, 1 or 2")

	// ErrInvalidTopic rejects an empty topic or filter.
	ErrInvalidTopic = errors.New("mqtt: empty topic")
)
