package mqtt

import (
	"fmt"
)

// Subscribe registers a broker-level subscription for topic. Messages are
// delivered to the handler set with SetMessageHandler. It implements
// router.Broker.
//
// The pattern is tracked and restored after every reconnect. While the
// client is disconnected the pattern is only recorded; it is issued when the
// connection comes up, so callers are not failed for a broker outage.
func (c *Client) Subscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	qos := byte(c.cfg.QoS)
	if qos > maxQoS {
		return ErrInvalidQoS
	}

	c.subMu.Lock()
	c.subscriptions[topic] = qos
	c.subMu.Unlock()

	if !c.IsConnected() {
		return nil
	}

	token := c.client.Subscribe(topic, qos, c.onMessage)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: %s: timeout after %v", ErrSubscribeFailed, topic, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, topic, err)
	}

	return nil
}

// Unsubscribe removes a broker-level subscription. It implements router.Broker.
func (c *Client) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}

	c.subMu.Lock()
	delete(c.subscriptions, topic)
	c.subMu.Unlock()

	if !c.IsConnected() {
		return nil
	}

	token := c.client.Unsubscribe(topic)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: %s: timeout after %v", ErrUnsubscribeFailed, topic, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUnsubscribeFailed, topic, err)
	}

	return nil
}

// SubscriptionCount returns the number of tracked broker-level patterns.
func (c *Client) SubscriptionCount() int {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.subscriptions)
}

// HasSubscription checks if a subscription exists for the given pattern.
//
// Note: This checks only the exact topic string, not pattern matching.
func (c *Client) HasSubscription(topic string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	_, exists := c.subscriptions[topic]
	return exists
}
