package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"
)

// Request outcomes reported to Metrics.
const (
	outcomeResolved  = "resolved"
	outcomeTimeout   = "timeout"
	outcomeCancelled = "cancelled"
)

// Predicate decides whether a message on a response topic answers the
// request. Returning false keeps the request waiting.
type Predicate func(payload []byte) bool

// Request publishes payload to topic and waits for a reply on responseTopic.
//
// The listener is installed before the publish so a fast reply cannot be
// missed. When predicate is nil the first message on responseTopic resolves
// the request; otherwise each message is offered to predicate, and messages
// it rejects are logged and skipped. Exactly one outcome wins: the resolved
// payload, ErrTimeout after timeout, or ctx.Err() on cancellation. The
// timeout runs from the call, so time spent subscribing counts against it.
// The listener is removed in every case.
//
// Request blocks, so it must not be called from a handler running on the
// dispatch goroutine.
func (r *Router) Request(
	ctx context.Context,
	topic string,
	payload []byte,
	responseTopic string,
	timeout time.Duration,
	predicate Predicate,
) ([]byte, error) {
	started := time.Now()
	deadline := started.Add(timeout)

	var settled atomic.Bool
	result := make(chan []byte, 1)

	id, err := r.Subscribe(responseTopic, func(t string, p []byte) error {
		if settled.Load() {
			return nil
		}
		if predicate != nil && !predicate(p) {
			r.logger.Debug("unmatched response", "request_topic", topic, "topic", t, "payload", string(p))
			return nil
		}
		if settled.CompareAndSwap(false, true) {
			result <- p
		}
		return nil
	}, SubscribeOptions{})
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", topic, err)
	}
	defer r.Unsubscribe(id)

	r.Publish(topic, payload)

	timer := time.NewTimer(max(time.Until(deadline), 0))
	defer timer.Stop()

	select {
	case p := <-result:
		r.metrics.RequestCompleted(outcomeResolved, time.Since(started))
		return p, nil

	case <-timer.C:
		if !settled.CompareAndSwap(false, true) {
			// The response won the race after the timer fired.
			r.metrics.RequestCompleted(outcomeResolved, time.Since(started))
			return <-result, nil
		}
		r.metrics.RequestCompleted(outcomeTimeout, time.Since(started))
		return nil, fmt.Errorf("%w: no response on %s within %v", ErrTimeout, responseTopic, timeout)

	case <-ctx.Done():
		if !settled.CompareAndSwap(false, true) {
			r.metrics.RequestCompleted(outcomeResolved, time.Since(started))
			return <-result, nil
		}
		r.metrics.RequestCompleted(outcomeCancelled, time.Since(started))
		return nil, fmt.Errorf("request %s: %w", topic, ctx.Err())
	}
}

// HasKey accepts a JSON response that carries key at any depth.
// Keys compare case-insensitively: Tasmota answers POWER in RESULT messages
// and Power in Zigbee reports.
func HasKey(key string) Predicate {
	return func(payload []byte) bool {
		doc, ok := decode(payload)
		if !ok {
			return false
		}
		_, found := findKey(doc, key)
		return found
	}
}

// KeyEquals accepts a JSON response whose key, at any depth, renders as want.
// Numbers and strings compare by their text, so KeyEquals("CT", "200")
// accepts both {"CT":200} and {"CT":"200"}.
func KeyEquals(key, want string) Predicate {
	return func(payload []byte) bool {
		doc, ok := decode(payload)
		if !ok {
			return false
		}
		v, found := findKey(doc, key)
		if !found {
			return false
		}
		return strings.EqualFold(scalarText(v), want)
	}
}

// All accepts a response only when every predicate accepts it.
func All(preds ...Predicate) Predicate {
	return func(payload []byte) bool {
		for _, p := range preds {
			if p != nil && !p(payload) {
				return false
			}
		}
		return true
	}
}

// decode parses payload preserving number text.
func decode(payload []byte) (any, bool) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, false
	}
	return doc, true
}

// findKey searches v depth-first for key. Object keys are visited in sorted
// order so the result is deterministic.
func findKey(v any, key string) (any, bool) {
	switch node := v.(type) {
	case map[string]any:
		keys := sortedKeys(node)
		for _, k := range keys {
			if strings.EqualFold(k, key) {
				return node[k], true
			}
		}
		for _, k := range keys {
			if found, ok := findKey(node[k], key); ok {
				return found, true
			}
		}
	case []any:
		for _, item := range node {
			if found, ok := findKey(item, key); ok {
				return found, true
			}
		}
	}
	return nil, false
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func scalarText(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		if val {
			return "true"
		}
		return "false"
	case nil:
		return ""
	default:
		return fmt.Sprint(val)
	}
}
