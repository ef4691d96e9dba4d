package router

import (
	"context"
	"sort"
	"sync"
	"time"
)

// DefaultQueueSize is the inbound buffer used when no WithQueueSize option is given.
const DefaultQueueSize = 256

// Broker is the broker-level connection the router multiplexes.
// *mqtt.Client satisfies it.
type Broker interface {
	Send(topic string, payload []byte) error
	Subscribe(topic string) error
	Unsubscribe(topic string) error
}

// Logger is the logging surface the router needs.
// *logging.Logger and *slog.Logger satisfy it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Metrics receives router activity counts. All methods must be cheap and
// non-blocking; they run on the dispatch goroutine.
type Metrics interface {
	MessageDispatched(handlers int)
	MessageDropped(reason string)
	RequestCompleted(outcome string, elapsed time.Duration)
}

// SubscriptionID identifies a subscription. Ids are strictly increasing.
type SubscriptionID int64

// Handler processes a message delivered to a subscription. A returned error
// is logged and does not affect other handlers.
type Handler func(topic string, payload []byte) error

// SubscribeOptions modify a subscription.
type SubscribeOptions struct {
	// Once removes the subscription before its handler runs for the first time.
	Once bool

	// DumpPayload logs every payload delivered to this subscription at debug level.
	DumpPayload bool
}

// Subscription is one registered handler.
type Subscription struct {
	ID          SubscriptionID
	Pattern     string
	Once        bool
	DumpPayload bool
	Handler     Handler
}

type message struct {
	topic   string
	payload []byte
}

// Option configures a Router.
type Option func(*Router)

// WithQueueSize sets the inbound buffer size.
func WithQueueSize(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.queueSize = n
		}
	}
}

// WithClock injects the time source used for subscription ids.
func WithClock(now func() time.Time) Option {
	return func(r *Router) {
		if now != nil {
			r.ids.now = now
		}
	}
}

// WithMetrics attaches a metrics sink.
func WithMetrics(m Metrics) Option {
	return func(r *Router) {
		if m != nil {
			r.metrics = m
		}
	}
}

// Router owns the subscription table and the dispatch loop.
//
// Thread Safety:
//   - Subscribe, Unsubscribe, Publish, RouteDevice and Deliver are safe for
//     concurrent use.
//   - Request is safe from any goroutine except the dispatch goroutine.
//   - Run must be called exactly once.
type Router struct {
	broker  Broker
	logger  Logger
	metrics Metrics

	// mu guards the subscription table, pattern counts, device routes and
	// the id generator. It is never held while a handler runs.
	mu       sync.Mutex
	subs     map[SubscriptionID]*Subscription
	patterns map[string]int
	routes   []*DeviceRoute
	ids      idGenerator

	// brokerMu serialises reference-count changes with their broker-level
	// subscribe/unsubscribe so the broker sees them in the same order.
	brokerMu sync.Mutex

	queueSize int
	inbound   chan message
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a Router on top of broker. Call Run to start dispatching.
func New(broker Broker, logger Logger, opts ...Option) *Router {
	r := &Router{
		broker:    broker,
		logger:    logger,
		metrics:   noopMetrics{},
		subs:      make(map[SubscriptionID]*Subscription),
		patterns:  make(map[string]int),
		ids:       idGenerator{now: time.Now},
		queueSize: DefaultQueueSize,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.inbound = make(chan message, r.queueSize)
	return r
}

// Run dispatches inbound messages until ctx is cancelled.
func (r *Router) Run(ctx context.Context) error {
	defer r.closeOnce.Do(func() { close(r.done) })

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-r.inbound:
			r.dispatch(msg)
		}
	}
}

// Deliver queues an inbound broker message for dispatch. It never blocks;
// it is called from the broker client's delivery goroutine.
func (r *Router) Deliver(topic string, payload []byte) error {
	select {
	case <-r.done:
		return ErrClosed
	default:
	}

	select {
	case r.inbound <- message{topic: topic, payload: payload}:
		return nil
	default:
		r.metrics.MessageDropped("queue_full")
		return ErrQueueFull
	}
}

// Subscribe registers handler for topics matching pattern.
//
// Parameters:
//   - pattern: exact topic or a pattern with one '+' or '#' marker
//   - handler: invoked on the dispatch goroutine for each matching message
//   - opts: Once and DumpPayload behaviour
//
// Returns:
//   - SubscriptionID: pass to Unsubscribe to remove the handler
//   - error: ErrInvalidPattern or ErrNilHandler. Broker faults are logged,
//     not returned; the broker client restores the subscription on reconnect.
func (r *Router) Subscribe(pattern string, handler Handler, opts SubscribeOptions) (SubscriptionID, error) {
	if err := validatePattern(pattern); err != nil {
		return 0, err
	}
	if handler == nil {
		return 0, ErrNilHandler
	}

	r.brokerMu.Lock()
	defer r.brokerMu.Unlock()

	r.mu.Lock()
	id := r.ids.next()
	r.subs[id] = &Subscription{
		ID:          id,
		Pattern:     pattern,
		Once:        opts.Once,
		DumpPayload: opts.DumpPayload,
		Handler:     handler,
	}
	r.patterns[pattern]++
	first := r.patterns[pattern] == 1
	r.mu.Unlock()

	if first {
		if err := r.broker.Subscribe(pattern); err != nil {
			r.logger.Warn("broker subscribe failed", "pattern", pattern, "error", err)
		}
	}
	return id, nil
}

// Unsubscribe removes a subscription. Unknown ids are ignored.
func (r *Router) Unsubscribe(id SubscriptionID) {
	r.unsubscribe(id)
}

// unsubscribe removes id and reports whether it was registered.
func (r *Router) unsubscribe(id SubscriptionID) bool {
	r.brokerMu.Lock()
	defer r.brokerMu.Unlock()

	r.mu.Lock()
	pattern, last, ok := r.removeLocked(id)
	r.mu.Unlock()

	if ok && last {
		if err := r.broker.Unsubscribe(pattern); err != nil {
			r.logger.Warn("broker unsubscribe failed", "pattern", pattern, "error", err)
		}
	}
	return ok
}

// removeLocked deletes id from the table and reports whether it was the last
// handler for its pattern. Callers hold mu.
func (r *Router) removeLocked(id SubscriptionID) (pattern string, last bool, ok bool) {
	sub, ok := r.subs[id]
	if !ok {
		return "", false, false
	}
	delete(r.subs, id)

	r.patterns[sub.Pattern]--
	if r.patterns[sub.Pattern] <= 0 {
		delete(r.patterns, sub.Pattern)
		return sub.Pattern, true, true
	}
	return sub.Pattern, false, true
}

// Publish sends payload to topic. Failures are logged, never returned.
func (r *Router) Publish(topic string, payload []byte) {
	if err := r.broker.Send(topic, payload); err != nil {
		r.logger.Warn("publish failed", "topic", topic, "error", err)
		return
	}
	r.logger.Debug("published", "topic", topic, "payload", string(payload))
}

// SubscriptionCount returns the number of registered handlers.
func (r *Router) SubscriptionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// PatternCount returns the number of distinct patterns held at the broker.
func (r *Router) PatternCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.patterns)
}

// dispatch runs every handler whose pattern matches msg.topic.
func (r *Router) dispatch(msg message) {
	r.mu.Lock()
	var matched []*Subscription
	for _, sub := range r.subs {
		if MatchTopic(sub.Pattern, msg.topic) {
			matched = append(matched, sub)
		}
	}
	r.mu.Unlock()

	if len(matched) == 0 {
		r.metrics.MessageDropped("no_handler")
		return
	}

	// Registration order, so fan-out is deterministic.
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	delivered := 0
	for _, sub := range matched {
		// An earlier handler may have removed this one.
		if !r.claim(sub) {
			continue
		}
		if sub.DumpPayload {
			r.logger.Debug("message received", "topic", msg.topic, "payload", string(msg.payload))
		}
		r.invoke(sub, msg)
		delivered++
	}
	r.metrics.MessageDispatched(delivered)
}

// claim reports whether sub is still registered. Once subscriptions are
// removed here, before their handler runs.
func (r *Router) claim(sub *Subscription) bool {
	if sub.Once {
		return r.unsubscribe(sub.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.subs[sub.ID]
	return ok
}

// invoke runs a handler with panic recovery.
func (r *Router) invoke(sub *Subscription, msg message) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("handler panic recovered",
				"topic", msg.topic,
				"subscription", sub.ID,
				"panic", rec,
			)
		}
	}()

	if err := sub.Handler(msg.topic, msg.payload); err != nil {
		r.logger.Warn("handler returned error",
			"topic", msg.topic,
			"subscription", sub.ID,
			"error", err,
		)
	}
}

type noopMetrics struct{}

func (noopMetrics) MessageDispatched(int)                  {}
func (noopMetrics) MessageDropped(string)                  {}
func (noopMetrics) RequestCompleted(string, time.Duration) {}
