package reconcile

import (
	"sync"
	"time"
)

// DefaultStaleWindow is how long an unconfirmed write is trusted.
const DefaultStaleWindow = 2000 * time.Millisecond

// Outcome classifies a telemetry value passed to Update.
type Outcome int

const (
	// Ignored means the value was a duplicate of the confirmed value or an
	// unrelated arrival while a write is pending.
	Ignored Outcome = iota

	// EchoAccepted means the value confirmed the pending write. The hub
	// already shows it, so no push is needed.
	EchoAccepted

	// Accepted means the value is a new confirmed state and must be pushed
	// to the hub.
	Accepted
)

// String returns the lowercase outcome name used in logs and history rows.
func (o Outcome) String() string {
	switch o {
	case Ignored:
		return "ignored"
	case EchoAccepted:
		return "echo_accepted"
	case Accepted:
		return "accepted"
	default:
		return "unknown"
	}
}

// Clock returns the current time. Tests substitute a fake.
type Clock func() time.Time

// Option configures a Value.
type Option func(*options)

type options struct {
	staleWindow time.Duration
	clock       Clock
}

// WithStaleWindow overrides DefaultStaleWindow. Non-positive durations are ignored.
func WithStaleWindow(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.staleWindow = d
		}
	}
}

// WithClock injects the time source.
func WithClock(c Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// Value is an optimistic cache for one property.
//
// Value is safe for concurrent use: hub reads and writes arrive on request
// goroutines while telemetry arrives on the router's dispatch goroutine.
type Value[T comparable] struct {
	mu sync.Mutex

	confirmed   T
	confirmedAt time.Time
	requested   T
	requestedAt time.Time
	pending     bool

	staleWindow time.Duration
	now         Clock
}

// New creates a Value whose confirmed value is initial.
func New[T comparable](initial T, opts ...Option) *Value[T] {
	o := options{
		staleWindow: DefaultStaleWindow,
		clock:       time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Value[T]{
		confirmed:   initial,
		confirmedAt: o.clock(),
		requested:   initial,
		staleWindow: o.staleWindow,
		now:         o.clock,
	}
}

// Set records an optimistic write. The confirmed pair is untouched.
func (v *Value[T]) Set(value T) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.requested = value
	v.requestedAt = v.now()
	v.pending = true
}

// Update applies a telemetry value and reports how it was classified.
func (v *Value[T]) Update(value T) Outcome {
	v.mu.Lock()
	defer v.mu.Unlock()

	if value == v.confirmed {
		return Ignored
	}

	now := v.now()
	if v.pendingAt(now) {
		if value != v.requested {
			return Ignored
		}
		v.confirm(value, now)
		return EchoAccepted
	}

	v.confirm(value, now)
	return Accepted
}

// Confirm applies a value read back from the device on request. Unlike
// Update it is authoritative: any pending write is dropped, even when value
// equals the confirmed value. It reports Accepted when the confirmed value
// changed and Ignored otherwise.
func (v *Value[T]) Confirm(value T) Outcome {
	v.mu.Lock()
	defer v.mu.Unlock()

	changed := value != v.confirmed
	v.confirm(value, v.now())
	if changed {
		return Accepted
	}
	return Ignored
}

// Get returns the pending write while it is trusted, otherwise the
// confirmed value.
func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.pendingAt(v.now()) {
		return v.requested
	}
	return v.confirmed
}

// Confirmed returns the last confirmed value regardless of pending writes.
func (v *Value[T]) Confirmed() T {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.confirmed
}

// NeedsUpdate reports whether a write is outstanding and the stale window
// has passed without confirmation.
func (v *Value[T]) NeedsUpdate() bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.pending && v.now().Sub(v.requestedAt) > v.staleWindow
}

// confirm collapses any pending write. Callers hold mu.
func (v *Value[T]) confirm(value T, at time.Time) {
	v.confirmed = value
	v.confirmedAt = at
	v.pending = false
}

// pendingAt reports a write newer than the last confirmation that is still
// inside the window. The boundary is inclusive. Callers hold mu.
func (v *Value[T]) pendingAt(now time.Time) bool {
	return v.pending && now.Sub(v.requestedAt) <= v.staleWindow
}
