package history

import (
	"context"
	"time"

	"github.com/mdaskalov/homebridge-tasmota-zbbridge-sub000/internal/accessory"
)

const (
	defaultQueueSize     = 256
	defaultPruneInterval = time.Hour
	writeTimeout         = 5 * time.Second
)

// Logger is the logging surface the recorder needs.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithRetention prunes entries older than d. Zero keeps everything.
func WithRetention(d time.Duration) RecorderOption {
	return func(r *Recorder) { r.retention = d }
}

// WithPruneInterval sets how often retention is enforced.
func WithPruneInterval(d time.Duration) RecorderOption {
	return func(r *Recorder) {
		if d > 0 {
			r.pruneEvery = d
		}
	}
}

// WithQueueSize sets the number of changes buffered before dropping.
func WithQueueSize(n int) RecorderOption {
	return func(r *Recorder) {
		if n > 0 {
			r.queueSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l Logger) RecorderOption {
	return func(r *Recorder) { r.logger = l }
}

// WithClock overrides time.Now for retention cutoffs.
func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) { r.now = now }
}

// Recorder is an accessory.Notifier that persists changes asynchronously.
//
// ValueChanged never blocks: when the queue is full the change is dropped
// and logged. Run drains the queue, enforces retention, and on cancellation
// writes whatever is still queued before returning.
type Recorder struct {
	repo       Repository
	logger     Logger
	queue      chan accessory.Change
	queueSize  int
	retention  time.Duration
	pruneEvery time.Duration
	now        func() time.Time
}

// NewRecorder creates a Recorder writing to repo.
func NewRecorder(repo Repository, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		repo:       repo,
		queueSize:  defaultQueueSize,
		pruneEvery: defaultPruneInterval,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.queue = make(chan accessory.Change, r.queueSize)
	return r
}

// ValueChanged implements accessory.Notifier.
func (r *Recorder) ValueChanged(change accessory.Change) {
	select {
	case r.queue <- change:
	default:
		if r.logger != nil {
			r.logger.Warn("history queue full, dropping change",
				"accessory", change.AccessoryID, "kind", change.Kind)
		}
	}
}

// Run writes queued changes until ctx is cancelled.
func (r *Recorder) Run(ctx context.Context) error {
	var prune <-chan time.Time
	if r.retention > 0 {
		r.prune(ctx)
		ticker := time.NewTicker(r.pruneEvery)
		defer ticker.Stop()
		prune = ticker.C
	}

	for {
		select {
		case change := <-r.queue:
			r.write(ctx, change)
		case <-prune:
			r.prune(ctx)
		case <-ctx.Done():
			r.drain()
			return nil
		}
	}
}

// drain writes what is left in the queue after cancellation.
func (r *Recorder) drain() {
	for {
		select {
		case change := <-r.queue:
			r.write(context.Background(), change)
		default:
			return
		}
	}
}

func (r *Recorder) write(ctx context.Context, change accessory.Change) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	if err := r.repo.Record(ctx, change); err != nil && r.logger != nil {
		r.logger.Warn("value history write failed",
			"accessory", change.AccessoryID, "kind", change.Kind, "error", err)
	}
}

func (r *Recorder) prune(ctx context.Context) {
	n, err := r.repo.Prune(ctx, r.now().Add(-r.retention))
	if r.logger == nil {
		return
	}
	if err != nil {
		r.logger.Warn("value history prune failed", "error", err)
		return
	}
	if n > 0 {
		r.logger.Debug("value history pruned", "rows", n)
	}
}
