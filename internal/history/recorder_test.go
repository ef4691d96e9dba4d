package history

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdaskalov/homebridge-tasmota-zbbridge-sub000/internal/accessory"
)

// memoryRepository is an in-memory Repository.
type memoryRepository struct {
	mu       sync.Mutex
	entries  []accessory.Change
	cutoffs  []time.Time
	block    chan struct{}
	writeErr error
}

func (m *memoryRepository) Record(_ context.Context, c accessory.Change) error {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.entries = append(m.entries, c)
	return nil
}

func (m *memoryRepository) History(_ context.Context, q Query) ([]Entry, error) {
	return nil, nil
}

func (m *memoryRepository) Prune(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cutoffs = append(m.cutoffs, cutoff)
	return 0, nil
}

func (m *memoryRepository) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *memoryRepository) Cutoffs() []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Time(nil), m.cutoffs...)
}

// countingLogger counts warnings.
type countingLogger struct {
	mu    sync.Mutex
	warns int
}

func (l *countingLogger) Debug(string, ...any) {}

func (l *countingLogger) Warn(string, ...any) {
	l.mu.Lock()
	l.warns++
	l.mu.Unlock()
}

func (l *countingLogger) Warns() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.warns
}

func startRecorder(t *testing.T, r *Recorder) (context.CancelFunc, <-chan struct{}) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel, done
}

func TestRecorder_WritesChanges(t *testing.T) {
	repo := &memoryRepository{}
	rec := NewRecorder(repo)
	startRecorder(t, rec)

	var n accessory.Notifier = rec
	n.ValueChanged(change("kitchen", accessory.KindPower, 1, base))
	n.ValueChanged(change("kitchen", accessory.KindBrightness, 50, base))

	require.Eventually(t, func() bool { return repo.Len() == 2 }, time.Second, 5*time.Millisecond)
}

func TestRecorder_DropsWhenFull(t *testing.T) {
	repo := &memoryRepository{}
	logger := &countingLogger{}
	rec := NewRecorder(repo, WithQueueSize(1), WithLogger(logger))

	// Not running: the queue holds one change.
	rec.ValueChanged(change("kitchen", accessory.KindPower, 1, base))
	rec.ValueChanged(change("kitchen", accessory.KindPower, 0, base))

	assert.Equal(t, 1, logger.Warns())
}

func TestRecorder_DrainsOnCancel(t *testing.T) {
	repo := &memoryRepository{block: make(chan struct{})}
	rec := NewRecorder(repo, WithQueueSize(8))
	cancel, done := startRecorder(t, rec)

	for i := 0; i < 3; i++ {
		rec.ValueChanged(change("kitchen", accessory.KindHue, i, base))
	}
	cancel()
	close(repo.block)
	<-done

	assert.Equal(t, 3, repo.Len())
}

func TestRecorder_WriteErrorsAreLogged(t *testing.T) {
	repo := &memoryRepository{writeErr: errors.New("disk full")}
	logger := &countingLogger{}
	rec := NewRecorder(repo, WithLogger(logger))
	startRecorder(t, rec)

	rec.ValueChanged(change("kitchen", accessory.KindPower, 1, base))

	require.Eventually(t, func() bool { return logger.Warns() == 1 }, time.Second, 5*time.Millisecond)
}

func TestRecorder_Retention(t *testing.T) {
	repo := &memoryRepository{}
	rec := NewRecorder(repo,
		WithRetention(24*time.Hour),
		WithPruneInterval(10*time.Millisecond),
		WithClock(func() time.Time { return base }),
	)
	startRecorder(t, rec)

	require.Eventually(t, func() bool { return len(repo.Cutoffs()) >= 2 }, time.Second, 5*time.Millisecond)
	assert.True(t, repo.Cutoffs()[0].Equal(base.Add(-24*time.Hour)))
}

func TestRecorder_NoRetentionNeverPrunes(t *testing.T) {
	repo := &memoryRepository{}
	rec := NewRecorder(repo, WithPruneInterval(time.Millisecond))
	startRecorder(t, rec)

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, repo.Cutoffs())
}
