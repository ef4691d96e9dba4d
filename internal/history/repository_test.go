package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdaskalov/homebridge-tasmota-zbbridge-sub000/internal/accessory"
	"github.com/mdaskalov/homebridge-tasmota-zbbridge-sub000/internal/infrastructure/config"
	"github.com/mdaskalov/homebridge-tasmota-zbbridge-sub000/internal/infrastructure/database"
	"github.com/mdaskalov/homebridge-tasmota-zbbridge-sub000/migrations"
)

// newTestRepository opens a migrated database in a temp directory.
func newTestRepository(t *testing.T) *SQLiteRepository {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "history.db"),
		BusyTimeout: 5,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.Migrate(ctx, migrations.FS))
	return NewSQLiteRepository(db.DB)
}

var base = time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

func change(id string, kind accessory.Kind, value int, at time.Time) accessory.Change {
	return accessory.Change{
		AccessoryID: id,
		Kind:        kind,
		Value:       value,
		Source:      accessory.SourceTelemetry,
		At:          at,
	}
}

func TestRecordAndHistory(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.Record(ctx, change("kitchen", accessory.KindPower, 1, base)))
	require.NoError(t, repo.Record(ctx, change("kitchen", accessory.KindBrightness, 40, base.Add(time.Second))))
	require.NoError(t, repo.Record(ctx, change("kitchen", accessory.KindBrightness, 80, base.Add(2*time.Second))))
	require.NoError(t, repo.Record(ctx, change("hall", accessory.KindPower, 0, base)))

	entries, err := repo.History(ctx, Query{AccessoryID: "kitchen"})
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, 80, entries[0].Value, "newest first")
	assert.Equal(t, accessory.KindBrightness, entries[0].Kind)
	assert.Equal(t, accessory.SourceTelemetry, entries[0].Source)
	assert.True(t, entries[0].CreatedAt.Equal(base.Add(2*time.Second)))
	assert.Equal(t, accessory.KindPower, entries[2].Kind)
}

func TestHistory_FilterAndLimit(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Record(ctx, change("kitchen", accessory.KindHue, i*10, base.Add(time.Duration(i)*time.Second))))
	}
	require.NoError(t, repo.Record(ctx, change("kitchen", accessory.KindPower, 1, base)))

	entries, err := repo.History(ctx, Query{AccessoryID: "kitchen", Kind: accessory.KindHue, Limit: 2})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 40, entries[0].Value)
	assert.Equal(t, 30, entries[1].Value)

	entries, err = repo.History(ctx, Query{AccessoryID: "unknown"})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRecord_Defaults(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.Record(ctx, accessory.Change{AccessoryID: "kitchen", Kind: accessory.KindPower, Value: 1}))

	entries, err := repo.History(ctx, Query{AccessoryID: "kitchen"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, accessory.SourceTelemetry, entries[0].Source)
	assert.WithinDuration(t, time.Now(), entries[0].CreatedAt, time.Minute)
}

func TestRecord_Invalid(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	assert.ErrorIs(t, repo.Record(ctx, accessory.Change{Kind: accessory.KindPower}), ErrInvalidEntry)
	assert.ErrorIs(t, repo.Record(ctx, accessory.Change{AccessoryID: "kitchen"}), ErrInvalidEntry)

	_, err := repo.History(ctx, Query{})
	assert.ErrorIs(t, err, ErrInvalidEntry)
}

func TestPrune(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.Record(ctx, change("kitchen", accessory.KindPower, 1, base.Add(-48*time.Hour))))
	require.NoError(t, repo.Record(ctx, change("kitchen", accessory.KindPower, 0, base.Add(-25*time.Hour))))
	require.NoError(t, repo.Record(ctx, change("kitchen", accessory.KindPower, 1, base)))

	n, err := repo.Prune(ctx, base.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	entries, err := repo.History(ctx, Query{AccessoryID: "kitchen"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].Value)
}
