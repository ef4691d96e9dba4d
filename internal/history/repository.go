package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mdaskalov/homebridge-tasmota-zbbridge-sub000/internal/accessory"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// ErrInvalidEntry is returned when a change lacks an accessory id or kind.
var ErrInvalidEntry = errors.New("invalid history entry")

// Entry is one accepted property value.
type Entry struct {
	ID          int64          `json:"id"`
	AccessoryID string         `json:"accessory_id"`
	Kind        accessory.Kind `json:"kind"`
	Value       int            `json:"value"`
	Source      string         `json:"source"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Query selects history rows. Kind may be empty to include every kind.
type Query struct {
	AccessoryID string
	Kind        accessory.Kind
	Limit       int
}

// Repository stores and retrieves value history.
//
// Implementations must be thread-safe and use UTC timestamps.
type Repository interface {
	// Record persists an accepted change.
	Record(ctx context.Context, change accessory.Change) error

	// History returns matching entries, newest first.
	History(ctx context.Context, q Query) ([]Entry, error)

	// Prune deletes entries created before cutoff and reports how many.
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// SQLiteRepository implements Repository on the value_history table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Record inserts a history row. A zero change time is recorded as now.
func (r *SQLiteRepository) Record(ctx context.Context, change accessory.Change) error {
	if change.AccessoryID == "" || change.Kind == "" {
		return fmt.Errorf("%w: accessory id and kind are required", ErrInvalidEntry)
	}
	source := change.Source
	if source == "" {
		source = accessory.SourceTelemetry
	}
	at := change.At
	if at.IsZero() {
		at = time.Now()
	}

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO value_history (accessory_id, kind, value, source, created_at) VALUES (?, ?, ?, ?, ?)",
		change.AccessoryID,
		string(change.Kind),
		change.Value,
		source,
		at.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting value history: %w", err)
	}
	return nil
}

// History returns entries for one accessory ordered newest first.
// Limit defaults to 50 and is capped at 500.
func (r *SQLiteRepository) History(ctx context.Context, q Query) ([]Entry, error) {
	if q.AccessoryID == "" {
		return nil, fmt.Errorf("%w: accessory id is required", ErrInvalidEntry)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	query := `SELECT id, accessory_id, kind, value, source, created_at
		 FROM value_history
		 WHERE accessory_id = ?`
	args := []any{q.AccessoryID}
	if q.Kind != "" {
		query += " AND kind = ?"
		args = append(args, string(q.Kind))
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying value history: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		var kind, createdAt string
		if err := rows.Scan(&e.ID, &e.AccessoryID, &kind, &e.Value, &e.Source, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning value history: %w", err)
		}
		e.Kind = accessory.Kind(kind)

		ts, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		e.CreatedAt = ts

		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating value history: %w", err)
	}
	return entries, nil
}

// Prune deletes entries created before cutoff.
func (r *SQLiteRepository) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM value_history WHERE created_at < ?",
		cutoff.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("deleting value history: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}
