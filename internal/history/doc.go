// Package history keeps a SQLite audit trail of accepted property values.
//
// Rows are written by a Recorder, an accessory.Notifier that queues changes
// and persists them on its own goroutine so the router's dispatch loop never
// waits on disk. The trail is read by the HTTP API; accessory state is never
// restored from it.
//
// Usage:
//
//	repo := history.NewSQLiteRepository(db.DB)
//	rec := history.NewRecorder(repo, history.WithRetention(30*24*time.Hour))
//	go rec.Run(ctx)
//	notifiers = append(notifiers, rec)
package history
