// Package reconcile keeps a locally cached property consistent with a device
// reached over an asynchronous, lossy channel.
//
// A hub write is recorded optimistically with Set and becomes the value Get
// returns for the duration of the stale window. Device telemetry arrives via
// Update, which classifies it as a duplicate, an echo of our own command, or
// a genuine state change. Only the last should be pushed to the hub, which
// keeps the UI from flickering when a device echoes a command back.
//
// If the window passes without confirmation, the cached confirmed value is
// authoritative again and NeedsUpdate reports that a fresh device query is
// due.
package reconcile
