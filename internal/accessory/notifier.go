package accessory

import (
	"time"

	"github.com/mdaskalov/homebridge-tasmota-zbbridge-sub000/internal/reconcile"
)

// Change sources.
const (
	SourceTelemetry = "telemetry"
	SourceQuery     = "query"
)

// Change describes a new confirmed value the hub must be told about.
type Change struct {
	AccessoryID string            `json:"accessory_id"`
	Kind        Kind              `json:"kind"`
	Value       int               `json:"value"`
	Outcome     reconcile.Outcome `json:"-"`
	Source      string            `json:"source"`
	At          time.Time         `json:"at"`
}

// Notifier receives accepted value changes. Implementations run on the
// router's dispatch goroutine or a hub request goroutine and must not block.
type Notifier interface {
	ValueChanged(change Change)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Change)

// ValueChanged implements Notifier.
func (f NotifierFunc) ValueChanged(change Change) { f(change) }

// Notifiers fans a change out to every notifier in order.
type Notifiers []Notifier

// ValueChanged implements Notifier.
func (ns Notifiers) ValueChanged(change Change) {
	for _, n := range ns {
		if n != nil {
			n.ValueChanged(change)
		}
	}
}
