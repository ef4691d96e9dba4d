package accessory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mdaskalov/homebridge-tasmota-zbbridge-sub000/internal/colorspace"
	"github.com/mdaskalov/homebridge-tasmota-zbbridge-sub000/internal/reconcile"
)

// Logger is the logging surface accessories need.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Observer sees every reconciliation outcome, including ignored echoes.
type Observer interface {
	ObserveOutcome(accessoryID string, kind Kind, outcome reconcile.Outcome)
}

// Option configures an Accessory.
type Option func(*options)

type options struct {
	notifier    Notifier
	observer    Observer
	logger      Logger
	staleWindow time.Duration
	clock       reconcile.Clock
}

// WithNotifier sets the receiver of accepted changes.
func WithNotifier(n Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithObserver sets the receiver of every reconciliation outcome.
func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithStaleWindow overrides reconcile.DefaultStaleWindow for every property.
func WithStaleWindow(d time.Duration) Option {
	return func(o *options) { o.staleWindow = d }
}

// WithClock injects the time source for every property.
func WithClock(c reconcile.Clock) Option {
	return func(o *options) { o.clock = c }
}

// Property is one capability of an accessory.
type Property struct {
	Kind  Kind
	value *reconcile.Value[int]
}

// Accessory is a device exposed to the hub as a set of properties.
type Accessory struct {
	def      Definition
	channel  Channel
	notifier Notifier
	observer Observer
	logger   Logger
	now      func() time.Time

	props map[Kind]*Property

	// xy mirrors the chromaticity last sent to or reported by an xy-mode
	// light so echoes of our own colour writes can be recognised.
	xy *reconcile.Value[colorspace.XY]

	// mu keeps multi-property colour updates consistent. Notifiers run
	// after it is released.
	mu sync.Mutex
}

// New creates an accessory from a validated definition.
func New(def Definition, ch Channel, opts ...Option) (*Accessory, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, fmt.Errorf("%w %s: channel is required", ErrInvalidDefinition, def.ID)
	}

	o := options{clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	var valueOpts []reconcile.Option
	if o.staleWindow > 0 {
		valueOpts = append(valueOpts, reconcile.WithStaleWindow(o.staleWindow))
	}
	if o.clock != nil {
		valueOpts = append(valueOpts, reconcile.WithClock(o.clock))
	}

	a := &Accessory{
		def:      def,
		channel:  ch,
		notifier: o.notifier,
		observer: o.observer,
		logger:   o.logger,
		now:      o.clock,
		props:    make(map[Kind]*Property, len(def.Properties)),
	}
	if a.notifier == nil {
		a.notifier = Notifiers(nil)
	}

	for _, k := range def.Properties {
		a.props[k] = &Property{
			Kind:  k,
			value: reconcile.New(kindSpecs[k].initial, valueOpts...),
		}
	}
	if def.ColorMode == ColorModeXY {
		a.xy = reconcile.New(colorspace.XY{}, valueOpts...)
	}

	return a, nil
}

// Start begins receiving device telemetry.
func (a *Accessory) Start() error {
	if err := a.channel.Listen(a.HandleTelemetry); err != nil {
		return fmt.Errorf("starting accessory %s: %w", a.def.ID, err)
	}
	return nil
}

// ID returns the accessory id.
func (a *Accessory) ID() string { return a.def.ID }

// Name returns the display name, falling back to the id.
func (a *Accessory) Name() string {
	if a.def.Name != "" {
		return a.def.Name
	}
	return a.def.ID
}

// Definition returns the configuration the accessory was built from.
func (a *Accessory) Definition() Definition { return a.def }

// Kinds returns the accessory's capabilities in display order.
func (a *Accessory) Kinds() []Kind {
	kinds := make([]Kind, 0, len(a.props))
	for _, k := range AllKinds {
		if _, ok := a.props[k]; ok {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// Snapshot returns the current value of every property without querying
// the device.
func (a *Accessory) Snapshot() map[Kind]int {
	out := make(map[Kind]int, len(a.props))
	for k, p := range a.props {
		out[k] = p.value.Get()
	}
	return out
}

// Get returns the value of kind.
//
// A trusted value is returned immediately. When an unconfirmed write has
// gone stale the device is queried; if it does not answer in time Get
// returns ErrUnavailable rather than a value that may be wrong.
func (a *Accessory) Get(ctx context.Context, kind Kind) (int, error) {
	p, ok := a.props[kind]
	if !ok {
		return 0, fmt.Errorf("%w: %s has no %s", ErrUnsupportedKind, a.def.ID, kind)
	}
	if !p.value.NeedsUpdate() {
		return p.value.Get(), nil
	}

	report, err := a.channel.Query(ctx, a.queryField(kind))
	if err != nil {
		a.logWarn("device query failed", "kind", kind, "error", err)
		return 0, fmt.Errorf("%w: %s %s: %w", ErrUnavailable, a.def.ID, kind, err)
	}
	a.apply(report, SourceQuery)

	// An answer without the field leaves the write unconfirmed.
	if p.value.NeedsUpdate() {
		return 0, fmt.Errorf("%w: %s %s: answer did not carry the value", ErrUnavailable, a.def.ID, kind)
	}
	return p.value.Get(), nil
}

// Set records value optimistically and sends it to the device.
func (a *Accessory) Set(ctx context.Context, kind Kind, value int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, ok := a.props[kind]
	if !ok {
		return fmt.Errorf("%w: %s has no %s", ErrUnsupportedKind, a.def.ID, kind)
	}

	// The device echoes values at its own resolution; record that value so
	// the echo matches the pending write.
	viaXY := (kind == KindHue || kind == KindSaturation) && a.def.ColorMode == ColorModeXY
	v := kind.Clamp(value)
	if !viaXY {
		v = kind.Clamp(a.channel.Normalize(kind.Field(), v))
	}

	a.mu.Lock()
	p.value.Set(v)
	values := Report{}
	if viaXY {
		xy := colorspace.HueSatToXY(
			float64(a.props[KindHue].value.Get()),
			float64(a.props[KindSaturation].value.Get()),
		)
		a.xy.Set(xy)
		values[FieldX] = xy.X
		values[FieldY] = xy.Y
	} else {
		values[kind.Field()] = v
	}
	a.mu.Unlock()

	if err := a.channel.Send(values); err != nil {
		return fmt.Errorf("setting %s %s: %w", a.def.ID, kind, err)
	}
	a.logDebug("value set", "kind", kind, "value", v)
	return nil
}

// HandleTelemetry applies an unsolicited device report.
func (a *Accessory) HandleTelemetry(report Report) {
	a.apply(report, SourceTelemetry)
}

// apply reconciles a report and notifies accepted changes. Query answers
// are authoritative and replace pending writes.
func (a *Accessory) apply(report Report, source string) {
	a.mu.Lock()
	u := &updater{a: a, source: source, authoritative: source == SourceQuery}

	fromXY := a.hasColor() && report.Has(FieldX, FieldY) && a.usesXY(report)
	fromCT := a.hasColor() && report.Has(FieldCT) && a.usesCT(report)

	for _, k := range AllKinds {
		p, ok := a.props[k]
		if !ok {
			continue
		}
		if (k == KindHue || k == KindSaturation) && (fromXY || fromCT) {
			continue
		}
		if v, ok := report[k.Field()]; ok {
			u.update(p, k.Clamp(v))
		}
	}

	switch {
	case fromXY:
		a.applyXY(u, colorspace.XY{X: report[FieldX], Y: report[FieldY]})
	case fromCT:
		hs := colorspace.XYToHueSat(colorspace.ColorTemperatureToXY(report[FieldCT]), colorspace.MaxPercent)
		u.update(a.props[KindHue], hs.Hue)
		u.update(a.props[KindSaturation], hs.Saturation)
	}
	a.mu.Unlock()

	for _, c := range u.changes {
		a.notifier.ValueChanged(c)
	}
}

// applyXY reconciles a chromaticity report. An echo of our own colour write
// confirms the pending hue and saturation as written; a new point is
// converted using the current brightness. Callers hold mu.
func (a *Accessory) applyXY(u *updater, xy colorspace.XY) {
	outcome := reconcile.Accepted
	if a.xy != nil {
		if u.authoritative {
			a.xy.Confirm(xy)
		} else {
			outcome = a.xy.Update(xy)
		}
	}

	hue, sat := a.props[KindHue], a.props[KindSaturation]
	switch {
	case u.authoritative || outcome == reconcile.Accepted:
		brightness := colorspace.MaxPercent
		if p, ok := a.props[KindBrightness]; ok {
			brightness = p.value.Get()
		}
		hs := colorspace.XYToHueSat(xy, float64(brightness))
		u.update(hue, hs.Hue)
		u.update(sat, hs.Saturation)
	case outcome == reconcile.EchoAccepted:
		u.echo(hue)
		u.echo(sat)
	}
}

func (a *Accessory) hasColor() bool {
	_, hue := a.props[KindHue]
	_, sat := a.props[KindSaturation]
	return hue && sat
}

// usesXY reports whether chromaticity is the colour source of a report.
// A reported ColorMode wins over the configured one.
func (a *Accessory) usesXY(report Report) bool {
	if mode, ok := report[FieldColorMode]; ok {
		return mode == zigbeeModeXY
	}
	return a.def.ColorMode == ColorModeXY
}

// usesCT reports whether colour temperature is the colour source of a report.
func (a *Accessory) usesCT(report Report) bool {
	if mode, ok := report[FieldColorMode]; ok {
		return mode == zigbeeModeCT
	}
	return a.def.ColorMode == ColorModeCT
}

// queryField picks the device field that answers a read of kind.
func (a *Accessory) queryField(kind Kind) Field {
	if (kind == KindHue || kind == KindSaturation) && a.def.ColorMode == ColorModeXY {
		return FieldX
	}
	return kind.Field()
}

// updater applies values to properties and collects accepted changes.
type updater struct {
	a             *Accessory
	source        string
	authoritative bool
	changes       []Change
}

func (u *updater) update(p *Property, v int) {
	var outcome reconcile.Outcome
	if u.authoritative {
		outcome = p.value.Confirm(v)
	} else {
		outcome = p.value.Update(v)
	}

	if u.a.observer != nil {
		u.a.observer.ObserveOutcome(u.a.def.ID, p.Kind, outcome)
	}
	if outcome != reconcile.Accepted {
		return
	}

	u.a.logDebug("value accepted", "kind", p.Kind, "value", v, "source", u.source)
	u.changes = append(u.changes, Change{
		AccessoryID: u.a.def.ID,
		Kind:        p.Kind,
		Value:       v,
		Outcome:     outcome,
		Source:      u.source,
		At:          u.a.now(),
	})
}

// echo settles a property whose write was confirmed indirectly, through the
// chromaticity it was sent as.
func (u *updater) echo(p *Property) {
	p.value.Confirm(p.value.Get())
	if u.a.observer != nil {
		u.a.observer.ObserveOutcome(u.a.def.ID, p.Kind, reconcile.EchoAccepted)
	}
}

func (a *Accessory) logDebug(msg string, args ...any) {
	if a.logger != nil {
		a.logger.Debug(msg, append([]any{"accessory", a.def.ID}, args...)...)
	}
}

func (a *Accessory) logWarn(msg string, args ...any) {
	if a.logger != nil {
		a.logger.Warn(msg, append([]any{"accessory", a.def.ID}, args...)...)
	}
}
