// Package button debounces a push button on a pulled-up input line and
// classifies how long it has been held.
//
// Classification is lazy: every query samples the line first, so nothing
// runs in the background. Time is injectable for tests.
package button

import (
	"fmt"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sweeney/heater-controller/internal/gpio"
)

// DefaultDebounce is used when New is given a non-positive duration.
const DefaultDebounce = 200 * time.Millisecond

// Press duration tiers, as multiples of the debounce window.
const (
	LongPressFactor     = 5
	VeryLongPressFactor = 15
)

// PressKind is the duration tier of the current press.
type PressKind int

const (
	PressNone PressKind = iota
	PressShort
	PressLong
	PressVeryLong
)

func (k PressKind) String() string {
	switch k {
	case PressShort:
		return "SHORT"
	case PressLong:
		return "LONG"
	case PressVeryLong:
		return "VERY_LONG"
	}
	return "NONE"
}

// Button tracks the debounced level of one input line.
//
// Query methods must be called from a single goroutine. Latch is the only
// method safe to call concurrently with them.
type Button struct {
	name string
	line gpio.Line
	now  func() time.Time
	log  *log.Entry

	debounce      time.Duration
	longAfter     time.Duration
	veryLongAfter time.Duration

	// pressed and changedAt are written by the polling goroutine only and
	// read by Latch.
	pressed   atomic.Bool
	changedAt atomic.Int64 // unix nanos of the last accepted transition

	kind PressKind

	// latched holds the unix nanos at which Latch saw a change, 0 if empty.
	latched atomic.Int64
}

// Option configures a Button.
type Option func(*Button)

// WithClock replaces time.Now. The clock must be safe for concurrent use
// if Latch is wired to an edge notifier.
func WithClock(now func() time.Time) Option {
	return func(b *Button) {
		b.now = now
	}
}

// WithName labels log output.
func WithName(name string) Option {
	return func(b *Button) {
		b.name = name
	}
}

// WithLogger replaces the default logger entry.
func WithLogger(entry *log.Entry) Option {
	return func(b *Button) {
		b.log = entry
	}
}

// New configures line as a pulled-up input and takes the initial sample.
// The initial sample counts as the last accepted transition.
func New(line gpio.Line, debounce time.Duration, opts ...Option) (*Button, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	b := &Button{
		line:          line,
		now:           time.Now,
		debounce:      debounce,
		longAfter:     LongPressFactor * debounce,
		veryLongAfter: VeryLongPressFactor * debounce,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.log == nil {
		b.log = log.WithField("button", b.name)
	}

	if err := line.Configure(gpio.Input, gpio.PullUp, gpio.High); err != nil {
		return nil, fmt.Errorf("configure button %s: %w", b.name, err)
	}
	raw, err := line.Read()
	if err != nil {
		return nil, fmt.Errorf("read button %s: %w", b.name, err)
	}

	pressed := isActive(raw)
	b.pressed.Store(pressed)
	b.changedAt.Store(b.now().UnixNano())
	if pressed {
		b.kind = PressShort
	}
	b.log.Debugf("initial level %s (pressed=%v)", raw, pressed)
	return b, nil
}

// isActive maps the electrical level to pressed: the switch pulls the
// line to ground against the pull-up.
func isActive(raw gpio.Level) bool {
	return raw == gpio.Low
}

// Name returns the label given with WithName.
func (b *Button) Name() string {
	return b.name
}

// Debounce returns the debounce window.
func (b *Button) Debounce() time.Duration {
	return b.debounce
}

// LongPressAfter returns the hold time after which a press is LONG.
func (b *Button) LongPressAfter() time.Duration {
	return b.longAfter
}

// VeryLongPressAfter returns the hold time after which a press is VERY_LONG.
func (b *Button) VeryLongPressAfter() time.Duration {
	return b.veryLongAfter
}

// poll samples the line if the debounce window since the last accepted
// transition has passed.
func (b *Button) poll() {
	b.drainLatch()

	now := b.now()
	elapsed := time.Duration(now.UnixNano() - b.changedAt.Load())
	if elapsed < b.debounce {
		return
	}

	raw, err := b.line.Read()
	if err != nil {
		b.log.WithError(err).Warn("read failed, keeping stable level")
		return
	}

	pressed := isActive(raw)
	if pressed != b.pressed.Load() {
		b.pressed.Store(pressed)
		b.changedAt.Store(now.UnixNano())
		if pressed {
			b.kind = PressShort
		} else {
			b.kind = PressNone
		}
		b.log.Debugf("accepted %s", b.stateName())
		return
	}

	if pressed {
		if kind := b.classify(elapsed); kind != b.kind {
			b.kind = kind
			b.log.Debugf("held %v, now %s", elapsed, kind)
		}
	}
}

func (b *Button) classify(held time.Duration) PressKind {
	switch {
	case held > b.veryLongAfter:
		return PressVeryLong
	case held > b.longAfter:
		return PressLong
	default:
		return PressShort
	}
}

func (b *Button) stateName() string {
	if b.pressed.Load() {
		return "pressed"
	}
	return "released"
}

// Latch is the interrupt-context entry point, meant to be called from an
// edge handler. It does the debounce window check and one raw read, and if
// the raw level differs from the stable level it records the time in a
// single-slot latch. It never blocks and writes nothing else.
//
// The next query drains the latch and forces the button to pressed/SHORT
// with the latched time, whatever direction the edge went. A spurious edge
// can therefore produce a short press but never a lost release; the full
// poll that follows qualifies the state.
func (b *Button) Latch() {
	now := b.now().UnixNano()
	if time.Duration(now-b.changedAt.Load()) < b.debounce {
		return
	}
	raw, err := b.line.Read()
	if err != nil {
		return
	}
	if isActive(raw) != b.pressed.Load() {
		b.latched.CompareAndSwap(0, now)
	}
}

// Pending reports whether Latch has recorded a change not yet drained.
func (b *Button) Pending() bool {
	return b.latched.Load() != 0
}

func (b *Button) drainLatch() {
	at := b.latched.Swap(0)
	if at == 0 {
		return
	}
	b.pressed.Store(true)
	b.changedAt.Store(at)
	b.kind = PressShort
	b.log.Debug("latched edge, forced short press")
}

// WatchEdges wires Latch to the line's edge events when the line supports
// them. It returns false for lines that can only be polled.
func (b *Button) WatchEdges() (bool, error) {
	n, ok := b.line.(gpio.EdgeNotifier)
	if !ok {
		return false, nil
	}
	if err := n.NotifyEdges(b.Latch); err != nil {
		return false, fmt.Errorf("watch button %s: %w", b.name, err)
	}
	return true, nil
}

// IsPressed reports whether the stable level is pressed.
func (b *Button) IsPressed() bool {
	b.poll()
	return b.pressed.Load()
}

// IsReleased reports whether the stable level is released.
func (b *Button) IsReleased() bool {
	return !b.IsPressed()
}

// Kind returns the current classification. It is PressNone exactly when
// the button is released.
func (b *Button) Kind() PressKind {
	b.poll()
	if !b.pressed.Load() {
		return PressNone
	}
	return b.kind
}

// IsShortPress reports whether the button is held and still within the
// short tier. It turns false once the hold grows LONG.
func (b *Button) IsShortPress() bool {
	return b.Kind() == PressShort
}

// IsLongPress reports whether the button is held in the LONG tier.
func (b *Button) IsLongPress() bool {
	return b.Kind() == PressLong
}

// IsVeryLongPress reports whether the button is held past the VERY_LONG
// threshold.
func (b *Button) IsVeryLongPress() bool {
	return b.Kind() == PressVeryLong
}
