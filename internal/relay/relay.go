// Package relay drives a two-state output such as the heater relay.
//
// Every operation reads the line back after writing, so the reported state
// is what the hardware shows, not what was last commanded.
package relay

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/sweeney/heater-controller/internal/gpio"
)

// State is the logical state of the relay.
type State string

const (
	StateOn  State = "ON"
	StateOff State = "OFF"
)

// Relay is a single output line. Not safe for concurrent use.
type Relay struct {
	name      string
	line      gpio.Line
	activeLow bool
	log       *log.Entry

	status State
}

// Option configures a Relay.
type Option func(*Relay)

// WithActiveLow maps ON to the low level, for relay boards that energise
// the coil when the input is pulled down.
func WithActiveLow() Option {
	return func(r *Relay) {
		r.activeLow = true
	}
}

// WithName labels log output.
func WithName(name string) Option {
	return func(r *Relay) {
		r.name = name
	}
}

// WithLogger replaces the default logger entry.
func WithLogger(entry *log.Entry) Option {
	return func(r *Relay) {
		r.log = entry
	}
}

// New configures line as an output and switches the relay off.
func New(line gpio.Line, opts ...Option) (*Relay, error) {
	r := &Relay{line: line, status: StateOff}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = log.WithField("relay", r.name)
	}

	if err := line.Configure(gpio.Output, gpio.PullNone, r.level(StateOff)); err != nil {
		return nil, fmt.Errorf("configure relay %s: %w", r.name, err)
	}
	if err := r.Off(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Relay) level(s State) gpio.Level {
	on := s == StateOn
	return gpio.Level(on != r.activeLow)
}

func (r *Relay) state(l gpio.Level) State {
	if bool(l) != r.activeLow {
		return StateOn
	}
	return StateOff
}

func (r *Relay) drive(s State) error {
	if err := r.line.Write(r.level(s)); err != nil {
		return fmt.Errorf("switch relay %s %s: %w", r.name, s, err)
	}
	got, err := r.Status()
	if err != nil {
		return err
	}
	if got != s {
		r.log.Warnf("commanded %s, line reads %s", s, got)
	} else {
		r.log.Debugf("switched %s", s)
	}
	return nil
}

// On energises the relay.
func (r *Relay) On() error {
	return r.drive(StateOn)
}

// Off releases the relay.
func (r *Relay) Off() error {
	return r.drive(StateOff)
}

// Toggle drives the complement of the state read from the line just before
// the write.
func (r *Relay) Toggle() error {
	cur, err := r.Status()
	if err != nil {
		return err
	}
	if cur == StateOn {
		return r.Off()
	}
	return r.On()
}

// Status reads the line and updates the cached state.
func (r *Relay) Status() (State, error) {
	l, err := r.line.Read()
	if err != nil {
		return r.status, fmt.Errorf("read relay %s: %w", r.name, err)
	}
	r.status = r.state(l)
	return r.status, nil
}

// current reads the line, falling back to the cached state on error so
// IsOn and IsOff stay complementary.
func (r *Relay) current() State {
	s, err := r.Status()
	if err != nil {
		r.log.WithError(err).Warn("read failed, using cached state")
	}
	return s
}

// IsOn reports whether the line reads on.
func (r *Relay) IsOn() bool {
	return r.current() == StateOn
}

// IsOff reports whether the line reads off.
func (r *Relay) IsOff() bool {
	return r.current() == StateOff
}

// Name returns the label given with WithName.
func (r *Relay) Name() string {
	return r.name
}

// Close switches the relay off and releases the line.
func (r *Relay) Close() error {
	var errs []error
	if err := r.Off(); err != nil {
		errs = append(errs, err)
	}
	if err := r.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close relay %s: %w", r.name, err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
