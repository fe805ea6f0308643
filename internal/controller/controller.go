package controller

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sweeney/heater-controller/internal/button"
)

// PressSource is a debounced button. *button.Button implements it.
type PressSource interface {
	Kind() button.PressKind
}

// Switch is the heater output. *relay.Relay implements it.
type Switch interface {
	On() error
	Off() error
	Toggle() error
	IsOn() bool
}

// Buttons wires a source to each role. Nil entries are skipped.
type Buttons struct {
	TempUp    PressSource
	TempDown  PressSource
	TimerUp   PressSource
	TimerDown PressSource
	Power     PressSource
}

func (b Buttons) byRole() map[Role]PressSource {
	return map[Role]PressSource{
		RoleTempUp:    b.TempUp,
		RoleTempDown:  b.TempDown,
		RoleTimerUp:   b.TimerUp,
		RoleTimerDown: b.TimerDown,
		RolePower:     b.Power,
	}
}

// Config holds the setting ranges.
type Config struct {
	Temperature Limits
	Timer       Limits
}

// Controller tracks settings and drives the heater from button presses.
type Controller struct {
	buttons map[Role]PressSource
	heater  Switch
	cfg     Config

	settings Settings
	last     map[Role]button.PressKind
	peak     map[Role]button.PressKind // highest tier acted on in the current press
	deadline time.Time // zero when not heating

	startTime     time.Time
	eventCounts   EventCounts
	lastHeartbeat time.Time
}

// New creates a controller with default settings.
// The startTime is used for calculating uptime in heartbeats.
func New(buttons Buttons, heater Switch, cfg Config, startTime time.Time) *Controller {
	if cfg.Temperature == (Limits{}) {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.Timer == (Limits{}) {
		cfg.Timer = DefaultTimer
	}
	c := &Controller{
		buttons:       buttons.byRole(),
		heater:        heater,
		cfg:           cfg,
		last:          make(map[Role]button.PressKind),
		peak:          make(map[Role]button.PressKind),
		startTime:     startTime,
		lastHeartbeat: startTime,
	}
	c.settings = c.defaults()
	return c
}

func (c *Controller) defaults() Settings {
	return Settings{
		Temperature:  c.cfg.Temperature.Clamp(c.cfg.Temperature.Default),
		TimerMinutes: c.cfg.Timer.Clamp(c.cfg.Timer.Default),
	}
}

// Step polls every button once, applies actions for presses that rose to a
// higher tier, and enforces the auto-off timer. It returns what happened.
//
// A press is acted on at most once per tier until the button reads
// released. A hold that drops back to SHORT (a latched release edge) is
// not a new press.
func (c *Controller) Step(now time.Time) []Event {
	var events []Event

	for _, role := range roles {
		src := c.buttons[role]
		if src == nil {
			continue
		}
		kind := src.Kind()
		c.last[role] = kind
		if kind == button.PressNone {
			delete(c.peak, role)
			continue
		}
		if kind <= c.peak[role] {
			continue
		}
		c.peak[role] = kind

		c.countPress(kind)
		events = append(events, Event{Type: EventPress, Role: role, Press: kind})
		events = append(events, c.apply(role, kind, now)...)
	}

	events = append(events, c.checkTimer(now)...)

	for i := range events {
		events[i].Timestamp = now
		events[i].Settings = c.settings
		events[i].Heating = c.Heating()
	}
	return events
}

func (c *Controller) countPress(kind button.PressKind) {
	switch kind {
	case button.PressShort:
		c.eventCounts.ShortPresses++
	case button.PressLong:
		c.eventCounts.LongPresses++
	case button.PressVeryLong:
		c.eventCounts.VeryLongPresses++
	}
}

func (c *Controller) apply(role Role, kind button.PressKind, now time.Time) []Event {
	switch role {
	case RolePower:
		return c.power(kind, now)
	case RoleTempUp:
		return c.adjust(role, &c.settings.Temperature, c.cfg.Temperature, +1, kind, now)
	case RoleTempDown:
		return c.adjust(role, &c.settings.Temperature, c.cfg.Temperature, -1, kind, now)
	case RoleTimerUp:
		return c.adjust(role, &c.settings.TimerMinutes, c.cfg.Timer, +1, kind, now)
	case RoleTimerDown:
		return c.adjust(role, &c.settings.TimerMinutes, c.cfg.Timer, -1, kind, now)
	}
	return nil
}

// adjust moves a setting one step for SHORT, LongPressSteps for LONG and
// to the limit for VERY_LONG.
func (c *Controller) adjust(role Role, v *int, lim Limits, dir int, kind button.PressKind, now time.Time) []Event {
	old := *v
	switch kind {
	case button.PressShort:
		*v = lim.Clamp(old + dir*lim.Step)
	case button.PressLong:
		*v = lim.Clamp(old + dir*LongPressSteps*lim.Step)
	case button.PressVeryLong:
		if dir > 0 {
			*v = lim.Max
		} else {
			*v = lim.Min
		}
	}
	if *v == old {
		return nil
	}

	if (role == RoleTimerUp || role == RoleTimerDown) && !c.deadline.IsZero() {
		c.arm(now)
	}
	return []Event{{Type: EventSetting, Role: role}}
}

// power toggles the heater on SHORT; VERY_LONG switches it off and
// restores default settings.
func (c *Controller) power(kind button.PressKind, now time.Time) []Event {
	switch kind {
	case button.PressShort:
		if err := c.heater.Toggle(); err != nil {
			log.WithError(err).Error("controller: toggle heater failed")
			return nil
		}
		return c.syncHeater(now)

	case button.PressVeryLong:
		var events []Event
		if c.heater.IsOn() {
			if err := c.heater.Off(); err != nil {
				log.WithError(err).Error("controller: switch heater off failed")
			}
			events = c.syncHeater(now)
		}
		if c.settings != c.defaults() {
			c.settings = c.defaults()
			events = append(events, Event{Type: EventSetting, Role: RolePower})
		}
		return events
	}
	return nil
}

// syncHeater reads the relay and reports the change, arming or clearing
// the deadline.
func (c *Controller) syncHeater(now time.Time) []Event {
	if c.heater.IsOn() {
		if !c.deadline.IsZero() {
			return nil
		}
		c.arm(now)
		c.eventCounts.RelayOn++
		return []Event{{Type: EventRelayOn}}
	}
	if c.deadline.IsZero() {
		return nil
	}
	c.deadline = time.Time{}
	c.eventCounts.RelayOff++
	return []Event{{Type: EventRelayOff}}
}

func (c *Controller) arm(now time.Time) {
	c.deadline = now.Add(time.Duration(c.settings.TimerMinutes) * time.Minute)
}

// checkTimer switches the heater off once the deadline has passed. It also
// notices the relay being switched outside the controller.
func (c *Controller) checkTimer(now time.Time) []Event {
	if !c.heater.IsOn() {
		if c.deadline.IsZero() {
			return nil
		}
		log.Warn("controller: heater found off, clearing timer")
		return c.syncHeater(now)
	}

	if c.deadline.IsZero() {
		log.Warn("controller: heater found on, arming timer")
		return c.syncHeater(now)
	}

	if now.Before(c.deadline) {
		return nil
	}
	if err := c.heater.Off(); err != nil {
		log.WithError(err).Error("controller: timer expired but heater off failed")
		return nil
	}
	c.eventCounts.TimerExpired++
	events := []Event{{Type: EventTimerExpired}}
	return append(events, c.syncHeater(now)...)
}

// Settings returns the current settings.
func (c *Controller) Settings() Settings {
	return c.settings
}

// Heating reports whether the auto-off timer is running.
func (c *Controller) Heating() bool {
	return !c.deadline.IsZero()
}

// Remaining returns the time left before auto-off, 0 when not heating.
func (c *Controller) Remaining(now time.Time) time.Duration {
	if c.deadline.IsZero() || !now.Before(c.deadline) {
		return 0
	}
	return c.deadline.Sub(now)
}

// Presses returns the classification seen at the last Step, by role.
func (c *Controller) Presses() map[Role]button.PressKind {
	out := make(map[Role]button.PressKind, len(c.last))
	for role, src := range c.buttons {
		if src == nil {
			continue
		}
		out[role] = c.last[role]
	}
	return out
}

// EventCountsSnapshot returns a copy of the event counts.
func (c *Controller) EventCountsSnapshot() EventCounts {
	return c.eventCounts
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since the
// last heartbeat (or startup). Returns nil if the interval has not elapsed,
// or if interval is <= 0 (disabled).
func (c *Controller) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}

	if now.Sub(c.lastHeartbeat) < interval {
		return nil
	}

	c.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(c.startTime),
		Counts:    c.eventCounts,
	}
}
