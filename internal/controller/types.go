// Package controller maps classified button presses to heater settings and
// relay commands. Time is always injectable via time.Time parameters.
package controller

import (
	"time"

	"github.com/sweeney/heater-controller/internal/button"
)

// Role identifies what a button does.
type Role string

const (
	RoleTempUp    Role = "TEMP_UP"
	RoleTempDown  Role = "TEMP_DOWN"
	RoleTimerUp   Role = "TIMER_UP"
	RoleTimerDown Role = "TIMER_DOWN"
	RolePower     Role = "POWER"
)

// roles fixes the order buttons are polled and events emitted.
var roles = []Role{RolePower, RoleTempUp, RoleTempDown, RoleTimerUp, RoleTimerDown}

// EventType represents something the controller did.
type EventType string

const (
	EventPress        EventType = "PRESS"
	EventSetting      EventType = "SETTING"
	EventRelayOn      EventType = "RELAY_ON"
	EventRelayOff     EventType = "RELAY_OFF"
	EventTimerExpired EventType = "TIMER_EXPIRED"
)

// Event is emitted by Step.
type Event struct {
	Timestamp time.Time
	Type      EventType
	Role      Role             // set for PRESS and SETTING
	Press     button.PressKind // set for PRESS
	Settings  Settings
	Heating   bool
}

// Settings are the user-adjustable values.
type Settings struct {
	Temperature  int // level, not degrees
	TimerMinutes int
}

// Limits bounds one setting.
type Limits struct {
	Min     int `yaml:"min"`
	Max     int `yaml:"max"`
	Step    int `yaml:"step"`
	Default int `yaml:"default"`
}

// Clamp keeps v within [Min, Max].
func (l Limits) Clamp(v int) int {
	if v < l.Min {
		return l.Min
	}
	if v > l.Max {
		return l.Max
	}
	return v
}

// Default setting ranges.
var (
	DefaultTemperature = Limits{Min: 1, Max: 10, Step: 1, Default: 2}
	DefaultTimer       = Limits{Min: 10, Max: 720, Step: 10, Default: 180}
)

// LongPressSteps is how many steps a LONG press moves a setting.
const LongPressSteps = 5

// EventCounts tracks the number of each event since startup.
type EventCounts struct {
	ShortPresses    int
	LongPresses     int
	VeryLongPresses int
	RelayOn         int
	RelayOff        int
	TimerExpired    int
}

// HeartbeatData contains information for a heartbeat log line.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    EventCounts
}
