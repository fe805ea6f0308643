package controller

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/heater-controller/internal/button"
	"github.com/sweeney/heater-controller/internal/gpio"
	"github.com/sweeney/heater-controller/internal/relay"
)

var start = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// fakeSource reports whatever kind the test sets.
type fakeSource struct {
	kind button.PressKind
}

func (f *fakeSource) Kind() button.PressKind { return f.kind }

type rig struct {
	c       *Controller
	line    *gpio.FakeLine
	heater  *relay.Relay
	tempUp  *fakeSource
	tempDn  *fakeSource
	timerUp *fakeSource
	timerDn *fakeSource
	power   *fakeSource
}

func newRig(t *testing.T) *rig {
	t.Helper()
	line := gpio.NewFakeLine(gpio.Low)
	heater, err := relay.New(line, relay.WithName("heater"))
	require.NoError(t, err)

	r := &rig{
		line:    line,
		heater:  heater,
		tempUp:  &fakeSource{},
		tempDn:  &fakeSource{},
		timerUp: &fakeSource{},
		timerDn: &fakeSource{},
		power:   &fakeSource{},
	}
	r.c = New(Buttons{
		TempUp:    r.tempUp,
		TempDown:  r.tempDn,
		TimerUp:   r.timerUp,
		TimerDown: r.timerDn,
		Power:     r.power,
	}, heater, Config{}, start)
	return r
}

// press runs src through the given tiers and releases it, one Step each.
func (r *rig) press(now time.Time, src *fakeSource, kinds ...button.PressKind) []Event {
	var events []Event
	for _, k := range kinds {
		src.kind = k
		events = append(events, r.c.Step(now)...)
	}
	src.kind = button.PressNone
	return append(events, r.c.Step(now)...)
}

func types(events []Event) []EventType {
	out := make([]EventType, 0, len(events))
	for _, e := range events {
		out = append(out, e.Type)
	}
	return out
}

func TestNewUsesDefaults(t *testing.T) {
	r := newRig(t)

	assert.Equal(t, Settings{Temperature: 2, TimerMinutes: 180}, r.c.Settings())
	assert.False(t, r.c.Heating())
	assert.Zero(t, r.c.Remaining(start))
	assert.Empty(t, r.c.Step(start))
}

func TestNewClampsConfiguredDefault(t *testing.T) {
	c := New(Buttons{}, &fakeSwitch{}, Config{
		Temperature: Limits{Min: 3, Max: 5, Step: 1, Default: 9},
		Timer:       Limits{Min: 10, Max: 60, Step: 10, Default: 1},
	}, start)

	assert.Equal(t, Settings{Temperature: 5, TimerMinutes: 10}, c.Settings())
}

func TestTemperatureAdjust(t *testing.T) {
	tests := []struct {
		name  string
		up    bool
		kinds []button.PressKind
		want  int
	}{
		{"short up", true, []button.PressKind{button.PressShort}, 3},
		{"short down", false, []button.PressKind{button.PressShort}, 1},
		{"short down clamps", false, []button.PressKind{button.PressShort, button.PressNone, button.PressShort}, 1},
		{"long up", true, []button.PressKind{button.PressShort, button.PressLong}, 8},
		{"very long up", true, []button.PressKind{button.PressShort, button.PressLong, button.PressVeryLong}, 10},
		{"very long down", false, []button.PressKind{button.PressShort, button.PressLong, button.PressVeryLong}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t)
			src := r.tempDn
			if tt.up {
				src = r.tempUp
			}
			r.press(start, src, tt.kinds...)
			assert.Equal(t, tt.want, r.c.Settings().Temperature)
		})
	}
}

func TestPressEventsOncePerTier(t *testing.T) {
	r := newRig(t)

	r.tempUp.kind = button.PressShort
	events := r.c.Step(start)
	assert.Equal(t, []EventType{EventPress, EventSetting}, types(events))
	assert.Equal(t, RoleTempUp, events[0].Role)
	assert.Equal(t, button.PressShort, events[0].Press)
	assert.Equal(t, 3, events[1].Settings.Temperature)

	// Same tier on the next step is not a new press.
	assert.Empty(t, r.c.Step(start.Add(100*time.Millisecond)))

	r.tempUp.kind = button.PressLong
	events = r.c.Step(start.Add(time.Second))
	assert.Equal(t, []EventType{EventPress, EventSetting}, types(events))
	assert.Equal(t, button.PressLong, events[0].Press)

	r.tempUp.kind = button.PressNone
	assert.Empty(t, r.c.Step(start.Add(2*time.Second)))

	counts := r.c.EventCountsSnapshot()
	assert.Equal(t, 1, counts.ShortPresses)
	assert.Equal(t, 1, counts.LongPresses)
	assert.Equal(t, 0, counts.VeryLongPresses)
}

func TestSettingUnchangedAtLimitEmitsPressOnly(t *testing.T) {
	r := newRig(t)
	r.press(start, r.timerUp, button.PressShort, button.PressLong, button.PressVeryLong)
	require.Equal(t, 720, r.c.Settings().TimerMinutes)

	events := r.press(start, r.timerUp, button.PressShort)
	assert.Equal(t, []EventType{EventPress}, types(events))
}

func TestTimerAdjust(t *testing.T) {
	r := newRig(t)

	r.press(start, r.timerUp, button.PressShort)
	assert.Equal(t, 190, r.c.Settings().TimerMinutes)

	r.press(start, r.timerDn, button.PressShort, button.PressLong)
	assert.Equal(t, 130, r.c.Settings().TimerMinutes)

	r.press(start, r.timerDn, button.PressShort, button.PressLong, button.PressVeryLong)
	assert.Equal(t, 10, r.c.Settings().TimerMinutes)
}

func TestPowerShortTogglesHeater(t *testing.T) {
	r := newRig(t)

	events := r.press(start, r.power, button.PressShort)
	assert.Equal(t, []EventType{EventPress, EventRelayOn}, types(events))
	assert.True(t, events[1].Heating)
	assert.True(t, r.heater.IsOn())
	assert.True(t, r.c.Heating())
	assert.Equal(t, 180*time.Minute, r.c.Remaining(start))

	events = r.press(start.Add(time.Minute), r.power, button.PressShort)
	assert.Equal(t, []EventType{EventPress, EventRelayOff}, types(events))
	assert.False(t, events[1].Heating)
	assert.True(t, r.heater.IsOff())
	assert.False(t, r.c.Heating())

	counts := r.c.EventCountsSnapshot()
	assert.Equal(t, 1, counts.RelayOn)
	assert.Equal(t, 1, counts.RelayOff)
}

func TestPowerVeryLongResets(t *testing.T) {
	r := newRig(t)
	r.press(start, r.tempUp, button.PressShort, button.PressLong)
	r.press(start, r.timerDn, button.PressShort)
	require.Equal(t, Settings{Temperature: 8, TimerMinutes: 170}, r.c.Settings())

	events := r.press(start, r.power, button.PressShort, button.PressLong, button.PressVeryLong)

	// Short switches on, long does nothing, very long switches off and resets.
	assert.Equal(t, []EventType{
		EventPress, EventRelayOn,
		EventPress,
		EventPress, EventRelayOff, EventSetting,
	}, types(events))
	assert.True(t, r.heater.IsOff())
	assert.False(t, r.c.Heating())
	assert.Equal(t, Settings{Temperature: 2, TimerMinutes: 180}, r.c.Settings())
}

func TestTimerExpiry(t *testing.T) {
	r := newRig(t)
	r.press(start, r.timerDn, button.PressShort, button.PressLong, button.PressVeryLong)
	r.press(start, r.power, button.PressShort)
	require.True(t, r.c.Heating())

	assert.Empty(t, r.c.Step(start.Add(9*time.Minute+59*time.Second)))
	assert.Equal(t, time.Second, r.c.Remaining(start.Add(9*time.Minute+59*time.Second)))

	events := r.c.Step(start.Add(10 * time.Minute))
	assert.Equal(t, []EventType{EventTimerExpired, EventRelayOff}, types(events))
	assert.True(t, r.heater.IsOff())
	assert.False(t, r.c.Heating())
	assert.Equal(t, 1, r.c.EventCountsSnapshot().TimerExpired)
}

func TestTimerChangeWhileHeatingRearms(t *testing.T) {
	r := newRig(t)
	r.press(start, r.power, button.PressShort)

	later := start.Add(time.Hour)
	r.press(later, r.timerUp, button.PressShort)

	assert.Equal(t, 190*time.Minute, r.c.Remaining(later))
}

func TestTemperatureChangeDoesNotRearm(t *testing.T) {
	r := newRig(t)
	r.press(start, r.power, button.PressShort)

	later := start.Add(time.Hour)
	r.press(later, r.tempUp, button.PressShort)

	assert.Equal(t, 120*time.Minute, r.c.Remaining(later))
}

func TestExternalRelayChanges(t *testing.T) {
	r := newRig(t)
	r.press(start, r.power, button.PressShort)

	r.line.Set(gpio.Low)
	events := r.c.Step(start.Add(time.Second))
	assert.Equal(t, []EventType{EventRelayOff}, types(events))
	assert.False(t, r.c.Heating())

	r.line.Set(gpio.High)
	events = r.c.Step(start.Add(2 * time.Second))
	assert.Equal(t, []EventType{EventRelayOn}, types(events))
	assert.Equal(t, 180*time.Minute, r.c.Remaining(start.Add(2*time.Second)))
}

func TestStuckRelayDoesNotArmTimer(t *testing.T) {
	r := newRig(t)
	r.line.IgnoreWrites = true

	events := r.press(start, r.power, button.PressShort)
	assert.Equal(t, []EventType{EventPress}, types(events))
	assert.False(t, r.c.Heating())
}

// fakeSwitch records calls and can fail.
type fakeSwitch struct {
	on        bool
	toggleErr error
	offErr    error
}

func (f *fakeSwitch) On() error {
	f.on = true
	return nil
}

func (f *fakeSwitch) Off() error {
	if f.offErr != nil {
		return f.offErr
	}
	f.on = false
	return nil
}

func (f *fakeSwitch) Toggle() error {
	if f.toggleErr != nil {
		return f.toggleErr
	}
	f.on = !f.on
	return nil
}

func (f *fakeSwitch) IsOn() bool { return f.on }

func TestToggleErrorEmitsNoRelayEvent(t *testing.T) {
	sw := &fakeSwitch{toggleErr: errors.New("gpio fault")}
	power := &fakeSource{kind: button.PressShort}
	c := New(Buttons{Power: power}, sw, Config{}, start)

	events := c.Step(start)
	assert.Equal(t, []EventType{EventPress}, types(events))
	assert.False(t, c.Heating())
}

func TestExpiryOffErrorRetriesNextStep(t *testing.T) {
	sw := &fakeSwitch{}
	power := &fakeSource{kind: button.PressShort}
	c := New(Buttons{Power: power}, sw, Config{}, start)
	c.Step(start)
	require.True(t, c.Heating())

	sw.offErr = errors.New("gpio fault")
	end := start.Add(180 * time.Minute)
	assert.Empty(t, c.Step(end))
	assert.True(t, sw.on)

	sw.offErr = nil
	events := c.Step(end.Add(time.Second))
	assert.Equal(t, []EventType{EventTimerExpired, EventRelayOff}, types(events))
}

func TestTierDropWithinPressIgnored(t *testing.T) {
	r := newRig(t)

	events := r.press(start, r.power, button.PressShort, button.PressLong, button.PressVeryLong, button.PressShort)
	assert.Equal(t, []EventType{EventPress, EventRelayOn, EventPress, EventPress, EventRelayOff}, types(events))
	assert.True(t, r.heater.IsOff())
	assert.False(t, r.c.Heating())

	r.press(start, r.tempUp, button.PressShort, button.PressLong, button.PressShort)
	assert.Equal(t, 8, r.c.Settings().Temperature)
	assert.Equal(t, button.PressNone, r.c.Presses()[RoleTempUp])

	// After a release the next press acts again.
	r.press(start, r.tempUp, button.PressShort)
	assert.Equal(t, 9, r.c.Settings().Temperature)

	counts := r.c.EventCountsSnapshot()
	assert.Equal(t, 3, counts.ShortPresses)
	assert.Equal(t, 2, counts.LongPresses)
	assert.Equal(t, 1, counts.VeryLongPresses)
}

func TestNilButtonsSkipped(t *testing.T) {
	c := New(Buttons{Power: &fakeSource{}}, &fakeSwitch{}, Config{}, start)

	assert.Empty(t, c.Step(start))
	assert.Equal(t, map[Role]button.PressKind{RolePower: button.PressNone}, c.Presses())
}

func TestPressesReportsLastKinds(t *testing.T) {
	r := newRig(t)
	r.tempUp.kind = button.PressShort
	r.c.Step(start)

	p := r.c.Presses()
	assert.Len(t, p, 5)
	assert.Equal(t, button.PressShort, p[RoleTempUp])
	assert.Equal(t, button.PressNone, p[RolePower])
}

func TestLimitsClamp(t *testing.T) {
	l := Limits{Min: 1, Max: 10}
	assert.Equal(t, 1, l.Clamp(-3))
	assert.Equal(t, 5, l.Clamp(5))
	assert.Equal(t, 10, l.Clamp(11))
}

func TestCheckHeartbeat(t *testing.T) {
	r := newRig(t)

	tests := []struct {
		name     string
		at       time.Duration
		interval time.Duration
		wantNil  bool
	}{
		{"disabled", time.Hour, 0, true},
		{"before interval", 59 * time.Second, time.Minute, true},
		{"at interval", time.Minute, time.Minute, false},
		{"just after last", time.Minute + time.Second, time.Minute, true},
		{"next interval", 2 * time.Minute, time.Minute, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hb := r.c.CheckHeartbeat(start.Add(tt.at), tt.interval)
			if tt.wantNil {
				assert.Nil(t, hb)
				return
			}
			require.NotNil(t, hb)
			assert.Equal(t, tt.at, hb.Uptime)
			assert.Equal(t, start.Add(tt.at), hb.Timestamp)
		})
	}
}

func TestHeartbeatCarriesCounts(t *testing.T) {
	r := newRig(t)
	r.press(start, r.power, button.PressShort)
	r.press(start, r.power, button.PressShort)

	hb := r.c.CheckHeartbeat(start.Add(time.Hour), time.Minute)
	require.NotNil(t, hb)
	assert.Equal(t, EventCounts{ShortPresses: 2, RelayOn: 1, RelayOff: 1}, hb.Counts)
}
