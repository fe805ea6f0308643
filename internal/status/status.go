// Package status provides a thread-safe status tracker for the heater controller.
// It is written by the run loop and read by status reporting.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/heater-controller/internal/button"
	"github.com/sweeney/heater-controller/internal/controller"
	"github.com/sweeney/heater-controller/internal/relay"
)

// Config contains daemon configuration for display.
type Config struct {
	Driver      string
	PollMs      int64
	DebounceMs  int64
	HeartbeatMs int64
	ActiveLow   bool
}

// State is what the run loop reports on every tick.
type State struct {
	Heater    relay.State
	Heating   bool
	Remaining time.Duration
	Settings  controller.Settings
	Presses   map[controller.Role]button.PressKind
	Counts    controller.EventCounts
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	State
	Ready     bool
	StartTime time.Time
	Now       time.Time
	Config    Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// SetClock replaces the clock used to stamp snapshots.
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	t.now = now
	t.mu.Unlock()
}

// Update replaces the reported state and marks the tracker ready.
// Called from runLoop on every tick.
func (t *Tracker) Update(s State) {
	presses := make(map[controller.Role]button.PressKind, len(s.Presses))
	for role, kind := range s.Presses {
		presses[role] = kind
	}
	s.Presses = presses

	t.mu.Lock()
	t.snap.State = s
	t.snap.Ready = true
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set from the tracker clock at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	now := t.now
	t.mu.RUnlock()
	s.Now = now()
	return s
}
