package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/heater-controller/internal/controller"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event            string            `json:"event,omitempty"`
	Reason           string            `json:"reason,omitempty"`
	Heater           string            `json:"heater"`
	Heating          bool              `json:"heating"`
	RemainingSeconds int64             `json:"remaining_seconds"`
	Temperature      int               `json:"temperature"`
	TimerMinutes     int               `json:"timer_minutes"`
	Buttons          map[string]string `json:"buttons"`
	Ready            bool              `json:"ready"`
	UptimeSeconds    int64             `json:"uptime_seconds"`
	StartTime        string            `json:"start_time"`
	Timestamp        string            `json:"timestamp"`
	Counts           CountsJSON        `json:"event_counts"`
	Config           ConfigJSON        `json:"config"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	ShortPresses    int `json:"short_presses"`
	LongPresses     int `json:"long_presses"`
	VeryLongPresses int `json:"very_long_presses"`
	RelayOn         int `json:"relay_on"`
	RelayOff        int `json:"relay_off"`
	TimerExpired    int `json:"timer_expired"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Driver      string `json:"driver"`
	PollMs      int64  `json:"poll_ms"`
	DebounceMs  int64  `json:"debounce_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	ActiveLow   bool   `json:"active_low"`
}

func buildInner(snap Snapshot) StatusInner {
	heater := string(snap.Heater)
	if heater == "" {
		heater = "UNKNOWN"
	}

	buttons := make(map[string]string, len(snap.Presses))
	for role, kind := range snap.Presses {
		buttons[string(role)] = kind.String()
	}

	return StatusInner{
		Heater:           heater,
		Heating:          snap.Heating,
		RemainingSeconds: int64(snap.Remaining.Truncate(time.Second).Seconds()),
		Temperature:      snap.Settings.Temperature,
		TimerMinutes:     snap.Settings.TimerMinutes,
		Buttons:          buttons,
		Ready:            snap.Ready,
		UptimeSeconds:    int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:        snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:        snap.Now.UTC().Format(time.RFC3339),
		Counts:           countsJSON(snap.Counts),
		Config: ConfigJSON{
			Driver:      snap.Config.Driver,
			PollMs:      snap.Config.PollMs,
			DebounceMs:  snap.Config.DebounceMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			ActiveLow:   snap.Config.ActiveLow,
		},
	}
}

func countsJSON(c controller.EventCounts) CountsJSON {
	return CountsJSON{
		ShortPresses:    c.ShortPresses,
		LongPresses:     c.LongPresses,
		VeryLongPresses: c.VeryLongPresses,
		RelayOn:         c.RelayOn,
		RelayOff:        c.RelayOff,
		TimerExpired:    c.TimerExpired,
	}
}

// FormatJSON returns the indented JSON status (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns single-line JSON status tagged with a system
// event such as STARTUP, HEARTBEAT or SHUTDOWN.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
