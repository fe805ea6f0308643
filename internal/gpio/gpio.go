// Package gpio provides digital line access with hardware abstraction.
// Real backends use the Linux GPIO character device, periph.io or go-rpio.
// The fake implementation allows testing without hardware.
package gpio

// Level is the electrical level of a digital line.
type Level bool

const (
	Low  Level = false
	High Level = true
)

func (l Level) String() string {
	if l {
		return "HIGH"
	}
	return "LOW"
}

// Direction selects whether a line is sampled or driven.
type Direction int

const (
	Input Direction = iota
	Output
)

func (d Direction) String() string {
	if d == Output {
		return "output"
	}
	return "input"
}

// Pull selects the line bias. Only meaningful for inputs.
type Pull int

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

func (p Pull) String() string {
	switch p {
	case PullUp:
		return "pull-up"
	case PullDown:
		return "pull-down"
	}
	return "none"
}

// Line is a single addressable digital line.
type Line interface {
	// Configure sets direction and bias. Output lines are driven to
	// initial as they switch to output; inputs ignore it.
	Configure(dir Direction, pull Pull, initial Level) error

	// Read returns the current electrical level. For outputs this is the
	// level reported by the hardware, not the last value written.
	Read() (Level, error)

	// Write drives an output line.
	Write(level Level) error

	// Close releases the line.
	Close() error
}

// EdgeNotifier is implemented by lines that can report level changes
// asynchronously. fn runs outside the caller's goroutine and must not block.
type EdgeNotifier interface {
	NotifyEdges(fn func()) error
}

// Driver hands out lines by BCM pin number.
type Driver interface {
	Line(pin int) (Line, error)
	Close() error
	String() string
}

// Default BCM pin assignment.
const (
	DefaultPinTempUp    = 13
	DefaultPinTempDown  = 12
	DefaultPinTimerUp   = 14
	DefaultPinTimerDown = 27
	DefaultPinPower     = 26
	DefaultPinHeater    = 23
)
