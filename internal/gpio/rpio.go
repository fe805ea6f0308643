//go:build linux

package gpio

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/stianeikeland/go-rpio/v4"
)

// RpioDriver accesses BCM2835-family GPIO registers through /dev/gpiomem.
// It has no edge notification; buttons on it are polled only.
type RpioDriver struct {
	mu    sync.Mutex
	lines []*rpioLine
}

func openRpio() (Driver, error) {
	if err := rpio.Open(); err != nil {
		return nil, errors.Wrap(err, "failed to open rpio")
	}
	return &RpioDriver{}, nil
}

func (d *RpioDriver) Line(pin int) (Line, error) {
	if pin < 0 || pin > 53 {
		return nil, errors.Errorf("pin %d out of range (rpio takes 0-53)", pin)
	}
	l := &rpioLine{pin: rpio.Pin(pin)}
	d.mu.Lock()
	d.lines = append(d.lines, l)
	d.mu.Unlock()
	return l, nil
}

// Close returns every line to input before unmapping the registers.
func (d *RpioDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, l := range d.lines {
		l.Close()
	}
	return rpio.Close()
}

func (d *RpioDriver) String() string {
	return DriverRpio
}

type rpioLine struct {
	pin rpio.Pin
	dir Direction
}

func (l *rpioLine) Configure(dir Direction, pull Pull, initial Level) error {
	l.dir = dir
	if dir == Output {
		// Latch the level before switching direction so the pin never
		// drives anything else.
		if initial {
			l.pin.High()
		} else {
			l.pin.Low()
		}
		l.pin.Output()
		return nil
	}
	l.pin.Input()
	switch pull {
	case PullUp:
		l.pin.PullUp()
	case PullDown:
		l.pin.PullDown()
	default:
		l.pin.PullOff()
	}
	return nil
}

func (l *rpioLine) Read() (Level, error) {
	return l.pin.Read() == rpio.High, nil
}

func (l *rpioLine) Write(level Level) error {
	if l.dir != Output {
		return errors.Errorf("pin %d not configured as output", l.pin)
	}
	if level {
		l.pin.High()
	} else {
		l.pin.Low()
	}
	return nil
}

// Close leaves the pin as an input with pull-down, the Pi boot default.
func (l *rpioLine) Close() error {
	l.pin.Input()
	l.pin.PullDown()
	l.dir = Input
	return nil
}
