//go:build linux

package gpio

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/warthog618/go-gpiocdev"
)

// ChipDriver hands out lines from a Linux GPIO character device.
type ChipDriver struct {
	chip *gpiocdev.Chip
	name string
}

func openChip(name string) (Driver, error) {
	chip, err := gpiocdev.NewChip(name, gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, errors.Wrapf(err, "open gpio chip %s", name)
	}
	return &ChipDriver{chip: chip, name: name}, nil
}

// Line returns an unrequested line for the BCM pin. The kernel request is
// made by Configure.
func (d *ChipDriver) Line(pin int) (Line, error) {
	if pin < 0 || pin >= d.chip.Lines() {
		return nil, errors.Errorf("pin %d out of range for %s", pin, d.name)
	}
	return &cdevLine{chip: d.chip, offset: pin}, nil
}

func (d *ChipDriver) Close() error {
	return d.chip.Close()
}

func (d *ChipDriver) String() string {
	return DriverGpiocdev
}

type cdevLine struct {
	mu     sync.Mutex
	chip   *gpiocdev.Chip
	offset int
	line   *gpiocdev.Line

	// cur mirrors line for Read, which is called from edge handlers while
	// request may hold mu and wait for the handler goroutine to exit.
	cur atomic.Pointer[gpiocdev.Line]

	dir     Direction
	pull    Pull
	initial Level
	onEdge  func()
}

func (l *cdevLine) Configure(dir Direction, pull Pull, initial Level) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.dir = dir
	l.pull = pull
	l.initial = initial
	return l.request()
}

// request (re)requests the line with the current settings. Edge handlers
// can only be attached at request time, so any change means a new request.
func (l *cdevLine) request() error {
	if l.line != nil {
		l.cur.Store(nil)
		l.line.Close()
		l.line = nil
	}

	opts := []gpiocdev.LineReqOption{gpiocdev.WithConsumer(consumer)}
	if l.dir == Output {
		opts = append(opts, gpiocdev.AsOutput(levelValue(l.initial)))
	} else {
		opts = append(opts, gpiocdev.AsInput)
		switch l.pull {
		case PullUp:
			opts = append(opts, gpiocdev.WithPullUp)
		case PullDown:
			opts = append(opts, gpiocdev.WithPullDown)
		default:
			opts = append(opts, gpiocdev.WithBiasDisabled)
		}
		if fn := l.onEdge; fn != nil {
			opts = append(opts, gpiocdev.WithBothEdges, gpiocdev.WithEventHandler(func(gpiocdev.LineEvent) {
				fn()
			}))
		}
	}

	line, err := l.chip.RequestLine(l.offset, opts...)
	if err != nil {
		return errors.Wrapf(err, "request pin %d as %s", l.offset, l.dir)
	}
	l.line = line
	l.cur.Store(line)
	return nil
}

func (l *cdevLine) Read() (Level, error) {
	line := l.cur.Load()
	if line == nil {
		return Low, errors.Errorf("pin %d not configured", l.offset)
	}
	v, err := line.Value()
	if err != nil {
		return Low, errors.Wrapf(err, "read pin %d", l.offset)
	}
	return v != 0, nil
}

func (l *cdevLine) Write(level Level) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.line == nil || l.dir != Output {
		return errors.Errorf("pin %d not configured as output", l.offset)
	}
	if err := l.line.SetValue(levelValue(level)); err != nil {
		return errors.Wrapf(err, "write pin %d", l.offset)
	}
	return nil
}

func levelValue(level Level) int {
	if level {
		return 1
	}
	return 0
}

func (l *cdevLine) NotifyEdges(fn func()) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.onEdge = fn
	if l.line == nil {
		return nil
	}
	if l.dir != Input {
		return errors.Errorf("pin %d: edge events need an input line", l.offset)
	}
	return l.request()
}

// Close returns the line to the kernel as an input with pull-down, matching
// the Pi boot defaults. Owners drive outputs to their safe level first.
func (l *cdevLine) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.line == nil {
		return nil
	}
	l.cur.Store(nil)
	var errs []error
	if err := l.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		errs = append(errs, errors.Wrapf(err, "reconfigure pin %d", l.offset))
	}
	if err := l.line.Close(); err != nil {
		errs = append(errs, errors.Wrapf(err, "close pin %d", l.offset))
	}
	l.line = nil

	if len(errs) > 0 {
		return errors.Errorf("close errors: %v", errs)
	}
	return nil
}
