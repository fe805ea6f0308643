package gpio

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	pgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// edgeWait bounds each WaitForEdge call so watchers notice Close.
const edgeWait = time.Second

// PeriphDriver resolves lines through the periph.io host registry.
type PeriphDriver struct{}

func openPeriph() (Driver, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "unable to initialize periph")
	}
	return &PeriphDriver{}, nil
}

func (d *PeriphDriver) Line(pin int) (Line, error) {
	p := gpioreg.ByName(gpioName(pin))
	if p == nil {
		return nil, errors.Errorf("periph: no pin named %s", gpioName(pin))
	}
	return &periphLine{pin: p}, nil
}

func (d *PeriphDriver) Close() error {
	return nil
}

func (d *PeriphDriver) String() string {
	return DriverPeriph
}

// gpioName maps a BCM number to the Raspberry Pi line name.
func gpioName(pin int) string {
	return fmt.Sprintf("GPIO%d", pin)
}

type periphLine struct {
	mu   sync.Mutex
	pin  pgpio.PinIO
	dir  Direction
	pull pgpio.Pull

	onEdge func()
	stop   chan struct{}
	wg     sync.WaitGroup
}

func (l *periphLine) Configure(dir Direction, pull Pull, initial Level) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.dir = dir
	if dir == Output {
		if err := l.pin.Out(pgpio.Level(initial)); err != nil {
			return errors.Wrapf(err, "configure %s as output", l.pin)
		}
		return nil
	}

	switch pull {
	case PullUp:
		l.pull = pgpio.PullUp
	case PullDown:
		l.pull = pgpio.PullDown
	default:
		l.pull = pgpio.Float
	}
	return l.input()
}

// input configures the pin as input, enabling edge detection when a
// watcher is registered. Callers hold mu.
func (l *periphLine) input() error {
	edge := pgpio.NoEdge
	if l.onEdge != nil {
		edge = pgpio.BothEdges
	}
	if err := l.pin.In(l.pull, edge); err != nil {
		return errors.Wrapf(err, "configure %s as input", l.pin)
	}
	if l.onEdge != nil && l.stop == nil {
		l.stop = make(chan struct{})
		l.wg.Add(1)
		go l.watch(l.stop, l.onEdge)
	}
	return nil
}

func (l *periphLine) watch(stop <-chan struct{}, fn func()) {
	defer l.wg.Done()
	for {
		select {
		case <-stop:
			return
		default:
		}
		// wait for the edge
		if !l.pin.WaitForEdge(edgeWait) {
			continue
		}
		fn()
	}
}

func (l *periphLine) Read() (Level, error) {
	return l.pin.Read() == pgpio.High, nil
}

func (l *periphLine) Write(level Level) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.dir != Output {
		return errors.Errorf("%s not configured as output", l.pin)
	}
	if err := l.pin.Out(pgpio.Level(level)); err != nil {
		return errors.Wrapf(err, "write %s", l.pin)
	}
	return nil
}

func (l *periphLine) NotifyEdges(fn func()) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.dir == Output {
		return errors.Errorf("%s: edge events need an input line", l.pin)
	}
	l.onEdge = fn
	return l.input()
}

func (l *periphLine) Close() error {
	l.mu.Lock()
	stop := l.stop
	l.stop = nil
	l.mu.Unlock()

	if stop != nil {
		close(stop)
		l.wg.Wait()
	}
	if err := l.pin.Halt(); err != nil {
		return errors.Wrapf(err, "halt %s", l.pin)
	}
	return nil
}
