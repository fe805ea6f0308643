package gpio

import (
	"fmt"
	"sync"
)

// FakeLine is a test double for a single line.
// Safe for concurrent use so edge callbacks can run on another goroutine.
type FakeLine struct {
	mu sync.Mutex

	// Samples contains scripted levels returned by Read.
	// Each call to Read() consumes the next sample; once exhausted, the
	// last sample becomes the line level.
	Samples []Level
	index   int

	level Level

	dir        Direction
	pull       Pull
	configured bool

	// Writes records every level passed to Write.
	Writes []Level

	// Reads counts calls to Read.
	Reads int

	// IgnoreWrites simulates a stuck output: writes are recorded but the
	// line level does not follow.
	IgnoreWrites bool

	// ReadError, if set, will be returned by Read().
	ReadError error
	// WriteError, if set, will be returned by Write().
	WriteError error
	// ConfigureError, if set, will be returned by Configure().
	ConfigureError error

	// Closed tracks if Close was called.
	Closed bool

	onEdge func()
}

// NewFakeLine creates a FakeLine at the given level.
func NewFakeLine(level Level) *FakeLine {
	return &FakeLine{level: level}
}

// NewScriptedLine creates a FakeLine that returns samples in order.
func NewScriptedLine(samples ...Level) *FakeLine {
	f := &FakeLine{Samples: samples}
	if len(samples) > 0 {
		f.level = samples[0]
	}
	return f
}

// Configure records direction and bias. Outputs are driven low.
func (f *FakeLine) Configure(dir Direction, pull Pull, initial Level) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ConfigureError != nil {
		return f.ConfigureError
	}
	f.dir = dir
	f.pull = pull
	f.configured = true
	if dir == Output {
		f.level = initial
	}
	return nil
}

// Read returns the next scripted sample or the current level.
func (f *FakeLine) Read() (Level, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Reads++
	if f.ReadError != nil {
		return Low, f.ReadError
	}
	if f.index < len(f.Samples) {
		f.level = f.Samples[f.index]
		f.index++
	}
	return f.level, nil
}

// Write drives the line level.
func (f *FakeLine) Write(level Level) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.WriteError != nil {
		return f.WriteError
	}
	if f.configured && f.dir != Output {
		return fmt.Errorf("write to %s line", f.dir)
	}
	f.Writes = append(f.Writes, level)
	if !f.IgnoreWrites {
		f.level = level
	}
	return nil
}

// Close marks the line as closed.
func (f *FakeLine) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// NotifyEdges registers fn to be called by Set when the level changes.
func (f *FakeLine) NotifyEdges(fn func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onEdge = fn
	return nil
}

// Set forces the line level, as a pressed switch or an external override
// would. Pending scripted samples are discarded.
func (f *FakeLine) Set(level Level) {
	f.mu.Lock()
	changed := f.level != level
	f.level = level
	f.Samples = nil
	f.index = 0
	fn := f.onEdge
	f.mu.Unlock()

	if changed && fn != nil {
		fn()
	}
}

// Level returns the current level without counting as a read.
func (f *FakeLine) Level() Level {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.level
}

// Config returns the last configured direction and bias.
func (f *FakeLine) Config() (Direction, Pull, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dir, f.pull, f.configured
}

// Reset rewinds scripted samples and clears recorded activity.
func (f *FakeLine) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.index = 0
	f.Writes = nil
	f.Reads = 0
	f.Closed = false
}

// FakeDriver hands out FakeLines keyed by pin.
type FakeDriver struct {
	mu    sync.Mutex
	lines map[int]*FakeLine

	// LineError, if set, will be returned by Line().
	LineError error
	Closed    bool
}

// NewFakeDriver creates an empty FakeDriver.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{lines: make(map[int]*FakeLine)}
}

// Line returns the fake line for pin, creating it on first use.
// New lines idle high, as a released switch with pull-up reads.
func (d *FakeDriver) Line(pin int) (Line, error) {
	l, err := d.Fake(pin)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// Fake is Line with the concrete type, for tests that drive levels.
func (d *FakeDriver) Fake(pin int) (*FakeLine, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.LineError != nil {
		return nil, d.LineError
	}
	l, ok := d.lines[pin]
	if !ok {
		l = NewFakeLine(High)
		d.lines[pin] = l
	}
	return l, nil
}

// Close marks the driver and all handed-out lines as closed.
func (d *FakeDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, l := range d.lines {
		l.Close()
	}
	d.Closed = true
	return nil
}

func (d *FakeDriver) String() string {
	return DriverFake
}
