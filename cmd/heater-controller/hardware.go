package main

import (
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sweeney/heater-controller/internal/button"
	"github.com/sweeney/heater-controller/internal/config"
	"github.com/sweeney/heater-controller/internal/controller"
	"github.com/sweeney/heater-controller/internal/gpio"
	"github.com/sweeney/heater-controller/internal/relay"
	"github.com/sweeney/heater-controller/internal/status"
)

// hardware owns the lines for the five buttons and the heater relay.
type hardware struct {
	buttons map[controller.Role]*button.Button
	heater  *relay.Relay
	lines   []gpio.Line // button lines, closed by close
}

func buttonPins(cfg config.Config) map[controller.Role]int {
	return map[controller.Role]int{
		controller.RoleTempUp:    *cfg.Pins.TempUp,
		controller.RoleTempDown:  *cfg.Pins.TempDown,
		controller.RoleTimerUp:   *cfg.Pins.TimerUp,
		controller.RoleTimerDown: *cfg.Pins.TimerDown,
		controller.RolePower:     *cfg.Pins.Power,
	}
}

// newButtons configures every button line. Lines already opened are closed
// on error.
func newButtons(drv gpio.Driver, cfg config.Config, now func() time.Time) (*hardware, error) {
	hw := &hardware{buttons: make(map[controller.Role]*button.Button)}
	for role, pin := range buttonPins(cfg) {
		line, err := drv.Line(pin)
		if err != nil {
			hw.close()
			return nil, fmt.Errorf("open %s button (GPIO %d): %w", role, pin, err)
		}
		hw.lines = append(hw.lines, line)

		name := string(role)
		b, err := button.New(line, cfg.Timing.Debounce,
			button.WithClock(now),
			button.WithName(name),
			button.WithLogger(log.WithField("button", name)),
		)
		if err != nil {
			hw.close()
			return nil, err
		}
		hw.buttons[role] = b
	}
	return hw, nil
}

// newHardware configures the buttons and the heater relay. The relay starts off.
func newHardware(drv gpio.Driver, cfg config.Config, now func() time.Time) (*hardware, error) {
	hw, err := newButtons(drv, cfg, now)
	if err != nil {
		return nil, err
	}

	pin := *cfg.Pins.Heater
	line, err := drv.Line(pin)
	if err != nil {
		hw.close()
		return nil, fmt.Errorf("open heater relay (GPIO %d): %w", pin, err)
	}
	opts := []relay.Option{
		relay.WithName("heater"),
		relay.WithLogger(log.WithField("relay", "heater")),
	}
	if cfg.Relay.ActiveLow {
		opts = append(opts, relay.WithActiveLow())
	}
	heater, err := relay.New(line, opts...)
	if err != nil {
		line.Close()
		hw.close()
		return nil, err
	}
	hw.heater = heater
	return hw, nil
}

// watchEdges wires each button's latch to its line where the driver
// supports edge events.
func (hw *hardware) watchEdges() {
	for role, b := range hw.buttons {
		ok, err := b.WatchEdges()
		switch {
		case err != nil:
			log.WithError(err).WithField("button", role).Warn("edge events unavailable, polling only")
		case ok:
			log.WithField("button", role).Debug("watching edges")
		}
	}
}

func (hw *hardware) controllerButtons() controller.Buttons {
	var bs controller.Buttons
	if b, ok := hw.buttons[controller.RoleTempUp]; ok {
		bs.TempUp = b
	}
	if b, ok := hw.buttons[controller.RoleTempDown]; ok {
		bs.TempDown = b
	}
	if b, ok := hw.buttons[controller.RoleTimerUp]; ok {
		bs.TimerUp = b
	}
	if b, ok := hw.buttons[controller.RoleTimerDown]; ok {
		bs.TimerDown = b
	}
	if b, ok := hw.buttons[controller.RolePower]; ok {
		bs.Power = b
	}
	return bs
}

// close switches the heater off and releases every line.
func (hw *hardware) close() error {
	var errs []error
	if hw.heater != nil {
		if err := hw.heater.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, line := range hw.lines {
		if err := line.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// printState samples every button once. The heater line is left alone so
// a running controller is not disturbed.
func printState(cfg config.Config, asJSON bool) error {
	drv, err := gpio.Open(cfg.GPIO.Driver, cfg.GPIO.Chip)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer drv.Close()

	hw, err := newButtons(drv, cfg, time.Now)
	if err != nil {
		return err
	}
	defer hw.close()

	presses := make(map[controller.Role]button.PressKind, len(hw.buttons))
	for role, b := range hw.buttons {
		presses[role] = b.Kind()
	}

	if asJSON {
		now := time.Now()
		tracker := status.NewTracker(now, statusConfig(cfg))
		tracker.Update(status.State{Presses: presses})
		fmt.Println(string(status.FormatJSON(tracker.Snapshot())))
		return nil
	}

	fmt.Print(formatPresses(presses))
	return nil
}

func formatPresses(presses map[controller.Role]button.PressKind) string {
	roles := make([]string, 0, len(presses))
	for role := range presses {
		roles = append(roles, string(role))
	}
	sort.Strings(roles)

	var out string
	for _, role := range roles {
		kind := presses[controller.Role(role)]
		state := "released"
		if kind != button.PressNone {
			state = "pressed"
		}
		out += fmt.Sprintf("%s: %s (%s)\n", role, state, kind)
	}
	return out
}

// holdRelay switches the heater on, waits for hold or a signal, then
// switches it off again.
func holdRelay(cfg config.Config, hold time.Duration) error {
	drv, err := gpio.Open(cfg.GPIO.Driver, cfg.GPIO.Chip)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer drv.Close()

	line, err := drv.Line(*cfg.Pins.Heater)
	if err != nil {
		return fmt.Errorf("open heater relay (GPIO %d): %w", *cfg.Pins.Heater, err)
	}
	opts := []relay.Option{relay.WithName("heater")}
	if cfg.Relay.ActiveLow {
		opts = append(opts, relay.WithActiveLow())
	}
	heater, err := relay.New(line, opts...)
	if err != nil {
		line.Close()
		return err
	}
	defer heater.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	return pulse(heater, time.After(hold), sigCh)
}

// pulse drives r on until done or sig fires, then drives it off.
func pulse(r *relay.Relay, done <-chan time.Time, sig <-chan os.Signal) error {
	if err := r.On(); err != nil {
		return err
	}
	s, _ := r.Status()
	fmt.Printf("heater: %s\n", s)

	select {
	case <-done:
	case <-sig:
	}

	if err := r.Off(); err != nil {
		return err
	}
	s, _ = r.Status()
	fmt.Printf("heater: %s\n", s)
	return nil
}
