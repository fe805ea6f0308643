// Command heater-controller reads the front-panel buttons and drives the heater relay.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/sweeney/heater-controller/internal/config"
	"github.com/sweeney/heater-controller/internal/controller"
	"github.com/sweeney/heater-controller/internal/gpio"
	"github.com/sweeney/heater-controller/internal/status"
)

var (
	app        = kingpin.New("heater-controller", "Heater controller: buttons in, relay out.")
	debug      = app.Flag("debug", "Turn on debug logging.").Bool()
	configPath = app.Flag("config", "Path to the YAML config file (defaults apply when empty).").Short('c').String()
	driverName = app.Flag("driver", "GPIO driver override: gpiocdev, periph, rpio or fake.").String()

	runCmd = app.Command("run", "Run the controller loop.").Default()

	stateCmd  = app.Command("state", "Print the current button states and exit.")
	stateJSON = stateCmd.Flag("json", "Print the status document as JSON.").Bool()

	relayCmd  = app.Command("relay", "Energise the heater relay, hold, then release it.")
	relayHold = relayCmd.Flag("hold", "How long to keep the relay on.").Default("5s").Duration()

	versionCmd = app.Command("version", "Show current version.")
)

var buildTime, buildVersion string

func showVersion() {
	if buildTime != "" && buildVersion != "" {
		fmt.Printf("%s (built: %s)\n", buildVersion, buildTime)
	} else {
		fmt.Println("heater-controller: dev")
	}
}

func main() {
	cmd, err := app.Parse(os.Args[1:])
	if err != nil {
		fmt.Printf("%v: Try --help\n", err.Error())
		os.Exit(1)
	}

	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if *debug {
		log.Info("Enabling debug output...")
		log.SetLevel(log.DebugLevel)
	}

	if cmd == versionCmd.FullCommand() {
		showVersion()
		return
	}

	cfg, err := loadConfig(*configPath, *driverName)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	switch cmd {
	case runCmd.FullCommand():
		err = run(cfg)
	case stateCmd.FullCommand():
		err = printState(cfg, *stateJSON)
	case relayCmd.FullCommand():
		err = holdRelay(cfg, *relayHold)
	default:
		kingpin.FatalUsage("Unrecognized command")
	}
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// loadConfig reads path, or the defaults when path is empty, and applies
// the driver override.
func loadConfig(path, driver string) (config.Config, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return config.Config{}, err
		}
	}
	if driver != "" {
		cfg.GPIO.Driver = driver
	}
	return cfg, nil
}

func statusConfig(cfg config.Config) status.Config {
	return status.Config{
		Driver:      cfg.GPIO.Driver,
		PollMs:      cfg.Timing.Poll.Milliseconds(),
		DebounceMs:  cfg.Timing.Debounce.Milliseconds(),
		HeartbeatMs: cfg.Timing.Heartbeat.Milliseconds(),
		ActiveLow:   cfg.Relay.ActiveLow,
	}
}

func run(cfg config.Config) error {
	drv, err := gpio.Open(cfg.GPIO.Driver, cfg.GPIO.Chip)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer drv.Close()

	hw, err := newHardware(drv, cfg, time.Now)
	if err != nil {
		return err
	}
	defer func() {
		if err := hw.close(); err != nil {
			log.WithError(err).Warn("release gpio")
		}
	}()
	hw.watchEdges()

	tracker := status.NewTracker(time.Now(), statusConfig(cfg))
	log.Infof("status: %s", status.FormatStatusEvent(tracker.Snapshot(), "STARTUP", ""))
	log.Infof("started: driver=%s poll=%v debounce=%v heartbeat=%v",
		drv, cfg.Timing.Poll, cfg.Timing.Debounce, cfg.Timing.Heartbeat)

	ticker := time.NewTicker(cfg.Timing.Poll)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(hw, cfg.Controller(), tracker, cfg.Timing.Heartbeat, time.Now, ticker.C, sigCh)
}

func runLoop(hw *hardware, cc controller.Config, tracker *status.Tracker, heartbeat time.Duration, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	startTime := now()
	ctrl := controller.New(hw.controllerButtons(), hw.heater, cc, startTime)

	// Snapshots are stamped with the latest tick, read on this goroutine only.
	last := startTime
	if tracker != nil {
		tracker.SetClock(func() time.Time { return last })
	}

	for {
		select {
		case s := <-sig:
			log.Infof("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			if tracker != nil {
				snap := tracker.Snapshot()
				log.Infof("status: %s", status.FormatStatusEvent(snap, "SHUTDOWN", signalName))
			}
			return nil

		case <-tick:
			t := now()
			last = t
			for _, event := range ctrl.Step(t) {
				logEvent(event)
			}

			if hbData := ctrl.CheckHeartbeat(t, heartbeat); hbData != nil {
				c := hbData.Counts
				log.Infof("heartbeat: uptime=%v short=%d long=%d very_long=%d relay_on=%d relay_off=%d expired=%d",
					hbData.Uptime, c.ShortPresses, c.LongPresses, c.VeryLongPresses, c.RelayOn, c.RelayOff, c.TimerExpired)
				if tracker != nil {
					tracker.Update(currentState(ctrl, hw, t))
					log.Infof("status: %s", status.FormatStatusEvent(tracker.Snapshot(), "HEARTBEAT", ""))
				}
			}

			if tracker != nil {
				tracker.Update(currentState(ctrl, hw, t))
			}
		}
	}
}

func currentState(ctrl *controller.Controller, hw *hardware, now time.Time) status.State {
	heater, err := hw.heater.Status()
	if err != nil {
		log.WithError(err).Debug("heater status")
	}
	return status.State{
		Heater:    heater,
		Heating:   ctrl.Heating(),
		Remaining: ctrl.Remaining(now),
		Settings:  ctrl.Settings(),
		Presses:   ctrl.Presses(),
		Counts:    ctrl.EventCountsSnapshot(),
	}
}

func logEvent(e controller.Event) {
	entry := log.WithFields(log.Fields{
		"temperature": e.Settings.Temperature,
		"timer_min":   e.Settings.TimerMinutes,
		"heating":     e.Heating,
	})
	switch e.Type {
	case controller.EventPress:
		entry.WithField("button", e.Role).Infof("press: %s", e.Press)
	case controller.EventSetting:
		entry.WithField("button", e.Role).Info("setting changed")
	default:
		entry.Infof("event: %s", e.Type)
	}
}
