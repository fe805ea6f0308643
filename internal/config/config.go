// Package config loads the heater controller's YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/heater-controller/internal/button"
	"github.com/sweeney/heater-controller/internal/controller"
	"github.com/sweeney/heater-controller/internal/gpio"
)

const (
	DefaultPoll      = 50 * time.Millisecond
	DefaultHeartbeat = 15 * time.Minute

	maxPin = 53
)

type Config struct {
	GPIO     GPIOConfig     `yaml:"gpio"`
	Pins     PinsConfig     `yaml:"pins"`
	Relay    RelayConfig    `yaml:"relay"`
	Timing   TimingConfig   `yaml:"timing"`
	Settings SettingsConfig `yaml:"settings"`
}

type GPIOConfig struct {
	Driver string `yaml:"driver"`
	Chip   string `yaml:"chip"`
}

// PinsConfig holds BCM line numbers.
type PinsConfig struct {
	TempUp    *int `yaml:"temp_up"`
	TempDown  *int `yaml:"temp_down"`
	TimerUp   *int `yaml:"timer_up"`
	TimerDown *int `yaml:"timer_down"`
	Power     *int `yaml:"power"`
	Heater    *int `yaml:"heater"`
}

type RelayConfig struct {
	ActiveLow bool `yaml:"active_low"`
}

type TimingConfig struct {
	Debounce  time.Duration `yaml:"debounce"`
	Poll      time.Duration `yaml:"poll"`
	Heartbeat time.Duration `yaml:"heartbeat"`
}

type SettingsConfig struct {
	Temperature controller.Limits `yaml:"temperature"`
	Timer       controller.Limits `yaml:"timer"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	cfg, err := Parse(nil)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads and validates the file at path.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(b)
}

// Parse decodes YAML, applies defaults and validates the result.
func Parse(b []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if cfg.GPIO.Driver == "" {
		cfg.GPIO.Driver = gpio.DriverGpiocdev
	}
	switch cfg.GPIO.Driver {
	case gpio.DriverGpiocdev, gpio.DriverPeriph, gpio.DriverRpio, gpio.DriverFake:
	default:
		return Config{}, fmt.Errorf("gpio.driver must be one of gpiocdev, periph, rpio, fake (got %q)", cfg.GPIO.Driver)
	}
	if cfg.GPIO.Chip == "" {
		cfg.GPIO.Chip = gpio.DefaultChip
	}

	defaultPin(&cfg.Pins.TempUp, gpio.DefaultPinTempUp)
	defaultPin(&cfg.Pins.TempDown, gpio.DefaultPinTempDown)
	defaultPin(&cfg.Pins.TimerUp, gpio.DefaultPinTimerUp)
	defaultPin(&cfg.Pins.TimerDown, gpio.DefaultPinTimerDown)
	defaultPin(&cfg.Pins.Power, gpio.DefaultPinPower)
	defaultPin(&cfg.Pins.Heater, gpio.DefaultPinHeater)
	if err := cfg.Pins.validate(); err != nil {
		return Config{}, err
	}

	if cfg.Timing.Debounce < 0 {
		return Config{}, fmt.Errorf("timing.debounce must be >= 0")
	}
	if cfg.Timing.Debounce == 0 {
		cfg.Timing.Debounce = button.DefaultDebounce
	}
	if cfg.Timing.Poll < 0 {
		return Config{}, fmt.Errorf("timing.poll must be >= 0")
	}
	if cfg.Timing.Poll == 0 {
		cfg.Timing.Poll = DefaultPoll
	}
	// A negative heartbeat disables it.
	if cfg.Timing.Heartbeat == 0 {
		cfg.Timing.Heartbeat = DefaultHeartbeat
	}

	fillLimits(&cfg.Settings.Temperature, controller.DefaultTemperature)
	fillLimits(&cfg.Settings.Timer, controller.DefaultTimer)
	if err := validateLimits("settings.temperature", cfg.Settings.Temperature); err != nil {
		return Config{}, err
	}
	if err := validateLimits("settings.timer", cfg.Settings.Timer); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func defaultPin(p **int, def int) {
	if *p == nil {
		v := def
		*p = &v
	}
}

type namedPin struct {
	key string
	pin int
}

func (p PinsConfig) named() []namedPin {
	return []namedPin{
		{"pins.temp_up", *p.TempUp},
		{"pins.temp_down", *p.TempDown},
		{"pins.timer_up", *p.TimerUp},
		{"pins.timer_down", *p.TimerDown},
		{"pins.power", *p.Power},
		{"pins.heater", *p.Heater},
	}
}

func (p PinsConfig) validate() error {
	seen := make(map[int]string)
	for _, n := range p.named() {
		if n.pin < 0 || n.pin > maxPin {
			return fmt.Errorf("%s must be between 0 and %d (got %d)", n.key, maxPin, n.pin)
		}
		if other, ok := seen[n.pin]; ok {
			return fmt.Errorf("%s and %s both use GPIO %d", other, n.key, n.pin)
		}
		seen[n.pin] = n.key
	}
	return nil
}

// fillLimits replaces an absent range with def and fills a missing step
// and default in a partial one.
func fillLimits(l *controller.Limits, def controller.Limits) {
	if *l == (controller.Limits{}) {
		*l = def
		return
	}
	if l.Step == 0 {
		l.Step = def.Step
	}
	if l.Default == 0 {
		l.Default = l.Min
	}
}

func validateLimits(key string, l controller.Limits) error {
	if l.Step <= 0 {
		return fmt.Errorf("%s.step must be > 0", key)
	}
	if l.Min > l.Max {
		return fmt.Errorf("%s.min must be <= %s.max", key, key)
	}
	if l.Default < l.Min || l.Default > l.Max {
		return fmt.Errorf("%s.default must be between %d and %d", key, l.Min, l.Max)
	}
	return nil
}

// Controller returns the setting ranges for the controller.
func (c Config) Controller() controller.Config {
	return controller.Config{
		Temperature: c.Settings.Temperature,
		Timer:       c.Settings.Timer,
	}
}
