package gpio

import (
	"github.com/pkg/errors"
)

// Driver names accepted by Open.
const (
	DriverGpiocdev = "gpiocdev"
	DriverPeriph   = "periph"
	DriverRpio     = "rpio"
	DriverFake     = "fake"
)

// DefaultChip is the GPIO character device used by the gpiocdev driver.
const DefaultChip = "gpiochip0"

// consumer labels lines requested through the character device.
const consumer = "heater-controller"

// Open returns the named driver. chip is only used by gpiocdev.
func Open(name, chip string) (Driver, error) {
	switch name {
	case DriverGpiocdev, "":
		if chip == "" {
			chip = DefaultChip
		}
		return openChip(chip)
	case DriverPeriph:
		return openPeriph()
	case DriverRpio:
		return openRpio()
	case DriverFake:
		return NewFakeDriver(), nil
	}
	return nil, errors.Errorf("unknown gpio driver %q", name)
}
