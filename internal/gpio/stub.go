//go:build !linux

package gpio

import "github.com/pkg/errors"

// openChip is not available on non-Linux platforms.
func openChip(name string) (Driver, error) {
	return nil, errors.Errorf("gpio: %s driver not supported on this platform (requires Linux)", DriverGpiocdev)
}

// openRpio is not available on non-Linux platforms.
func openRpio() (Driver, error) {
	return nil, errors.Errorf("gpio: %s driver not supported on this platform (requires Linux)", DriverRpio)
}
