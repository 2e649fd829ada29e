package gpu

import (
	goerrors "errors"
	"fmt"
)

// Throttle lowers the device power cap by stepWatts, clamped to the
// device minimum. Devices without power management support fall back to
// locking graphics clocks at fallbackClockMHz instead of failing.
func (d *Device) Throttle(stepWatts, fallbackClockMHz int) (string, error) {
	limits := d.PowerLimits()
	if limits.Max == 0 {
		return d.throttleByClocks(fallbackClockMHz)
	}

	current, err := d.CurrentPowerLimit()
	if err != nil {
		return "", err
	}

	target := current - stepWatts
	if target < limits.Min {
		target = limits.Min
	}

	if target == current {
		return fmt.Sprintf("power limit already at floor (%dW)", current), nil
	}

	if err := d.SetPowerLimit(target); err != nil {
		if isNotSupportedErr(err) {
			return d.throttleByClocks(fallbackClockMHz)
		}
		return "", err
	}

	return fmt.Sprintf("power limit lowered %dW -> %dW", current, target), nil
}

func (d *Device) throttleByClocks(maxMHz int) (string, error) {
	if err := d.LockClocks(maxMHz); err != nil {
		return "", err
	}

	return fmt.Sprintf("graphics clocks locked to %dMHz", maxMHz), nil
}

func isNotSupportedErr(err error) bool {
	var nerr *nvmlError
	if goerrors.As(err, &nerr) {
		return isNotSupported(nerr.ret)
	}

	return false
}
