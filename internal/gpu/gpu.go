package gpu

import (
	"sync"

	"codeberg.org/mutker/gpuheald/internal/errors"
	"codeberg.org/mutker/gpuheald/internal/logger"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

const (
	milliWattsToWatts = 1000
	bytesToMegabytes  = 1024 * 1024
)

// PowerLimits holds the device's power management constraints in watts.
type PowerLimits struct {
	Min, Max, Default int
}

// Device is the NVML surface for the monitored accelerator. It owns the
// handle for device 0, the only accelerator on the appliance.
type Device struct {
	device       nvml.Device
	index        int
	limits       PowerLimits
	lockedClocks bool
	mu           sync.RWMutex
	log          logger.Logger
}

func New(log logger.Logger) (*Device, error) {
	errFactory := errors.New()

	if ret := nvml.Init(); !IsNVMLSuccess(ret) {
		return nil, errFactory.Wrap(ErrInitFailed, newNVMLError(ret))
	}

	device, ret := nvml.DeviceGetHandleByIndex(0)
	if !IsNVMLSuccess(ret) {
		nvml.Shutdown()
		return nil, errFactory.Wrap(ErrDeviceNotFound, newNVMLError(ret))
	}

	d := &Device{device: device, index: 0, log: log}

	if name, ret := device.GetName(); IsNVMLSuccess(ret) {
		log.Info().Str("name", name).Msg("Detected GPU")
	} else {
		log.Warn().Msgf("Failed to get GPU name: %v", nvml.ErrorString(ret))
	}

	if err := d.initPowerLimits(); err != nil {
		nvml.Shutdown()
		return nil, err
	}

	return d, nil
}

func (d *Device) initPowerLimits() error {
	errFactory := errors.New()

	minLimit, maxLimit, ret := d.device.GetPowerManagementLimitConstraints()
	if !IsNVMLSuccess(ret) {
		if isNotSupported(ret) {
			d.log.Debug().Msg("Power management not supported; throttling will use locked clocks")
			return nil
		}
		return errFactory.Wrap(ErrPowerLimitsFailed, newNVMLError(ret))
	}

	defaultLimit, ret := d.device.GetPowerManagementDefaultLimit()
	if !IsNVMLSuccess(ret) {
		return errFactory.Wrap(ErrPowerLimitsFailed, newNVMLError(ret))
	}

	d.limits = PowerLimits{
		Min:     int(minLimit / milliWattsToWatts),
		Max:     int(maxLimit / milliWattsToWatts),
		Default: int(defaultLimit / milliWattsToWatts),
	}
	d.log.Debug().
		Int("min", d.limits.Min).
		Int("max", d.limits.Max).
		Int("default", d.limits.Default).
		Msg("Detected power limits")

	return nil
}

func (d *Device) Shutdown() error {
	errFactory := errors.New()
	if ret := nvml.Shutdown(); !IsNVMLSuccess(ret) {
		return errFactory.Wrap(ErrShutdownFailed, newNVMLError(ret))
	}

	return nil
}

// Utilization returns the GPU compute utilization percentage.
func (d *Device) Utilization() (int, error) {
	util, ret := d.device.GetUtilizationRates()
	if !IsNVMLSuccess(ret) {
		return 0, errors.New().Wrap(ErrUtilizationReadFailed, newNVMLError(ret))
	}

	return int(util.Gpu), nil
}

// MemoryInfo returns used and total device memory in megabytes.
func (d *Device) MemoryInfo() (usedMB, totalMB uint64, err error) {
	mem, ret := d.device.GetMemoryInfo()
	if !IsNVMLSuccess(ret) {
		return 0, 0, errors.New().Wrap(ErrMemoryReadFailed, newNVMLError(ret))
	}

	return mem.Used / bytesToMegabytes, mem.Total / bytesToMegabytes, nil
}

// Temperature returns the GPU core temperature in Celsius.
func (d *Device) Temperature() (int, error) {
	temp, ret := d.device.GetTemperature(nvml.TEMPERATURE_GPU)
	if !IsNVMLSuccess(ret) {
		return 0, errors.New().Wrap(ErrTemperatureReadFailed, newNVMLError(ret))
	}

	return int(temp), nil
}

func (d *Device) PowerLimits() PowerLimits {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.limits
}

func (d *Device) CurrentPowerLimit() (int, error) {
	limit, ret := d.device.GetPowerManagementLimit()
	if !IsNVMLSuccess(ret) {
		return 0, errors.New().Wrap(ErrPowerLimitFailed, newNVMLError(ret))
	}

	return int(limit / milliWattsToWatts), nil
}

func (d *Device) SetPowerLimit(watts int) error {
	errFactory := errors.New()

	d.mu.Lock()
	defer d.mu.Unlock()

	if watts < d.limits.Min || watts > d.limits.Max {
		return errFactory.WithData(errors.ErrInvalidArgument, watts)
	}

	//nolint:gosec // G115: bounds checked against device limits above
	if ret := d.device.SetPowerManagementLimit(uint32(watts * milliWattsToWatts)); !IsNVMLSuccess(ret) {
		return errFactory.Wrap(ErrSetPowerLimit, newNVMLError(ret))
	}
	d.log.Debug().Int("watts", watts).Msg("Set power limit")

	return nil
}

// LockClocks pins graphics clocks to at most maxMHz. Used as the coarse
// throttle path on devices without power management support.
func (d *Device) LockClocks(maxMHz int) error {
	errFactory := errors.New()

	d.mu.Lock()
	defer d.mu.Unlock()

	//nolint:gosec // G115: clock ceiling comes from validated config
	if ret := d.device.SetGpuLockedClocks(0, uint32(maxMHz)); !IsNVMLSuccess(ret) {
		return errFactory.Wrap(ErrLockClocksFailed, newNVMLError(ret))
	}
	d.lockedClocks = true
	d.log.Debug().Int("max_mhz", maxMHz).Msg("Locked GPU clocks")

	return nil
}

func (d *Device) ResetClocks() error {
	errFactory := errors.New()

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.lockedClocks {
		return nil
	}

	if ret := d.device.ResetGpuLockedClocks(); !IsNVMLSuccess(ret) {
		return errFactory.Wrap(ErrResetClocksFailed, newNVMLError(ret))
	}
	d.lockedClocks = false
	d.log.Debug().Msg("Reset GPU clocks to default")

	return nil
}

// RestoreDefaults returns the device to its default power limit and clock
// state. Called on shutdown and before a hard reset.
func (d *Device) RestoreDefaults() error {
	if err := d.ResetClocks(); err != nil {
		return err
	}

	if d.limits.Default > 0 {
		if err := d.SetPowerLimit(d.limits.Default); err != nil {
			return err
		}
	}

	return nil
}
