package gpu

import (
	"context"
	"os/exec"
	"strconv"
	"strings"

	"codeberg.org/mutker/gpuheald/internal/errors"
)

// Reset performs a hard device-level reset. NVML-visible state (locked
// clocks, power cap) is restored first so the device comes back in its
// default configuration; the reset itself goes through nvidia-smi, which
// handles the unbind/rebind dance the driver requires. Expect the device
// to be unavailable for several seconds.
func (d *Device) Reset(ctx context.Context) (string, error) {
	errFactory := errors.New()

	if err := d.RestoreDefaults(); err != nil {
		d.log.Warn().Err(err).Msg("Failed to restore defaults before reset")
	}

	cmd := exec.CommandContext(ctx, "nvidia-smi", "--gpu-reset", "-i", strconv.Itoa(d.index))
	out, err := cmd.CombinedOutput()
	detail := strings.TrimSpace(string(out))
	if err != nil {
		return detail, errFactory.Wrap(ErrResetFailed, err).WithData(detail)
	}

	d.log.Info().Msg("GPU reset completed")

	return detail, nil
}
