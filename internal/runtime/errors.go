package runtime

import "codeberg.org/mutker/gpuheald/internal/errors"

const (
	ErrRestartFailed    = errors.ErrorCode("runtime_restart_failed")
	ErrStopFailed       = errors.ErrorCode("runtime_stop_failed")
	ErrHealthWaitExpire = errors.ErrorCode("runtime_health_wait_expired")
	ErrStopWaitExpire   = errors.ErrorCode("runtime_stop_wait_expired")
)
