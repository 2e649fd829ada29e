package telemetry

import "codeberg.org/mutker/gpuheald/internal/errors"

const (
	ErrSnapshotFailed = errors.ErrorCode("telemetry_snapshot_failed")
	ErrInvalidTimeout = errors.ErrorCode("telemetry_invalid_timeout")
)
