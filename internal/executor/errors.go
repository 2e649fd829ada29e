package executor

import "codeberg.org/mutker/gpuheald/internal/errors"

const (
	ErrNoRemediator     = errors.ErrorCode("executor_no_remediator")
	ErrRemediationPanic = errors.ErrorCode("executor_remediation_panic")
)
