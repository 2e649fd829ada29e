package inference

import "codeberg.org/mutker/gpuheald/internal/errors"

const (
	ErrInvalidBaseURL  = errors.ErrorCode("inference_invalid_base_url")
	ErrRequestFailed   = errors.ErrorCode("inference_request_failed")
	ErrBadStatus       = errors.ErrorCode("inference_bad_status")
	ErrDecodeFailed    = errors.ErrorCode("inference_decode_failed")
	ErrUnloadFailed    = errors.ErrorCode("inference_unload_failed")
	ErrReloadFailed    = errors.ErrorCode("inference_reload_failed")
	ErrNoDefaultModel  = errors.ErrorCode("inference_no_default_model")
	ErrHealthCheckFail = errors.ErrorCode("inference_health_check_failed")
)
