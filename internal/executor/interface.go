package executor

import "context"

// Remediator performs one remediation routine against a target. It must
// honor the context deadline and return failures as errors; detail is
// free-form diagnostic output recorded in the attempt's metadata.
type Remediator interface {
	Remediate(ctx context.Context, target string) (detail string, err error)
}

// ModelManager is the inference service surface remediations use.
type ModelManager interface {
	UnloadAll(ctx context.Context) (int, error)
	Reload(ctx context.Context, model string) error
}

// Platform is the accelerator control surface.
type Platform interface {
	Throttle(stepWatts, fallbackClockMHz int) (string, error)
	Reset(ctx context.Context) (string, error)
}

// ContainerRuntime restarts or stops the service's container.
type ContainerRuntime interface {
	Restart(ctx context.Context, ref string) (string, error)
	Stop(ctx context.Context, ref string) (string, error)
}
