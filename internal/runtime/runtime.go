package runtime

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"codeberg.org/mutker/gpuheald/internal/errors"
	"codeberg.org/mutker/gpuheald/internal/logger"
	"github.com/sethvargo/go-retry"
)

const pollBase = 500 * time.Millisecond

// HealthProbe reports whether the managed service answers its health
// check again. Injected so the adapter stays ignorant of the service API.
type HealthProbe func(ctx context.Context) bool

// Runtime drives the container runtime CLI (docker, podman, nerdctl)
// for the inference service's container. The binary is configurable; the
// appliance images ship docker.
type Runtime struct {
	bin         string
	probe       HealthProbe
	restartWait time.Duration
	log         logger.Logger
}

func New(bin string, probe HealthProbe, restartWait time.Duration, log logger.Logger) *Runtime {
	return &Runtime{
		bin:         bin,
		probe:       probe,
		restartWait: restartWait,
		log:         log,
	}
}

// Restart restarts the container and blocks until the service reports
// healthy again, up to the configured bounded wait. The restart itself
// succeeding but the service never coming back counts as failure.
func (r *Runtime) Restart(ctx context.Context, ref string) (string, error) {
	errFactory := errors.New()

	out, err := r.run(ctx, "restart", ref)
	if err != nil {
		return out, errFactory.Wrap(ErrRestartFailed, err).WithData(out)
	}
	r.log.Info().Str("ref", ref).Msg("Container restarted, waiting for service health")

	backoff := retry.WithMaxDuration(r.restartWait, retry.NewFibonacci(pollBase))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if !r.probe(ctx) {
			return retry.RetryableError(errFactory.New(ErrHealthWaitExpire))
		}
		return nil
	})
	if err != nil {
		return out, errFactory.Wrap(ErrHealthWaitExpire, err).WithData(ref)
	}

	return out, nil
}

// Stop stops the container without restarting it and blocks until the
// runtime no longer reports it running.
func (r *Runtime) Stop(ctx context.Context, ref string) (string, error) {
	errFactory := errors.New()

	out, err := r.run(ctx, "stop", ref)
	if err != nil {
		return out, errFactory.Wrap(ErrStopFailed, err).WithData(out)
	}

	backoff := retry.WithMaxDuration(r.restartWait, retry.NewFibonacci(pollBase))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if r.running(ctx, ref) {
			return retry.RetryableError(errFactory.New(ErrStopWaitExpire))
		}
		return nil
	})
	if err != nil {
		return out, errFactory.Wrap(ErrStopWaitExpire, err).WithData(ref)
	}
	r.log.Info().Str("ref", ref).Msg("Container stopped")

	return out, nil
}

// running asks the runtime whether the container is still up. A failed
// or empty inspect means the container is gone, which counts as stopped.
func (r *Runtime) running(ctx context.Context, ref string) bool {
	out, err := r.run(ctx, "inspect", "-f", "{{.State.Running}}", ref)
	if err != nil {
		return false
	}

	return strings.TrimSpace(out) == "true"
}

func (r *Runtime) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, r.bin, args...)
	out, err := cmd.CombinedOutput()

	return strings.TrimSpace(string(out)), err
}
