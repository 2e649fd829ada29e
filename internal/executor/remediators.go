package executor

import (
	"context"
	"fmt"
)

// clearCache asks the service to evict all resident models. Nothing
// loaded is a successful no-op.
type clearCache struct {
	svc ModelManager
}

func NewClearCache(svc ModelManager) Remediator {
	return &clearCache{svc: svc}
}

func (r *clearCache) Remediate(ctx context.Context, _ string) (string, error) {
	unloaded, err := r.svc.UnloadAll(ctx)
	if err != nil {
		return "", err
	}

	if unloaded == 0 {
		return "no models were loaded", nil
	}

	return fmt.Sprintf("unloaded %d model(s)", unloaded), nil
}

// resetSession clears the cache and reloads the default model, keeping
// the service warm. Soft recovery.
type resetSession struct {
	svc   ModelManager
	model string
}

func NewResetSession(svc ModelManager, defaultModel string) Remediator {
	return &resetSession{svc: svc, model: defaultModel}
}

func (r *resetSession) Remediate(ctx context.Context, _ string) (string, error) {
	unloaded, err := r.svc.UnloadAll(ctx)
	if err != nil {
		return "", err
	}

	if r.model == "" {
		return fmt.Sprintf("unloaded %d model(s); no default model to reload", unloaded), nil
	}

	if err := r.svc.Reload(ctx, r.model); err != nil {
		return fmt.Sprintf("unloaded %d model(s)", unloaded), err
	}

	return fmt.Sprintf("unloaded %d model(s), reloaded %s", unloaded, r.model), nil
}

// throttle lowers the accelerator's power cap (or locks clocks where the
// device doesn't support power management). Reduces load without
// interrupting service.
type throttle struct {
	platform Platform
	stepW    int
	clockMHz int
}

func NewThrottle(platform Platform, stepWatts, fallbackClockMHz int) Remediator {
	return &throttle{platform: platform, stepW: stepWatts, clockMHz: fallbackClockMHz}
}

func (r *throttle) Remediate(_ context.Context, _ string) (string, error) {
	return r.platform.Throttle(r.stepW, r.clockMHz)
}

// resetAccelerator hard-resets the device. Most disruptive action short
// of stopping the service; expect multi-second unavailability.
type resetAccelerator struct {
	platform Platform
}

func NewResetAccelerator(platform Platform) Remediator {
	return &resetAccelerator{platform: platform}
}

func (r *resetAccelerator) Remediate(ctx context.Context, _ string) (string, error) {
	return r.platform.Reset(ctx)
}

// restartService restarts the service container and waits for it to
// re-report healthy.
type restartService struct {
	rt  ContainerRuntime
	ref string
}

func NewRestartService(rt ContainerRuntime, ref string) Remediator {
	return &restartService{rt: rt, ref: ref}
}

func (r *restartService) Remediate(ctx context.Context, _ string) (string, error) {
	return r.rt.Restart(ctx, r.ref)
}

// stopService stops without restarting. Never chosen by the planner
// under normal thresholds; reserved for explicit or extreme cases.
type stopService struct {
	rt  ContainerRuntime
	ref string
}

func NewStopService(rt ContainerRuntime, ref string) Remediator {
	return &stopService{rt: rt, ref: ref}
}

func (r *stopService) Remediate(ctx context.Context, _ string) (string, error) {
	return r.rt.Stop(ctx, r.ref)
}
