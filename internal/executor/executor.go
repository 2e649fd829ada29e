package executor

import (
	"context"
	"fmt"
	"time"

	"codeberg.org/mutker/gpuheald/internal/errors"
	"codeberg.org/mutker/gpuheald/internal/ledger"
	"codeberg.org/mutker/gpuheald/internal/logger"
	"codeberg.org/mutker/gpuheald/internal/planner"
	"github.com/google/uuid"
)

type registration struct {
	remediator Remediator
	timeout    time.Duration
}

// Executor dispatches remediations through a per-action registry.
// Adding an action means registering a Remediator; the dispatcher never
// changes. Failures never propagate past Execute: they come back as an
// attempt with Success=false.
type Executor struct {
	registry map[planner.Action]registration
	log      logger.Logger
}

func New(log logger.Logger) *Executor {
	return &Executor{
		registry: make(map[planner.Action]registration),
		log:      log,
	}
}

// Register binds an action to its remediation routine. timeout bounds
// each dispatch and must be shorter than the healing loop's poll period.
func (e *Executor) Register(action planner.Action, timeout time.Duration, r Remediator) {
	e.registry[action] = registration{remediator: r, timeout: timeout}
}

// Execute runs the action against the target and reports the outcome as
// an ActionAttempt referencing the justifying event. ActionNone is never
// executed and yields no attempt.
func (e *Executor) Execute(ctx context.Context, action planner.Action, target, reason, eventID string) *ledger.ActionAttempt {
	if action == planner.ActionNone {
		return nil
	}

	attempt := &ledger.ActionAttempt{
		ID:        uuid.New().String(),
		Timestamp: time.Now(),
		Target:    target,
		Action:    action.String(),
		Reason:    reason,
		EventID:   eventID,
	}

	reg, ok := e.registry[action]
	if !ok {
		attempt.ErrorMessage = errors.New().WithData(ErrNoRemediator, action.String()).Error()
		e.log.Error().Str("action", action.String()).Msg("No remediator registered")

		return attempt
	}

	ctx, cancel := context.WithTimeout(ctx, reg.timeout)
	defer cancel()

	start := time.Now()
	detail, err := e.remediate(ctx, reg.remediator, target)
	attempt.DurationMs = time.Since(start).Milliseconds()
	attempt.Metadata = detail

	if err != nil {
		attempt.ErrorMessage = err.Error()
		e.log.Warn().
			Str("action", action.String()).
			Str("target", target).
			Int64("duration_ms", attempt.DurationMs).
			Err(err).
			Msg("Remediation failed")

		return attempt
	}

	attempt.Success = true
	e.log.Info().
		Str("action", action.String()).
		Str("target", target).
		Int64("duration_ms", attempt.DurationMs).
		Msg("Remediation succeeded")

	return attempt
}

// remediate isolates panics from a misbehaving remediator; a panic is
// reported as a failed attempt like any other error.
func (e *Executor) remediate(ctx context.Context, r Remediator, target string) (detail string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.New().WithData(ErrRemediationPanic, fmt.Sprint(rec))
		}
	}()

	return r.Remediate(ctx, target)
}
