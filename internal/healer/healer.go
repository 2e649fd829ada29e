package healer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"codeberg.org/mutker/gpuheald/internal/cooldown"
	"codeberg.org/mutker/gpuheald/internal/detector"
	"codeberg.org/mutker/gpuheald/internal/errors"
	"codeberg.org/mutker/gpuheald/internal/executor"
	"codeberg.org/mutker/gpuheald/internal/ledger"
	"codeberg.org/mutker/gpuheald/internal/logger"
	"codeberg.org/mutker/gpuheald/internal/metrics"
	"codeberg.org/mutker/gpuheald/internal/planner"
	"codeberg.org/mutker/gpuheald/internal/telemetry"
	"github.com/google/uuid"
)

const (
	stateIdle int32 = iota
	stateRunning
)

const pruneInterval = 24 * time.Hour

// Config holds the loop's scheduling and policy knobs.
type Config struct {
	Target    string
	Interval  time.Duration
	Monitor   bool
	Retention time.Duration
}

func (c Config) Validate() error {
	errFactory := errors.New()
	if c.Interval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.Interval.String())
	}
	if c.Target == "" {
		return errFactory.WithMessage(errors.ErrMissingConfig, "target is required")
	}
	return nil
}

// Loop runs the detect → plan → guard → execute → record cycle on a
// fixed period. It owns all wall-clock scheduling and the only mutable
// shared state (the cooldown guard and in-flight flags); one bad cycle
// never halts future cycles.
type Loop struct {
	cfg      Config
	provider telemetry.Provider
	detector *detector.Detector
	guard    *cooldown.Guard
	executor *executor.Executor
	ledger   ledger.Ledger
	log      logger.Logger

	state     atomic.Int32
	mu        sync.Mutex
	inflight  map[string]bool
	lastPrune time.Time
}

func New(
	cfg Config,
	provider telemetry.Provider,
	det *detector.Detector,
	guard *cooldown.Guard,
	exec *executor.Executor,
	led ledger.Ledger,
	log logger.Logger,
) (*Loop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Loop{
		cfg:      cfg,
		provider: provider,
		detector: det,
		guard:    guard,
		executor: exec,
		ledger:   led,
		log:      log,
		inflight: make(map[string]bool),
	}, nil
}

// State reports the loop's lifecycle state.
func (l *Loop) State() string {
	if l.state.Load() == stateRunning {
		return "running"
	}

	return "idle"
}

// Run drives cycles until the context is cancelled. Missed ticks are
// dropped, not queued: a remediation that overruns the period simply
// delays the next cycle.
func (l *Loop) Run(ctx context.Context) error {
	l.state.Store(stateRunning)
	defer l.state.Store(stateIdle)

	if l.cfg.Monitor {
		l.log.Info().Msg("Monitor mode: classifying and recording only, no remediation")
	}

	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.RunOnce(ctx)
		}
	}
}

// RunOnce executes exactly one healing cycle. Exported so tests can
// drive cycles synchronously without real delays. Panics anywhere in the
// cycle are caught here, the terminal boundary.
func (l *Loop) RunOnce(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			l.log.Error().Str("panic", fmt.Sprint(rec)).Msg("Healing cycle panicked")
		}
	}()

	metrics.CyclesTotal.Inc()
	l.cycle(ctx)
}

func (l *Loop) cycle(ctx context.Context) {
	target := l.cfg.Target

	snap, err := l.provider.Snapshot(ctx, target)
	if err != nil {
		l.log.Warn().Str("target", target).Err(err).Msg("Telemetry unavailable")
		snap = nil
	}

	classification := l.detector.Classify(target, snap)
	metrics.ClassificationsTotal.WithLabelValues(string(classification.Category)).Inc()

	if classification.Warning != "" {
		l.log.Info().
			Str("target", target).
			Str("warning", classification.Warning).
			Msg("Sub-critical condition observed")
		l.recordEvent(ctx, &ledger.HealingEvent{
			ID:          uuid.New().String(),
			Timestamp:   time.Now(),
			EventType:   "warning_threshold",
			Severity:    ledger.SeverityInfo,
			Description: classification.Warning,
			Success:     true,
		})
	}

	if classification.Category == detector.CategoryNone {
		l.maybePrune(ctx)
		return
	}

	event := &ledger.HealingEvent{
		ID:          uuid.New().String(),
		Timestamp:   time.Now(),
		EventType:   string(classification.Category),
		Severity:    severityFor(classification.Category),
		Description: classification.Detail,
		Success:     true,
	}

	l.log.Warn().
		Str("target", target).
		Str("category", string(classification.Category)).
		Str("detail", classification.Detail).
		Msg("Error condition classified")

	action := planner.Recommend(classification.Category)
	if action == planner.ActionNone || l.cfg.Monitor {
		l.recordEvent(ctx, event)
		return
	}

	if !l.guard.Allow(target, action.String()) {
		metrics.CooldownVetoesTotal.WithLabelValues(action.String()).Inc()
		l.log.Debug().
			Str("target", target).
			Str("action", action.String()).
			Msg("Action vetoed by cooldown guard")
		l.recordEvent(ctx, event)
		return
	}

	if !l.markInflight(target) {
		l.log.Warn().Str("target", target).Msg("Previous remediation still in flight, skipping")
		l.recordEvent(ctx, event)
		return
	}
	attempt := l.executor.Execute(ctx, action, target, classification.Detail, event.ID)
	l.clearInflight(target)

	// A failed execution still arms the cooldown so a failing action
	// cannot re-fire every cycle.
	l.guard.Record(target, action.String(), attempt.Timestamp)

	event.ActionTaken = attempt.Action
	event.Success = attempt.Success
	l.recordEvent(ctx, event)
	l.recordAttempt(ctx, attempt)

	outcome := "failure"
	if attempt.Success {
		outcome = "success"
	}
	metrics.ActionsTotal.WithLabelValues(attempt.Action, outcome).Inc()
	metrics.RemediationDuration.WithLabelValues(attempt.Action).
		Observe(float64(attempt.DurationMs) / 1000)
}

func (l *Loop) markInflight(target string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.inflight[target] {
		return false
	}
	l.inflight[target] = true

	return true
}

func (l *Loop) clearInflight(target string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.inflight, target)
}

// recordEvent persists an event; a ledger failure is logged and dropped
// so observability never becomes a new operational failure mode.
func (l *Loop) recordEvent(ctx context.Context, event *ledger.HealingEvent) {
	if err := l.ledger.RecordEvent(ctx, event); err != nil {
		metrics.LedgerWriteFailuresTotal.Inc()
		l.log.Error().Err(err).Str("event_type", event.EventType).Msg("Failed to record healing event")
	}
}

func (l *Loop) recordAttempt(ctx context.Context, attempt *ledger.ActionAttempt) {
	if err := l.ledger.RecordAttempt(ctx, attempt); err != nil {
		metrics.LedgerWriteFailuresTotal.Inc()
		l.log.Error().Err(err).Str("action", attempt.Action).Msg("Failed to record action attempt")
	}
}

// maybePrune sweeps expired ledger rows during quiet cycles, at most
// once per pruneInterval.
func (l *Loop) maybePrune(ctx context.Context) {
	if l.cfg.Retention <= 0 {
		return
	}

	l.mu.Lock()
	due := time.Since(l.lastPrune) >= pruneInterval
	if due {
		l.lastPrune = time.Now()
	}
	l.mu.Unlock()

	if !due {
		return
	}

	pruned, err := l.ledger.Prune(ctx, time.Now().Add(-l.cfg.Retention))
	if err != nil {
		l.log.Error().Err(err).Msg("Ledger prune failed")
		return
	}
	if pruned > 0 {
		l.log.Info().Int64("rows", pruned).Msg("Pruned expired ledger rows")
	}
}

func severityFor(category detector.Category) ledger.Severity {
	switch category {
	case detector.CategoryOutOfMemory, detector.CategoryGPUHang, detector.CategoryCriticalHealth:
		return ledger.SeverityCritical
	case detector.CategoryThermal, detector.CategoryUnavailable:
		return ledger.SeverityWarning
	default:
		return ledger.SeverityInfo
	}
}
