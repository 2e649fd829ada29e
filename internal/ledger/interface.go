package ledger

import (
	"context"
	"time"
)

// Severity grades a healing event.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// HealingEvent is one classified condition observed by the loop.
// Events are append-only and never mutated after write.
type HealingEvent struct {
	ID          string
	Timestamp   time.Time
	EventType   string
	Severity    Severity
	Description string
	ActionTaken string
	Success     bool
}

// ActionAttempt is one remediation dispatch and its outcome. EventID
// references the healing event that justified the attempt.
type ActionAttempt struct {
	ID           string
	Timestamp    time.Time
	Target       string
	Action       string
	Reason       string
	EventID      string
	Success      bool
	ErrorMessage string
	DurationMs   int64
	Metadata     string
}

// HealthSummary is the read model downstream consumers poll: current
// believed health, the most recent event and action, and what the
// planner would do about the last observed condition.
type HealthSummary struct {
	CurrentStatus     string
	LastEvent         *HealingEvent
	LastAction        *ActionAttempt
	RecommendedAction string
}

// Ledger is the durable, append-only record of events and attempts.
// Implementations must be safe for concurrent writers.
type Ledger interface {
	RecordEvent(ctx context.Context, event *HealingEvent) error
	RecordAttempt(ctx context.Context, attempt *ActionAttempt) error
	Summary(ctx context.Context) (*HealthSummary, error)
	RecentEvents(ctx context.Context, limit int) ([]HealingEvent, error)
	RecentAttempts(ctx context.Context, limit int) ([]ActionAttempt, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
	Close() error
}
