package telemetry

import (
	"context"
	"time"
)

// ServiceHealth is the inference service's health as seen at capture time.
type ServiceHealth string

const (
	HealthHealthy     ServiceHealth = "healthy"
	HealthDegraded    ServiceHealth = "degraded"
	HealthCritical    ServiceHealth = "critical"
	HealthUnavailable ServiceHealth = "unavailable"
)

// Snapshot is one point-in-time reading of the accelerator and the
// service it backs. Snapshots are immutable values; a fresh one is taken
// each cycle and discarded unless a classification references it.
type Snapshot struct {
	UtilizationPercent int
	MemoryUsedMB       uint64
	MemoryTotalMB      uint64
	TemperatureCelsius int
	ServiceHealth      ServiceHealth
	ModelsLoaded       int
	RawError           string
	CapturedAt         time.Time
}

// MemoryUsedPercent returns used memory as a percentage of total, or 0
// when the total is unknown.
func (s *Snapshot) MemoryUsedPercent() float64 {
	if s.MemoryTotalMB == 0 {
		return 0
	}

	return float64(s.MemoryUsedMB) / float64(s.MemoryTotalMB) * 100
}

// Provider produces a fresh snapshot for a target. Implementations must
// bound each call with their own short deadline; a failed or timed-out
// acquisition returns an error the detector maps to the unavailable
// category.
type Provider interface {
	Snapshot(ctx context.Context, target string) (*Snapshot, error)
}
