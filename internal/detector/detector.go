package detector

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"codeberg.org/mutker/gpuheald/internal/telemetry"
)

const historyWindowSize = 5

// Category classifies a snapshot into at most one abnormal condition.
type Category string

const (
	CategoryNone           Category = "none"
	CategoryOutOfMemory    Category = "out_of_memory"
	CategoryGPUHang        Category = "gpu_hang"
	CategoryThermal        Category = "thermal_throttling"
	CategoryCriticalHealth Category = "critical_health"
	CategoryUnavailable    Category = "unavailable"
)

// Classification is the detector's verdict for one snapshot. Warning
// carries sub-critical observations that are logged but never acted on.
type Classification struct {
	Category Category
	Detail   string
	Warning  string
}

// Thresholds are the deterministic trip points for classification.
type Thresholds struct {
	MemoryCriticalPct float64
	MemoryWarningPct  float64
	TempCritical      int
	TempWarning       int
	HangUtilization   int
	HangWindow        time.Duration
}

type utilSample struct {
	utilization int
	capturedAt  time.Time
}

// Detector classifies snapshots. Classification is pure except for the
// hang check, which needs a short utilization history per target to tell
// sustained saturation from a momentary 100% reading.
type Detector struct {
	thresholds Thresholds
	mu         sync.Mutex
	samples    map[string][]utilSample
}

func New(thresholds Thresholds) *Detector {
	return &Detector{
		thresholds: thresholds,
		samples:    make(map[string][]utilSample),
	}
}

// Classify evaluates a snapshot first-match-wins in severity order:
// unavailable, critical_health, gpu_hang, out_of_memory,
// thermal_throttling, none. Missing or unobtainable data classifies as
// unavailable or none, never as a severe category.
func (d *Detector) Classify(target string, snap *telemetry.Snapshot) Classification {
	if snap == nil {
		return Classification{
			Category: CategoryUnavailable,
			Detail:   "no telemetry snapshot obtained",
		}
	}

	if snap.ServiceHealth == telemetry.HealthUnavailable {
		detail := "service unreachable"
		if snap.RawError != "" {
			detail = fmt.Sprintf("service unreachable: %s", snap.RawError)
		}
		return Classification{Category: CategoryUnavailable, Detail: detail}
	}

	if snap.ServiceHealth == telemetry.HealthCritical {
		return Classification{
			Category: CategoryCriticalHealth,
			Detail:   "service self-reports critical health",
		}
	}

	if hang, span := d.sustainedSaturation(target, snap); hang {
		return Classification{
			Category: CategoryGPUHang,
			Detail: fmt.Sprintf("utilization >=%d%% sustained for %s",
				d.thresholds.HangUtilization, span.Round(time.Second)),
		}
	}

	if snap.MemoryTotalMB > 0 && snap.MemoryUsedPercent() >= d.thresholds.MemoryCriticalPct {
		return Classification{
			Category: CategoryOutOfMemory,
			Detail: fmt.Sprintf("memory %d/%d MB (%.1f%%)",
				snap.MemoryUsedMB, snap.MemoryTotalMB, snap.MemoryUsedPercent()),
		}
	}

	if snap.TemperatureCelsius >= d.thresholds.TempCritical {
		return Classification{
			Category: CategoryThermal,
			Detail:   fmt.Sprintf("temperature %d°C", snap.TemperatureCelsius),
		}
	}

	return Classification{
		Category: CategoryNone,
		Warning:  d.warnings(snap),
	}
}

// sustainedSaturation records the snapshot's utilization sample and
// reports whether every retained sample in the hang window is saturated.
// A single saturated reading never trips the hang category.
func (d *Detector) sustainedSaturation(target string, snap *telemetry.Snapshot) (bool, time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	history := append(d.samples[target], utilSample{
		utilization: snap.UtilizationPercent,
		capturedAt:  snap.CapturedAt,
	})
	if len(history) > historyWindowSize {
		history = history[1:]
	}
	d.samples[target] = history

	if snap.UtilizationPercent < d.thresholds.HangUtilization {
		return false, 0
	}

	// Walk back through the consecutive saturated run ending now.
	runStart := snap.CapturedAt
	count := 0
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].utilization < d.thresholds.HangUtilization {
			break
		}
		runStart = history[i].capturedAt
		count++
	}

	span := snap.CapturedAt.Sub(runStart)

	return count >= 2 && span >= d.thresholds.HangWindow, span
}

func (d *Detector) warnings(snap *telemetry.Snapshot) string {
	var parts []string

	if snap.MemoryTotalMB > 0 && snap.MemoryUsedPercent() >= d.thresholds.MemoryWarningPct {
		parts = append(parts, fmt.Sprintf("memory at %.1f%%", snap.MemoryUsedPercent()))
	}
	if snap.TemperatureCelsius >= d.thresholds.TempWarning {
		parts = append(parts, fmt.Sprintf("temperature at %d°C", snap.TemperatureCelsius))
	}
	if snap.ServiceHealth == telemetry.HealthDegraded {
		parts = append(parts, "service degraded")
	}

	return strings.Join(parts, "; ")
}
