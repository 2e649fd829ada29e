package telemetry

import (
	"context"
	"time"

	"codeberg.org/mutker/gpuheald/internal/errors"
	"codeberg.org/mutker/gpuheald/internal/inference"
	"codeberg.org/mutker/gpuheald/internal/logger"
)

// DeviceReader is the accelerator read surface the provider samples.
type DeviceReader interface {
	Utilization() (int, error)
	MemoryInfo() (usedMB, totalMB uint64, err error)
	Temperature() (int, error)
}

// HealthChecker probes the inference service's management API.
type HealthChecker interface {
	Health(ctx context.Context) (inference.Health, error)
}

type provider struct {
	dev     DeviceReader
	svc     HealthChecker
	timeout time.Duration
	log     logger.Logger
}

// NewProvider combines accelerator reads and a service health probe into
// one snapshot per call, bounded by timeout.
func NewProvider(dev DeviceReader, svc HealthChecker, timeout time.Duration, log logger.Logger) (Provider, error) {
	if timeout <= 0 {
		return nil, errors.New().WithData(ErrInvalidTimeout, timeout)
	}

	return &provider{
		dev:     dev,
		svc:     svc,
		timeout: timeout,
		log:     log,
	}, nil
}

func (p *provider) Snapshot(ctx context.Context, target string) (*Snapshot, error) {
	errFactory := errors.New()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	util, err := p.dev.Utilization()
	if err != nil {
		return nil, errFactory.Wrap(ErrSnapshotFailed, err)
	}

	usedMB, totalMB, err := p.dev.MemoryInfo()
	if err != nil {
		return nil, errFactory.Wrap(ErrSnapshotFailed, err)
	}

	temp, err := p.dev.Temperature()
	if err != nil {
		return nil, errFactory.Wrap(ErrSnapshotFailed, err)
	}

	snap := &Snapshot{
		UtilizationPercent: util,
		MemoryUsedMB:       usedMB,
		MemoryTotalMB:      totalMB,
		TemperatureCelsius: temp,
		CapturedAt:         time.Now(),
	}

	// A service-side probe failure is still a usable snapshot: the GPU
	// reads stand, and the health field records the transport error.
	health, err := p.svc.Health(ctx)
	if err != nil {
		snap.ServiceHealth = HealthUnavailable
		snap.RawError = err.Error()
		p.log.Debug().Str("target", target).Err(err).Msg("Service health probe failed")

		return snap, nil
	}

	snap.ServiceHealth = ServiceHealth(health.Status)
	snap.ModelsLoaded = health.ModelsLoaded

	return snap, nil
}
