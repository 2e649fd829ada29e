package telemetry

import (
	"context"
	"os"
	"testing"
	"time"

	"codeberg.org/mutker/gpuheald/internal/inference"
	"codeberg.org/mutker/gpuheald/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logger.Init(false, false, true)
	os.Exit(m.Run())
}

type fakeDevice struct {
	util    int
	usedMB  uint64
	totalMB uint64
	temp    int
	err     error
}

func (d *fakeDevice) Utilization() (int, error) {
	return d.util, d.err
}

func (d *fakeDevice) MemoryInfo() (uint64, uint64, error) {
	return d.usedMB, d.totalMB, d.err
}

func (d *fakeDevice) Temperature() (int, error) {
	return d.temp, d.err
}

type fakeHealth struct {
	health inference.Health
	err    error
}

func (h *fakeHealth) Health(_ context.Context) (inference.Health, error) {
	return h.health, h.err
}

func TestNewProviderRejectsZeroTimeout(t *testing.T) {
	_, err := NewProvider(&fakeDevice{}, &fakeHealth{}, 0, logger.Default())
	assert.Error(t, err)
}

func TestSnapshotCombinesDeviceAndService(t *testing.T) {
	dev := &fakeDevice{util: 72, usedMB: 30000, totalMB: 40000, temp: 68}
	svc := &fakeHealth{health: inference.Health{Status: inference.StatusHealthy, ModelsLoaded: 2}}
	p, err := NewProvider(dev, svc, time.Second, logger.Default())
	require.NoError(t, err)

	snap, err := p.Snapshot(context.Background(), "ollama")
	require.NoError(t, err)
	assert.Equal(t, 72, snap.UtilizationPercent)
	assert.Equal(t, uint64(30000), snap.MemoryUsedMB)
	assert.Equal(t, uint64(40000), snap.MemoryTotalMB)
	assert.Equal(t, 68, snap.TemperatureCelsius)
	assert.Equal(t, HealthHealthy, snap.ServiceHealth)
	assert.Equal(t, 2, snap.ModelsLoaded)
	assert.WithinDuration(t, time.Now(), snap.CapturedAt, time.Minute)
}

func TestSnapshotDeviceFailure(t *testing.T) {
	p, err := NewProvider(&fakeDevice{err: assert.AnError}, &fakeHealth{}, time.Second, logger.Default())
	require.NoError(t, err)

	snap, err := p.Snapshot(context.Background(), "ollama")
	assert.Error(t, err)
	assert.Nil(t, snap)
}

func TestSnapshotSurvivesProbeFailure(t *testing.T) {
	dev := &fakeDevice{util: 50, usedMB: 20000, totalMB: 40000, temp: 60}
	svc := &fakeHealth{err: assert.AnError}
	p, err := NewProvider(dev, svc, time.Second, logger.Default())
	require.NoError(t, err)

	snap, err := p.Snapshot(context.Background(), "ollama")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, HealthUnavailable, snap.ServiceHealth)
	assert.Contains(t, snap.RawError, assert.AnError.Error())
	assert.Equal(t, 50, snap.UtilizationPercent)
}

func TestMemoryUsedPercent(t *testing.T) {
	snap := &Snapshot{MemoryUsedMB: 39000, MemoryTotalMB: 40000}
	assert.InEpsilon(t, 97.5, snap.MemoryUsedPercent(), 0.001)

	unknown := &Snapshot{MemoryUsedMB: 100}
	assert.Zero(t, unknown.MemoryUsedPercent())
}
