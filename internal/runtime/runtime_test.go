package runtime

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"codeberg.org/mutker/gpuheald/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logger.Init(false, false, true)
	os.Exit(m.Run())
}

// fakeRuntimeBin writes a shell script standing in for the container
// runtime CLI and returns its path.
func fakeRuntimeBin(t *testing.T, script string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fakectl")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755))

	return path
}

func alwaysHealthy(_ context.Context) bool { return true }
func neverHealthy(_ context.Context) bool  { return false }

func TestRestartSucceedsWhenServiceComesBack(t *testing.T) {
	bin := fakeRuntimeBin(t, "exit 0")
	r := New(bin, alwaysHealthy, 5*time.Second, logger.Default())

	_, err := r.Restart(context.Background(), "ollama")
	assert.NoError(t, err)
}

func TestRestartCommandFailure(t *testing.T) {
	bin := fakeRuntimeBin(t, `echo "no such container: ollama" >&2; exit 1`)
	r := New(bin, alwaysHealthy, 5*time.Second, logger.Default())

	out, err := r.Restart(context.Background(), "ollama")
	require.Error(t, err)
	assert.Contains(t, out, "no such container")
}

func TestRestartFailsWhenServiceNeverRecovers(t *testing.T) {
	bin := fakeRuntimeBin(t, "exit 0")
	r := New(bin, neverHealthy, 700*time.Millisecond, logger.Default())

	start := time.Now()
	_, err := r.Restart(context.Background(), "ollama")
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRestartWaitsForDelayedRecovery(t *testing.T) {
	bin := fakeRuntimeBin(t, "exit 0")

	var calls atomic.Int32
	probe := func(_ context.Context) bool {
		return calls.Add(1) >= 3
	}
	r := New(bin, probe, 10*time.Second, logger.Default())

	_, err := r.Restart(context.Background(), "ollama")
	assert.NoError(t, err)
	assert.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestStopWaitsUntilContainerGone(t *testing.T) {
	// inspect failing means the container no longer exists
	bin := fakeRuntimeBin(t, `[ "$1" = "stop" ] && exit 0; exit 1`)
	r := New(bin, alwaysHealthy, 5*time.Second, logger.Default())

	_, err := r.Stop(context.Background(), "ollama")
	assert.NoError(t, err)
}

func TestStopFailsWhenContainerKeepsRunning(t *testing.T) {
	bin := fakeRuntimeBin(t, `[ "$1" = "stop" ] && exit 0; echo true`)
	r := New(bin, alwaysHealthy, 700*time.Millisecond, logger.Default())

	_, err := r.Stop(context.Background(), "ollama")
	assert.Error(t, err)
}

func TestStopCommandFailure(t *testing.T) {
	bin := fakeRuntimeBin(t, "exit 1")
	r := New(bin, alwaysHealthy, time.Second, logger.Default())

	_, err := r.Stop(context.Background(), "ollama")
	assert.Error(t, err)
}

func TestRestartHonorsContextCancellation(t *testing.T) {
	bin := fakeRuntimeBin(t, "exit 0")
	r := New(bin, neverHealthy, time.Minute, logger.Default())

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := r.Restart(ctx, "ollama")
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}
