package executor_test

import (
	"context"
	"os"
	"testing"
	"time"

	"codeberg.org/mutker/gpuheald/internal/executor"
	"codeberg.org/mutker/gpuheald/internal/logger"
	"codeberg.org/mutker/gpuheald/internal/planner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logger.Init(false, false, true)
	os.Exit(m.Run())
}

type stubRemediator struct {
	detail string
	err    error
	panics bool
	calls  int
}

func (r *stubRemediator) Remediate(_ context.Context, _ string) (string, error) {
	r.calls++
	if r.panics {
		panic("remediator exploded")
	}

	return r.detail, r.err
}

func TestExecuteNoneYieldsNoAttempt(t *testing.T) {
	exec := executor.New(logger.Default())

	attempt := exec.Execute(context.Background(), planner.ActionNone, "ollama", "reason", "event-1")

	assert.Nil(t, attempt)
}

func TestExecuteUnregisteredAction(t *testing.T) {
	exec := executor.New(logger.Default())

	attempt := exec.Execute(context.Background(), planner.ActionThrottle, "ollama", "reason", "event-1")

	require.NotNil(t, attempt)
	assert.False(t, attempt.Success)
	assert.NotEmpty(t, attempt.ErrorMessage)
}

func TestExecuteSuccess(t *testing.T) {
	exec := executor.New(logger.Default())
	stub := &stubRemediator{detail: "unloaded 2 model(s)"}
	exec.Register(planner.ActionClearCache, time.Second, stub)

	attempt := exec.Execute(context.Background(), planner.ActionClearCache, "ollama", "memory pressure", "event-1")

	require.NotNil(t, attempt)
	assert.True(t, attempt.Success)
	assert.NotEmpty(t, attempt.ID)
	assert.Equal(t, "clear_cache", attempt.Action)
	assert.Equal(t, "ollama", attempt.Target)
	assert.Equal(t, "memory pressure", attempt.Reason)
	assert.Equal(t, "event-1", attempt.EventID)
	assert.Empty(t, attempt.ErrorMessage)
	assert.Equal(t, "unloaded 2 model(s)", attempt.Metadata)
	assert.GreaterOrEqual(t, attempt.DurationMs, int64(0))
	assert.Equal(t, 1, stub.calls)
}

func TestExecuteFailureIsRecordedNotPropagated(t *testing.T) {
	exec := executor.New(logger.Default())
	stub := &stubRemediator{err: assert.AnError}
	exec.Register(planner.ActionThrottle, time.Second, stub)

	attempt := exec.Execute(context.Background(), planner.ActionThrottle, "ollama", "thermal", "event-1")

	require.NotNil(t, attempt)
	assert.False(t, attempt.Success)
	assert.Contains(t, attempt.ErrorMessage, assert.AnError.Error())
}

func TestExecuteRecoversFromPanic(t *testing.T) {
	exec := executor.New(logger.Default())
	exec.Register(planner.ActionResetAccelerator, time.Second, &stubRemediator{panics: true})

	attempt := exec.Execute(context.Background(), planner.ActionResetAccelerator, "gpu0", "hang", "event-1")

	require.NotNil(t, attempt)
	assert.False(t, attempt.Success)
	assert.Contains(t, attempt.ErrorMessage, "remediator exploded")
}

type blockingRemediator struct{}

func (blockingRemediator) Remediate(ctx context.Context, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestExecuteEnforcesTimeout(t *testing.T) {
	exec := executor.New(logger.Default())
	exec.Register(planner.ActionRestartService, 20*time.Millisecond, blockingRemediator{})

	start := time.Now()
	attempt := exec.Execute(context.Background(), planner.ActionRestartService, "ollama", "critical", "event-1")

	require.NotNil(t, attempt)
	assert.False(t, attempt.Success)
	assert.Contains(t, attempt.ErrorMessage, context.DeadlineExceeded.Error())
	assert.Less(t, time.Since(start), time.Second)
}
