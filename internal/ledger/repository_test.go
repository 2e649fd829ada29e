package ledger

import (
	"context"
	"os"
	"path/filepath"
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

func openTestLedger(t *testing.T) (Ledger, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "ledger.db")
	l, err := New(Config{DBPath: path, RetentionDays: 30}, logger.Default())
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	return l, path
}

func testEvent(id string, ts time.Time, severity Severity) *HealingEvent {
	return &HealingEvent{
		ID:          id,
		Timestamp:   ts,
		EventType:   "out_of_memory",
		Severity:    severity,
		Description: "memory usage at 97.5%",
		ActionTaken: "restart_service",
		Success:     true,
	}
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.Error(t, Config{DBPath: ""}.Validate())
	assert.Error(t, Config{DBPath: "/tmp/l.db", RetentionDays: -1}.Validate())
}

func TestRecordAndReadBackEvent(t *testing.T) {
	l, _ := openTestLedger(t)
	ctx := context.Background()
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, l.RecordEvent(ctx, testEvent("ev-1", ts, SeverityCritical)))

	events, err := l.RecentEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "ev-1", events[0].ID)
	assert.Equal(t, "out_of_memory", events[0].EventType)
	assert.Equal(t, SeverityCritical, events[0].Severity)
	assert.Equal(t, "memory usage at 97.5%", events[0].Description)
	assert.Equal(t, "restart_service", events[0].ActionTaken)
	assert.True(t, events[0].Success)
	assert.Equal(t, ts.Unix(), events[0].Timestamp.Unix())
}

func TestRecentEventsNewestFirst(t *testing.T) {
	l, _ := openTestLedger(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"ev-1", "ev-2", "ev-3"} {
		require.NoError(t, l.RecordEvent(ctx, testEvent(id, base.Add(time.Duration(i)*time.Minute), SeverityInfo)))
	}

	events, err := l.RecentEvents(ctx, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "ev-3", events[0].ID)
	assert.Equal(t, "ev-2", events[1].ID)
}

func TestRecordAndReadBackAttempt(t *testing.T) {
	l, _ := openTestLedger(t)
	ctx := context.Background()
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, l.RecordEvent(ctx, testEvent("ev-1", ts, SeverityCritical)))
	require.NoError(t, l.RecordAttempt(ctx, &ActionAttempt{
		ID:           "at-1",
		Timestamp:    ts,
		Target:       "ollama",
		Action:       "restart_service",
		Reason:       "memory usage at 97.5%",
		EventID:      "ev-1",
		Success:      false,
		ErrorMessage: "container runtime unavailable",
		DurationMs:   1250,
		Metadata:     "exit status 1",
	}))

	attempts, err := l.RecentAttempts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, "at-1", attempts[0].ID)
	assert.Equal(t, "ollama", attempts[0].Target)
	assert.Equal(t, "restart_service", attempts[0].Action)
	assert.Equal(t, "ev-1", attempts[0].EventID)
	assert.False(t, attempts[0].Success)
	assert.Equal(t, "container runtime unavailable", attempts[0].ErrorMessage)
	assert.Equal(t, int64(1250), attempts[0].DurationMs)
	assert.Equal(t, "exit status 1", attempts[0].Metadata)
}

func TestInvalidRecordsRejected(t *testing.T) {
	l, _ := openTestLedger(t)
	ctx := context.Background()

	assert.Error(t, l.RecordEvent(ctx, nil))
	assert.Error(t, l.RecordEvent(ctx, &HealingEvent{}))
	assert.Error(t, l.RecordAttempt(ctx, nil))
	assert.Error(t, l.RecordAttempt(ctx, &ActionAttempt{ID: "at-1"}))
	assert.Error(t, l.RecordAttempt(ctx, &ActionAttempt{EventID: "ev-1"}))
}

func TestSummaryEmptyLedger(t *testing.T) {
	l, _ := openTestLedger(t)

	summary, err := l.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", summary.CurrentStatus)
	assert.Equal(t, "none", summary.RecommendedAction)
	assert.Nil(t, summary.LastEvent)
	assert.Nil(t, summary.LastAction)
}

func TestSummaryReflectsLatestEvent(t *testing.T) {
	l, _ := openTestLedger(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, l.RecordEvent(ctx, testEvent("ev-1", base, SeverityInfo)))
	critical := testEvent("ev-2", base.Add(time.Minute), SeverityCritical)
	critical.EventType = "gpu_hang"
	require.NoError(t, l.RecordEvent(ctx, critical))
	require.NoError(t, l.RecordAttempt(ctx, &ActionAttempt{
		ID:        "at-1",
		Timestamp: base.Add(time.Minute),
		Target:    "gpu0",
		Action:    "reset_accelerator",
		EventID:   "ev-2",
		Success:   true,
	}))

	summary, err := l.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, "critical", summary.CurrentStatus)
	assert.Equal(t, "reset_accelerator", summary.RecommendedAction)
	require.NotNil(t, summary.LastEvent)
	assert.Equal(t, "ev-2", summary.LastEvent.ID)
	require.NotNil(t, summary.LastAction)
	assert.Equal(t, "at-1", summary.LastAction.ID)
}

func TestSummaryWarningMapsToDegraded(t *testing.T) {
	l, _ := openTestLedger(t)
	ctx := context.Background()

	event := testEvent("ev-1", time.Now(), SeverityWarning)
	event.EventType = "thermal_throttling"
	require.NoError(t, l.RecordEvent(ctx, event))

	summary, err := l.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, "degraded", summary.CurrentStatus)
	assert.Equal(t, "throttle", summary.RecommendedAction)
}

func TestPruneRemovesOldRows(t *testing.T) {
	l, _ := openTestLedger(t)
	ctx := context.Background()
	cutoff := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, l.RecordEvent(ctx, testEvent("ev-old", cutoff.Add(-48*time.Hour), SeverityInfo)))
	require.NoError(t, l.RecordEvent(ctx, testEvent("ev-new", cutoff.Add(time.Hour), SeverityInfo)))
	require.NoError(t, l.RecordAttempt(ctx, &ActionAttempt{
		ID:        "at-old",
		Timestamp: cutoff.Add(-48 * time.Hour),
		EventID:   "ev-old",
	}))

	pruned, err := l.Prune(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), pruned)

	events, err := l.RecentEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "ev-new", events[0].ID)

	attempts, err := l.RecentAttempts(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, attempts)
}

func TestLedgerPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	cfg := Config{DBPath: path, RetentionDays: 30}
	ctx := context.Background()

	l, err := New(cfg, logger.Default())
	require.NoError(t, err)
	require.NoError(t, l.RecordEvent(ctx, testEvent("ev-1", time.Now(), SeverityCritical)))
	require.NoError(t, l.Close())

	reopened, err := New(cfg, logger.Default())
	require.NoError(t, err)
	defer reopened.Close()

	events, err := reopened.RecentEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "ev-1", events[0].ID)
}
