package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dfeldman/bookbot-sub000/errors"
	bbtest "github.com/dfeldman/bookbot-sub000/internal/testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(bbtest.CreateTestDB(t))
}

func TestSubmitAndGetJob(t *testing.T) {
	store := newTestStore(t)

	j, err := store.Submit("", "demo", Props{"steps": 2})
	require.NoError(t, err)
	require.NotEmpty(t, j.ID)

	got, err := store.GetJob(j.ID)
	require.NoError(t, err)
	assert.Equal(t, "demo", got.Type)
	assert.Equal(t, StateWaiting, got.State)
	assert.Equal(t, 2, got.Props.Int("steps"))
	assert.Nil(t, got.StartedAt)
	assert.Nil(t, got.CompletedAt)
}

func TestSubmitRejectsEmptyType(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Submit("", "", nil)
	require.Error(t, err)
}

func TestGetJobNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetJob("no-such-job")
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestListEligibleOrdersByCreation(t *testing.T) {
	store := newTestStore(t)

	first, err := store.Submit("", "demo", nil)
	require.NoError(t, err)
	second, err := store.Submit("", "demo", nil)
	require.NoError(t, err)
	third, err := store.Submit("", "demo", nil)
	require.NoError(t, err)

	// Oldest-first regardless of insertion quirks
	eligible, err := store.ListEligible(10)
	require.NoError(t, err)
	require.Len(t, eligible, 3)
	assert.Equal(t, first.ID, eligible[0].ID)
	assert.Equal(t, second.ID, eligible[1].ID)
	assert.Equal(t, third.ID, eligible[2].ID)
}

func TestListEligibleIncludesRunningRetry(t *testing.T) {
	store := newTestStore(t)

	j, err := store.Submit("", "demo", nil)
	require.NoError(t, err)
	require.NoError(t, store.MarkRunning(j.ID, time.Now()))

	// Simulate a resubmitted job waiting for its turn
	_, err = store.db.Exec("UPDATE jobs SET state = ? WHERE id = ?", StateRunningRetry, j.ID)
	require.NoError(t, err)

	eligible, err := store.ListEligible(10)
	require.NoError(t, err)
	require.Len(t, eligible, 1)
	assert.Equal(t, StateRunningRetry, eligible[0].State)
}

func TestListEligibleExcludesRunningAndTerminal(t *testing.T) {
	store := newTestStore(t)

	running, err := store.Submit("", "demo", nil)
	require.NoError(t, err)
	require.NoError(t, store.MarkRunning(running.ID, time.Now()))

	done, err := store.Submit("", "demo", nil)
	require.NoError(t, err)
	_, err = store.FinalizeState(done.ID, StateCompleted, "", time.Now())
	require.NoError(t, err)

	eligible, err := store.ListEligible(10)
	require.NoError(t, err)
	assert.Empty(t, eligible)
}

func TestFinalizeStateTransitionsOnce(t *testing.T) {
	store := newTestStore(t)

	j, err := store.Submit("", "demo", nil)
	require.NoError(t, err)
	require.NoError(t, store.MarkRunning(j.ID, time.Now()))

	transitioned, err := store.FinalizeState(j.ID, StateCompleted, "", time.Now())
	require.NoError(t, err)
	assert.True(t, transitioned)

	// Second finalize is a no-op: state and completed_at are immutable
	transitioned, err = store.FinalizeState(j.ID, StateError, "too late", time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, transitioned)

	got, err := store.GetJob(j.ID)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, got.State)
	assert.Empty(t, got.ErrorMessage)
}

func TestFinalizeStateRejectsNonTerminal(t *testing.T) {
	store := newTestStore(t)

	j, err := store.Submit("", "demo", nil)
	require.NoError(t, err)

	_, err = store.FinalizeState(j.ID, StateRunning, "", time.Now())
	require.Error(t, err)
}

func TestCancelWaitingJob(t *testing.T) {
	store := newTestStore(t)

	j, err := store.Submit("", "demo", nil)
	require.NoError(t, err)

	ok, err := store.Cancel(j.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := store.GetJob(j.ID)
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, got.State)
	require.NotNil(t, got.CompletedAt)
}

func TestCancelTerminalJobIsNoOp(t *testing.T) {
	store := newTestStore(t)

	j, err := store.Submit("", "demo", nil)
	require.NoError(t, err)
	_, err = store.FinalizeState(j.ID, StateFailed, "", time.Now())
	require.NoError(t, err)

	ok, err := store.Cancel(j.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := store.GetJob(j.ID)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, got.State)
}

func TestCountByState(t *testing.T) {
	store := newTestStore(t)

	for i := 0; i < 3; i++ {
		_, err := store.Submit("", "demo", nil)
		require.NoError(t, err)
	}
	j, err := store.Submit("", "demo", nil)
	require.NoError(t, err)
	_, err = store.FinalizeState(j.ID, StateError, "boom", time.Now())
	require.NoError(t, err)

	counts, err := store.CountByState()
	require.NoError(t, err)
	assert.Equal(t, 3, counts[StateWaiting])
	assert.Equal(t, 1, counts[StateError])
}

func TestAppendAndListLogs(t *testing.T) {
	store := newTestStore(t)

	j, err := store.Submit("book-1", "demo", nil)
	require.NoError(t, err)

	require.NoError(t, store.AppendLog(j.ID, j.BookID, LevelInfo, "starting", nil))
	require.NoError(t, store.AppendLog(j.ID, j.BookID, LevelLLM, "generated text", Props{"tokens": 42}))

	logs, err := store.ListLogsForJob(j.ID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, LevelInfo, logs[0].Level)
	assert.Equal(t, "starting", logs[0].Entry)
	assert.Equal(t, 42, logs[1].Props.Int("tokens"))

	byBook, err := store.ListLogsForBook("book-1", 10)
	require.NoError(t, err)
	assert.Len(t, byBook, 2)
}
