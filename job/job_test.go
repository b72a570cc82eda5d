package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateTerminal(t *testing.T) {
	terminal := []State{StateCompleted, StateFailed, StateError, StateCancelled}
	for _, s := range terminal {
		assert.True(t, s.Terminal(), "state %s", s)
	}
	live := []State{StateWaiting, StateRunningRetry, StateRunning}
	for _, s := range live {
		assert.False(t, s.Terminal(), "state %s", s)
	}
}

func TestStateClaimable(t *testing.T) {
	assert.True(t, StateWaiting.Claimable())
	assert.True(t, StateRunningRetry.Claimable())
	assert.False(t, StateRunning.Claimable())
	assert.False(t, StateCompleted.Claimable())
	assert.False(t, StateCancelled.Claimable())
}

func TestNewJobDefaults(t *testing.T) {
	j, err := NewJob("book-1", "demo", Props{"steps": 3})
	require.NoError(t, err)
	assert.NotEmpty(t, j.ID)
	assert.Equal(t, StateWaiting, j.State)
	assert.Equal(t, "book-1", j.BookID)
	assert.False(t, j.CreatedAt.IsZero())
}

func TestNewJobRequiresType(t *testing.T) {
	_, err := NewJob("", "", nil)
	require.Error(t, err)
}

func TestJobDuration(t *testing.T) {
	j, err := NewJob("", "demo", nil)
	require.NoError(t, err)
	assert.Zero(t, j.Duration())

	start := time.Now().Add(-2 * time.Second)
	end := start.Add(1500 * time.Millisecond)
	j.StartedAt = &start
	j.CompletedAt = &end
	assert.Equal(t, 1500*time.Millisecond, j.Duration())
}

func TestPropsAccessorsHandleJSONNumbers(t *testing.T) {
	// Round-tripped props come back with float64 numbers
	raw, err := MarshalProps(Props{"steps": 7, "ratio": 0.5, "name": "x"})
	require.NoError(t, err)
	p, err := UnmarshalProps(raw)
	require.NoError(t, err)

	assert.Equal(t, 7, p.Int("steps"))
	assert.InDelta(t, 0.5, p.Float("ratio"), 1e-9)
	assert.Equal(t, "x", p.String("name"))
	assert.Equal(t, 0, p.Int("missing"))
	assert.Empty(t, p.String("missing"))
}
