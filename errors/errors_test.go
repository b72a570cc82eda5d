package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinelWrapping(t *testing.T) {
	err := NewLockedError("book %s locked by job %s", "bk-1", "job-2")
	assert.True(t, Is(err, ErrLocked), "wrapped lock error should match sentinel")
	assert.True(t, IsLockedError(err))
	assert.Contains(t, err.Error(), "bk-1")

	wrapped := Wrap(err, "constructing job")
	assert.True(t, IsLockedError(wrapped), "wrapping should preserve sentinel")
}

func TestNotFoundHelpers(t *testing.T) {
	err := NewNotFoundError("chunk %s", "ch-9")
	assert.True(t, IsNotFoundError(err))
	assert.Contains(t, err.Error(), "ch-9")

	assert.False(t, IsNotFoundError(nil))
	assert.False(t, IsNotFoundError(New("other")))
}

func TestSentinelsAreDistinct(t *testing.T) {
	assert.False(t, Is(ErrLocked, ErrNotFound))
	assert.False(t, Is(ErrUnknownJobType, ErrInvalidRequest))
}
