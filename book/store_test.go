package book

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dfeldman/bookbot-sub000/errors"
	bbtest "github.com/dfeldman/bookbot-sub000/internal/testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(bbtest.CreateTestDB(t))
}

func TestCreateAndGetBook(t *testing.T) {
	store := newTestStore(t)

	b := NewBook("The Silent Harbor")
	require.NoError(t, store.CreateBook(b))

	got, err := store.GetBook(b.ID)
	require.NoError(t, err)
	assert.Equal(t, "The Silent Harbor", got.Title)
	assert.False(t, got.IsLocked)
	assert.Empty(t, got.LockingJob)
}

func TestGetBookNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetBook("missing")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestLockBook(t *testing.T) {
	store := newTestStore(t)

	b := NewBook("Lockable")
	require.NoError(t, store.CreateBook(b))

	require.NoError(t, store.LockBook(b.ID, "job-1"))

	got, err := store.GetBook(b.ID)
	require.NoError(t, err)
	assert.True(t, got.IsLocked)
	assert.Equal(t, "job-1", got.LockingJob)

	// Re-locking by the same job is allowed
	assert.NoError(t, store.LockBook(b.ID, "job-1"))

	// A different job hits lock contention
	err = store.LockBook(b.ID, "job-2")
	assert.True(t, errors.IsLockedError(err))
}

func TestUnlockBookOwnedBy(t *testing.T) {
	store := newTestStore(t)

	b := NewBook("Unlockable")
	require.NoError(t, store.CreateBook(b))
	require.NoError(t, store.LockBook(b.ID, "job-1"))

	// Wrong owner is a no-op
	require.NoError(t, store.UnlockBookOwnedBy(b.ID, "job-2"))
	got, _ := store.GetBook(b.ID)
	assert.True(t, got.IsLocked)

	// Right owner releases
	require.NoError(t, store.UnlockBookOwnedBy(b.ID, "job-1"))
	got, _ = store.GetBook(b.ID)
	assert.False(t, got.IsLocked)
	assert.Empty(t, got.LockingJob)

	// Releasing again stays a no-op (finalize is idempotent)
	require.NoError(t, store.UnlockBookOwnedBy(b.ID, "job-1"))
}

func TestWriteChunkVersioning(t *testing.T) {
	store := newTestStore(t)

	b := NewBook("Versioned")
	require.NoError(t, store.CreateBook(b))

	c1, err := store.WriteChunk(b.ID, "chap-1", ChunkTypeScene, "Chapter 1", "first draft")
	require.NoError(t, err)
	assert.Equal(t, 1, c1.Version)
	assert.True(t, c1.IsLatest)
	assert.Equal(t, 2, c1.WordCount)

	c2, err := store.WriteChunk(b.ID, "chap-1", ChunkTypeScene, "Chapter 1", "second much longer draft")
	require.NoError(t, err)
	assert.Equal(t, 2, c2.Version)

	latest, err := store.GetLatestChunk("chap-1")
	require.NoError(t, err)
	assert.Equal(t, c2.ID, latest.ID)

	v1, err := store.GetChunkVersion("chap-1", 1)
	require.NoError(t, err)
	assert.False(t, v1.IsLatest)
	assert.Equal(t, "first draft", v1.Content)
}

func TestGetLatestChunkSkipsDeleted(t *testing.T) {
	store := newTestStore(t)

	b := NewBook("Deletable")
	require.NoError(t, store.CreateBook(b))
	_, err := store.WriteChunk(b.ID, "chap-9", ChunkTypeText, "Nine", "body")
	require.NoError(t, err)

	require.NoError(t, store.DeleteChunk("chap-9"))

	_, err = store.GetLatestChunk("chap-9")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestChunkLocking(t *testing.T) {
	store := newTestStore(t)

	b := NewBook("Chunky")
	require.NoError(t, store.CreateBook(b))
	c1, err := store.WriteChunk(b.ID, "chap-1", ChunkTypeScene, "One", "a")
	require.NoError(t, err)
	c2, err := store.WriteChunk(b.ID, "chap-2", ChunkTypeScene, "Two", "b")
	require.NoError(t, err)

	// Distinct chunks of one unlocked book may be locked by different jobs
	require.NoError(t, store.LockChunk(c1.ID, "job-1"))
	require.NoError(t, store.LockChunk(c2.ID, "job-2"))

	// But the same chunk cannot be claimed twice
	err = store.LockChunk(c1.ID, "job-2")
	assert.True(t, errors.IsLockedError(err))

	locked, err := store.ListChunksLockedBy("job-1")
	require.NoError(t, err)
	require.Len(t, locked, 1)
	assert.Equal(t, c1.ID, locked[0].ID)

	n, err := store.UnlockChunksOwnedBy("job-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.GetChunkRow(c1.ID)
	require.NoError(t, err)
	assert.False(t, got.IsLocked)
	assert.Empty(t, got.LockedByJob)
}

func TestListLatestChunks(t *testing.T) {
	store := newTestStore(t)

	b := NewBook("Listing")
	require.NoError(t, store.CreateBook(b))
	_, err := store.WriteChunk(b.ID, "outline", ChunkTypeOutline, "Outline", "o")
	require.NoError(t, err)
	_, err = store.WriteChunk(b.ID, "chap-1", ChunkTypeScene, "One", "a b c")
	require.NoError(t, err)
	// Second version should not duplicate the listing
	_, err = store.WriteChunk(b.ID, "chap-1", ChunkTypeScene, "One", "a b c d")
	require.NoError(t, err)

	chunks, err := store.ListLatestChunks(b.ID)
	require.NoError(t, err)
	assert.Len(t, chunks, 2)
}
