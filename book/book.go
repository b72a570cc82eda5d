// Package book provides the two lockable content resources jobs operate on:
// a Book and its constituent Chunks. Lock fields live on the resource rows
// themselves; callers acquire them inside a single SQLite transaction so the
// check-then-set is serialized across processes.
package book

import (
	"time"

	"github.com/google/uuid"
)

// Book is the whole-resource lock target. A Book aggregates many Chunks.
// At most one job may hold its lock at any instant.
type Book struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Props      string     `json:"props,omitempty"`
	LockingJob string     `json:"locking_job,omitempty"` // Job that currently holds the lock, "" if unlocked
	IsLocked   bool       `json:"is_locked"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// LockedBy reports whether the book lock is held by the given job
func (b *Book) LockedBy(jobID string) bool {
	return b.IsLocked && b.LockingJob == jobID
}

// LockedByOther reports whether the book lock is held by a different job
func (b *Book) LockedByOther(jobID string) bool {
	return b.IsLocked && b.LockingJob != "" && b.LockingJob != jobID
}

// ChunkType classifies what a chunk holds
type ChunkType string

const (
	ChunkTypeOutline    ChunkType = "outline"
	ChunkTypeCharacters ChunkType = "characters"
	ChunkTypeSettings   ChunkType = "settings"
	ChunkTypeScene      ChunkType = "scene"
	ChunkTypeText       ChunkType = "text"
)

// Chunk is one immutable version of a piece of book content.
// ChunkID is the stable logical identifier shared by all versions;
// IsLatest marks the current one. Chunks are independently lockable so
// distinct chunks of an otherwise-unlocked book may be claimed by
// different jobs concurrently.
type Chunk struct {
	ID          string     `json:"id"` // Row id, unique per version
	BookID      string     `json:"book_id"`
	ChunkID     string     `json:"chunk_id"`
	Version     int        `json:"version"`
	IsLatest    bool       `json:"is_latest"`
	IsDeleted   bool       `json:"is_deleted"`
	Type        ChunkType  `json:"type"`
	Title       string     `json:"title"`
	Content     string     `json:"content"`
	WordCount   int        `json:"word_count"`
	LockedByJob string     `json:"locked_by_job,omitempty"`
	IsLocked    bool       `json:"is_locked"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// LockedByOther reports whether the chunk lock is held by a different job
func (c *Chunk) LockedByOther(jobID string) bool {
	return c.IsLocked && c.LockedByJob != "" && c.LockedByJob != jobID
}

// NewBook creates a Book record with a fresh identifier
func NewBook(title string) *Book {
	now := time.Now()
	return &Book{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// countWords is a cheap whitespace word count used for chunk bookkeeping
func countWords(text string) int {
	inWord := false
	count := 0
	for _, r := range text {
		switch r {
		case ' ', '\t', '\n', '\r':
			inWord = false
		default:
			if !inWord {
				count++
			}
			inWord = true
		}
	}
	return count
}
