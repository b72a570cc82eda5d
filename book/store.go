package book

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/dfeldman/bookbot-sub000/errors"
)

// DBTX is the subset of database/sql operations the store needs.
// Both *sql.DB and *sql.Tx satisfy it, so lock acquisition can run inside
// the processor's claim transaction while normal reads use the pool.
type DBTX interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// Store handles persistence of books and chunks
type Store struct {
	db DBTX
}

// NewStore creates a new book store
func NewStore(db DBTX) *Store {
	return &Store{db: db}
}

// WithTx returns a store bound to the given transaction
func (s *Store) WithTx(tx *sql.Tx) *Store {
	return &Store{db: tx}
}

// CreateBook inserts a new book row
func (s *Store) CreateBook(b *Book) error {
	query := `
		INSERT INTO books (id, title, props, locking_job, is_locked, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	props := sql.NullString{String: b.Props, Valid: b.Props != ""}
	lockingJob := sql.NullString{String: b.LockingJob, Valid: b.LockingJob != ""}

	if _, err := s.db.Exec(query, b.ID, b.Title, props, lockingJob, b.IsLocked, b.CreatedAt, b.UpdatedAt); err != nil {
		return errors.Wrap(err, "failed to create book")
	}
	return nil
}

// GetBook retrieves a book by ID
func (s *Store) GetBook(id string) (*Book, error) {
	query := `SELECT ` + bookSelectColumns() + ` FROM books WHERE id = ?`

	var b Book
	args := &bookScanArgs{}
	err := s.db.QueryRow(query, id).Scan(bookScanTargets(&b, args)...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("book %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get book")
	}
	processBookScanArgs(&b, args)
	return &b, nil
}

// ListBooks returns books ordered by creation time, newest first
func (s *Store) ListBooks(limit int) ([]*Book, error) {
	query := `SELECT ` + bookSelectColumns() + ` FROM books ORDER BY created_at DESC LIMIT ?`

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list books")
	}
	defer rows.Close()

	var books []*Book
	for rows.Next() {
		var b Book
		args := &bookScanArgs{}
		if err := rows.Scan(bookScanTargets(&b, args)...); err != nil {
			return nil, errors.Wrap(err, "failed to scan book")
		}
		processBookScanArgs(&b, args)
		books = append(books, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating books")
	}
	return books, nil
}

// LockBook marks a book as locked by the given job. Fails with ErrLocked if
// a different job already holds the lock. Run inside the claim transaction so
// check-then-set is atomic.
func (s *Store) LockBook(bookID, jobID string) error {
	b, err := s.GetBook(bookID)
	if err != nil {
		return err
	}
	if b.LockedByOther(jobID) {
		return errors.NewLockedError("book %s locked by job %s", bookID, b.LockingJob)
	}

	query := `UPDATE books SET locking_job = ?, is_locked = 1, updated_at = ? WHERE id = ?`
	if _, err := s.db.Exec(query, jobID, time.Now(), bookID); err != nil {
		return errors.Wrap(err, "failed to lock book")
	}
	return nil
}

// UnlockBookOwnedBy clears a book lock only if the given job holds it.
// Defensive against a stale or reassigned lock; releasing an already-released
// lock is a no-op, which keeps finalize idempotent.
func (s *Store) UnlockBookOwnedBy(bookID, jobID string) error {
	query := `
		UPDATE books SET locking_job = NULL, is_locked = 0, updated_at = ?
		WHERE id = ? AND locking_job = ?
	`
	if _, err := s.db.Exec(query, time.Now(), bookID, jobID); err != nil {
		return errors.Wrap(err, "failed to unlock book")
	}
	return nil
}

// UnlockChunksOwnedBy clears every chunk lock held by the given job.
// Returns the number of chunks released.
func (s *Store) UnlockChunksOwnedBy(jobID string) (int, error) {
	query := `
		UPDATE chunks SET locked_by_job = NULL, is_locked = 0, updated_at = ?
		WHERE locked_by_job = ?
	`
	result, err := s.db.Exec(query, time.Now(), jobID)
	if err != nil {
		return 0, errors.Wrap(err, "failed to unlock chunks")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}
	return int(n), nil
}

// LockChunk marks a single chunk version row as locked by the given job.
// Fails with ErrLocked if a different job already holds it.
func (s *Store) LockChunk(chunkRowID, jobID string) error {
	c, err := s.GetChunkRow(chunkRowID)
	if err != nil {
		return err
	}
	if c.LockedByOther(jobID) {
		return errors.NewLockedError("chunk %s locked by job %s", c.ChunkID, c.LockedByJob)
	}

	query := `UPDATE chunks SET locked_by_job = ?, is_locked = 1, updated_at = ? WHERE id = ?`
	if _, err := s.db.Exec(query, jobID, time.Now(), chunkRowID); err != nil {
		return errors.Wrap(err, "failed to lock chunk")
	}
	return nil
}

// GetChunkRow retrieves a chunk version row by its row id
func (s *Store) GetChunkRow(id string) (*Chunk, error) {
	query := `SELECT ` + chunkSelectColumns() + ` FROM chunks WHERE id = ?`

	rows, err := s.db.Query(query, id)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get chunk")
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, errors.Wrap(err, "failed to get chunk")
		}
		return nil, errors.NewNotFoundError("chunk row %s", id)
	}
	return scanChunkRows(rows)
}

// GetChunkVersion retrieves a specific version of a logical chunk
func (s *Store) GetChunkVersion(chunkID string, version int) (*Chunk, error) {
	query := `SELECT ` + chunkSelectColumns() + ` FROM chunks WHERE chunk_id = ? AND version = ?`

	rows, err := s.db.Query(query, chunkID, version)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get chunk version")
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, errors.Wrap(err, "failed to get chunk version")
		}
		return nil, errors.NewNotFoundError("chunk %s version %d", chunkID, version)
	}
	return scanChunkRows(rows)
}

// GetLatestChunk retrieves the latest non-deleted version of a logical chunk
func (s *Store) GetLatestChunk(chunkID string) (*Chunk, error) {
	query := `SELECT ` + chunkSelectColumns() + `
		FROM chunks
		WHERE chunk_id = ? AND is_latest = 1 AND is_deleted = 0`

	rows, err := s.db.Query(query, chunkID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get latest chunk")
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, errors.Wrap(err, "failed to get latest chunk")
		}
		return nil, errors.NewNotFoundError("chunk %s", chunkID)
	}
	return scanChunkRows(rows)
}

// WriteChunk materializes a new version of a logical chunk: prior versions
// lose is_latest, and a fresh row is inserted as version N+1 (or 1).
// Returns the inserted chunk.
func (s *Store) WriteChunk(bookID, chunkID string, chunkType ChunkType, title, content string) (*Chunk, error) {
	var maxVersion sql.NullInt64
	err := s.db.QueryRow(`SELECT MAX(version) FROM chunks WHERE chunk_id = ?`, chunkID).Scan(&maxVersion)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve chunk version")
	}

	if _, err := s.db.Exec(`UPDATE chunks SET is_latest = 0 WHERE chunk_id = ?`, chunkID); err != nil {
		return nil, errors.Wrap(err, "failed to retire prior chunk versions")
	}

	now := time.Now()
	c := &Chunk{
		ID:        uuid.NewString(),
		BookID:    bookID,
		ChunkID:   chunkID,
		Version:   int(maxVersion.Int64) + 1,
		IsLatest:  true,
		Type:      chunkType,
		Title:     title,
		Content:   content,
		WordCount: countWords(content),
		CreatedAt: now,
		UpdatedAt: now,
	}

	query := `
		INSERT INTO chunks (
			id, book_id, chunk_id, version, is_latest, is_deleted,
			chunk_type, title, content, word_count,
			locked_by_job, is_locked, created_at, updated_at
		) VALUES (?, ?, ?, ?, 1, 0, ?, ?, ?, ?, NULL, 0, ?, ?)
	`
	if _, err := s.db.Exec(query,
		c.ID, c.BookID, c.ChunkID, c.Version,
		c.Type, c.Title, c.Content, c.WordCount,
		c.CreatedAt, c.UpdatedAt,
	); err != nil {
		return nil, errors.Wrap(err, "failed to write chunk")
	}

	return c, nil
}

// ListLatestChunks returns the latest non-deleted chunks of a book in
// creation order
func (s *Store) ListLatestChunks(bookID string) ([]*Chunk, error) {
	query := `SELECT ` + chunkSelectColumns() + `
		FROM chunks
		WHERE book_id = ? AND is_latest = 1 AND is_deleted = 0
		ORDER BY created_at ASC`

	rows, err := s.db.Query(query, bookID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list chunks")
	}
	defer rows.Close()

	var chunks []*Chunk
	for rows.Next() {
		c, err := scanChunkRows(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan chunk")
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating chunks")
	}
	return chunks, nil
}

// ListChunksLockedBy returns every chunk currently locked by the given job
func (s *Store) ListChunksLockedBy(jobID string) ([]*Chunk, error) {
	query := `SELECT ` + chunkSelectColumns() + ` FROM chunks WHERE locked_by_job = ?`

	rows, err := s.db.Query(query, jobID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list locked chunks")
	}
	defer rows.Close()

	var chunks []*Chunk
	for rows.Next() {
		c, err := scanChunkRows(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan chunk")
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating locked chunks")
	}
	return chunks, nil
}

// DeleteChunk soft-deletes every version of a logical chunk
func (s *Store) DeleteChunk(chunkID string) error {
	query := `UPDATE chunks SET is_deleted = 1, updated_at = ? WHERE chunk_id = ?`
	result, err := s.db.Exec(query, time.Now(), chunkID)
	if err != nil {
		return errors.Wrap(err, "failed to delete chunk")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if n == 0 {
		return errors.NewNotFoundError("chunk %s", chunkID)
	}
	return nil
}
