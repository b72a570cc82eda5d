package book

import (
	"database/sql"
)

// bookScanArgs holds the nullable columns scanned from a book row
type bookScanArgs struct {
	Props      sql.NullString
	LockingJob sql.NullString
}

func bookScanTargets(b *Book, args *bookScanArgs) []interface{} {
	return []interface{}{
		&b.ID,
		&b.Title,
		&args.Props,
		&args.LockingJob,
		&b.IsLocked,
		&b.CreatedAt,
		&b.UpdatedAt,
	}
}

func processBookScanArgs(b *Book, args *bookScanArgs) {
	if args.Props.Valid {
		b.Props = args.Props.String
	}
	if args.LockingJob.Valid {
		b.LockingJob = args.LockingJob.String
	}
}

// bookSelectColumns is the standard column list for book SELECT queries
func bookSelectColumns() string {
	return `id, title, props, locking_job, is_locked, created_at, updated_at`
}

// chunkScanArgs holds the nullable columns scanned from a chunk row
type chunkScanArgs struct {
	LockedByJob sql.NullString
}

func chunkScanTargets(c *Chunk, args *chunkScanArgs) []interface{} {
	return []interface{}{
		&c.ID,
		&c.BookID,
		&c.ChunkID,
		&c.Version,
		&c.IsLatest,
		&c.IsDeleted,
		&c.Type,
		&c.Title,
		&c.Content,
		&c.WordCount,
		&args.LockedByJob,
		&c.IsLocked,
		&c.CreatedAt,
		&c.UpdatedAt,
	}
}

func processChunkScanArgs(c *Chunk, args *chunkScanArgs) {
	if args.LockedByJob.Valid {
		c.LockedByJob = args.LockedByJob.String
	}
}

// chunkSelectColumns is the standard column list for chunk SELECT queries
func chunkSelectColumns() string {
	return `id, book_id, chunk_id, version, is_latest, is_deleted,
		chunk_type, title, content, word_count,
		locked_by_job, is_locked, created_at, updated_at`
}

// scanChunkRows scans a single chunk in a rows loop
func scanChunkRows(rows *sql.Rows) (*Chunk, error) {
	var c Chunk
	args := &chunkScanArgs{}
	if err := rows.Scan(chunkScanTargets(&c, args)...); err != nil {
		return nil, err
	}
	processChunkScanArgs(&c, args)
	return &c, nil
}
