package job

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/dfeldman/bookbot-sub000/ai"
	"github.com/dfeldman/bookbot-sub000/book"
	"github.com/dfeldman/bookbot-sub000/errors"
)

// Runner is the contract every job type implements. Execute reports one of
// three outcomes: (true, nil) the work succeeded; (false, nil) the work
// failed in a resubmittable way; (_, err) an error occurred. The processor
// maps these to completed / failed / error respectively.
//
// Long-running bodies should check IsCancelled (or ctx.Done()) between steps;
// cancellation is cooperative and never preemptive.
type Runner interface {
	Execute(ctx context.Context) (bool, error)
}

// Env bundles the collaborators job instances use while executing. Stores are
// bound to the connection pool, not the claim transaction; by execute time
// the claim has committed.
type Env struct {
	Jobs  *Store
	Books *book.Store
	Gen   ai.Caller
	Log   *zap.SugaredLogger
}

// Factory constructs a job instance for a claimed job record. locks is a book
// store bound to the claim transaction: all lock acquisition happens through
// it, inside that transaction, so the claim commit publishes "running" and
// "locked" atomically. A factory returning an error aborts the claim: the
// transaction rolls back and no partial lock survives.
type Factory func(env *Env, locks *book.Store, j *Job) (Runner, error)

// Base is the abstract job: the claimed record, its resolved book (nil for
// resource-less jobs), and the logging/cancellation plumbing shared by every
// variant. Base acquires no locks.
type Base struct {
	Job  *Job
	Book *book.Book
	Env  *Env
}

// NewBase resolves the job's book (when it has one) through the claim
// transaction and wires the execution environment.
func NewBase(env *Env, locks *book.Store, j *Job) (*Base, error) {
	b := &Base{Job: j, Env: env}
	if j.BookID != "" {
		bk, err := locks.GetBook(j.BookID)
		if err != nil {
			return nil, err
		}
		b.Book = bk
	}
	return b, nil
}

// Log appends an entry to the job's audit trail, tagged with the owning book
// id. Log failures are reported to the process logger and swallowed; the
// audit trail never takes a job body down.
func (b *Base) Log(level LogLevel, format string, args ...interface{}) {
	entry := fmt.Sprintf(format, args...)
	if err := b.Env.Jobs.AppendLog(b.Job.ID, b.Job.BookID, level, entry, nil); err != nil {
		b.Env.Log.Warnw("Failed to append job log",
			"job_id", b.Job.ID,
			"level", level,
			"error", err,
		)
	}
}

// IsCancelled re-reads the persisted job state. Cooperative: a body that
// never calls this runs to completion regardless of any cancel request.
func (b *Base) IsCancelled() bool {
	j, err := b.Env.Jobs.GetJob(b.Job.ID)
	if err != nil {
		b.Env.Log.Warnw("Failed to re-read job state for cancellation check",
			"job_id", b.Job.ID,
			"error", err,
		)
		return false
	}
	return j.State == StateCancelled
}

// Cancel transitions the job to cancelled and stamps its completion time.
// Valid only while the job is waiting or running.
func (b *Base) Cancel() error {
	ok, err := b.Env.Jobs.Cancel(b.Job.ID)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Wrapf(errors.ErrTerminal, "cancel job %s", b.Job.ID)
	}
	return nil
}

// AddCost accumulates generation spend into the job's props running total
func (b *Base) AddCost(cost float64) {
	if b.Job.Props == nil {
		b.Job.Props = Props{}
	}
	b.Job.Props["cost"] = b.Job.Props.Float("cost") + cost
	if err := b.Env.Jobs.UpdateProps(b.Job.ID, b.Job.Props); err != nil {
		b.Env.Log.Warnw("Failed to persist job cost", "job_id", b.Job.ID, "error", err)
	}
}

// BookBase claims the whole book for the job's duration. Construction fails
// with a lock-contention error if a different job already holds the book.
type BookBase struct {
	Base
}

// NewBookBase locks the job's book inside the claim transaction
func NewBookBase(env *Env, locks *book.Store, j *Job) (*BookBase, error) {
	if j.BookID == "" {
		return nil, errors.Wrap(errors.ErrInvalidRequest, "book job requires a book id")
	}
	base, err := NewBase(env, locks, j)
	if err != nil {
		return nil, err
	}
	if err := locks.LockBook(j.BookID, j.ID); err != nil {
		return nil, err
	}
	return &BookBase{Base: *base}, nil
}

// ChunkBase claims a single chunk of a book: the version named in the job's
// props, or else the latest non-deleted one. Distinct chunks of an
// otherwise-unlocked book may be claimed by different jobs concurrently.
type ChunkBase struct {
	Base
	Chunk *book.Chunk
}

// NewChunkBase resolves and locks one chunk inside the claim transaction.
// Fails with not-found if the chunk does not exist, or with lock contention
// if the book or the chunk is held by a different job.
func NewChunkBase(env *Env, locks *book.Store, j *Job) (*ChunkBase, error) {
	base, err := NewBase(env, locks, j)
	if err != nil {
		return nil, err
	}

	chunkID := j.Props.String("chunk_id")
	if chunkID == "" {
		return nil, errors.Wrap(errors.ErrInvalidRequest, "chunk job requires a chunk_id prop")
	}

	var chunk *book.Chunk
	if version := j.Props.Int("chunk_version"); version > 0 {
		chunk, err = locks.GetChunkVersion(chunkID, version)
	} else {
		chunk, err = locks.GetLatestChunk(chunkID)
	}
	if err != nil {
		return nil, err
	}

	if base.Book != nil && base.Book.LockedByOther(j.ID) {
		return nil, errors.NewLockedError("book %s locked by job %s", base.Book.ID, base.Book.LockingJob)
	}
	if err := locks.LockChunk(chunk.ID, j.ID); err != nil {
		return nil, err
	}

	return &ChunkBase{Base: *base, Chunk: chunk}, nil
}

// ExportBase acquires no locks and is read-only by contract
type ExportBase struct {
	Base
}

// NewExportBase resolves the book (if any) without locking anything
func NewExportBase(env *Env, locks *book.Store, j *Job) (*ExportBase, error) {
	base, err := NewBase(env, locks, j)
	if err != nil {
		return nil, err
	}
	return &ExportBase{Base: *base}, nil
}
