package jobs

import (
	"context"

	"github.com/dfeldman/bookbot-sub000/book"
	"github.com/dfeldman/bookbot-sub000/errors"
	"github.com/dfeldman/bookbot-sub000/job"
)

// TypeFailing always raises; it exists to exercise the error-state path and
// lock release end to end.
const TypeFailing = "failing"

// FailingMessage is the error the failing job always reports
const FailingMessage = "intentional failure from the failing job type"

// FailingJob locks its book (if it names one) and then errors unconditionally
type FailingJob struct {
	job.Base
}

// NewFailingJob constructs a failing job. When the job names a book, the book
// is locked so tests can verify the error path releases it.
func NewFailingJob(env *job.Env, locks *book.Store, j *job.Job) (job.Runner, error) {
	if j.BookID != "" {
		base, err := job.NewBookBase(env, locks, j)
		if err != nil {
			return nil, err
		}
		return &FailingJob{Base: base.Base}, nil
	}
	base, err := job.NewBase(env, locks, j)
	if err != nil {
		return nil, err
	}
	return &FailingJob{Base: *base}, nil
}

func (f *FailingJob) Execute(ctx context.Context) (bool, error) {
	f.Log(job.LevelInfo, "failing job about to raise")
	return false, errors.New(FailingMessage)
}
