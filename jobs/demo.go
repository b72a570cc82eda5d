// Package jobs contains the built-in job types: a demo book job, a
// deliberately failing job for exercising the error path, the write-book
// generation pipeline, and a lock-free export job. RegisterAll wires them
// into a processor.
package jobs

import (
	"context"

	"github.com/dfeldman/bookbot-sub000/ai"
	"github.com/dfeldman/bookbot-sub000/book"
	"github.com/dfeldman/bookbot-sub000/job"
)

// TypeDemo exercises the full lifecycle against a real book: lock, a bounded
// run of logged steps with cancellation checks, one generation call, unlock.
const TypeDemo = "demo"

const demoDefaultSteps = 3

// DemoJob runs a fixed number of steps against its locked book, logging each
// one, and makes a single generation call on the last step.
type DemoJob struct {
	job.BookBase
	steps int
}

// NewDemoJob constructs a demo job. Props: "steps" (optional, default 3).
func NewDemoJob(env *job.Env, locks *book.Store, j *job.Job) (job.Runner, error) {
	base, err := job.NewBookBase(env, locks, j)
	if err != nil {
		return nil, err
	}
	steps := j.Props.Int("steps")
	if steps <= 0 {
		steps = demoDefaultSteps
	}
	return &DemoJob{BookBase: *base, steps: steps}, nil
}

func (d *DemoJob) Execute(ctx context.Context) (bool, error) {
	d.Log(job.LevelInfo, "demo job starting against book %q (%d steps)", d.Book.Title, d.steps)

	for i := 1; i <= d.steps; i++ {
		if d.IsCancelled() {
			d.Log(job.LevelInfo, "demo job observed cancellation at step %d", i)
			return false, nil
		}
		select {
		case <-ctx.Done():
			d.Log(job.LevelInfo, "demo job context cancelled at step %d", i)
			return false, nil
		default:
		}
		d.Log(job.LevelInfo, "demo step %d of %d", i, d.steps)
	}

	call := ai.NewCall(d.Env.Gen, "",
		"You are a concise literary assistant.",
		"Write a one-sentence tagline for a book titled \""+d.Book.Title+"\".",
		20, nil)
	if !call.Execute(ctx) {
		d.Log(job.LevelError, "tagline generation failed: %v", call.Err())
		return false, nil
	}
	d.AddCost(call.Cost)
	d.Log(job.LevelLLM, "generated tagline: %s", call.Output)

	return true, nil
}
