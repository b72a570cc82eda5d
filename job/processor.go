package job

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dfeldman/bookbot-sub000/ai"
	"github.com/dfeldman/bookbot-sub000/book"
	"github.com/dfeldman/bookbot-sub000/errors"
)

// Config contains processor tuning
type Config struct {
	PollInterval    time.Duration `json:"poll_interval"`      // How often to sweep for eligible jobs
	MaxJobsPerCycle int           `json:"max_jobs_per_cycle"` // Claim at most this many jobs per sweep
	RecoveryLimit   int           `json:"recovery_limit"`     // Max orphaned jobs finalized at startup
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		PollInterval:    5 * time.Second,
		MaxJobsPerCycle: 100,
		RecoveryLimit:   1000,
	}
}

// outcome is the processor's record of what a job body reported.
// outcomeIndeterminate is the zero value: if a run falls through without the
// body reporting success, failure or an error, finalize resolves it to the
// error state with a synthetic message.
type outcome int

const (
	outcomeIndeterminate outcome = iota
	outcomeCompleted
	outcomeFailed
	outcomeError
)

// errSkipJob marks a listed job that is no longer claimable on reload
// (e.g. cancelled between the sweep query and the claim)
var errSkipJob = errors.New("job no longer claimable")

// Processor is the background poll loop: it claims eligible jobs, constructs
// their instances (which acquire locks), runs their bodies, and finalizes
// state and locks regardless of outcome. One processor instance is owned by
// the process's composition root; there is no ambient global.
//
// Jobs run sequentially on a single goroutine. Mutual exclusion between
// processes sharing the store rests on the claim transaction, not on any
// in-process mutex.
type Processor struct {
	db        *sql.DB
	env       *Env
	registry  *Registry
	cfg       Config
	parentCtx context.Context
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	logger    *zap.SugaredLogger
	mu        sync.Mutex
	cycles    int64
}

// NewProcessor creates a processor with an empty registry.
// Callers must register job factories before calling Start().
func NewProcessor(db *sql.DB, gen ai.Caller, cfg Config, log *zap.SugaredLogger) *Processor {
	return NewProcessorWithContext(context.Background(), db, gen, cfg, log)
}

// NewProcessorWithContext creates a processor with a parent context.
// Useful for tests and for shutdown coordination from a server.
func NewProcessorWithContext(ctx context.Context, db *sql.DB, gen ai.Caller, cfg Config, log *zap.SugaredLogger) *Processor {
	procCtx, cancel := context.WithCancel(ctx)

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.MaxJobsPerCycle <= 0 {
		cfg.MaxJobsPerCycle = DefaultConfig().MaxJobsPerCycle
	}
	if cfg.RecoveryLimit <= 0 {
		cfg.RecoveryLimit = DefaultConfig().RecoveryLimit
	}

	return &Processor{
		db: db,
		env: &Env{
			Jobs:  NewStore(db),
			Books: book.NewStore(db),
			Gen:   gen,
			Log:   log.Named("processor"),
		},
		registry:  NewRegistry(),
		cfg:       cfg,
		parentCtx: ctx,
		ctx:       procCtx,
		cancel:    cancel,
		logger:    log.Named("processor"),
	}
}

// Register adds a job factory under a type name
func (p *Processor) Register(jobType string, factory Factory) {
	p.registry.Register(jobType, factory)
}

// Jobs returns the job store (useful for submitting and cancelling jobs)
func (p *Processor) Jobs() *Store {
	return p.env.Jobs
}

// Books returns the book store
func (p *Processor) Books() *book.Store {
	return p.env.Books
}

// Registry returns the factory registry
func (p *Processor) Registry() *Registry {
	return p.registry
}

// Start finalizes jobs orphaned by a previous crash, then begins the poll
// loop on its own goroutine.
func (p *Processor) Start() {
	p.mu.Lock()
	// Recreate the context if a previous Stop() cancelled it.
	// Must happen before the loop goroutine spawns.
	select {
	case <-p.ctx.Done():
		p.ctx, p.cancel = context.WithCancel(p.parentCtx)
		p.logger.Infow("Recreated processor context after previous shutdown")
	default:
	}
	p.mu.Unlock()

	if err := p.recoverOrphanedJobs(); err != nil {
		p.logger.Warnw("Failed to recover orphaned jobs", "error", err)
		// Start anyway; orphans stay visible in the error path
	}

	if warning := p.checkMemoryPressure(); warning != "" {
		p.logger.Warnw("Memory pressure warning", "warning", warning)
	}

	p.wg.Add(1)
	go p.loop()
	p.logger.Infow("Job processor started", "poll_interval", p.cfg.PollInterval)
}

// Stop cancels the poll loop and waits for the in-flight job to finalize.
// Uses a generous timeout so a slow body cannot block shutdown indefinitely.
func (p *Processor) Stop() {
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timeout := 30 * time.Second
	select {
	case <-done:
		p.logger.Infow("Job processor stopped")
	case <-time.After(timeout):
		p.logger.Warnw("Job processor stop timed out; a job body may still be finalizing", "timeout", timeout)
	}
}

// loop drives poll cycles until the context is cancelled
func (p *Processor) loop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			if err := p.RunCycle(); err != nil {
				select {
				case <-p.ctx.Done():
					// Shutdown race: the database or context went away under us
					return
				default:
					p.logger.Errorw("Poll cycle failed", "error", err)
				}
			}
		}
	}
}

// RunCycle performs one claim-and-process sweep: every eligible job, in
// ascending creation order, processed sequentially. One job's failure never
// skips the rest of the cycle. Exported so tests and tools can drive cycles
// without the ticker.
func (p *Processor) RunCycle() error {
	eligible, err := p.env.Jobs.ListEligible(p.cfg.MaxJobsPerCycle)
	if err != nil {
		return errors.Wrap(err, "failed to list eligible jobs")
	}

	p.mu.Lock()
	p.cycles++
	p.mu.Unlock()

	for _, j := range eligible {
		select {
		case <-p.ctx.Done():
			return nil
		default:
		}
		p.runJob(j.ID)
	}
	return nil
}

// Cycles returns the number of poll cycles run so far
func (p *Processor) Cycles() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cycles
}

// runJob drives a single job through claim, body and finalize. The deferred
// recover is the outer safety net: its only duty is to make sure no job is
// left permanently running after an internal processor defect.
func (p *Processor) runJob(jobID string) {
	defer func() {
		if r := recover(); r != nil {
			p.forceError(jobID, fmt.Sprintf("internal processor failure: %v", r))
		}
	}()

	runner, claimed, err := p.claim(jobID)
	if err != nil {
		if errors.Is(err, errSkipJob) {
			return
		}
		// Construction or configuration failure: the claim transaction rolled
		// back (no partial lock, never published as running), and the job is
		// finalized as an error. Lock contention and unknown job types land
		// here and are never auto-retried.
		p.logger.Warnw("Job claim failed", "job_id", jobID, "error", err)
		p.finalize(jobID, outcomeError, err)
		return
	}

	p.logger.Infow("Job claimed",
		"job_id", claimed.ID,
		"job_type", claimed.Type,
		"book_id", claimed.BookID,
	)

	out, execErr := runBody(p.ctx, runner)
	p.finalize(jobID, out, execErr)
}

// claim reloads the job, stamps it running, and constructs its instance, all
// inside one SQLite transaction. SQLite transactions are serializable, so the
// check-then-set on lock fields is atomic across processes, and the commit
// publishes "running" and "locked" together: there is no window where a job
// looks running without its locks being visible.
func (p *Processor) claim(jobID string) (Runner, *Job, error) {
	tx, err := p.db.Begin()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to begin claim transaction")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	txJobs := p.env.Jobs.WithTx(tx)
	j, err := txJobs.GetJob(jobID)
	if err != nil {
		return nil, nil, err
	}
	if !j.State.Claimable() {
		// Cancelled (or otherwise moved on) between the sweep and the claim
		return nil, nil, errSkipJob
	}

	now := time.Now()
	if err := txJobs.MarkRunning(jobID, now); err != nil {
		return nil, nil, err
	}
	j.State = StateRunning
	j.StartedAt = &now

	factory := p.registry.Get(j.Type)
	if factory == nil {
		return nil, nil, errors.Wrapf(errors.ErrUnknownJobType, "job type %q", j.Type)
	}

	locks := p.env.Books.WithTx(tx)
	runner, err := factory(p.env, locks, j)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to construct %q job", j.Type)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, errors.Wrap(err, "failed to commit claim transaction")
	}
	committed = true
	return runner, j, nil
}

// runBody invokes the job body, capturing exactly one of: success, failure,
// or an error. A panic in the body is converted to an error outcome with the
// panic value carried verbatim.
func runBody(ctx context.Context, runner Runner) (out outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = outcomeError
			err = errors.Newf("job body panicked: %v", r)
		}
	}()

	ok, execErr := runner.Execute(ctx)
	if execErr != nil {
		return outcomeError, execErr
	}
	if ok {
		return outcomeCompleted, nil
	}
	return outcomeFailed, nil
}

// finalize resolves and persists the job's terminal state, then releases its
// locks. The state change commits first and the lock release second, so a
// concurrent poller can never re-claim a job that looks terminal but still
// holds resources. Idempotent: an already-terminal job only has its
// remaining locks released, which makes this safe to re-run from the
// recovery sweep.
func (p *Processor) finalize(jobID string, out outcome, execErr error) {
	var state State
	var msg string
	switch out {
	case outcomeError:
		state = StateError
		if execErr != nil {
			msg = execErr.Error()
		} else {
			msg = "unspecified error"
		}
	case outcomeCompleted:
		state = StateCompleted
	case outcomeFailed:
		state = StateFailed
	default:
		state = StateError
		msg = "indeterminate outcome: job body reported neither success nor failure"
	}

	// Reload fresh; never reuse the body's record, which may reflect a
	// rolled-back transaction.
	j, err := p.env.Jobs.GetJob(jobID)
	if err != nil {
		p.logger.Errorw("Finalize could not reload job", "job_id", jobID, "error", err)
		return
	}

	transitioned, err := p.env.Jobs.FinalizeState(jobID, state, msg, time.Now())
	if err != nil {
		p.logger.Errorw("Failed to finalize job state", "job_id", jobID, "error", err)
		// Fall through: locks must still be released
	}
	if !transitioned && j.State.Terminal() {
		// Already terminal (e.g. the body cancelled itself); keep that state
		state = j.State
	}

	p.releaseLocks(j)

	p.logger.Infow("Job finalized",
		"job_id", jobID,
		"state", state,
		"error_message", msg,
	)
}

// releaseLocks clears every lock the job holds, in one transaction:
// the book only if this job is still its owner, and every chunk owned by
// this job. Exactly-once release even when the body never reached any
// cleanup path; releasing nothing is a no-op.
func (p *Processor) releaseLocks(j *Job) {
	tx, err := p.db.Begin()
	if err != nil {
		p.logger.Errorw("Failed to begin unlock transaction", "job_id", j.ID, "error", err)
		return
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	locks := p.env.Books.WithTx(tx)
	if j.BookID != "" {
		if err := locks.UnlockBookOwnedBy(j.BookID, j.ID); err != nil {
			p.logger.Errorw("Failed to release book lock", "job_id", j.ID, "book_id", j.BookID, "error", err)
			return
		}
	}
	if _, err := locks.UnlockChunksOwnedBy(j.ID); err != nil {
		p.logger.Errorw("Failed to release chunk locks", "job_id", j.ID, "error", err)
		return
	}

	if err := tx.Commit(); err != nil {
		p.logger.Errorw("Failed to commit unlock transaction", "job_id", j.ID, "error", err)
		return
	}
	committed = true
}

// forceError is the outer safety net's recovery: reload by id and force the
// job into the error state with a critical log entry, then release its locks.
// A failure in here is logged to the process logger only; no further
// recovery is attempted.
func (p *Processor) forceError(jobID, msg string) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Errorw("Safety net itself failed; job may be left running",
				"job_id", jobID,
				"panic", r,
			)
		}
	}()

	p.logger.Errorw("Safety net engaged", "job_id", jobID, "message", msg)

	j, err := p.env.Jobs.GetJob(jobID)
	if err != nil {
		p.logger.Errorw("Safety net could not reload job", "job_id", jobID, "error", err)
		return
	}

	if _, err := p.env.Jobs.FinalizeState(jobID, StateError, msg, time.Now()); err != nil {
		p.logger.Errorw("Safety net could not finalize job", "job_id", jobID, "error", err)
		return
	}
	if err := p.env.Jobs.AppendLog(jobID, j.BookID, LevelCritical, msg, nil); err != nil {
		p.logger.Errorw("Safety net could not append critical log", "job_id", jobID, "error", err)
	}
	p.releaseLocks(j)
}

// recoverOrphanedJobs finalizes jobs stuck in "running" from an ungraceful
// shutdown (crash, kill -9, power loss): each is forced to the error state
// and its locks are released. Correct only because a store is owned by one
// processor process at a time; a deployment with concurrent processors would
// need liveness checks before sweeping.
func (p *Processor) recoverOrphanedJobs() error {
	running := StateRunning
	orphaned, err := p.env.Jobs.ListJobs(&running, p.cfg.RecoveryLimit)
	if err != nil {
		return errors.Wrap(err, "failed to list running jobs")
	}
	if len(orphaned) == 0 {
		return nil
	}

	p.logger.Warnw("Found orphaned jobs from previous shutdown", "count", len(orphaned))

	for _, j := range orphaned {
		const msg = "orphaned by process restart; locks released"
		if _, err := p.env.Jobs.FinalizeState(j.ID, StateError, msg, time.Now()); err != nil {
			p.logger.Warnw("Failed to finalize orphaned job", "job_id", j.ID, "error", err)
			continue
		}
		if err := p.env.Jobs.AppendLog(j.ID, j.BookID, LevelCritical, msg, nil); err != nil {
			p.logger.Warnw("Failed to log orphaned job recovery", "job_id", j.ID, "error", err)
		}
		p.releaseLocks(j)
		p.logger.Warnw("Recovered orphaned job", "job_id", j.ID, "job_type", j.Type)
	}
	return nil
}
