package judges

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/vidarena/arena-server/internal/groundtruth"
)

// AutoJudgeFunc applies a ground-truth verdict to a submission, exactly as
// if a live judge had produced it.
type AutoJudgeFunc func(job Job, correct bool, judgedBy string)

// Dispatcher routes a pending judgement through the ground-truth store
// first and falls back to the live judge pool on a miss.
type Dispatcher struct {
	pool        *Pool
	store       groundtruth.Store
	delayMin    time.Duration
	delayMax    time.Duration
	onAutoJudge AutoJudgeFunc
	logger      *slog.Logger
}

func NewDispatcher(pool *Pool, store groundtruth.Store, delayMin, delayMax time.Duration, onAutoJudge AutoJudgeFunc, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		pool:        pool,
		store:       store,
		delayMin:    delayMin,
		delayMax:    delayMax,
		onAutoJudge: onAutoJudge,
		logger:      logger,
	}
}

// Submit consults the ground-truth store for the job's (query, video, shot)
// triple. A hit auto-judges the submission after a short randomized delay,
// keeping a human-perceptible cadence, then checks the queue for waiting
// work. A miss hands the job to the pool. Returns true when the submission
// was auto-judged from ground truth.
func (d *Dispatcher) Submit(ctx context.Context, job Job) (bool, error) {
	entry, err := d.store.Lookup(ctx, job.QueryKey, job.VideoNumber, job.ShotNumber)
	if err != nil {
		return false, err
	}

	if entry != nil {
		delay := d.randomDelay()
		if d.logger != nil {
			d.logger.Info("ground truth hit, auto-judging",
				"submission_id", job.SubmissionID, "correct", entry.Correct, "delay", delay)
		}
		correct := entry.Correct
		judgedBy := entry.JudgedBy
		time.AfterFunc(delay, func() {
			d.onAutoJudge(job, correct, judgedBy)
			d.pool.Kick()
		})
		return true, nil
	}

	d.pool.Dispatch(&job)
	return false, nil
}

// Resubmit pushes an orphaned assignment from a disconnected judge back
// through the ground-truth-then-dispatch path.
func (d *Dispatcher) Resubmit(ctx context.Context, job Job) error {
	_, err := d.Submit(ctx, job)
	return err
}

func (d *Dispatcher) randomDelay() time.Duration {
	if d.delayMax <= d.delayMin {
		return d.delayMin
	}
	return d.delayMin + time.Duration(rand.Int63n(int64(d.delayMax-d.delayMin)))
}
