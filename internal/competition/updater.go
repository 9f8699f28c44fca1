package competition

import (
	"context"
	"log/slog"
	"sync"
)

// Unit is one serialized state mutation: reload a TaskResult, apply the
// judged submission's effects, recompute scores. Units run strictly in
// enqueue order.
type Unit func(ctx context.Context) error

type queuedUnit struct {
	fn   Unit
	done chan error
}

// Updater is the single-concurrency pipeline every score mutation must pass
// through. The channel holds at most one in-flight item; a single consumer
// goroutine preserves FIFO order. A unit always signals completion, success
// or failure, so the pipeline cannot deadlock on a persistence error.
type Updater struct {
	units  chan queuedUnit
	logger *slog.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	stopped   chan struct{}
}

func NewUpdater(logger *slog.Logger) *Updater {
	return &Updater{
		units:   make(chan queuedUnit, 1),
		logger:  logger,
		stopped: make(chan struct{}),
	}
}

// Start launches the consumer goroutine. It runs until ctx is canceled.
func (u *Updater) Start(ctx context.Context) {
	u.startOnce.Do(func() {
		go u.run(ctx)
	})
}

func (u *Updater) run(ctx context.Context) {
	defer u.stopOnce.Do(func() { close(u.stopped) })

	for {
		select {
		case <-ctx.Done():
			return
		case q := <-u.units:
			err := q.fn(ctx)
			if err != nil && u.logger != nil {
				u.logger.Error("score update unit failed", "error", err)
			}
			if q.done != nil {
				q.done <- err
			}
		}
	}
}

// Enqueue submits a unit and returns without waiting for it to run.
// It blocks only while the pipeline is full.
func (u *Updater) Enqueue(fn Unit) {
	select {
	case u.units <- queuedUnit{fn: fn}:
	case <-u.stopped:
	}
}

// EnqueueWait submits a unit and waits for its completion.
func (u *Updater) EnqueueWait(fn Unit) error {
	done := make(chan error, 1)
	select {
	case u.units <- queuedUnit{fn: fn, done: done}:
	case <-u.stopped:
		return context.Canceled
	}
	select {
	case err := <-done:
		return err
	case <-u.stopped:
		return context.Canceled
	}
}
