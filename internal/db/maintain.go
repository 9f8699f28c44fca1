package db

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Maintainer periodically checkpoints the WAL so the database file does not
// grow without bound. Checkpointing can be deferred for a grace period,
// which the task clock uses to keep a just-closed task's writes out of a
// concurrent compaction.
type Maintainer struct {
	db       *DB
	logger   *slog.Logger
	interval time.Duration

	mu          sync.Mutex
	pausedUntil time.Time
}

func NewMaintainer(db *DB, interval time.Duration, logger *slog.Logger) *Maintainer {
	return &Maintainer{db: db, logger: logger, interval: interval}
}

// Run checkpoints on the configured interval until ctx is canceled.
func (m *Maintainer) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.deferred() {
				continue
			}
			if err := m.db.Checkpoint(); err != nil {
				if m.logger != nil {
					m.logger.Warn("wal checkpoint failed", "error", err)
				}
			}
		}
	}
}

// Defer suppresses checkpointing until grace has elapsed. Overlapping calls
// keep the latest deadline.
func (m *Maintainer) Defer(grace time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	until := time.Now().Add(grace)
	if until.After(m.pausedUntil) {
		m.pausedUntil = until
	}
}

func (m *Maintainer) deferred() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return time.Now().Before(m.pausedUntil)
}
