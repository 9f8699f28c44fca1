// Package groundtruth persists judging verdicts keyed by (query key, video,
// shot). The store is append-only and shared across the whole competition:
// once a shot has been judged for a query, future identical submissions are
// decided from the stored verdict instead of dispatching a live judge.
package groundtruth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrVerdictConflict is returned when a verdict is recorded for a key that
// already holds a contradictory verdict. The stored verdict is never
// overwritten; the conflict must be surfaced to operators.
var ErrVerdictConflict = errors.New("contradictory verdict for already judged shot")

// Entry is one persisted verdict with the identity of whoever produced it.
type Entry struct {
	ID          string    `json:"id"`
	QueryKey    string    `json:"query_key"`
	VideoNumber int       `json:"video_number"`
	ShotNumber  int       `json:"shot_number"`
	Correct     bool      `json:"correct"`
	JudgedBy    string    `json:"judged_by"`
	CreatedAt   time.Time `json:"created_at"`
}

type Store interface {
	Lookup(ctx context.Context, queryKey string, videoNumber, shotNumber int) (*Entry, error)
	Record(ctx context.Context, e *Entry) error
}

type SQLStore struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Lookup returns the stored verdict for the key, or nil if the shot has not
// been judged for this query yet.
func (s *SQLStore) Lookup(ctx context.Context, queryKey string, videoNumber, shotNumber int) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, query_key, video_number, shot_number, correct, judged_by, created_at
		FROM ground_truth WHERE query_key = ? AND video_number = ? AND shot_number = ?
	`, queryKey, videoNumber, shotNumber)

	var e Entry
	var correct int
	var createdAt string
	err := row.Scan(&e.ID, &e.QueryKey, &e.VideoNumber, &e.ShotNumber, &correct, &e.JudgedBy, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e.Correct = correct == 1
	e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &e, nil
}

// Record appends a verdict. Recording the same verdict twice is a no-op;
// recording a different verdict for an existing key returns
// ErrVerdictConflict and leaves the stored entry untouched.
func (s *SQLStore) Record(ctx context.Context, e *Entry) error {
	existing, err := s.Lookup(ctx, e.QueryKey, e.VideoNumber, e.ShotNumber)
	if err != nil {
		return err
	}
	if existing != nil {
		if existing.Correct != e.Correct {
			return ErrVerdictConflict
		}
		return nil
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ground_truth (id, query_key, video_number, shot_number, correct, judged_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.QueryKey, e.VideoNumber, e.ShotNumber, boolToInt(e.Correct), e.JudgedBy, e.CreatedAt.Format(time.RFC3339))
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
