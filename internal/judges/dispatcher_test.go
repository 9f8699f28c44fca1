package judges

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vidarena/arena-server/internal/groundtruth"
)

// memoryStore is an in-memory groundtruth.Store for dispatcher tests.
type memoryStore struct {
	mu      sync.Mutex
	entries map[[3]any]*groundtruth.Entry
	err     error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{entries: make(map[[3]any]*groundtruth.Entry)}
}

func (m *memoryStore) Lookup(ctx context.Context, queryKey string, videoNumber, shotNumber int) (*groundtruth.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.entries[[3]any{queryKey, videoNumber, shotNumber}], nil
}

func (m *memoryStore) Record(ctx context.Context, e *groundtruth.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := [3]any{e.QueryKey, e.VideoNumber, e.ShotNumber}
	if existing := m.entries[key]; existing != nil {
		if existing.Correct != e.Correct {
			return groundtruth.ErrVerdictConflict
		}
		return nil
	}
	m.entries[key] = e
	return nil
}

type verdictCapture struct {
	job      Job
	correct  bool
	judgedBy string
}

func TestDispatcher_GroundTruthHit(t *testing.T) {
	store := newMemoryStore()
	store.entries[[3]any{"q1", 3, 7}] = &groundtruth.Entry{
		QueryKey: "q1", VideoNumber: 3, ShotNumber: 7, Correct: true, JudgedBy: "judge-1",
	}

	verdicts := make(chan verdictCapture, 1)
	pool := NewPool(nil, nil)
	d := NewDispatcher(pool, store, 0, 0, func(job Job, correct bool, judgedBy string) {
		verdicts <- verdictCapture{job, correct, judgedBy}
	}, nil)

	queued, err := d.Submit(context.Background(), Job{SubmissionID: "s1", QueryKey: "q1", VideoNumber: 3, ShotNumber: 7})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if !queued {
		t.Fatal("Submit() must report an auto-judge on a ground-truth hit")
	}

	select {
	case v := <-verdicts:
		if !v.correct || v.judgedBy != "judge-1" || v.job.SubmissionID != "s1" {
			t.Fatalf("verdict = %+v", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("auto-judge never fired")
	}

	// Nothing reaches the pool on a hit.
	if pool.QueueDepth() != 0 {
		t.Error("ground-truth hit must not queue pool work")
	}
}

func TestDispatcher_MissGoesToPool(t *testing.T) {
	store := newMemoryStore()
	pool := NewPool(nil, nil)
	d := NewDispatcher(pool, store, 0, 0, func(Job, bool, string) {
		t.Error("auto-judge must not fire on a miss")
	}, nil)

	queued, err := d.Submit(context.Background(), Job{SubmissionID: "s1", QueryKey: "q1", VideoNumber: 3, ShotNumber: 7})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if queued {
		t.Fatal("Submit() must report false on a miss")
	}
	if pool.QueueDepth() != 1 {
		t.Fatalf("QueueDepth() = %d, want the job queued", pool.QueueDepth())
	}
}

func TestDispatcher_LookupErrorPropagates(t *testing.T) {
	store := newMemoryStore()
	store.err = errors.New("store down")
	pool := NewPool(nil, nil)
	d := NewDispatcher(pool, store, 0, 0, nil, nil)

	if _, err := d.Submit(context.Background(), Job{SubmissionID: "s1"}); err == nil {
		t.Fatal("Submit() must surface store errors")
	}
	if pool.QueueDepth() != 0 {
		t.Error("failed lookup must not queue the job")
	}
}

func TestDispatcher_ResubmitUsesGroundTruth(t *testing.T) {
	// A shot judged while the original judge was still connected must be
	// auto-decided when its orphaned assignment is resubmitted.
	store := newMemoryStore()
	store.entries[[3]any{"q1", 1, 1}] = &groundtruth.Entry{
		QueryKey: "q1", VideoNumber: 1, ShotNumber: 1, Correct: false, JudgedBy: "judge-2",
	}

	verdicts := make(chan verdictCapture, 1)
	pool := NewPool(nil, nil)
	d := NewDispatcher(pool, store, 0, 0, func(job Job, correct bool, judgedBy string) {
		verdicts <- verdictCapture{job, correct, judgedBy}
	}, nil)

	if err := d.Resubmit(context.Background(), Job{SubmissionID: "s1", QueryKey: "q1", VideoNumber: 1, ShotNumber: 1}); err != nil {
		t.Fatalf("Resubmit() error = %v", err)
	}

	select {
	case v := <-verdicts:
		if v.correct {
			t.Error("resubmitted job must carry the stored verdict")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("auto-judge never fired on resubmit")
	}
}

func TestDispatcher_RandomDelayBounds(t *testing.T) {
	d := NewDispatcher(nil, nil, 10*time.Millisecond, 50*time.Millisecond, nil, nil)
	for i := 0; i < 100; i++ {
		delay := d.randomDelay()
		if delay < 10*time.Millisecond || delay >= 50*time.Millisecond {
			t.Fatalf("randomDelay() = %v outside [10ms, 50ms)", delay)
		}
	}

	// Degenerate bounds collapse to the minimum.
	d = NewDispatcher(nil, nil, 20*time.Millisecond, 20*time.Millisecond, nil, nil)
	if got := d.randomDelay(); got != 20*time.Millisecond {
		t.Errorf("randomDelay() = %v, want 20ms", got)
	}
}
