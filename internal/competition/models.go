package competition

import (
	"time"

	"github.com/google/uuid"
	"github.com/vidarena/arena-server/internal/judging"
)

// Competition is one timed multi-team event. At most one competition is
// running system-wide, and at most one of its tasks is current at a time.
type Competition struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Running  bool   `json:"running"`
	Finished bool   `json:"finished"`

	StartedAt time.Time `json:"started_at,omitzero"`
	EndedAt   time.Time `json:"ended_at,omitzero"`

	// TaskSequence holds task ids in the order they were started; it is
	// the replay script for state reconstruction.
	TaskSequence []string `json:"task_sequence"`

	CurrentTaskID string `json:"current_task_id,omitempty"`
}

// Team is one competing party within a competition.
type Team struct {
	ID            string `json:"id"`
	CompetitionID string `json:"competition_id"`
	Number        int    `json:"number"`
	Name          string `json:"name"`
}

// Task is one timed search assignment. It belongs to exactly one
// competition and is judged by exactly one strategy, determined by Family.
type Task struct {
	ID            string         `json:"id"`
	CompetitionID string         `json:"competition_id"`
	Name          string         `json:"name"`
	Family        judging.Family `json:"family"`

	// Novice is a display variant only; it never affects judging.
	Novice bool `json:"novice"`

	// MaxSearchTime is the task duration in seconds.
	MaxSearchTime int `json:"max_search_time"`

	Running   bool      `json:"running"`
	Finished  bool      `json:"finished"`
	StartedAt time.Time `json:"started_at,omitzero"`
	EndedAt   time.Time `json:"ended_at,omitzero"`

	// Family-specific target data.
	Ranges    []judging.FrameRange `json:"ranges,omitempty"`     // positional
	QueryText string               `json:"query_text,omitempty"` // live
	QueryKey  string               `json:"query_key,omitempty"`  // live
	ValidIDs  []string             `json:"valid_ids,omitempty"`  // exact
}

// TaskResult is the per-(task, team) scoring record, created empty when the
// task starts and mutated only through the serialized score updater.
type TaskResult struct {
	ID     string `json:"id"`
	TaskID string `json:"task_id"`
	TeamID string `json:"team_id"`

	Attempts int     `json:"attempts"`
	Correct  int     `json:"correct"`
	Wrong    int     `json:"wrong"`
	Score    float64 `json:"score"`

	// Live-judged family coverage.
	RangeCount int `json:"range_count"`
	VideoCount int `json:"video_count"`
}

// Submission is one guess by one team. It is judged exactly once; updates
// after judging only annotate, never re-judge.
type Submission struct {
	ID            string `json:"id"`
	CompetitionID string `json:"competition_id"`
	TaskID        string `json:"task_id"`
	TeamID        string `json:"team_id"`

	// Family-specific locator.
	VideoNumber int    `json:"video_number,omitempty"`
	Frame       int    `json:"frame,omitempty"`
	ShotNumber  int    `json:"shot_number,omitempty"`
	ItemID      string `json:"item_id,omitempty"`

	// SearchTime is seconds since task start.
	SearchTime float64 `json:"search_time"`

	// Verdict is empty until judged.
	Verdict string `json:"verdict,omitempty"`
	Correct bool   `json:"correct"`

	CreatedAt time.Time `json:"created_at"`
}

// Judged reports whether a verdict has been recorded.
func (s *Submission) Judged() bool {
	return s.Verdict != ""
}

// NewID generates a new entity identity.
func NewID() string {
	return uuid.NewString()
}
