// Package events defines the outbound event surface of the engine and an
// in-process hub that fans events out to subscribers. Delivery is
// fire-and-forget: a slow subscriber drops events, it never blocks the
// engine.
package events

import "time"

// Subjects published to viewer subscribers.
const (
	SubjectTaskStarted       = "task.started"
	SubjectTaskStopped       = "task.stopped"
	SubjectCountdownTick     = "task.countdown_tick"
	SubjectRemainingTick     = "task.remaining_tick"
	SubjectToleranceEntered  = "task.tolerance_entered"
	SubjectToleranceExpired  = "task.tolerance_expired"
	SubjectSubmissionCreated = "submission.created"
	SubjectSubmissionJudged  = "submission.judged"
	SubjectLiveStats         = "task.live_stats"
	SubjectScoreUpdated      = "score.updated"
)

// Subjects published to a specific judge subscriber.
const (
	SubjectJudgeAssignment = "judge.assignment"
)

// Event is one published notification.
type Event struct {
	Subject string    `json:"subject"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload,omitempty"`
}

// New builds an event stamped with the current time.
func New(subject string, payload any) Event {
	return Event{Subject: subject, At: time.Now(), Payload: payload}
}

// Assignment is the payload sent to a judge holding a pending judgement:
// the task's query text plus a playback locator for the submitted segment.
type Assignment struct {
	SubmissionID string `json:"submission_id"`
	TaskID       string `json:"task_id"`
	QueryText    string `json:"query_text"`
	VideoNumber  int    `json:"video_number"`
	Frame        int    `json:"frame"`
	ShotNumber   int    `json:"shot_number"`
}

// CountdownTick counts down the seconds until a task starts running.
type CountdownTick struct {
	TaskID    string `json:"task_id"`
	Remaining int    `json:"remaining_s"`
}

// RemainingTick reports the seconds left on a running task's clock.
type RemainingTick struct {
	TaskID    string `json:"task_id"`
	Remaining int    `json:"remaining_s"`
}
