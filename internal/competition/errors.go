package competition

import "errors"

// Precondition violations: the request is well-formed but the lifecycle
// state forbids it. Rejected synchronously, no state change.
var (
	ErrCompetitionRunning  = errors.New("a competition is already running")
	ErrCompetitionNotFound = errors.New("competition not found")
	ErrCompetitionFinished = errors.New("competition already finished")
	ErrNoCompetition       = errors.New("no competition is running")

	ErrTaskNotFound        = errors.New("task not found")
	ErrWrongCompetition    = errors.New("task belongs to a different competition")
	ErrTaskAlreadyRun      = errors.New("task was already started")
	ErrTaskCurrent         = errors.New("another task is already current")
	ErrCountdownInProgress = errors.New("a task countdown is already in progress")
	ErrNoTaskRunning       = errors.New("no task is running")
	ErrTaskBlocksStop      = errors.New("running task blocks competition stop")
)

// Validation failures: malformed submission fields, rejected before any
// persistence write.
var (
	ErrUnknownTeam       = errors.New("unknown team number")
	ErrUnknownVideo      = errors.New("unknown video number")
	ErrInvalidSubmission = errors.New("invalid submission")
)

// ErrNoAssignment is returned when a judge delivers a verdict for a
// submission it does not hold.
var ErrNoAssignment = errors.New("judge holds no assignment for this submission")
