// Package competition implements the task/judging/scoring engine: the
// running-task state machine, submission judging, serialized score updates
// and the rebuildable competition state projection.
package competition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vidarena/arena-server/internal/catalog"
	"github.com/vidarena/arena-server/internal/events"
	"github.com/vidarena/arena-server/internal/groundtruth"
	"github.com/vidarena/arena-server/internal/judges"
	"github.com/vidarena/arena-server/internal/judging"
	"github.com/vidarena/arena-server/internal/metrics"
)

// Compactor defers background storage compaction, protecting a just-closed
// task's writes. Satisfied by db.Maintainer.
type Compactor interface {
	Defer(grace time.Duration)
}

// Config holds the engine tunables.
type Config struct {
	FrameTolerance  int
	ScoreFloor      float64
	WrongPenalty    float64
	RangeGapSeconds float64
	CompactGrace    time.Duration
	JudgeDelayMin   time.Duration
	JudgeDelayMax   time.Duration
	Clock           ClockConfig
}

// Service is the engine's single orchestrator, constructed once at process
// start and passed by handle to everything that needs it.
type Service struct {
	repo       Repository
	catalog    *catalog.Catalog
	gt         groundtruth.Store
	hub        *events.Hub
	updater    *Updater
	metrics    *metrics.Metrics
	compactor  Compactor
	projection *Projection
	pool       *judges.Pool
	dispatcher *judges.Dispatcher
	clock      *Clock
	cfg        Config
	logger     *slog.Logger

	// startMu serializes lifecycle transitions (competition/task
	// start/stop). Score mutations are serialized by the updater instead.
	startMu sync.Mutex

	// correctPool is scoped to the active live-judged task; it is
	// replaced, never patched, across task boundaries. Guarded by poolMu
	// because score units and delayed auto-judges read it off the
	// lifecycle lock.
	poolMu      sync.Mutex
	correctPool *judging.CorrectPool
}

func NewService(repo Repository, cat *catalog.Catalog, gt groundtruth.Store, hub *events.Hub,
	updater *Updater, m *metrics.Metrics, compactor Compactor, cfg Config, logger *slog.Logger) *Service {

	s := &Service{
		repo:       repo,
		catalog:    cat,
		gt:         gt,
		hub:        hub,
		updater:    updater,
		metrics:    m,
		compactor:  compactor,
		projection: NewProjection(),
		cfg:        cfg,
		logger:     logger,
	}

	s.clock = NewClock(cfg.Clock, ClockCallbacks{
		OnCountdownTick: s.onCountdownTick,
		OnRunning:       s.onTaskRunning,
		OnRemainingTick: s.onRemainingTick,
		OnDeadline:      s.onDeadline,
		OnTolerance:     s.onTolerance,
	})
	s.pool = judges.NewPool(s.onAssign, logger)
	s.dispatcher = judges.NewDispatcher(s.pool, gt, cfg.JudgeDelayMin, cfg.JudgeDelayMax, s.onAutoJudge, logger)

	return s
}

// Projection returns the live state projection.
func (s *Service) Projection() *Projection { return s.projection }

// Pool returns the judge pool, for gauges and registration.
func (s *Service) Pool() *judges.Pool { return s.pool }

func (s *Service) livePool() *judging.CorrectPool {
	s.poolMu.Lock()
	defer s.poolMu.Unlock()
	return s.correctPool
}

func (s *Service) setLivePool(pool *judging.CorrectPool) {
	s.poolMu.Lock()
	s.correctPool = pool
	s.poolMu.Unlock()
}

// --- competition lifecycle ---

// CreateCompetition persists a new, not yet running competition.
func (s *Service) CreateCompetition(ctx context.Context, name string) (*Competition, error) {
	if name == "" {
		return nil, fmt.Errorf("competition name must not be empty")
	}
	c := &Competition{ID: NewID(), Name: name, TaskSequence: []string{}}
	if err := s.repo.CreateCompetition(ctx, c); err != nil {
		return nil, err
	}
	s.logger.Info("competition created", "competition_id", c.ID, "name", name)
	return c, nil
}

// AddTeam registers a team in a competition.
func (s *Service) AddTeam(ctx context.Context, competitionID string, number int, name string) (*Team, error) {
	comp, err := s.repo.GetCompetition(ctx, competitionID)
	if err != nil {
		return nil, err
	}
	if comp == nil {
		return nil, ErrCompetitionNotFound
	}
	t := &Team{ID: NewID(), CompetitionID: competitionID, Number: number, Name: name}
	if err := s.repo.CreateTeam(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// CreateTask persists a task definition after validating its family data.
func (s *Service) CreateTask(ctx context.Context, t *Task) (*Task, error) {
	comp, err := s.repo.GetCompetition(ctx, t.CompetitionID)
	if err != nil {
		return nil, err
	}
	if comp == nil {
		return nil, ErrCompetitionNotFound
	}
	if _, err := judging.ParseFamily(string(t.Family)); err != nil {
		return nil, err
	}
	if t.MaxSearchTime <= 0 {
		return nil, fmt.Errorf("max search time must be positive")
	}
	switch {
	case t.Family.Positional():
		if len(t.Ranges) == 0 {
			return nil, fmt.Errorf("positional task needs at least one target range")
		}
		for _, r := range t.Ranges {
			if s.catalog.Video(r.VideoNumber) == nil {
				return nil, fmt.Errorf("%w: %d", ErrUnknownVideo, r.VideoNumber)
			}
		}
	case t.Family == judging.FamilyLive:
		if t.QueryKey == "" {
			return nil, fmt.Errorf("live task needs a query key")
		}
	case t.Family == judging.FamilyExact:
		if len(t.ValidIDs) == 0 {
			return nil, fmt.Errorf("exact task needs a valid-id list")
		}
	}

	t.ID = NewID()
	if err := s.repo.CreateTask(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// StartCompetition marks the competition running. Refused when another
// competition runs, the id is unknown, or the competition already finished.
func (s *Service) StartCompetition(ctx context.Context, id string) (*Competition, error) {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	running, err := s.repo.GetRunningCompetition(ctx)
	if err != nil {
		return nil, err
	}
	if running != nil {
		return nil, ErrCompetitionRunning
	}

	comp, err := s.repo.GetCompetition(ctx, id)
	if err != nil {
		return nil, err
	}
	if comp == nil {
		return nil, ErrCompetitionNotFound
	}
	if comp.Finished {
		return nil, ErrCompetitionFinished
	}

	comp.Running = true
	comp.StartedAt = time.Now()
	if err := s.repo.UpdateCompetition(ctx, comp); err != nil {
		return nil, err
	}

	teams, err := s.repo.ListTeams(ctx, comp.ID)
	if err != nil {
		return nil, err
	}
	s.projection.Reset(comp, teams)

	s.logger.Info("competition started", "competition_id", comp.ID, "teams", len(teams))
	return comp, nil
}

// StopCompetition finishes the running competition. A current task blocks
// the stop.
func (s *Service) StopCompetition(ctx context.Context) error {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	comp := s.projection.Competition()
	if comp == nil || !comp.Running {
		return ErrNoCompetition
	}
	if comp.CurrentTaskID != "" || s.clock.State() != ClockIdle {
		return ErrTaskBlocksStop
	}

	comp.Running = false
	comp.Finished = true
	comp.EndedAt = time.Now()
	if err := s.repo.UpdateCompetition(ctx, comp); err != nil {
		return err
	}

	s.logger.Info("competition stopped", "competition_id", comp.ID)
	return nil
}

// --- task lifecycle ---

// StartTask begins the countdown for a task of the running competition.
// Results and the sequence entry follow once the countdown lapses.
func (s *Service) StartTask(ctx context.Context, id string) (*Task, error) {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	comp := s.projection.Competition()
	if comp == nil || !comp.Running {
		return nil, ErrNoCompetition
	}
	if comp.CurrentTaskID != "" {
		return nil, ErrTaskCurrent
	}
	if s.clock.State() != ClockIdle {
		return nil, ErrCountdownInProgress
	}

	task, err := s.repo.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, ErrTaskNotFound
	}
	if task.CompetitionID != comp.ID {
		return nil, ErrWrongCompetition
	}
	if task.Running || task.Finished || !task.StartedAt.IsZero() {
		return nil, ErrTaskAlreadyRun
	}

	s.clock.Begin(task.ID, time.Duration(task.MaxSearchTime)*time.Second)
	s.logger.Info("task countdown started", "task_id", task.ID, "family", task.Family)
	return task, nil
}

// onTaskRunning fires when the countdown lapses: the task becomes running
// and current, and the clock's timers are already armed. Empty TaskResults
// and the sequence entry are written only here, so a crash during the
// countdown leaves the task startable again.
func (s *Service) onTaskRunning(taskID string) {
	ctx := context.Background()
	s.startMu.Lock()
	defer s.startMu.Unlock()

	task, err := s.repo.GetTask(ctx, taskID)
	if err != nil || task == nil {
		s.logger.Error("task vanished during countdown", "task_id", taskID, "error", err)
		return
	}
	comp := s.projection.Competition()
	if comp == nil {
		s.logger.Error("competition vanished during countdown", "task_id", taskID)
		return
	}

	teams, err := s.repo.ListTeams(ctx, comp.ID)
	if err != nil {
		s.logger.Error("failed to list teams", "task_id", taskID, "error", err)
		return
	}
	results := make(map[string]*TaskResult, len(teams))
	for _, team := range teams {
		res := &TaskResult{ID: NewID(), TaskID: task.ID, TeamID: team.ID}
		if err := s.repo.CreateTaskResult(ctx, res); err != nil {
			s.logger.Error("failed to create task result",
				"task_id", taskID, "team_id", team.ID, "error", err)
			return
		}
		results[team.ID] = res
	}

	task.Running = true
	task.StartedAt = time.Now()
	if err := s.repo.UpdateTaskState(ctx, task); err != nil {
		s.logger.Error("failed to mark task running", "task_id", taskID, "error", err)
	}

	comp.TaskSequence = append(comp.TaskSequence, task.ID)
	comp.CurrentTaskID = task.ID
	if err := s.repo.UpdateCompetition(ctx, comp); err != nil {
		s.logger.Error("failed to record current task", "task_id", taskID, "error", err)
	}

	s.projection.AppendTask(task, results)
	if task.Family == judging.FamilyLive {
		s.setLivePool(judging.NewCorrectPool(s.catalog, s.cfg.RangeGapSeconds))
	} else {
		s.setLivePool(nil)
	}

	s.hub.Publish(events.New(events.SubjectTaskStarted, task))
	s.logger.Info("task running", "task_id", task.ID, "max_search_time_s", task.MaxSearchTime)
}

// StopTask stops the current task: clears the clock's timers, flushes the
// dispatch queue for the task, marks it finished and defers storage
// compaction for a grace period.
func (s *Service) StopTask(ctx context.Context) error {
	s.startMu.Lock()
	defer s.startMu.Unlock()
	return s.stopTaskLocked(ctx)
}

func (s *Service) stopTaskLocked(ctx context.Context) error {
	comp := s.projection.Competition()
	taskID := s.clock.TaskID()
	if taskID == "" {
		return ErrNoTaskRunning
	}

	s.clock.Halt()
	dropped := s.pool.FlushTask(taskID)

	task, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task == nil {
		return ErrTaskNotFound
	}

	task.Running = false
	task.Finished = true
	task.EndedAt = time.Now()
	if err := s.repo.UpdateTaskState(ctx, task); err != nil {
		return err
	}

	if comp != nil {
		comp.CurrentTaskID = ""
		if err := s.repo.UpdateCompetition(ctx, comp); err != nil {
			return err
		}
	}

	s.projection.WithTask(task.ID, func(t *Task) {
		t.Running = false
		t.Finished = true
		t.EndedAt = task.EndedAt
	})
	s.projection.FinishActiveTask()
	s.setLivePool(nil)

	if s.compactor != nil {
		s.compactor.Defer(s.cfg.CompactGrace)
	}

	s.hub.Publish(events.New(events.SubjectTaskStopped, task))
	s.logger.Info("task stopped", "task_id", task.ID, "queued_jobs_dropped", dropped)
	return nil
}

// --- clock callbacks ---

func (s *Service) onCountdownTick(taskID string, remaining int) {
	s.hub.Publish(events.New(events.SubjectCountdownTick, events.CountdownTick{TaskID: taskID, Remaining: remaining}))
}

func (s *Service) onRemainingTick(taskID string, remaining int) {
	s.hub.Publish(events.New(events.SubjectRemainingTick, events.RemainingTick{TaskID: taskID, Remaining: remaining}))
}

func (s *Service) onTolerance(taskID string, deadline time.Time) {
	s.hub.Publish(events.New(events.SubjectToleranceEntered, map[string]any{
		"task_id":  taskID,
		"deadline": deadline,
	}))
}

func (s *Service) onDeadline(taskID string) {
	if s.clock.State() == ClockTolerance {
		s.hub.Publish(events.New(events.SubjectToleranceExpired, map[string]any{"task_id": taskID}))
	}
	s.startMu.Lock()
	defer s.startMu.Unlock()
	if s.clock.TaskID() != taskID {
		return
	}
	if err := s.stopTaskLocked(context.Background()); err != nil {
		s.logger.Error("auto-stop failed", "task_id", taskID, "error", err)
	}
}

// --- submissions ---

// SubmitResult is the synchronous answer to a submission: an immediate
// verdict, a pending acknowledgement, or a silently absorbed duplicate.
type SubmitResult struct {
	Submission *Submission
	Pending    bool
	Duplicate  bool
}

// Submission input as received from the transport layer.
type Guess struct {
	TeamNumber  int
	VideoNumber int
	Frame       int
	ItemID      string
}

// Submit validates and enriches a guess, persists it and judges it through
// the task family's strategy: synchronously for positional and exact
// families, via ground truth or a live judge otherwise.
func (s *Service) Submit(ctx context.Context, g Guess) (*SubmitResult, error) {
	comp := s.projection.Competition()
	if comp == nil || !comp.Running {
		return nil, ErrNoCompetition
	}
	state := s.clock.State()
	if state != ClockRunning && state != ClockTolerance {
		return nil, ErrNoTaskRunning
	}
	taskID := s.clock.TaskID()
	task, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, ErrTaskNotFound
	}

	team, err := s.repo.GetTeamByNumber(ctx, comp.ID, g.TeamNumber)
	if err != nil {
		return nil, err
	}
	if team == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTeam, g.TeamNumber)
	}

	sub := &Submission{
		ID:            NewID(),
		CompetitionID: comp.ID,
		TaskID:        task.ID,
		TeamID:        team.ID,
		SearchTime:    time.Since(task.StartedAt).Seconds(),
		CreatedAt:     time.Now(),
	}

	// Validate and enrich against the reference catalog before anything
	// is persisted.
	if task.Family == judging.FamilyExact {
		if g.ItemID == "" {
			return nil, fmt.Errorf("%w: missing item id", ErrInvalidSubmission)
		}
		sub.ItemID = g.ItemID
	} else {
		if s.catalog.Video(g.VideoNumber) == nil {
			return nil, fmt.Errorf("%w: %d", ErrUnknownVideo, g.VideoNumber)
		}
		shot, err := s.catalog.ShotForFrame(g.VideoNumber, g.Frame)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSubmission, err)
		}
		sub.VideoNumber = g.VideoNumber
		sub.Frame = g.Frame
		sub.ShotNumber = shot
	}

	// A live-judged duplicate of a shot the team already covered is
	// absorbed silently, so network retries cannot double-count.
	if task.Family == judging.FamilyLive {
		if pool := s.livePool(); pool != nil && pool.Has(team.ID, sub.VideoNumber, sub.ShotNumber) {
			s.logger.Info("duplicate live submission ignored",
				"team_id", team.ID, "video", sub.VideoNumber, "shot", sub.ShotNumber)
			return &SubmitResult{Submission: sub, Duplicate: true}, nil
		}
	}

	if err := s.repo.CreateSubmission(ctx, sub); err != nil {
		return nil, err
	}
	s.projection.AddSubmission(sub)
	if s.metrics != nil {
		s.metrics.IncSubmissions()
	}
	s.hub.Publish(events.New(events.SubjectSubmissionCreated, sub))

	strategy := judging.ForFamily(task.Family)
	decision := strategy.Judge(
		judging.Guess{VideoNumber: sub.VideoNumber, Frame: sub.Frame, ShotNumber: sub.ShotNumber, ItemID: sub.ItemID},
		judging.Target{Ranges: task.Ranges, ValidIDs: task.ValidIDs, FrameTolerance: s.cfg.FrameTolerance},
	)

	if !decision.Decided {
		hit, err := s.dispatcher.Submit(ctx, judges.Job{
			SubmissionID: sub.ID,
			TaskID:       task.ID,
			TeamID:       team.ID,
			QueryKey:     task.QueryKey,
			QueryText:    task.QueryText,
			VideoNumber:  sub.VideoNumber,
			Frame:        sub.Frame,
			ShotNumber:   sub.ShotNumber,
		})
		if err != nil {
			return nil, err
		}
		if hit && s.metrics != nil {
			s.metrics.IncGroundTruthHits()
		}
		return &SubmitResult{Submission: sub, Pending: true}, nil
	}

	if err := s.recordVerdict(ctx, task, sub, decision.Verdict, decision.Correct); err != nil {
		return nil, err
	}

	if decision.Correct && task.Family.Positional() {
		s.clock.MaybeExtend()
	}
	return &SubmitResult{Submission: sub}, nil
}

// recordVerdict writes the verdict onto the submission and pushes its score
// effects through the serialized updater.
func (s *Service) recordVerdict(ctx context.Context, task *Task, sub *Submission, verdict string, correct bool) error {
	if err := s.repo.UpdateSubmissionVerdict(ctx, sub.ID, verdict, correct); err != nil {
		return err
	}
	sub.Verdict = verdict
	sub.Correct = correct

	s.projection.MarkJudged(sub.ID, sub.TeamID, verdict, correct)
	if s.metrics != nil {
		s.metrics.IncJudgements()
	}
	s.hub.Publish(events.New(events.SubjectSubmissionJudged, sub))

	s.enqueueScoreUnit(task, sub)
	return nil
}

// --- live judging ---

// RegisterJudge adds a live judge to the pool.
func (s *Service) RegisterJudge(judgeID string) {
	s.pool.Register(judgeID)
}

// UnregisterJudge removes a judge; an in-flight assignment is resubmitted
// through the ground-truth-then-dispatch path, never dropped.
func (s *Service) UnregisterJudge(ctx context.Context, judgeID string) {
	orphan := s.pool.Unregister(judgeID)
	if orphan == nil {
		return
	}
	if err := s.dispatcher.Resubmit(ctx, *orphan); err != nil {
		s.logger.Error("failed to resubmit orphaned assignment",
			"judge_id", judgeID, "submission_id", orphan.SubmissionID, "error", err)
	}
}

// onAssign delivers a pending judgement to a judge as an event.
func (s *Service) onAssign(judgeID string, job judges.Job) {
	if s.metrics != nil {
		s.metrics.IncAssignments()
	}
	s.hub.PublishToJudge(judgeID, events.New(events.SubjectJudgeAssignment, events.Assignment{
		SubmissionID: job.SubmissionID,
		TaskID:       job.TaskID,
		QueryText:    job.QueryText,
		VideoNumber:  job.VideoNumber,
		Frame:        job.Frame,
		ShotNumber:   job.ShotNumber,
	}))
	s.logger.Info("assignment sent", "judge_id", judgeID, "submission_id", job.SubmissionID)
}

// onAutoJudge applies a ground-truth verdict, exactly like a live one but
// attributed to the original judge.
func (s *Service) onAutoJudge(job judges.Job, correct bool, judgedBy string) {
	ctx := context.Background()
	if err := s.applyLiveVerdict(ctx, job, correct, judgedBy); err != nil {
		s.logger.Error("auto-judge failed", "submission_id", job.SubmissionID, "error", err)
	}
}

// SubmitLiveVerdict records a judge's verdict for its current assignment,
// appends it to the ground-truth store and frees the judge for the next
// queued job. Re-delivery for an already judged submission is a no-op.
func (s *Service) SubmitLiveVerdict(ctx context.Context, judgeID, submissionID string, correct bool) error {
	job := s.pool.JobFor(judgeID)
	if job == nil || job.SubmissionID != submissionID {
		sub, err := s.repo.GetSubmission(ctx, submissionID)
		if err != nil {
			return err
		}
		if sub != nil && sub.Judged() {
			return nil
		}
		return ErrNoAssignment
	}

	if err := s.applyLiveVerdict(ctx, *job, correct, judgeID); err != nil {
		return err
	}
	s.pool.Complete(judgeID)
	return nil
}

func (s *Service) applyLiveVerdict(ctx context.Context, job judges.Job, correct bool, judgedBy string) error {
	sub, err := s.repo.GetSubmission(ctx, job.SubmissionID)
	if err != nil {
		return err
	}
	if sub == nil {
		return fmt.Errorf("submission %s not found", job.SubmissionID)
	}
	if sub.Judged() {
		return nil
	}

	task, err := s.repo.GetTask(ctx, job.TaskID)
	if err != nil {
		return err
	}
	if task == nil {
		return ErrTaskNotFound
	}

	verdict := judging.VerdictWrong
	if correct {
		verdict = judging.VerdictCorrect
	}

	if err := s.gt.Record(ctx, &groundtruth.Entry{
		QueryKey:    job.QueryKey,
		VideoNumber: job.VideoNumber,
		ShotNumber:  job.ShotNumber,
		Correct:     correct,
		JudgedBy:    judgedBy,
	}); err != nil {
		if errors.Is(err, groundtruth.ErrVerdictConflict) {
			// Contradictory verdicts for the same physical shot are a
			// data inconsistency; surface them, never resolve silently.
			if s.metrics != nil {
				s.metrics.IncConflicts()
			}
			s.logger.Error("ground truth conflict",
				"query_key", job.QueryKey, "video", job.VideoNumber, "shot", job.ShotNumber,
				"verdict", verdict, "judged_by", judgedBy)
		} else {
			return err
		}
	}

	// A verdict that lands after its task stopped keeps its ground-truth
	// value for future lookups, but the closed task's result must not
	// move, and a successor task's pool must not absorb the shot. The
	// lifecycle lock serializes the currency check against StopTask.
	s.startMu.Lock()
	defer s.startMu.Unlock()
	if task.Finished || s.clock.TaskID() != task.ID {
		s.logger.Info("verdict arrived after task stop, score untouched",
			"submission_id", sub.ID, "task_id", task.ID, "verdict", verdict)
		return nil
	}

	return s.recordVerdict(ctx, task, sub, verdict, correct)
}

// --- score updates ---

// enqueueScoreUnit submits the single serialized mutation for a judged
// submission: counter bumps plus the family-specific score recompute.
func (s *Service) enqueueScoreUnit(task *Task, sub *Submission) {
	pool := s.livePool()
	s.updater.Enqueue(func(ctx context.Context) error {
		return s.applyScoreUnit(ctx, task, sub, pool)
	})
}

func (s *Service) applyScoreUnit(ctx context.Context, task *Task, sub *Submission, pool *judging.CorrectPool) error {
	res, err := s.repo.GetTaskResult(ctx, task.ID, sub.TeamID)
	if err != nil {
		return err
	}
	if res == nil {
		return fmt.Errorf("task result missing for task %s team %s", task.ID, sub.TeamID)
	}

	res.Attempts++
	if sub.Correct {
		res.Correct++
	} else {
		res.Wrong++
	}

	strategy := judging.ForFamily(task.Family)

	if task.Family != judging.FamilyLive {
		// Only a correct submission earns a score; wrong attempts feed the
		// penalty counter that the eventual correct one pays for.
		if sub.Correct {
			res.Score = strategy.Score(judging.ScoreInput{
				SearchTime:    sub.SearchTime,
				MaxSearchTime: float64(task.MaxSearchTime),
				Wrong:         res.Wrong,
				Floor:         s.cfg.ScoreFloor,
				Penalty:       s.cfg.WrongPenalty,
			})
		}
		if err := s.finishScoreUnit(ctx, task, res); err != nil {
			return err
		}
		if task.Family.Positional() && sub.Correct {
			s.checkAllTeamsCorrect(ctx, task)
		}
		return nil
	}

	// Live family: a correct submission that introduces a new shot grows
	// the global range denominator, so every team's score is recomputed;
	// otherwise only the submitter's precision changed.
	recomputeAll := false
	if sub.Correct && pool != nil {
		newShot, err := pool.Add(sub.TeamID, sub.VideoNumber, sub.ShotNumber)
		if err != nil {
			return err
		}
		recomputeAll = newShot
		res.RangeCount = pool.TeamRangeCount(sub.TeamID)
		res.VideoCount = pool.TeamVideoCount(sub.TeamID)

		stats := pool.Stats()
		s.projection.SetLiveCoverage(stats)
		s.hub.Publish(events.New(events.SubjectLiveStats, stats))
	}

	if pool == nil {
		res.Score = 0
		return s.finishScoreUnit(ctx, task, res)
	}

	if !recomputeAll {
		res.Score = liveScore(strategy, pool, sub.TeamID, res)
		return s.finishScoreUnit(ctx, task, res)
	}

	// Persist the submitter first so its counters are current, then walk
	// every team with the grown denominator.
	res.Score = liveScore(strategy, pool, sub.TeamID, res)
	if err := s.finishScoreUnit(ctx, task, res); err != nil {
		return err
	}

	all, err := s.repo.ListTaskResults(ctx, task.ID)
	if err != nil {
		return err
	}
	for _, other := range all {
		if other.TeamID == sub.TeamID {
			continue
		}
		other.RangeCount = pool.TeamRangeCount(other.TeamID)
		other.VideoCount = pool.TeamVideoCount(other.TeamID)
		other.Score = liveScore(strategy, pool, other.TeamID, other)
		if err := s.finishScoreUnit(ctx, task, other); err != nil {
			return err
		}
	}
	return nil
}

func liveScore(strategy judging.Strategy, pool *judging.CorrectPool, teamID string, res *TaskResult) float64 {
	return strategy.Score(judging.ScoreInput{
		Correct:      res.Correct,
		Wrong:        res.Wrong,
		TeamRanges:   pool.TeamRangeCount(teamID),
		GlobalRanges: pool.GlobalRangeCount(),
	})
}

func (s *Service) finishScoreUnit(ctx context.Context, task *Task, res *TaskResult) error {
	if err := s.repo.UpdateTaskResult(ctx, res); err != nil {
		return err
	}
	s.projection.PutResult(task.ID, res)
	if s.metrics != nil {
		s.metrics.IncScoreUpdates()
	}
	s.hub.Publish(events.New(events.SubjectScoreUpdated, res))
	return nil
}

// checkAllTeamsCorrect stops a positional task early once every team's
// result shows at least one correct attempt. A team with zero attempts
// counts as not yet correct, matching the stored counter check literally.
func (s *Service) checkAllTeamsCorrect(ctx context.Context, task *Task) {
	if s.clock.TaskID() != task.ID {
		return
	}
	results, err := s.repo.ListTaskResults(ctx, task.ID)
	if err != nil || len(results) == 0 {
		return
	}
	for _, res := range results {
		if res.Correct == 0 {
			return
		}
	}
	s.logger.Info("all teams correct, stopping task early", "task_id", task.ID)
	go func() {
		s.startMu.Lock()
		defer s.startMu.Unlock()
		if s.clock.TaskID() != task.ID {
			return
		}
		if err := s.stopTaskLocked(context.Background()); err != nil {
			s.logger.Error("early stop failed", "task_id", task.ID, "error", err)
		}
	}()
}

// --- queries ---

// State snapshots the competition state projection.
func (s *Service) State() State {
	return s.projection.Snapshot()
}

// Submissions lists all submissions of a task.
func (s *Service) Submissions(ctx context.Context, taskID string) ([]*Submission, error) {
	return s.repo.ListSubmissions(ctx, taskID)
}

// --- restart recovery ---

// Resume reconstructs the in-memory state after a restart: it rebuilds the
// projection from persisted history, restores the correct pool of an
// unfinished live task from its judged submissions, re-enqueues submissions
// lacking a verdict and re-arms the task clock. Reconstruction failures
// abort the resume.
func (s *Service) Resume(ctx context.Context) error {
	comp, err := s.repo.GetRunningCompetition(ctx)
	if err != nil {
		return err
	}
	if comp == nil {
		return nil
	}

	if err := s.projection.Rebuild(ctx, s.repo, comp); err != nil {
		return fmt.Errorf("state reconstruction failed: %w", err)
	}

	if comp.CurrentTaskID == "" {
		s.logger.Info("resumed competition with no active task", "competition_id", comp.ID)
		return nil
	}

	task, err := s.repo.GetTask(ctx, comp.CurrentTaskID)
	if err != nil {
		return err
	}
	if task == nil {
		return fmt.Errorf("state reconstruction failed: current task %s is missing", comp.CurrentTaskID)
	}

	subs, err := s.repo.ListSubmissions(ctx, task.ID)
	if err != nil {
		return err
	}

	if task.Family == judging.FamilyLive {
		pool := judging.NewCorrectPool(s.catalog, s.cfg.RangeGapSeconds)
		for _, sub := range subs {
			if sub.Judged() && sub.Correct {
				if _, err := pool.Add(sub.TeamID, sub.VideoNumber, sub.ShotNumber); err != nil {
					return fmt.Errorf("state reconstruction failed: %w", err)
				}
			}
		}
		s.setLivePool(pool)
		s.projection.SetLiveCoverage(pool.Stats())
	}

	remaining := time.Until(task.StartedAt.Add(time.Duration(task.MaxSearchTime) * time.Second))
	if remaining <= 0 {
		s.startMu.Lock()
		err := s.stopTaskClosedDeadline(ctx, comp, task)
		s.startMu.Unlock()
		return err
	}
	s.clock.Resume(task.ID, remaining)

	for _, sub := range subs {
		if sub.Judged() {
			continue
		}
		if _, err := s.dispatcher.Submit(ctx, judges.Job{
			SubmissionID: sub.ID,
			TaskID:       task.ID,
			TeamID:       sub.TeamID,
			QueryKey:     task.QueryKey,
			QueryText:    task.QueryText,
			VideoNumber:  sub.VideoNumber,
			Frame:        sub.Frame,
			ShotNumber:   sub.ShotNumber,
		}); err != nil {
			return err
		}
	}

	s.logger.Info("resumed running task", "task_id", task.ID, "remaining", remaining)
	return nil
}

// stopTaskClosedDeadline finishes a task whose deadline passed while the
// process was down.
func (s *Service) stopTaskClosedDeadline(ctx context.Context, comp *Competition, task *Task) error {
	task.Running = false
	task.Finished = true
	task.EndedAt = time.Now()
	if err := s.repo.UpdateTaskState(ctx, task); err != nil {
		return err
	}
	comp.CurrentTaskID = ""
	if err := s.repo.UpdateCompetition(ctx, comp); err != nil {
		return err
	}
	s.projection.FinishActiveTask()
	s.setLivePool(nil)
	s.logger.Info("task deadline passed during downtime, marked finished", "task_id", task.ID)
	return nil
}
