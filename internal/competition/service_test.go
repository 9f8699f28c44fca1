package competition

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/vidarena/arena-server/internal/catalog"
	"github.com/vidarena/arena-server/internal/db"
	"github.com/vidarena/arena-server/internal/events"
	"github.com/vidarena/arena-server/internal/groundtruth"
	"github.com/vidarena/arena-server/internal/judging"
)

func serviceConfig() Config {
	return Config{
		FrameTolerance:  10,
		ScoreFloor:      50,
		WrongPenalty:    10,
		RangeGapSeconds: 60,
		Clock: ClockConfig{
			Countdown:     0,
			RemainingTick: time.Hour,
			Tolerance:     50 * time.Millisecond,
		},
	}
}

type serviceFixture struct {
	svc  *Service
	repo Repository
	cat  *catalog.Catalog
	gt   groundtruth.Store
}

func newServiceFixture(t *testing.T, cfg Config) *serviceFixture {
	t.Helper()

	database, err := db.New(db.Options{Path: filepath.Join(t.TempDir(), "test.db")}, nil)
	if err != nil {
		t.Fatalf("db.New() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := NewRepository(database.Conn())
	cat := catalog.New(catalog.NewRepository(database.Conn()))
	gt := groundtruth.NewStore(database.Conn())

	// One reference video: 1000 frames at 25 fps in three shots.
	err = cat.Import(context.Background(),
		&catalog.Video{Number: 1, Filename: "v001.mp4", FPS: 25, TotalFrames: 1000},
		[]catalog.Shot{
			{FirstFrame: 0, LastFrame: 249},
			{FirstFrame: 250, LastFrame: 499},
			{FirstFrame: 500, LastFrame: 999},
		})
	if err != nil {
		t.Fatalf("catalog.Import() error = %v", err)
	}

	f := &serviceFixture{repo: repo, cat: cat, gt: gt}
	f.svc = f.newService(t, cfg, logger)
	return f
}

// newService builds a service over the fixture's shared storage. Called a
// second time it models a process restart.
func (f *serviceFixture) newService(t *testing.T, cfg Config, logger *slog.Logger) *Service {
	t.Helper()

	updater := NewUpdater(logger)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	updater.Start(ctx)

	return NewService(f.repo, f.cat, f.gt, events.NewHub(logger), updater, nil, nil, cfg, logger)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// startRunningTask drives a competition with the given teams up to a running
// task and waits out the countdown.
func startRunningTask(t *testing.T, svc *Service, task *Task, teamNumbers ...int) (*Competition, []*Team, *Task) {
	t.Helper()
	ctx := context.Background()

	comp, err := svc.CreateCompetition(ctx, "test cup")
	if err != nil {
		t.Fatalf("CreateCompetition() error = %v", err)
	}
	teams := make([]*Team, len(teamNumbers))
	for i, n := range teamNumbers {
		team, err := svc.AddTeam(ctx, comp.ID, n, "team")
		if err != nil {
			t.Fatalf("AddTeam(%d) error = %v", n, err)
		}
		teams[i] = team
	}

	task.CompetitionID = comp.ID
	created, err := svc.CreateTask(ctx, task)
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	if _, err := svc.StartCompetition(ctx, comp.ID); err != nil {
		t.Fatalf("StartCompetition() error = %v", err)
	}
	if _, err := svc.StartTask(ctx, created.ID); err != nil {
		t.Fatalf("StartTask() error = %v", err)
	}

	waitFor(t, "task to run", func() bool {
		got, err := svc.repo.GetTask(ctx, created.ID)
		return err == nil && got != nil && got.Running
	})
	return comp, teams, created
}

func visualTask() *Task {
	return &Task{
		Name:          "kis-01",
		Family:        judging.FamilyVisual,
		MaxSearchTime: 3600,
		Ranges:        []judging.FrameRange{{VideoNumber: 1, StartFrame: 100, EndFrame: 200}},
	}
}

func TestSubmit_PositionalCorrect(t *testing.T) {
	f := newServiceFixture(t, serviceConfig())
	ctx := context.Background()
	_, teams, task := startRunningTask(t, f.svc, visualTask(), 1)

	res, err := f.svc.Submit(ctx, Guess{TeamNumber: 1, VideoNumber: 1, Frame: 150})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if res.Pending || res.Duplicate {
		t.Fatalf("result = %+v, want immediate verdict", res)
	}
	if res.Submission.Verdict != judging.VerdictCorrect {
		t.Fatalf("verdict = %q", res.Submission.Verdict)
	}

	waitFor(t, "score update", func() bool {
		tr, err := f.repo.GetTaskResult(ctx, task.ID, teams[0].ID)
		return err == nil && tr != nil && tr.Score == 100 && tr.Correct == 1
	})

	// The only team is correct, so the task stops early.
	waitFor(t, "early task stop", func() bool {
		got, err := f.repo.GetTask(ctx, task.ID)
		return err == nil && got != nil && got.Finished
	})
}

func TestSubmit_WrongThenCorrect(t *testing.T) {
	f := newServiceFixture(t, serviceConfig())
	ctx := context.Background()
	_, teams, task := startRunningTask(t, f.svc, visualTask(), 1)

	res, err := f.svc.Submit(ctx, Guess{TeamNumber: 1, VideoNumber: 1, Frame: 600})
	if err != nil {
		t.Fatalf("Submit(wrong) error = %v", err)
	}
	if res.Submission.Verdict != judging.VerdictWrong {
		t.Fatalf("verdict = %q, want wrong", res.Submission.Verdict)
	}

	// A wrong attempt bumps counters but never awards a score.
	waitFor(t, "wrong counter", func() bool {
		tr, err := f.repo.GetTaskResult(ctx, task.ID, teams[0].ID)
		return err == nil && tr != nil && tr.Wrong == 1
	})
	tr, err := f.repo.GetTaskResult(ctx, task.ID, teams[0].ID)
	if err != nil {
		t.Fatalf("GetTaskResult() error = %v", err)
	}
	if tr.Score != 0 {
		t.Fatalf("score after wrong attempt = %v, want 0", tr.Score)
	}

	if _, err := f.svc.Submit(ctx, Guess{TeamNumber: 1, VideoNumber: 1, Frame: 150}); err != nil {
		t.Fatalf("Submit(correct) error = %v", err)
	}

	// One wrong attempt costs exactly the configured penalty.
	waitFor(t, "penalized score", func() bool {
		tr, err := f.repo.GetTaskResult(ctx, task.ID, teams[0].ID)
		return err == nil && tr != nil && tr.Score == 90 && tr.Attempts == 2
	})
}

func TestSubmit_Validation(t *testing.T) {
	f := newServiceFixture(t, serviceConfig())
	ctx := context.Background()
	startRunningTask(t, f.svc, visualTask(), 1)

	if _, err := f.svc.Submit(ctx, Guess{TeamNumber: 99, VideoNumber: 1, Frame: 150}); !errors.Is(err, ErrUnknownTeam) {
		t.Errorf("unknown team: err = %v", err)
	}
	if _, err := f.svc.Submit(ctx, Guess{TeamNumber: 1, VideoNumber: 42, Frame: 150}); !errors.Is(err, ErrUnknownVideo) {
		t.Errorf("unknown video: err = %v", err)
	}
	if _, err := f.svc.Submit(ctx, Guess{TeamNumber: 1, VideoNumber: 1, Frame: 5000}); !errors.Is(err, ErrInvalidSubmission) {
		t.Errorf("frame out of bounds: err = %v", err)
	}
}

func TestSubmit_NoCompetitionOrTask(t *testing.T) {
	f := newServiceFixture(t, serviceConfig())
	ctx := context.Background()

	if _, err := f.svc.Submit(ctx, Guess{TeamNumber: 1, VideoNumber: 1, Frame: 150}); !errors.Is(err, ErrNoCompetition) {
		t.Errorf("no competition: err = %v", err)
	}

	comp, err := f.svc.CreateCompetition(ctx, "cup")
	if err != nil {
		t.Fatalf("CreateCompetition() error = %v", err)
	}
	if _, err := f.svc.AddTeam(ctx, comp.ID, 1, "red"); err != nil {
		t.Fatalf("AddTeam() error = %v", err)
	}
	if _, err := f.svc.StartCompetition(ctx, comp.ID); err != nil {
		t.Fatalf("StartCompetition() error = %v", err)
	}
	if _, err := f.svc.Submit(ctx, Guess{TeamNumber: 1, VideoNumber: 1, Frame: 150}); !errors.Is(err, ErrNoTaskRunning) {
		t.Errorf("no task: err = %v", err)
	}
}

func TestSubmit_ExactFamily(t *testing.T) {
	f := newServiceFixture(t, serviceConfig())
	ctx := context.Background()
	_, teams, task := startRunningTask(t, f.svc, &Task{
		Name:          "q-01",
		Family:        judging.FamilyExact,
		MaxSearchTime: 3600,
		ValidIDs:      []string{"item-7"},
	}, 1)

	if _, err := f.svc.Submit(ctx, Guess{TeamNumber: 1}); !errors.Is(err, ErrInvalidSubmission) {
		t.Fatalf("missing item id: err = %v", err)
	}

	res, err := f.svc.Submit(ctx, Guess{TeamNumber: 1, ItemID: "item-3"})
	if err != nil {
		t.Fatalf("Submit(wrong item) error = %v", err)
	}
	if res.Submission.Verdict != judging.VerdictWrong {
		t.Fatalf("verdict = %q, want wrong", res.Submission.Verdict)
	}

	res, err = f.svc.Submit(ctx, Guess{TeamNumber: 1, ItemID: "item-7"})
	if err != nil {
		t.Fatalf("Submit(correct item) error = %v", err)
	}
	if res.Submission.Verdict != judging.VerdictCorrect {
		t.Fatalf("verdict = %q, want correct", res.Submission.Verdict)
	}

	// One wrong attempt decays the base by ten percent.
	waitFor(t, "exact score", func() bool {
		tr, err := f.repo.GetTaskResult(ctx, task.ID, teams[0].ID)
		return err == nil && tr != nil && tr.Score == 90 && tr.Wrong == 1
	})
}

func TestLiveJudgingFlow(t *testing.T) {
	f := newServiceFixture(t, serviceConfig())
	ctx := context.Background()
	_, teams, task := startRunningTask(t, f.svc, &Task{
		Name:          "avs-01",
		Family:        judging.FamilyLive,
		MaxSearchTime: 3600,
		QueryKey:      "avs-q1",
		QueryText:     "a red car",
	}, 1, 2)

	f.svc.RegisterJudge("judge-1")

	res, err := f.svc.Submit(ctx, Guess{TeamNumber: 1, VideoNumber: 1, Frame: 150})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if !res.Pending {
		t.Fatalf("result = %+v, want pending", res)
	}

	waitFor(t, "judge assignment", func() bool {
		job := f.svc.Pool().JobFor("judge-1")
		return job != nil && job.SubmissionID == res.Submission.ID
	})

	if err := f.svc.SubmitLiveVerdict(ctx, "judge-1", res.Submission.ID, true); err != nil {
		t.Fatalf("SubmitLiveVerdict() error = %v", err)
	}

	// Full coverage of the single known range scores the maximum.
	waitFor(t, "live score", func() bool {
		tr, err := f.repo.GetTaskResult(ctx, task.ID, teams[0].ID)
		return err == nil && tr != nil && tr.Score == 100 && tr.RangeCount == 1
	})

	// A retry of the covered shot is absorbed, not re-judged.
	dup, err := f.svc.Submit(ctx, Guess{TeamNumber: 1, VideoNumber: 1, Frame: 160})
	if err != nil {
		t.Fatalf("Submit(duplicate) error = %v", err)
	}
	if !dup.Duplicate {
		t.Fatalf("result = %+v, want duplicate", dup)
	}

	// The recorded verdict now auto-judges the other team's identical shot.
	res2, err := f.svc.Submit(ctx, Guess{TeamNumber: 2, VideoNumber: 1, Frame: 170})
	if err != nil {
		t.Fatalf("Submit(team 2) error = %v", err)
	}
	if !res2.Pending {
		t.Fatalf("result = %+v, want pending", res2)
	}
	waitFor(t, "ground truth auto-judge", func() bool {
		sub, err := f.repo.GetSubmission(ctx, res2.Submission.ID)
		return err == nil && sub != nil && sub.Judged() && sub.Correct
	})
	if job := f.svc.Pool().JobFor("judge-1"); job != nil {
		t.Errorf("auto-judged submission reached the judge: %+v", job)
	}
}

func TestSubmitLiveVerdict_AfterTaskStopLeavesResultAlone(t *testing.T) {
	f := newServiceFixture(t, serviceConfig())
	ctx := context.Background()
	_, teams, task := startRunningTask(t, f.svc, &Task{
		Name:          "avs-03",
		Family:        judging.FamilyLive,
		MaxSearchTime: 3600,
		QueryKey:      "avs-q3",
	}, 1)

	f.svc.RegisterJudge("judge-1")

	res1, err := f.svc.Submit(ctx, Guess{TeamNumber: 1, VideoNumber: 1, Frame: 150})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	waitFor(t, "first assignment", func() bool {
		job := f.svc.Pool().JobFor("judge-1")
		return job != nil && job.SubmissionID == res1.Submission.ID
	})
	if err := f.svc.SubmitLiveVerdict(ctx, "judge-1", res1.Submission.ID, true); err != nil {
		t.Fatalf("SubmitLiveVerdict() error = %v", err)
	}
	waitFor(t, "first score", func() bool {
		tr, err := f.repo.GetTaskResult(ctx, task.ID, teams[0].ID)
		return err == nil && tr != nil && tr.Score == 100 && tr.Correct == 1
	})

	// Second shot goes in flight, then the task stops underneath it.
	res2, err := f.svc.Submit(ctx, Guess{TeamNumber: 1, VideoNumber: 1, Frame: 300})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	waitFor(t, "second assignment", func() bool {
		job := f.svc.Pool().JobFor("judge-1")
		return job != nil && job.SubmissionID == res2.Submission.ID
	})
	if err := f.svc.StopTask(ctx); err != nil {
		t.Fatalf("StopTask() error = %v", err)
	}

	if err := f.svc.SubmitLiveVerdict(ctx, "judge-1", res2.Submission.ID, true); err != nil {
		t.Fatalf("SubmitLiveVerdict() after stop: error = %v", err)
	}

	// The verdict survives as ground truth for future lookups.
	entry, err := f.gt.Lookup(ctx, "avs-q3", 1, 2)
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if entry == nil || !entry.Correct {
		t.Fatalf("ground truth entry = %+v", entry)
	}
	if job := f.svc.Pool().JobFor("judge-1"); job != nil {
		t.Errorf("judge still holds assignment: %+v", job)
	}

	// The finished task's counters and score never move.
	tr, err := f.repo.GetTaskResult(ctx, task.ID, teams[0].ID)
	if err != nil {
		t.Fatalf("GetTaskResult() error = %v", err)
	}
	if tr.Attempts != 1 || tr.Correct != 1 || tr.Score != 100 {
		t.Fatalf("result after late verdict = %+v, want attempts=1 correct=1 score=100", tr)
	}
}

func TestSubmitLiveVerdict_RedeliveryIsNoOp(t *testing.T) {
	f := newServiceFixture(t, serviceConfig())
	ctx := context.Background()
	_, teams, task := startRunningTask(t, f.svc, &Task{
		Name:          "avs-04",
		Family:        judging.FamilyLive,
		MaxSearchTime: 3600,
		QueryKey:      "avs-q4",
	}, 1)

	f.svc.RegisterJudge("judge-1")
	res, err := f.svc.Submit(ctx, Guess{TeamNumber: 1, VideoNumber: 1, Frame: 150})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	waitFor(t, "assignment", func() bool {
		return f.svc.Pool().JobFor("judge-1") != nil
	})
	if err := f.svc.SubmitLiveVerdict(ctx, "judge-1", res.Submission.ID, true); err != nil {
		t.Fatalf("SubmitLiveVerdict() error = %v", err)
	}
	waitFor(t, "score", func() bool {
		tr, err := f.repo.GetTaskResult(ctx, task.ID, teams[0].ID)
		return err == nil && tr != nil && tr.Correct == 1
	})

	// Re-delivery for the judged submission is accepted and changes nothing.
	if err := f.svc.SubmitLiveVerdict(ctx, "judge-1", res.Submission.ID, true); err != nil {
		t.Fatalf("redelivered verdict: error = %v", err)
	}
	tr, err := f.repo.GetTaskResult(ctx, task.ID, teams[0].ID)
	if err != nil {
		t.Fatalf("GetTaskResult() error = %v", err)
	}
	if tr.Attempts != 1 || tr.Correct != 1 {
		t.Fatalf("result after redelivery = %+v, want attempts=1 correct=1", tr)
	}
}

func TestConcurrentSubmitAndStop(t *testing.T) {
	f := newServiceFixture(t, serviceConfig())
	ctx := context.Background()
	startRunningTask(t, f.svc, &Task{
		Name:          "avs-05",
		Family:        judging.FamilyLive,
		MaxSearchTime: 3600,
		QueryKey:      "avs-q5",
	}, 1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for frame := 0; frame < 50; frame++ {
			if _, err := f.svc.Submit(ctx, Guess{TeamNumber: 1, VideoNumber: 1, Frame: frame}); err != nil {
				return
			}
		}
	}()

	time.Sleep(5 * time.Millisecond)
	if err := f.svc.StopTask(ctx); err != nil {
		t.Fatalf("StopTask() error = %v", err)
	}
	<-done

	if st := f.svc.State(); st.ActiveTaskIndex != -1 {
		t.Fatalf("ActiveTaskIndex = %d, want -1", st.ActiveTaskIndex)
	}
}

func TestUnregisterJudge_ResubmitsOrphan(t *testing.T) {
	f := newServiceFixture(t, serviceConfig())
	ctx := context.Background()
	startRunningTask(t, f.svc, &Task{
		Name:          "avs-02",
		Family:        judging.FamilyLive,
		MaxSearchTime: 3600,
		QueryKey:      "avs-q2",
	}, 1)

	f.svc.RegisterJudge("judge-1")
	res, err := f.svc.Submit(ctx, Guess{TeamNumber: 1, VideoNumber: 1, Frame: 150})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	waitFor(t, "assignment", func() bool {
		return f.svc.Pool().JobFor("judge-1") != nil
	})

	f.svc.RegisterJudge("judge-2")
	f.svc.UnregisterJudge(ctx, "judge-1")

	waitFor(t, "orphan redispatch", func() bool {
		job := f.svc.Pool().JobFor("judge-2")
		return job != nil && job.SubmissionID == res.Submission.ID
	})
}

func TestStopTask_AndCompetitionLifecycle(t *testing.T) {
	f := newServiceFixture(t, serviceConfig())
	ctx := context.Background()
	comp, _, task := startRunningTask(t, f.svc, visualTask(), 1, 2)

	// A running task blocks the competition stop.
	if err := f.svc.StopCompetition(ctx); !errors.Is(err, ErrTaskBlocksStop) {
		t.Fatalf("StopCompetition() during task: err = %v", err)
	}

	if err := f.svc.StopTask(ctx); err != nil {
		t.Fatalf("StopTask() error = %v", err)
	}
	got, err := f.repo.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask() error = %v", err)
	}
	if !got.Finished || got.Running {
		t.Fatalf("stopped task = %+v", got)
	}
	if st := f.svc.State(); st.ActiveTaskIndex != -1 {
		t.Fatalf("ActiveTaskIndex = %d, want -1", st.ActiveTaskIndex)
	}
	if _, err := f.svc.Submit(ctx, Guess{TeamNumber: 1, VideoNumber: 1, Frame: 150}); !errors.Is(err, ErrNoTaskRunning) {
		t.Fatalf("Submit() after stop: err = %v", err)
	}
	if err := f.svc.StopTask(ctx); !errors.Is(err, ErrNoTaskRunning) {
		t.Fatalf("second StopTask(): err = %v", err)
	}

	// A stopped task never restarts.
	if _, err := f.svc.StartTask(ctx, task.ID); !errors.Is(err, ErrTaskAlreadyRun) {
		t.Fatalf("StartTask() after stop: err = %v", err)
	}

	if err := f.svc.StopCompetition(ctx); err != nil {
		t.Fatalf("StopCompetition() error = %v", err)
	}
	stored, err := f.repo.GetCompetition(ctx, comp.ID)
	if err != nil {
		t.Fatalf("GetCompetition() error = %v", err)
	}
	if !stored.Finished || stored.Running {
		t.Fatalf("stopped competition = %+v", stored)
	}
}

func TestResume_RestoresRunningTask(t *testing.T) {
	f := newServiceFixture(t, serviceConfig())
	ctx := context.Background()
	comp, teams, task := startRunningTask(t, f.svc, visualTask(), 1, 2)

	if _, err := f.svc.Submit(ctx, Guess{TeamNumber: 1, VideoNumber: 1, Frame: 150}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	waitFor(t, "score before restart", func() bool {
		tr, err := f.repo.GetTaskResult(ctx, task.ID, teams[0].ID)
		return err == nil && tr != nil && tr.Score == 100
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc2 := f.newService(t, serviceConfig(), logger)
	if err := svc2.Resume(ctx); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}

	st := svc2.State()
	if st.Competition == nil || st.Competition.ID != comp.ID {
		t.Fatalf("resumed competition = %+v", st.Competition)
	}
	if st.ActiveTaskIndex != 0 || !st.Tasks[0].Running {
		t.Fatalf("resumed task state: index=%d tasks=%+v", st.ActiveTaskIndex, st.Tasks)
	}
	if tr := st.Results[teams[0].ID][0]; tr.Score != 100 {
		t.Fatalf("rebuilt score = %v, want 100", tr.Score)
	}

	// The re-armed clock accepts submissions from the surviving team.
	res, err := svc2.Submit(ctx, Guess{TeamNumber: 2, VideoNumber: 1, Frame: 150})
	if err != nil {
		t.Fatalf("Submit() after resume: error = %v", err)
	}
	if res.Submission.Verdict != judging.VerdictCorrect {
		t.Fatalf("verdict = %q", res.Submission.Verdict)
	}
}

func TestStartTask_RetryAfterCountdownInterrupted(t *testing.T) {
	cfg := serviceConfig()
	cfg.Clock.Countdown = time.Hour
	f := newServiceFixture(t, cfg)
	ctx := context.Background()

	comp, err := f.svc.CreateCompetition(ctx, "cup")
	if err != nil {
		t.Fatalf("CreateCompetition() error = %v", err)
	}
	team, err := f.svc.AddTeam(ctx, comp.ID, 1, "red")
	if err != nil {
		t.Fatalf("AddTeam() error = %v", err)
	}
	task, err := f.svc.CreateTask(ctx, &Task{
		CompetitionID: comp.ID,
		Name:          "kis-01",
		Family:        judging.FamilyVisual,
		MaxSearchTime: 3600,
		Ranges:        []judging.FrameRange{{VideoNumber: 1, StartFrame: 100, EndFrame: 200}},
	})
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	if _, err := f.svc.StartCompetition(ctx, comp.ID); err != nil {
		t.Fatalf("StartCompetition() error = %v", err)
	}
	if _, err := f.svc.StartTask(ctx, task.ID); err != nil {
		t.Fatalf("StartTask() error = %v", err)
	}

	// Nothing is persisted until the countdown lapses, so a crash here
	// leaves no trace of the attempt.
	if tr, err := f.repo.GetTaskResult(ctx, task.ID, team.ID); err != nil || tr != nil {
		t.Fatalf("task result during countdown = %+v, %v, want none", tr, err)
	}
	stored, err := f.repo.GetCompetition(ctx, comp.ID)
	if err != nil {
		t.Fatalf("GetCompetition() error = %v", err)
	}
	if len(stored.TaskSequence) != 0 {
		t.Fatalf("task sequence during countdown = %v, want empty", stored.TaskSequence)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc2 := f.newService(t, cfg, logger)
	if err := svc2.Resume(ctx); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if _, err := svc2.StartTask(ctx, task.ID); err != nil {
		t.Fatalf("StartTask() after restart: error = %v", err)
	}
}

func TestResume_RebuildIsIdempotent(t *testing.T) {
	f := newServiceFixture(t, serviceConfig())
	ctx := context.Background()
	_, teams, task := startRunningTask(t, f.svc, visualTask(), 1, 2)

	if _, err := f.svc.Submit(ctx, Guess{TeamNumber: 1, VideoNumber: 1, Frame: 150}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	waitFor(t, "score", func() bool {
		tr, err := f.repo.GetTaskResult(ctx, task.ID, teams[0].ID)
		return err == nil && tr != nil && tr.Score == 100
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc2 := f.newService(t, serviceConfig(), logger)
	if err := svc2.Resume(ctx); err != nil {
		t.Fatalf("first Resume() error = %v", err)
	}
	svc3 := f.newService(t, serviceConfig(), logger)
	if err := svc3.Resume(ctx); err != nil {
		t.Fatalf("second Resume() error = %v", err)
	}

	st2, st3 := svc2.State(), svc3.State()
	if !reflect.DeepEqual(st2.SubScores, st3.SubScores) {
		t.Errorf("sub scores diverge: %+v vs %+v", st2.SubScores, st3.SubScores)
	}
	if !reflect.DeepEqual(st2.Overall, st3.Overall) {
		t.Errorf("overall series diverge: %+v vs %+v", st2.Overall, st3.Overall)
	}
	if !reflect.DeepEqual(st2.Results, st3.Results) {
		t.Errorf("results diverge: %+v vs %+v", st2.Results, st3.Results)
	}
}

func TestResume_NoRunningCompetition(t *testing.T) {
	f := newServiceFixture(t, serviceConfig())
	if err := f.svc.Resume(context.Background()); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if st := f.svc.State(); st.Competition != nil {
		t.Fatalf("competition = %+v, want nil", st.Competition)
	}
}
