package competition

import (
	"context"
	"fmt"
	"sync"

	"github.com/vidarena/arena-server/internal/judging"
)

// LiveStats is the viewer-facing statistics block for the active
// live-judged task.
type LiveStats struct {
	Total          int `json:"total"`
	Unjudged       int `json:"unjudged"`
	DistinctVideos int `json:"distinct_videos"`
	DistinctRanges int `json:"distinct_ranges"`
}

// State is a snapshot of the projection handed to external collaborators.
type State struct {
	Competition *Competition `json:"competition,omitempty"`
	Teams       []*Team      `json:"teams"`

	// Tasks in execution order; ActiveTaskIndex is -1 when no task is
	// current.
	Tasks           []*Task `json:"tasks"`
	ActiveTaskIndex int     `json:"active_task_index"`

	// Per-team result history, index-aligned with Tasks.
	Results map[string][]*TaskResult `json:"results"`

	// Per-team aggregate sub-scores keyed by family, and the overall
	// score series (one value per executed task).
	SubScores map[string]map[judging.Family]float64 `json:"sub_scores"`
	Overall   map[string][]float64                  `json:"overall"`

	// Submissions of the active task, keyed by team.
	ActiveSubmissions map[string][]*Submission `json:"active_submissions"`

	LiveStats *LiveStats `json:"live_stats,omitempty"`
}

// Projection is the authoritative in-memory view of the running
// competition. It is derived, never independently authoritative: everything
// here can be rebuilt from persisted records alone.
type Projection struct {
	mu sync.RWMutex

	competition *Competition
	teams       []*Team

	tasks     []*Task
	activeIdx int

	// results[teamID][i] aligns with tasks[i].
	results map[string][]*TaskResult

	subScores map[string]map[judging.Family]float64
	overall   map[string][]float64

	activeSubs map[string][]*Submission
	liveStats  *LiveStats
}

func NewProjection() *Projection {
	p := &Projection{}
	p.resetLocked(nil, nil)
	return p
}

func (p *Projection) resetLocked(comp *Competition, teams []*Team) {
	p.competition = comp
	p.teams = teams
	p.tasks = nil
	p.activeIdx = -1
	p.results = make(map[string][]*TaskResult)
	p.subScores = make(map[string]map[judging.Family]float64)
	p.overall = make(map[string][]float64)
	p.activeSubs = make(map[string][]*Submission)
	p.liveStats = nil
}

// Reset installs a competition and its team roster, clearing all history.
func (p *Projection) Reset(comp *Competition, teams []*Team) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked(comp, teams)
}

// Competition returns the projected competition, or nil.
func (p *Projection) Competition() *Competition {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.competition
}

// AppendTask records a newly started task (with its empty results) as the
// active one.
func (p *Projection) AppendTask(task *Task, results map[string]*TaskResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.tasks = append(p.tasks, task)
	p.activeIdx = len(p.tasks) - 1
	for _, team := range p.teams {
		p.results[team.ID] = append(p.results[team.ID], results[team.ID])
	}
	p.activeSubs = make(map[string][]*Submission)
	if task.Family == judging.FamilyLive {
		p.liveStats = &LiveStats{}
	} else {
		p.liveStats = nil
	}
	p.recomputeAggregatesLocked()
}

// FinishActiveTask marks the active task done; its results stay in history.
func (p *Projection) FinishActiveTask() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.activeIdx = -1
	p.liveStats = nil
}

// AddSubmission appends a submission of the active task.
func (p *Projection) AddSubmission(s *Submission) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.activeSubs[s.TeamID] = append(p.activeSubs[s.TeamID], s)
	if p.liveStats != nil {
		p.liveStats.Total++
		if !s.Judged() {
			p.liveStats.Unjudged++
		}
	}
}

// MarkJudged updates the projected copy of a submission after its verdict.
func (p *Projection) MarkJudged(submissionID, teamID, verdict string, correct bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.activeSubs[teamID] {
		if s.ID == submissionID && !s.Judged() {
			s.Verdict = verdict
			s.Correct = correct
			if p.liveStats != nil && p.liveStats.Unjudged > 0 {
				p.liveStats.Unjudged--
			}
			return
		}
	}
}

// WithTask applies fn to the projected task with the given id, under the
// projection lock. Unknown ids are ignored.
func (p *Projection) WithTask(taskID string, fn func(*Task)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range p.tasks {
		if t.ID == taskID {
			fn(t)
			return
		}
	}
}

// SetLiveCoverage refreshes the pool-derived part of the live statistics.
func (p *Projection) SetLiveCoverage(stats judging.PoolStats) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.liveStats != nil {
		p.liveStats.DistinctVideos = stats.DistinctVideos
		p.liveStats.DistinctRanges = stats.DistinctRanges
	}
}

// PutResult replaces a team's result for the task at the given history
// index and recomputes the aggregate series.
func (p *Projection) PutResult(taskID string, res *TaskResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, t := range p.tasks {
		if t.ID != taskID {
			continue
		}
		history := p.results[res.TeamID]
		if i < len(history) {
			history[i] = res
		}
		break
	}
	p.recomputeAggregatesLocked()
}

// recomputeAggregatesLocked rebuilds the per-family sub-scores and the
// overall series incrementally: each task's aggregate depends only on tasks
// up to and including it. Sub-score per family is the mean of the team's
// task scores in that family; overall is the sum of sub-scores.
func (p *Projection) recomputeAggregatesLocked() {
	p.subScores = make(map[string]map[judging.Family]float64, len(p.teams))
	p.overall = make(map[string][]float64, len(p.teams))

	for _, team := range p.teams {
		sums := make(map[judging.Family]float64)
		counts := make(map[judging.Family]int)
		series := make([]float64, 0, len(p.tasks))

		for i, task := range p.tasks {
			history := p.results[team.ID]
			if i < len(history) && history[i] != nil {
				sums[task.Family] += history[i].Score
				counts[task.Family]++
			}

			total := 0.0
			for f, sum := range sums {
				total += sum / float64(counts[f])
			}
			series = append(series, total)
		}

		subs := make(map[judging.Family]float64, len(sums))
		for f, sum := range sums {
			subs[f] = sum / float64(counts[f])
		}
		p.subScores[team.ID] = subs
		p.overall[team.ID] = series
	}
}

// Snapshot returns a copy-safe view of the projection.
func (p *Projection) Snapshot() State {
	p.mu.RLock()
	defer p.mu.RUnlock()

	st := State{
		Competition:       p.competition,
		Teams:             append([]*Team(nil), p.teams...),
		Tasks:             append([]*Task(nil), p.tasks...),
		ActiveTaskIndex:   p.activeIdx,
		Results:           make(map[string][]*TaskResult, len(p.results)),
		SubScores:         make(map[string]map[judging.Family]float64, len(p.subScores)),
		Overall:           make(map[string][]float64, len(p.overall)),
		ActiveSubmissions: make(map[string][]*Submission, len(p.activeSubs)),
	}
	for k, v := range p.results {
		st.Results[k] = append([]*TaskResult(nil), v...)
	}
	for k, v := range p.subScores {
		m := make(map[judging.Family]float64, len(v))
		for f, s := range v {
			m[f] = s
		}
		st.SubScores[k] = m
	}
	for k, v := range p.overall {
		st.Overall[k] = append([]float64(nil), v...)
	}
	for k, v := range p.activeSubs {
		st.ActiveSubmissions[k] = append([]*Submission(nil), v...)
	}
	if p.liveStats != nil {
		ls := *p.liveStats
		st.LiveStats = &ls
	}
	return st
}

// Rebuild reconstructs the projection from persisted history: it replays
// the competition's task-execution sequence in order, reloading each task
// and every team's TaskResult. The task that is current but not finished is
// re-installed as active with its raw submissions. A referenced record that
// cannot be loaded aborts the rebuild.
func (p *Projection) Rebuild(ctx context.Context, repo Repository, comp *Competition) error {
	teams, err := repo.ListTeams(ctx, comp.ID)
	if err != nil {
		return fmt.Errorf("failed to list teams: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked(comp, teams)

	for _, taskID := range comp.TaskSequence {
		task, err := repo.GetTask(ctx, taskID)
		if err != nil {
			return fmt.Errorf("failed to load task %s: %w", taskID, err)
		}
		if task == nil {
			return fmt.Errorf("task %s referenced by execution sequence is missing", taskID)
		}

		p.tasks = append(p.tasks, task)
		idx := len(p.tasks) - 1

		for _, team := range teams {
			res, err := repo.GetTaskResult(ctx, taskID, team.ID)
			if err != nil {
				return fmt.Errorf("failed to load result for task %s team %s: %w", taskID, team.ID, err)
			}
			if res == nil {
				return fmt.Errorf("result for task %s team %s is missing", taskID, team.ID)
			}
			p.results[team.ID] = append(p.results[team.ID], res)
		}

		if comp.CurrentTaskID == taskID && !task.Finished {
			p.activeIdx = idx
			if task.Family == judging.FamilyLive {
				p.liveStats = &LiveStats{}
			}
			subs, err := repo.ListSubmissions(ctx, taskID)
			if err != nil {
				return fmt.Errorf("failed to load submissions of task %s: %w", taskID, err)
			}
			for _, s := range subs {
				p.activeSubs[s.TeamID] = append(p.activeSubs[s.TeamID], s)
				if p.liveStats != nil {
					p.liveStats.Total++
					if !s.Judged() {
						p.liveStats.Unjudged++
					}
				}
			}
		}
	}

	p.recomputeAggregatesLocked()
	return nil
}
