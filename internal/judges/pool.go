// Package judges tracks connected live judges and dispatches pending
// judgement work to them, with FIFO queuing for overflow and crash-safe
// re-assignment on disconnect.
package judges

import (
	"log/slog"
	"math/rand"
	"sync"
)

// Job is one pending judgement: the submission awaiting a verdict plus the
// task context a judge needs to decide it.
type Job struct {
	SubmissionID string
	TaskID       string
	TeamID       string
	QueryKey     string
	QueryText    string
	VideoNumber  int
	Frame        int
	ShotNumber   int
}

type judge struct {
	id  string
	job *Job // nil when idle
}

// AssignFunc delivers an assignment to a connected judge (normally by
// publishing a judge event). It is called without internal locks held.
type AssignFunc func(judgeID string, job Job)

// Pool holds the connected judges and the FIFO overflow queue.
type Pool struct {
	mu       sync.Mutex
	judges   map[string]*judge
	queue    []*Job
	onAssign AssignFunc
	logger   *slog.Logger
}

func NewPool(onAssign AssignFunc, logger *slog.Logger) *Pool {
	return &Pool{
		judges:   make(map[string]*judge),
		onAssign: onAssign,
		logger:   logger,
	}
}

// Register adds a judge to the pool and immediately hands it the queue
// head, if any.
func (p *Pool) Register(judgeID string) {
	p.mu.Lock()
	if _, ok := p.judges[judgeID]; ok {
		p.mu.Unlock()
		return
	}
	p.judges[judgeID] = &judge{id: judgeID}
	assigned := p.assignHeadLocked(judgeID)
	p.mu.Unlock()

	if p.logger != nil {
		p.logger.Info("judge connected", "judge_id", judgeID)
	}
	p.deliver(assigned)
}

// Unregister removes a judge and returns its in-flight assignment, if any,
// so the caller can resubmit it. The assignment is never dropped.
func (p *Pool) Unregister(judgeID string) *Job {
	p.mu.Lock()
	j, ok := p.judges[judgeID]
	var orphan *Job
	if ok {
		orphan = j.job
		delete(p.judges, judgeID)
	}
	p.mu.Unlock()

	if p.logger != nil {
		p.logger.Info("judge disconnected", "judge_id", judgeID, "had_assignment", orphan != nil)
	}
	return orphan
}

// Dispatch hands the job to a uniformly random idle judge, or queues it
// when every judge is busy. It reports whether the job was assigned now.
func (p *Pool) Dispatch(job *Job) bool {
	p.mu.Lock()
	idle := p.idleLocked()
	if len(idle) == 0 {
		p.queue = append(p.queue, job)
		depth := len(p.queue)
		p.mu.Unlock()
		if p.logger != nil {
			p.logger.Info("no idle judge, job queued", "submission_id", job.SubmissionID, "queue_depth", depth)
		}
		return false
	}

	picked := idle[rand.Intn(len(idle))]
	picked.job = job
	p.mu.Unlock()

	p.deliver([]delivery{{picked.id, *job}})
	return true
}

// Complete marks the judge idle, returns the job it was working, and
// dispatches the queue head to it when one is waiting.
func (p *Pool) Complete(judgeID string) *Job {
	p.mu.Lock()
	j, ok := p.judges[judgeID]
	if !ok {
		p.mu.Unlock()
		return nil
	}
	done := j.job
	j.job = nil
	assigned := p.assignHeadLocked(judgeID)
	p.mu.Unlock()

	p.deliver(assigned)
	return done
}

// JobFor returns the assignment the judge currently holds, or nil.
func (p *Pool) JobFor(judgeID string) *Job {
	p.mu.Lock()
	defer p.mu.Unlock()
	if j, ok := p.judges[judgeID]; ok {
		return j.job
	}
	return nil
}

// Kick dispatches the queue head to an idle judge, if both exist. Used
// after a ground-truth auto-judge frees capacity for queued work.
func (p *Pool) Kick() {
	p.mu.Lock()
	var assigned []delivery
	idle := p.idleLocked()
	if len(idle) > 0 && len(p.queue) > 0 {
		picked := idle[rand.Intn(len(idle))]
		assigned = p.assignHeadLocked(picked.id)
	}
	p.mu.Unlock()
	p.deliver(assigned)
}

// FlushTask drops every queued job belonging to the task, so judgements for
// a stopped task cannot corrupt a later one. In-flight assignments are left
// to the verdict path, which validates the task before applying.
func (p *Pool) FlushTask(taskID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	kept := p.queue[:0]
	dropped := 0
	for _, job := range p.queue {
		if job.TaskID == taskID {
			dropped++
			continue
		}
		kept = append(kept, job)
	}
	p.queue = kept
	return dropped
}

// IdleCount returns the number of judges without an assignment.
func (p *Pool) IdleCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idleLocked())
}

// QueueDepth returns the number of jobs waiting for a judge.
func (p *Pool) QueueDepth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

type delivery struct {
	judgeID string
	job     Job
}

func (p *Pool) idleLocked() []*judge {
	var idle []*judge
	for _, j := range p.judges {
		if j.job == nil {
			idle = append(idle, j)
		}
	}
	return idle
}

// assignHeadLocked gives the queue head to the named judge if it is idle.
// Caller holds p.mu.
func (p *Pool) assignHeadLocked(judgeID string) []delivery {
	j, ok := p.judges[judgeID]
	if !ok || j.job != nil || len(p.queue) == 0 {
		return nil
	}
	job := p.queue[0]
	p.queue = p.queue[1:]
	j.job = job
	return []delivery{{judgeID, *job}}
}

func (p *Pool) deliver(ds []delivery) {
	if p.onAssign == nil {
		return
	}
	for _, d := range ds {
		p.onAssign(d.judgeID, d.job)
	}
}
