package judging

import (
	"fmt"
	"sort"
	"sync"
)

// ShotTimer resolves a shot's start time in seconds, normally backed by the
// reference catalog.
type ShotTimer interface {
	ShotStartSeconds(videoNumber, shotNumber int) (float64, error)
}

type shotKey struct {
	video int
	shot  int
}

// PoolStats is the live-judged statistics snapshot published to viewers.
type PoolStats struct {
	TotalShots     int `json:"total_shots"`
	DistinctVideos int `json:"distinct_videos"`
	DistinctRanges int `json:"distinct_ranges"`
}

// CorrectPool is the working set of shots confirmed correct during the
// active live-judged task, merged into ranges for recall scoring. It is
// scoped to one task and rebuilt on restart; it is never persisted itself.
type CorrectPool struct {
	mu    sync.Mutex
	timer ShotTimer
	gap   float64

	startSec  map[shotKey]float64
	byVideo   map[int][]int // sorted shot numbers
	teamShots map[string]map[shotKey]struct{}

	rangeID     map[shotKey]string
	globalCount int
}

func NewCorrectPool(timer ShotTimer, gapSeconds float64) *CorrectPool {
	return &CorrectPool{
		timer:     timer,
		gap:       gapSeconds,
		startSec:  make(map[shotKey]float64),
		byVideo:   make(map[int][]int),
		teamShots: make(map[string]map[shotKey]struct{}),
		rangeID:   make(map[shotKey]string),
	}
}

// Has reports whether the team already covered the shot. Duplicate
// submissions for a covered shot are absorbed, not errored.
func (p *CorrectPool) Has(teamID string, videoNumber, shotNumber int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.teamShots[teamID][shotKey{videoNumber, shotNumber}]
	return ok
}

// Add records a correct shot for a team. newShot is true when the shot was
// not yet in the pool for any team; that grows the global range denominator
// and forces a score recompute for every team.
func (p *CorrectPool) Add(teamID string, videoNumber, shotNumber int) (newShot bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := shotKey{videoNumber, shotNumber}
	if _, ok := p.startSec[key]; !ok {
		start, err := p.timer.ShotStartSeconds(videoNumber, shotNumber)
		if err != nil {
			return false, fmt.Errorf("cannot place shot in pool: %w", err)
		}
		p.startSec[key] = start
		shots := append(p.byVideo[videoNumber], shotNumber)
		sort.Ints(shots)
		p.byVideo[videoNumber] = shots
		newShot = true
	}

	if p.teamShots[teamID] == nil {
		p.teamShots[teamID] = make(map[shotKey]struct{})
	}
	p.teamShots[teamID][key] = struct{}{}

	if newShot {
		p.quantize()
	}
	return newShot, nil
}

// quantize groups each video's shots into ranges: a new range starts when
// the shot's start time exceeds the running range's start time by more than
// the gap. All shots of one run share a range id "video_counter".
// Caller holds p.mu.
func (p *CorrectPool) quantize() {
	p.rangeID = make(map[shotKey]string, len(p.startSec))
	p.globalCount = 0

	videos := make([]int, 0, len(p.byVideo))
	for v := range p.byVideo {
		videos = append(videos, v)
	}
	sort.Ints(videos)

	for _, v := range videos {
		shots := p.byVideo[v]
		counter := 0
		var runStart float64
		for i, s := range shots {
			t := p.startSec[shotKey{v, s}]
			if i == 0 || t-runStart > p.gap {
				counter++
				runStart = t
				p.globalCount++
			}
			p.rangeID[shotKey{v, s}] = fmt.Sprintf("%d_%d", v, counter)
		}
	}
}

// GlobalRangeCount is the recall denominator: distinct range ids across all
// videos. It only ever grows over a task's lifetime.
func (p *CorrectPool) GlobalRangeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.globalCount
}

// TeamRangeCount is the number of distinct ranges the team's correct shots
// cover.
func (p *CorrectPool) TeamRangeCount(teamID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	seen := make(map[string]struct{})
	for key := range p.teamShots[teamID] {
		seen[p.rangeID[key]] = struct{}{}
	}
	return len(seen)
}

// TeamVideoCount is the number of distinct videos the team's correct shots
// cover.
func (p *CorrectPool) TeamVideoCount(teamID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	seen := make(map[int]struct{})
	for key := range p.teamShots[teamID] {
		seen[key.video] = struct{}{}
	}
	return len(seen)
}

// Stats snapshots the pool for the viewer statistics event.
func (p *CorrectPool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{
		TotalShots:     len(p.startSec),
		DistinctVideos: len(p.byVideo),
		DistinctRanges: p.globalCount,
	}
}
