package judging

import "math"

// liveStrategy covers tasks whose correctness requires human or
// ground-truth adjudication. Judge never decides locally; the score is
// recall times precision over the task's correct pool.
type liveStrategy struct{}

func (liveStrategy) Judge(Guess, Target) Decision {
	return Decision{Decided: false}
}

// Score is round(precision*recall*100, 2) with
// recall = teamRanges/globalRanges and precision = c/(c + w/2).
// A task with no confirmed ranges yet scores 0 for everyone.
func (liveStrategy) Score(in ScoreInput) float64 {
	if in.GlobalRanges <= 0 {
		return 0
	}
	attempts := float64(in.Correct) + float64(in.Wrong)/2
	if attempts <= 0 {
		return 0
	}
	recall := float64(in.TeamRanges) / float64(in.GlobalRanges)
	precision := float64(in.Correct) / attempts
	return math.Round(precision*recall*100*100) / 100
}
