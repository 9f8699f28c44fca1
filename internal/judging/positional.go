package judging

import (
	"math"

	"github.com/vidarena/arena-server/internal/catalog"
)

// positionalStrategy judges visual and textual tasks: a guess is correct iff
// its frame falls within any target range widened by the frame tolerance.
type positionalStrategy struct{}

func (positionalStrategy) Judge(g Guess, t Target) Decision {
	for _, r := range t.Ranges {
		if r.VideoNumber != g.VideoNumber {
			continue
		}
		if catalog.FrameWithin(g.Frame, r.StartFrame, r.EndFrame, t.FrameTolerance) {
			return Decision{Decided: true, Correct: true, Verdict: VerdictCorrect}
		}
	}
	return Decision{Decided: true, Correct: false, Verdict: VerdictWrong}
}

// Score is a linear decay from 100 at t=0 down to the floor at the deadline,
// minus a fixed penalty per wrong attempt, clamped to [0, 100].
func (positionalStrategy) Score(in ScoreInput) float64 {
	if in.MaxSearchTime <= 0 {
		return 0
	}
	base := in.Floor + (100-in.Floor)*(in.MaxSearchTime-in.SearchTime)/in.MaxSearchTime
	return clampScore(math.Round(base - float64(in.Wrong)*in.Penalty))
}
