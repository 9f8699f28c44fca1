package judging

import "math"

// exactStrategy judges tasks answered by naming an item from a fixed
// valid-id list.
type exactStrategy struct{}

func (exactStrategy) Judge(g Guess, t Target) Decision {
	for _, id := range t.ValidIDs {
		if id == g.ItemID {
			return Decision{Decided: true, Correct: true, Verdict: VerdictCorrect}
		}
	}
	return Decision{Decided: true, Correct: false, Verdict: VerdictWrong}
}

// Score shrinks the attainable maximum by 10% per wrong attempt and charges
// half a point per second searched, normalized to [0, 100].
func (exactStrategy) Score(in ScoreInput) float64 {
	if in.MaxSearchTime <= 0 {
		return 0
	}
	relMax := in.MaxSearchTime * math.Pow(0.9, float64(in.Wrong))
	points := relMax - in.SearchTime*0.5
	return clampScore(math.Round(points / in.MaxSearchTime * 100))
}
