// Package judging implements the per-family correctness tests and score
// formulas, and the correct-pool bookkeeping for live-judged tasks.
package judging

// Verdict labels recorded on a judged submission.
const (
	VerdictCorrect = "correct"
	VerdictWrong   = "wrong"
)

// Guess is the family-specific locator of a submission.
type Guess struct {
	VideoNumber int
	Frame       int
	ShotNumber  int
	ItemID      string
}

// FrameRange is one target range of a positional task.
type FrameRange struct {
	VideoNumber int `json:"video_number"`
	StartFrame  int `json:"start_frame"`
	EndFrame    int `json:"end_frame"`
}

// Target is the family-specific target data a guess is judged against.
type Target struct {
	Ranges         []FrameRange
	ValidIDs       []string
	FrameTolerance int
}

// Decision is the outcome of a local judging attempt. Decided is false for
// families whose correctness is not locally decidable.
type Decision struct {
	Decided bool
	Correct bool
	Verdict string
}

// ScoreInput carries everything any family formula needs; each strategy
// reads only its own fields.
type ScoreInput struct {
	SearchTime    float64
	MaxSearchTime float64
	Wrong         int

	// Positional
	Floor   float64
	Penalty float64

	// Live
	Correct      int
	TeamRanges   int
	GlobalRanges int
}

// Strategy decides correctness of a submission and computes its score.
type Strategy interface {
	Judge(g Guess, t Target) Decision
	Score(in ScoreInput) float64
}

var strategies = map[Family]Strategy{
	FamilyVisual:  positionalStrategy{},
	FamilyTextual: positionalStrategy{},
	FamilyLive:    liveStrategy{},
	FamilyExact:   exactStrategy{},
}

// ForFamily returns the strategy judging the given family.
func ForFamily(f Family) Strategy {
	return strategies[f]
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
