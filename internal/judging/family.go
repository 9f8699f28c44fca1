package judging

import "fmt"

// Family identifies how a task is judged. The set is closed: every task
// carries exactly one family and is judged by exactly one strategy.
// The novice display variant is task data, not a family.
type Family string

const (
	// FamilyVisual and FamilyTextual are the positional families: the
	// competitor must locate a frame inside one of the task's target
	// ranges. They differ only in how the target is presented.
	FamilyVisual  Family = "visual"
	FamilyTextual Family = "textual"

	// FamilyLive tasks cannot be decided locally; correctness comes from
	// ground truth or a live judge.
	FamilyLive Family = "live"

	// FamilyExact tasks are decided by membership in a fixed valid-id list.
	FamilyExact Family = "exact"
)

// ParseFamily converts a stored family tag into a Family.
func ParseFamily(s string) (Family, error) {
	switch Family(s) {
	case FamilyVisual, FamilyTextual, FamilyLive, FamilyExact:
		return Family(s), nil
	}
	return "", fmt.Errorf("unknown task family %q", s)
}

// Positional reports whether the family is judged by frame position.
func (f Family) Positional() bool {
	return f == FamilyVisual || f == FamilyTextual
}

// Synchronous reports whether submissions of this family are judged
// immediately on arrival.
func (f Family) Synchronous() bool {
	return f != FamilyLive
}
