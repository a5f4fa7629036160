package session

// Rung is one recovery action tried when the listing shows no candidates.
type Rung int

const (
	// RungWait waits passively for the listing to render.
	RungWait Rung = iota
	// RungScroll nudges the listing with a scroll probe.
	RungScroll
	// RungReload re-issues the search.
	RungReload
)

func (r Rung) String() string {
	switch r {
	case RungWait:
		return "wait"
	case RungScroll:
		return "scroll"
	case RungReload:
		return "reload"
	default:
		return "unknown"
	}
}

// Ladder escalates through Rungs, staying on the last rung once reached,
// for at most Max attempts.
type Ladder struct {
	Rungs []Rung
	Max   int
}

// DefaultLadder escalates wait → scroll → reload over max attempts.
func DefaultLadder(max int) Ladder {
	return Ladder{Rungs: []Rung{RungWait, RungScroll, RungReload}, Max: max}
}

// At returns the rung for a zero-based attempt and whether the attempt is
// within the ladder's budget.
func (l Ladder) At(attempt int) (Rung, bool) {
	if attempt < 0 || attempt >= l.Max || len(l.Rungs) == 0 {
		return 0, false
	}
	if attempt >= len(l.Rungs) {
		return l.Rungs[len(l.Rungs)-1], true
	}
	return l.Rungs[attempt], true
}
