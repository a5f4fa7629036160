// Package dedup decides whether a resolved listing is new or a repeat sighting.
package dedup

import "github.com/sells-group/listing-ledger/internal/model"

// Verdict is the classification of one candidate.
type Verdict int

const (
	// New means the key was never seen before, in history or in this run.
	New Verdict = iota
	// Duplicate means the key is already in history or was accepted earlier in this run.
	Duplicate
)

func (v Verdict) String() string {
	if v == Duplicate {
		return "duplicate"
	}
	return "new"
}

// Classify returns Duplicate iff key is in historical or seen. A New key is
// inserted into both sets. A Duplicate never modifies either set.
func Classify(key model.IdentityKey, historical, seen model.KeySet) Verdict {
	if historical.Has(key) || seen.Has(key) {
		return Duplicate
	}
	historical.Add(key)
	seen.Add(key)
	return New
}

// Classifier holds the two key sets of a run.
type Classifier struct {
	historical model.KeySet
	seen       model.KeySet
}

// NewClassifier starts a run against historical, which grows as keys are accepted.
func NewClassifier(historical model.KeySet) *Classifier {
	if historical == nil {
		historical = make(model.KeySet)
	}
	return &Classifier{historical: historical, seen: make(model.KeySet)}
}

// Classify classifies key against history and this run's accepted keys.
func (c *Classifier) Classify(key model.IdentityKey) Verdict {
	return Classify(key, c.historical, c.seen)
}

// Accepted returns the number of keys classified New in this run.
func (c *Classifier) Accepted() int { return c.seen.Len() }
