// Package search holds the ranking algorithms behind the searchers: a
// bounded sorted top-k, the geo matcher and weighted rank fusion.
package search

import "sort"

// Order is the direction a ranking prefers.
type Order int

const (
	// Ascending ranks smaller scores first (distances).
	Ascending Order = iota
	// Descending ranks larger scores first (similarities, fused weights).
	Descending
)

// Candidate is one scored record.
type Candidate struct {
	Score    float64
	Identity string
	Position int
}

// TopK keeps the k best candidates, sorted best first after every insert.
type TopK struct {
	k     int
	order Order
	items []Candidate
}

// NewTopK creates a TopK holding at most k candidates.
func NewTopK(k int, order Order) *TopK {
	if k < 0 {
		k = 0
	}
	return &TopK{k: k, order: order, items: make([]Candidate, 0, k)}
}

// better reports whether a ranks before b. Ties on score fall back to
// identity, then position.
func (t *TopK) better(a, b Candidate) bool {
	if a.Score != b.Score {
		if t.order == Ascending {
			return a.Score < b.Score
		}
		return a.Score > b.Score
	}
	if a.Identity != b.Identity {
		return a.Identity < b.Identity
	}
	return a.Position < b.Position
}

// scoreBetter compares on score alone.
func (t *TopK) scoreBetter(a, b Candidate) bool {
	if t.order == Ascending {
		return a.Score < b.Score
	}
	return a.Score > b.Score
}

// Offer inserts c if there is room or if its score is strictly better
// than the current worst, which is then evicted. A full set keeps its
// members on a score tie. It reports whether c was kept.
func (t *TopK) Offer(c Candidate) bool {
	if t.k == 0 {
		return false
	}
	if len(t.items) == t.k {
		if !t.scoreBetter(c, t.items[len(t.items)-1]) {
			return false
		}
		t.items = t.items[:len(t.items)-1]
	}

	i := sort.Search(len(t.items), func(i int) bool {
		return t.better(c, t.items[i])
	})
	t.items = append(t.items, Candidate{})
	copy(t.items[i+1:], t.items[i:])
	t.items[i] = c
	return true
}

// Worst returns the last-ranked candidate.
func (t *TopK) Worst() (Candidate, bool) {
	if len(t.items) == 0 {
		return Candidate{}, false
	}
	return t.items[len(t.items)-1], true
}

// Len returns the number of kept candidates.
func (t *TopK) Len() int {
	return len(t.items)
}

// Items returns a copy of the kept candidates, best first.
func (t *TopK) Items() []Candidate {
	out := make([]Candidate, len(t.items))
	copy(out, t.items)
	return out
}
