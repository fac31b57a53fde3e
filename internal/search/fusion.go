package search

import (
	"sort"
)

// PositionWeight is the contribution of a first-ranked entry at weight 1.
const PositionWeight = 3.0

// Ranked is one entry of a searcher's ordered result list.
type Ranked struct {
	Identity string
	Position int
}

// List is one searcher's results, best first, with the searcher's weight.
type List struct {
	Name    string
	Weight  float64
	Entries []Ranked
}

// Fused is one record in the combined ranking.
type Fused struct {
	Identity string
	Position int
	Score    float64

	// Sources is the number of lists that returned the record.
	Sources int
}

// FusionResult is the combined ranking, best first. Bound is the smallest
// included score, or 0 when empty.
type FusionResult struct {
	Hits  []Fused
	Bound float64
}

// Contribution is the score a record at 0-based rank earns from a list of
// the given weight.
func Contribution(rank int, weight float64) float64 {
	return PositionWeight / float64(rank+1) * weight
}

// Fuse combines lists by summing each record's positional contributions.
//
// Records are deduplicated by identity; within one list only the first
// occurrence counts. When lists disagree on an identity's store position,
// the highest position (the newest copy) is kept. The result is sorted by score descending with
// identity as tie-break and truncated to maxHits.
func Fuse(lists []List, maxHits int) FusionResult {
	if maxHits <= 0 {
		return FusionResult{Hits: []Fused{}}
	}

	scores := make(map[string]*Fused)
	for _, l := range lists {
		seen := make(map[string]bool, len(l.Entries))
		for rank, e := range l.Entries {
			if e.Identity == "" || seen[e.Identity] {
				continue
			}
			seen[e.Identity] = true

			f := getOrCreate(scores, e)
			f.Score += Contribution(rank, l.Weight)
			f.Sources++
		}
	}

	hits := make([]Fused, 0, len(scores))
	for _, f := range scores {
		hits = append(hits, *f)
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Identity < hits[j].Identity
	})

	if len(hits) > maxHits {
		hits = hits[:maxHits]
	}

	result := FusionResult{Hits: hits}
	if len(hits) > 0 {
		result.Bound = hits[len(hits)-1].Score
	}
	return result
}

// getOrCreate returns the accumulator for e's identity, creating it at e's
// position. An existing accumulator moves to e's position if it is higher.
func getOrCreate(m map[string]*Fused, e Ranked) *Fused {
	if f, ok := m[e.Identity]; ok {
		if e.Position > f.Position {
			f.Position = e.Position
		}
		return f
	}
	f := &Fused{Identity: e.Identity, Position: e.Position}
	m[e.Identity] = f
	return f
}
