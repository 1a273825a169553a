package database

import (
	"cmp"
	"slices"
)

// RankMatches drops candidates scoring below threshold, orders the rest by score
// descending with subject id ascending as tie-break, and keeps at most limit entries.
func RankMatches(candidates []Match, threshold float64, limit int) []Match {
	if limit <= 0 {
		return []Match{}
	}

	kept := make([]Match, 0, min(len(candidates), limit))
	for _, m := range candidates {
		if m.Score >= threshold {
			kept = append(kept, m)
		}
	}

	slices.SortFunc(kept, func(a, b Match) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.SubjectID, b.SubjectID)
	})

	if len(kept) > limit {
		kept = kept[:limit]
	}
	return kept
}
