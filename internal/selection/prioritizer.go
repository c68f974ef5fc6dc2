package selection

import (
	"math/rand/v2"
	"sort"
)

// Prioritize orders candidates in two tiers: never-seen questions first in
// shuffled order, then previously seen questions by last answer time, oldest
// first. Ties keep the shuffled order.
func Prioritize(cands []Candidate, rng *rand.Rand) []Candidate {
	out := shuffled(cands, rng)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Stats, out[j].Stats
		if a.NeverSeen() != b.NeverSeen() {
			return a.NeverSeen()
		}
		if a.NeverSeen() {
			return false
		}
		return a.LastAnsweredAt.Before(b.LastAnsweredAt)
	})
	return out
}
