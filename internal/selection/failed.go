package selection

import (
	"math/rand/v2"
	"sort"

	"github.com/felixgeelhaar/temario/internal/domain"
)

// OrderFailed orders a failed-question review session. It replaces
// Prioritize entirely for that mode.
func OrderFailed(cands []Candidate, order domain.FailedOrder, rng *rand.Rand) []Candidate {
	out := shuffled(cands, rng)

	var less func(a, b domain.QuestionStats) bool
	switch order {
	case domain.FailedOrderMostFailed:
		less = func(a, b domain.QuestionStats) bool {
			if a.TimesFailed != b.TimesFailed {
				return a.TimesFailed > b.TimesFailed
			}
			return a.LastFailureAt.After(b.LastFailureAt)
		}
	case domain.FailedOrderMostRecentFailure:
		less = func(a, b domain.QuestionStats) bool {
			return a.LastFailureAt.After(b.LastFailureAt)
		}
	case domain.FailedOrderOldestFailure:
		less = func(a, b domain.QuestionStats) bool {
			return a.FirstFailureAt.Before(b.FirstFailureAt)
		}
	default:
		// shuffled
		return out
	}

	sort.SliceStable(out, func(i, j int) bool {
		return less(out[i].Stats, out[j].Stats)
	})
	return out
}
