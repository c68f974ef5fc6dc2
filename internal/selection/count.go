package selection

import "github.com/felixgeelhaar/temario/internal/domain"

// ResolveTargetCount returns how many questions can actually be delivered.
// Zero is the "no questions available" outcome, not an error. Small
// official or essential pools are never padded with out-of-scope questions.
func ResolveTargetCount(req domain.SelectionRequest, set *CandidateSet) int {
	return min(req.Count, set.Len())
}
