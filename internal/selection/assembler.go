package selection

import "github.com/felixgeelhaar/temario/internal/domain"

// DefaultActiveWindow is the active window size used when none is configured
const DefaultActiveWindow = 10

// Assemble truncates the ordered list to target, drops duplicate ids and, for
// adaptive sessions, splits the result into an active window of
// min(target, window) ids and a pool holding the remainder.
func Assemble(ordered []Candidate, target int, adaptive bool, window int) domain.SessionPlan {
	if window <= 0 {
		window = DefaultActiveWindow
	}

	plan := domain.SessionPlan{
		Questions: []string{},
		Adaptive:  adaptive,
	}

	seen := make(map[string]bool, len(ordered))
	for _, c := range ordered {
		if len(plan.Questions) >= target {
			break
		}
		if seen[c.ID()] {
			continue
		}
		seen[c.ID()] = true
		plan.Questions = append(plan.Questions, c.ID())
		plan.Details = append(plan.Details, c.Planned())
	}
	plan.Delivered = len(plan.Questions)

	if adaptive {
		split := min(len(plan.Questions), window)
		plan.ActiveWindow = append([]string{}, plan.Questions[:split]...)
		plan.Pool = append([]string{}, plan.Questions[split:]...)
	}

	return plan
}
