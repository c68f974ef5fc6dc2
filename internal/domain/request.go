package domain

import (
	"fmt"
	"strings"
)

// DifficultyMode selects a single tier or "random" (no difficulty filter)
type DifficultyMode string

const DifficultyRandom DifficultyMode = "random"

// ParseDifficultyMode accepts "random" or a difficulty tier; empty means random
func ParseDifficultyMode(s string) (DifficultyMode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == string(DifficultyRandom) {
		return DifficultyRandom, nil
	}
	d, err := ParseDifficulty(s)
	if err != nil {
		return "", err
	}
	return DifficultyMode(d), nil
}

// Tier returns the difficulty the mode filters on, or "" for random
func (m DifficultyMode) Tier() Difficulty {
	if m == DifficultyRandom || m == "" {
		return ""
	}
	return Difficulty(m)
}

// FailedOrder is the ordering used by failed-question review sessions
type FailedOrder string

const (
	FailedOrderMostFailed        FailedOrder = "most_failed"
	FailedOrderMostRecentFailure FailedOrder = "most_recent_failure"
	FailedOrderOldestFailure     FailedOrder = "oldest_failure"
	FailedOrderShuffled          FailedOrder = "shuffled"
)

// ParseFailedOrder parses a failed-review order name
func ParseFailedOrder(s string) (FailedOrder, error) {
	switch o := FailedOrder(strings.ToLower(strings.TrimSpace(s))); o {
	case FailedOrderMostFailed, FailedOrderMostRecentFailure, FailedOrderOldestFailure, FailedOrderShuffled:
		return o, nil
	}
	return "", fmt.Errorf("%w: unknown failed order %q", ErrInvalidRequest, s)
}

// SelectionMode names the ordering strategy a plan was built with
type SelectionMode string

const (
	ModePrioritized SelectionMode = "prioritized"
	ModeFailed      SelectionMode = "failed_review"
	ModeAdaptive    SelectionMode = "adaptive"
)

// SelectionRequest describes one request for a session plan. Build it as a
// value, then call Normalize once before handing it to the engine.
type SelectionRequest struct {
	Count  int    `json:"count"`
	UserID string `json:"user_id,omitempty"`

	// Topic scope. Topic 0 means no topic.
	Topic        int    `json:"topic,omitempty"`
	PositionType string `json:"position_type,omitempty"`

	// Explicit scope, used when no topic is given. ArticlesByLaw also narrows
	// a topic scope.
	Laws          []string            `json:"laws,omitempty"`
	ArticlesByLaw map[string][]string `json:"articles_by_law,omitempty"`
	Section       string              `json:"section,omitempty"`

	Difficulty            DifficultyMode `json:"difficulty,omitempty"`
	OnlyOfficial          bool           `json:"only_official,omitempty"`
	OnlyEssentialArticles bool           `json:"only_essential_articles,omitempty"`
	OnlyFailed            bool           `json:"only_failed,omitempty"`
	FailedOrder           FailedOrder    `json:"failed_order,omitempty"`
	ExcludeRecentDays     *int           `json:"exclude_recent_days,omitempty"`
	Adaptive              bool           `json:"adaptive,omitempty"`

	// Seed fixes the shuffle. Zero lets the engine derive one from the session.
	Seed int64 `json:"seed,omitempty"`
}

// WithOnlyOfficial returns a copy with the official-only flag set. Enabling it
// clears the essential-articles flag.
func (r SelectionRequest) WithOnlyOfficial(on bool) SelectionRequest {
	r.OnlyOfficial = on
	if on {
		r.OnlyEssentialArticles = false
	}
	return r
}

// WithOnlyEssentialArticles returns a copy with the essential-articles flag
// set. Enabling it clears the official-only flag.
func (r SelectionRequest) WithOnlyEssentialArticles(on bool) SelectionRequest {
	r.OnlyEssentialArticles = on
	if on {
		r.OnlyOfficial = false
	}
	return r
}

// HasConflictingFlags reports whether both official-only and
// essential-articles were forced on
func (r SelectionRequest) HasConflictingFlags() bool {
	return r.OnlyOfficial && r.OnlyEssentialArticles
}

// Normalize validates the request and resolves flag precedence:
// essential articles > official only > failed only. Official and essential
// requests always run with random difficulty, and failed review is never
// adaptive.
func (r SelectionRequest) Normalize(defaultOrder FailedOrder) (SelectionRequest, error) {
	// tiers match regardless of case, as ParseDifficultyMode does
	r.Difficulty = DifficultyMode(strings.ToLower(strings.TrimSpace(string(r.Difficulty))))
	if err := r.validate(); err != nil {
		return r, err
	}

	if r.Difficulty == "" {
		r.Difficulty = DifficultyRandom
	}
	if r.OnlyEssentialArticles {
		r.OnlyOfficial = false
	}
	if r.OnlyEssentialArticles || r.OnlyOfficial {
		r.OnlyFailed = false
		r.Difficulty = DifficultyRandom
	}
	if r.OnlyFailed {
		r.Adaptive = false
		if r.FailedOrder == "" {
			r.FailedOrder = defaultOrder
		}
		if r.FailedOrder == "" {
			r.FailedOrder = FailedOrderMostFailed
		}
	} else {
		r.FailedOrder = ""
	}

	r.Laws = dedupeStrings(r.Laws)
	return r, nil
}

func (r SelectionRequest) validate() error {
	if r.Count <= 0 {
		return fmt.Errorf("%w: count must be positive, got %d", ErrInvalidRequest, r.Count)
	}
	if r.Topic < 0 {
		return fmt.Errorf("%w: topic must not be negative", ErrInvalidRequest)
	}
	if r.Topic == 0 && len(r.Laws) == 0 && len(r.ArticlesByLaw) == 0 {
		return fmt.Errorf("%w: a topic or at least one law is required", ErrInvalidRequest)
	}
	if r.Section != "" && r.Topic != 0 {
		return fmt.Errorf("%w: a section filter cannot be combined with a topic", ErrInvalidRequest)
	}
	if r.Section != "" && len(dedupeStrings(r.Laws)) != 1 {
		return fmt.Errorf("%w: a section filter needs exactly one law", ErrInvalidRequest)
	}
	if r.Difficulty != "" && r.Difficulty != DifficultyRandom && !Difficulty(r.Difficulty).Valid() {
		return fmt.Errorf("%w: unknown difficulty %q", ErrInvalidRequest, r.Difficulty)
	}
	if r.FailedOrder != "" {
		if _, err := ParseFailedOrder(string(r.FailedOrder)); err != nil {
			return err
		}
	}
	if r.ExcludeRecentDays != nil && *r.ExcludeRecentDays < 0 {
		return fmt.Errorf("%w: exclude_recent_days must not be negative", ErrInvalidRequest)
	}
	if r.OnlyFailed && r.UserID == "" && !r.OnlyOfficial && !r.OnlyEssentialArticles {
		return fmt.Errorf("%w: failed-question review needs a user", ErrInvalidRequest)
	}
	return nil
}

// Mode reports which ordering strategy the normalized request uses
func (r SelectionRequest) Mode() SelectionMode {
	switch {
	case r.OnlyFailed:
		return ModeFailed
	case r.Adaptive:
		return ModeAdaptive
	default:
		return ModePrioritized
	}
}

func dedupeStrings(in []string) []string {
	if len(in) == 0 {
		return in
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
