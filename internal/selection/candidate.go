package selection

import (
	"sort"

	"github.com/felixgeelhaar/temario/internal/domain"
)

// Candidate is an eligible question with the metadata ordering needs
type Candidate struct {
	Question      domain.Question
	Law           string
	ArticleNumber string
	Stats         domain.QuestionStats
}

// ID returns the question id
func (c Candidate) ID() string {
	return c.Question.ID
}

// Planned converts the candidate into its plan representation
func (c Candidate) Planned() domain.PlannedQuestion {
	return domain.PlannedQuestion{
		ID:            c.Question.ID,
		Law:           c.Law,
		ArticleNumber: c.ArticleNumber,
		Difficulty:    c.Question.Difficulty,
		NeverSeen:     c.Stats.NeverSeen(),
		TimesFailed:   c.Stats.TimesFailed,
	}
}

// CandidateSet is the filtered, deduplicated set of eligible questions,
// kept sorted by question id
type CandidateSet struct {
	Candidates []Candidate
	Laws       []string
}

// Len returns the number of candidates
func (s *CandidateSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Candidates)
}

// IDs returns the candidate ids in set order
func (s *CandidateSet) IDs() []string {
	if s == nil {
		return nil
	}
	return IDs(s.Candidates)
}

// IDs returns the question ids of an ordered candidate list
func IDs(cands []Candidate) []string {
	ids := make([]string, len(cands))
	for i, c := range cands {
		ids[i] = c.ID()
	}
	return ids
}

func sortByID(cands []Candidate) {
	sort.Slice(cands, func(i, j int) bool {
		return cands[i].Question.ID < cands[j].Question.ID
	})
}
