package domain

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// -----------------------------------------------------------------------------
// Difficulty
// -----------------------------------------------------------------------------

// Difficulty is the authored difficulty tier of a question
type Difficulty string

const (
	DifficultyEasy    Difficulty = "easy"
	DifficultyMedium  Difficulty = "medium"
	DifficultyHard    Difficulty = "hard"
	DifficultyExtreme Difficulty = "extreme"
)

// Difficulties lists every tier from easiest to hardest
var Difficulties = []Difficulty{
	DifficultyEasy,
	DifficultyMedium,
	DifficultyHard,
	DifficultyExtreme,
}

// ParseDifficulty parses a difficulty tier name
func ParseDifficulty(s string) (Difficulty, error) {
	d := Difficulty(strings.ToLower(strings.TrimSpace(s)))
	if !d.Valid() {
		return "", fmt.Errorf("%w: unknown difficulty %q", ErrInvalidRequest, s)
	}
	return d, nil
}

// Valid reports whether d is one of the known tiers
func (d Difficulty) Valid() bool {
	return d.Rank() >= 0
}

// Rank returns the zero-based position of the tier, or -1 when unknown
func (d Difficulty) Rank() int {
	for i, tier := range Difficulties {
		if tier == d {
			return i
		}
	}
	return -1
}

// DifficultyFromRank clamps rank into the known tiers
func DifficultyFromRank(rank int) Difficulty {
	if rank < 0 {
		rank = 0
	}
	if rank >= len(Difficulties) {
		rank = len(Difficulties) - 1
	}
	return Difficulties[rank]
}

// -----------------------------------------------------------------------------
// Reference content
// -----------------------------------------------------------------------------

// Law is a legal text questions are written against
type Law struct {
	ID        string `json:"id"`
	ShortName string `json:"short_name"`
	Slug      string `json:"slug"`
}

// Article belongs to exactly one law. Number is not always numeric
// (e.g. "transitoria_3").
type Article struct {
	ID     string `json:"id"`
	LawID  string `json:"law_id"`
	Number string `json:"article_number"`
	Title  string `json:"title"`
}

// LeadingNumber returns the integer prefix of the article number ("14bis" -> 14).
func (a Article) LeadingNumber() (int, bool) {
	return leadingInt(a.Number)
}

// Question is a single quiz item
type Question struct {
	ID             string     `json:"id"`
	ArticleID      string     `json:"article_id"`
	Difficulty     Difficulty `json:"difficulty"`
	IsOfficialExam bool       `json:"is_official_exam"`
	IsActive       bool       `json:"is_active"`
}

// -----------------------------------------------------------------------------
// Scope mappings
// -----------------------------------------------------------------------------

// ScopeGroup is one (law, article numbers) entry of a topic scope.
// An empty ArticleNumbers slice covers every article of the law.
type ScopeGroup struct {
	Law            string   `json:"law" yaml:"law"`
	ArticleNumbers []string `json:"article_numbers,omitempty" yaml:"article_numbers,omitempty"`
}

// MergeScopeGroups folds groups of the same law into one, keeping the order
// in which laws first appear. A group with no article numbers widens the
// merged group to the whole law.
func MergeScopeGroups(groups []ScopeGroup) []ScopeGroup {
	index := make(map[string]int)
	whole := make(map[string]bool)
	var out []ScopeGroup
	for _, g := range groups {
		i, ok := index[g.Law]
		if !ok {
			i = len(out)
			index[g.Law] = i
			out = append(out, ScopeGroup{Law: g.Law})
		}
		if whole[g.Law] {
			continue
		}
		if len(g.ArticleNumbers) == 0 {
			whole[g.Law] = true
			out[i].ArticleNumbers = nil
			continue
		}
		out[i].ArticleNumbers = append(out[i].ArticleNumbers, g.ArticleNumbers...)
	}
	return out
}

// ArticleRange is an inclusive numeric article range from a section scope
type ArticleRange struct {
	Start int `json:"start" yaml:"start"`
	End   int `json:"end" yaml:"end"`
}

// Contains reports whether the article number's leading integer is in range.
// Numbers without a leading integer never match.
func (r ArticleRange) Contains(number string) bool {
	n, ok := leadingInt(number)
	if !ok {
		return false
	}
	return n >= r.Start && n <= r.End
}

// ArticleScope is the resolved set of articles of one law a query runs against
type ArticleScope struct {
	Law      string
	Articles []Article
}

// ArticleIDs returns the ids of the scoped articles
func (s ArticleScope) ArticleIDs() []string {
	ids := make([]string, len(s.Articles))
	for i, a := range s.Articles {
		ids[i] = a.ID
	}
	return ids
}

// QuestionFilter is pushed down to the content store. Inactive questions are
// always excluded; an empty Difficulty matches every tier.
type QuestionFilter struct {
	OnlyOfficial bool
	Difficulty   Difficulty
}

// Matches applies the filter to an in-memory question
func (f QuestionFilter) Matches(q Question) bool {
	if !q.IsActive {
		return false
	}
	if f.OnlyOfficial && !q.IsOfficialExam {
		return false
	}
	if f.Difficulty != "" && q.Difficulty != f.Difficulty {
		return false
	}
	return true
}

func leadingInt(s string) (int, bool) {
	end := 0
	for end < len(s) && unicode.IsDigit(rune(s[end])) {
		end++
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}
