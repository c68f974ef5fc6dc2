package domain

import (
	"testing"
	"time"
)

func TestArticleRange_Contains(t *testing.T) {
	r := ArticleRange{Start: 10, End: 55}

	tests := []struct {
		number string
		want   bool
	}{
		{"10", true},
		{"55", true},
		{"14bis", true},
		{"9", false},
		{"56", false},
		{"transitoria_3", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := r.Contains(tt.number); got != tt.want {
			t.Errorf("Contains(%q) = %v, want %v", tt.number, got, tt.want)
		}
	}
}

func TestDifficultyRank(t *testing.T) {
	if DifficultyEasy.Rank() != 0 || DifficultyExtreme.Rank() != 3 {
		t.Error("unexpected tier ranks")
	}
	if Difficulty("brutal").Valid() {
		t.Error("expected unknown tier to be invalid")
	}
	if DifficultyFromRank(-2) != DifficultyEasy {
		t.Error("expected clamp to easy")
	}
	if DifficultyFromRank(9) != DifficultyExtreme {
		t.Error("expected clamp to extreme")
	}
}

func TestQuestionFilter_Matches(t *testing.T) {
	q := Question{ID: "q1", Difficulty: DifficultyHard, IsOfficialExam: false, IsActive: true}

	if !(QuestionFilter{}).Matches(q) {
		t.Error("empty filter should match active question")
	}
	if (QuestionFilter{OnlyOfficial: true}).Matches(q) {
		t.Error("official filter should reject non-official question")
	}
	if (QuestionFilter{Difficulty: DifficultyEasy}).Matches(q) {
		t.Error("difficulty filter should reject other tiers")
	}

	q.IsActive = false
	if (QuestionFilter{}).Matches(q) {
		t.Error("inactive questions never match")
	}
}

func TestSummarizeAttempts(t *testing.T) {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	records := []AttemptRecord{
		{QuestionID: "x", IsCorrect: false, AnsweredAt: base},
		{QuestionID: "x", IsCorrect: true, AnsweredAt: base.Add(48 * time.Hour)},
		{QuestionID: "x", IsCorrect: false, AnsweredAt: base.Add(24 * time.Hour)},
		{QuestionID: "y", IsCorrect: true, AnsweredAt: base.Add(time.Hour)},
	}

	stats := SummarizeAttempts(records)

	x := stats["x"]
	if x.Attempts != 3 || x.TimesFailed != 2 {
		t.Errorf("unexpected counts for x: %+v", x)
	}
	if !x.LastAnsweredAt.Equal(base.Add(48 * time.Hour)) {
		t.Errorf("unexpected last answered: %v", x.LastAnsweredAt)
	}
	if !x.FirstFailureAt.Equal(base) || !x.LastFailureAt.Equal(base.Add(24*time.Hour)) {
		t.Errorf("unexpected failure bounds: %v %v", x.FirstFailureAt, x.LastFailureAt)
	}

	y := stats["y"]
	if y.TimesFailed != 0 || y.NeverSeen() {
		t.Errorf("unexpected stats for y: %+v", y)
	}

	if !stats["z"].NeverSeen() {
		t.Error("expected missing question to be never seen")
	}
}

func TestMergeScopeGroups(t *testing.T) {
	groups := []ScopeGroup{
		{Law: "CE", ArticleNumbers: []string{"1", "2"}},
		{Law: "LPAC", ArticleNumbers: []string{"5"}},
		{Law: "CE", ArticleNumbers: []string{"9"}},
		{Law: "LRJSP"},
		{Law: "LRJSP", ArticleNumbers: []string{"3"}},
	}

	got := MergeScopeGroups(groups)

	if len(got) != 3 {
		t.Fatalf("len(MergeScopeGroups()) = %d; want 3", len(got))
	}
	if got[0].Law != "CE" || len(got[0].ArticleNumbers) != 3 || got[0].ArticleNumbers[2] != "9" {
		t.Errorf("got[0] = %+v; want CE [1 2 9]", got[0])
	}
	if got[1].Law != "LPAC" {
		t.Errorf("got[1].Law = %q; want LPAC", got[1].Law)
	}
	if got[2].Law != "LRJSP" || got[2].ArticleNumbers != nil {
		t.Errorf("got[2] = %+v; want whole LRJSP", got[2])
	}
}
